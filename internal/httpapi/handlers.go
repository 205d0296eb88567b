package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/retriever"
	"github.com/substratelabs/braind/internal/syncer"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Documents int `json:"documents"`
	Records   int `json:"records"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskSource describes one chunk backing an answer.
type AskSource struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer  string      `json:"answer"`
	Sources []AskSource `json:"sources"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	records, err := s.deps.Stats.Count(c.Request().Context())
	if err != nil {
		s.logger.Error("counting records", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "counting records failed")
	}

	documents := 0
	if s.deps.Documents != nil {
		tracked, err := s.deps.Documents.List()
		if err != nil {
			s.logger.Error("listing tracked documents", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "listing documents failed")
		}
		documents = len(tracked)
	}

	return c.JSON(http.StatusOK, StatsResponse{Documents: documents, Records: records})
}

func (s *Server) handleSync(c echo.Context) error {
	report, err := s.deps.Syncer.Sync(c.Request().Context())
	if errors.Is(err, syncer.ErrSyncRunning) {
		return echo.NewHTTPError(http.StatusConflict, "a sync is already running")
	}
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "sync failed")
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ctx := c.Request().Context()
	sources, err := s.deps.Retriever.Retrieve(ctx, req.Question)
	if err != nil {
		if errors.Is(err, retriever.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
		}
		s.logger.Error("retrieval failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
	}

	answer, err := s.deps.Answerer.Answer(ctx, req.Question, sources)
	if err != nil {
		s.logger.Error("answer generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "answer generation failed")
	}

	resp := AskResponse{Answer: answer, Sources: make([]AskSource, len(sources))}
	for i, src := range sources {
		resp.Sources[i] = AskSource{
			DocumentID: src.DocumentID,
			Title:      src.Title,
			URL:        src.URL,
			ChunkIndex: src.ChunkIndex,
			Score:      src.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}
