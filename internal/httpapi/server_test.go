package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/answerer"
	"github.com/substratelabs/braind/internal/syncer"
	"github.com/substratelabs/braind/internal/vectorstore"
)

type fakeRetriever struct {
	results []vectorstore.ScoredRecord
	err     error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]vectorstore.ScoredRecord, error) {
	return f.results, f.err
}

type fakeAnswerer struct {
	answer    string
	answerErr error
	intent    answerer.Intent
	intentErr error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string, sources []vectorstore.ScoredRecord) (string, error) {
	return f.answer, f.answerErr
}

func (f *fakeAnswerer) ClassifyIntent(ctx context.Context, message string) (answerer.Intent, error) {
	return f.intent, f.intentErr
}

type fakeSyncer struct {
	mu     sync.Mutex
	report *syncer.Report
	err    error
	calls  int
}

func (f *fakeSyncer) Sync(ctx context.Context) (*syncer.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report, f.err
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStats struct {
	count int
	err   error
}

func (f *fakeStats) Count(ctx context.Context) (int, error) {
	return f.count, f.err
}

type fakeLister struct {
	entries map[string]syncer.Entry
}

func (f *fakeLister) List() (map[string]syncer.Entry, error) {
	return f.entries, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []string
}

func (f *fakeSender) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, chatID)
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

type testDeps struct {
	retriever *fakeRetriever
	answerer  *fakeAnswerer
	syncer    *fakeSyncer
	stats     *fakeStats
	sender    *fakeSender
}

func setupServer(t *testing.T, cfg Config) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		retriever: &fakeRetriever{},
		answerer:  &fakeAnswerer{intent: answerer.IntentQuery, answer: "an answer"},
		syncer:    &fakeSyncer{report: &syncer.Report{Created: 1}},
		stats:     &fakeStats{count: 7},
		sender:    &fakeSender{},
	}
	server, err := NewServer(cfg, Deps{
		Retriever: deps.retriever,
		Answerer:  deps.answerer,
		Syncer:    deps.syncer,
		Stats:     deps.stats,
		Documents: &fakeLister{entries: map[string]syncer.Entry{"a": {}, "b": {}}},
		Sender:    deps.sender,
	}, zap.NewNop())
	require.NoError(t, err)
	return server, deps
}

func doJSON(server *Server, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{}, Deps{}, nil)
	assert.Error(t, err)

	_, err = NewServer(Config{}, Deps{}, zap.NewNop())
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupServer(t, Config{})
	rec := doJSON(server, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupServer(t, Config{})
	rec := doJSON(server, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey(t *testing.T) {
	server, _ := setupServer(t, Config{APIKey: "secret"})

	rec := doJSON(server, http.MethodGet, "/api/v1/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(server, http.MethodGet, "/api/v1/stats", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(server, http.MethodGet, "/api/v1/stats", nil, "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health and metrics stay open.
	rec = doJSON(server, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStats(t *testing.T) {
	server, _ := setupServer(t, Config{})
	rec := doJSON(server, http.MethodGet, "/api/v1/stats", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Records)
	assert.Equal(t, 2, resp.Documents)
}

func TestHandleSync(t *testing.T) {
	server, deps := setupServer(t, Config{})
	rec := doJSON(server, http.MethodPost, "/api/v1/sync", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var report syncer.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, deps.syncer.callCount())
}

func TestHandleSync_AlreadyRunning(t *testing.T) {
	server, deps := setupServer(t, Config{})
	deps.syncer.err = syncer.ErrSyncRunning
	deps.syncer.report = nil

	rec := doJSON(server, http.MethodPost, "/api/v1/sync", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleAsk(t *testing.T) {
	server, deps := setupServer(t, Config{})
	deps.retriever.results = []vectorstore.ScoredRecord{
		{Record: vectorstore.Record{DocumentID: "doc-1", Title: "Notes", ChunkIndex: 2}, Score: 0.91},
	}

	rec := doJSON(server, http.MethodPost, "/api/v1/ask", AskRequest{Question: "when?"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "an answer", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc-1", resp.Sources[0].DocumentID)
	assert.Equal(t, 2, resp.Sources[0].ChunkIndex)
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	server, _ := setupServer(t, Config{})
	rec := doJSON(server, http.MethodPost, "/api/v1/ask", AskRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAsk_GenerationFailure(t *testing.T) {
	server, deps := setupServer(t, Config{})
	deps.answerer.answerErr = errors.New("model down")

	rec := doJSON(server, http.MethodPost, "/api/v1/ask", AskRequest{Question: "q"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func webhookEvent(from, body string) WebhookEvent {
	return WebhookEvent{Event: "message", Payload: WebhookMessage{From: from, Body: body}}
}

func TestWebhook_AnswersAllowedSender(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})

	rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "when do I water?"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	messages := deps.sender.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "an answer", messages[0])
	assert.Equal(t, "31612345678@c.us", deps.sender.to[0])
}

func TestWebhook_RejectsUnknownSender(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})

	rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("49999999999@c.us", "hello"), "")

	// Unauthorized senders get a 200 ack and silence, never a reply.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deps.sender.messages())
}

func TestWebhook_IgnoresNonMessageEvents(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})

	event := WebhookEvent{Event: "session.status"}
	rec := doJSON(server, http.MethodPost, "/webhook", event, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deps.sender.messages())
}

func TestWebhook_SyncIntent(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})
	deps.answerer.intent = answerer.IntentSync

	rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "please sync"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The ack reply is synchronous, the completion reply comes from the
	// background pass.
	require.Eventually(t, func() bool {
		return len(deps.sender.messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	messages := deps.sender.messages()
	assert.Equal(t, replySyncStarted, messages[0])
	assert.Equal(t, replySyncDone, messages[1])
	assert.Equal(t, 1, deps.syncer.callCount())
}

func TestWebhook_PipelineFailureGetsDistinctReply(t *testing.T) {
	cases := map[string]func(*testDeps){
		"retrieval fails":  func(d *testDeps) { d.retriever.err = errors.New("store down") },
		"generation fails": func(d *testDeps) { d.answerer.answerErr = errors.New("model down") },
	}
	for name, breakDep := range cases {
		t.Run(name, func(t *testing.T) {
			server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})
			breakDep(deps)

			rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "when do I water?"), "")
			assert.Equal(t, http.StatusOK, rec.Code)

			// An upstream failure must not read like "nothing relevant found".
			messages := deps.sender.messages()
			require.Len(t, messages, 1)
			assert.Equal(t, replyAnswerFailed, messages[0])
			assert.NotEqual(t, replyNoAnswer, messages[0])
		})
	}
}

func TestWebhook_UnknownIntent(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})
	deps.answerer.intent = answerer.IntentUnknown

	rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "hi"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	messages := deps.sender.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, replyUnrecognized, messages[0])
}

func TestWebhook_ClassifierFailureFallsBackToQuery(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})
	deps.answerer.intent = answerer.IntentUnknown
	deps.answerer.intentErr = errors.New("classifier down")

	rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "when do I water?"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	messages := deps.sender.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "an answer", messages[0])
}

func TestWebhook_RateLimitsSender(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})

	// The per-sender bucket allows a burst of 3.
	for i := 0; i < 5; i++ {
		rec := doJSON(server, http.MethodPost, "/webhook", webhookEvent("31612345678@c.us", "q"), "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, deps.sender.messages(), 3)
}

func TestWebhook_InvalidPayload(t *testing.T) {
	server, deps := setupServer(t, Config{AllowedSenders: []string{"31612345678"}})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json")))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deps.sender.messages())
}
