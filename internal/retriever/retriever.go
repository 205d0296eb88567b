// Package retriever selects the context chunks backing an answer.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/metrics"
	"github.com/substratelabs/braind/internal/vectorstore"
)

// ErrEmptyQuery indicates a blank retrieval query.
var ErrEmptyQuery = errors.New("retrieval query is empty")

// Querier is the slice of the vector store the retriever reads.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]vectorstore.ScoredRecord, error)
}

// Config holds retrieval parameters.
type Config struct {
	// TopK caps how many chunks a retrieval returns.
	TopK int

	// MinScore is the similarity floor. Chunks scoring below it are
	// dropped even when fewer than TopK remain.
	MinScore float64
}

// Retriever ranks stored chunks against a query.
type Retriever struct {
	store  Querier
	config Config
	logger *zap.Logger
}

// New creates a retriever.
func New(store Querier, config Config, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, errors.New("retriever: store is required")
	}
	if config.TopK <= 0 {
		return nil, fmt.Errorf("retriever: top k must be positive, got %d", config.TopK)
	}
	if config.MinScore < -1 || config.MinScore > 1 {
		return nil, fmt.Errorf("retriever: min score must be in [-1, 1], got %g", config.MinScore)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, config: config, logger: logger.Named("retriever")}, nil
}

// Retrieve returns up to TopK chunks scoring at least MinScore, best first.
// Equal scores order by document id then chunk index so results are stable
// across runs. An empty result is a valid answer: it means nothing in the
// store is relevant enough.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.ScoredRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	results, err := r.store.Query(ctx, query, r.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}

	// Compare in float32: widening the score would push values sitting
	// exactly on the threshold below it.
	floor := float32(r.config.MinScore)
	kept := results[:0]
	for _, res := range results {
		if res.Score >= floor {
			kept = append(kept, res)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		if kept[i].DocumentID != kept[j].DocumentID {
			return kept[i].DocumentID < kept[j].DocumentID
		}
		return kept[i].ChunkIndex < kept[j].ChunkIndex
	})
	if len(kept) > r.config.TopK {
		kept = kept[:r.config.TopK]
	}

	metrics.RecordRetrieval(len(kept))
	r.logger.Debug("retrieved context",
		zap.Int("candidates", len(results)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}
