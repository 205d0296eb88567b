// Package syncer drives the document source to vector store synchronization.
//
// A sync pass lists every document in the configured collections, compares
// revision markers against the manifest, and converges the vector store:
// new documents are chunked, embedded and inserted; changed documents have
// their whole chunk set replaced; documents gone from the source are
// removed. Re-running a pass with an unchanged source performs no store
// mutations.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/substratelabs/braind/internal/chunker"
	"github.com/substratelabs/braind/internal/metrics"
	"github.com/substratelabs/braind/internal/source"
	"github.com/substratelabs/braind/internal/vectorstore"
)

// ErrSyncRunning indicates a sync pass is already in progress.
var ErrSyncRunning = errors.New("sync already running")

// Store is the slice of the vector store the sync engine mutates.
type Store interface {
	Upsert(ctx context.Context, records []vectorstore.Record) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// Report summarizes one sync pass. Every listed document lands in exactly
// one outcome.
type Report struct {
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Config holds sync engine parameters.
type Config struct {
	// CollectionIDs are the source collections to sync.
	CollectionIDs []string

	// PageLimit caps how many documents List returns per collection.
	// Zero means no limit.
	PageLimit int

	// Concurrency bounds how many documents are processed in parallel.
	Concurrency int
}

// Engine converges the vector store with the document source.
type Engine struct {
	source   source.Source
	chunker  *chunker.Chunker
	store    Store
	manifest *Manifest
	config   Config
	logger   *zap.Logger

	// running serializes passes. TryLock failure means a pass is active.
	running sync.Mutex
}

// New creates a sync engine.
func New(src source.Source, ch *chunker.Chunker, store Store, manifest *Manifest, config Config, logger *zap.Logger) (*Engine, error) {
	if src == nil || ch == nil || store == nil || manifest == nil {
		return nil, errors.New("syncer: source, chunker, store and manifest are required")
	}
	if len(config.CollectionIDs) == 0 {
		return nil, errors.New("syncer: at least one collection id is required")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:   src,
		chunker:  ch,
		store:    store,
		manifest: manifest,
		config:   config,
		logger:   logger.Named("syncer"),
	}, nil
}

// Sync runs one full pass. Only one pass runs at a time; a second call
// while a pass is active returns ErrSyncRunning.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	if !e.running.TryLock() {
		return nil, ErrSyncRunning
	}
	defer e.running.Unlock()

	start := time.Now()
	report, err := e.run(ctx)
	report.Duration = time.Since(start)
	metrics.RecordSyncRun(report.Duration, err)

	e.logger.Info("sync pass finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, err
}

func (e *Engine) run(ctx context.Context) (*Report, error) {
	report := &Report{}

	// Listing is the deletion authority. If any collection fails to list,
	// the pass aborts before the deletion phase so missing listings are
	// never mistaken for removed documents.
	listed := make(map[string]source.DocumentRef)
	for _, collectionID := range e.config.CollectionIDs {
		refs, err := e.source.List(ctx, collectionID, e.config.PageLimit)
		if err != nil {
			return report, fmt.Errorf("listing collection %s: %w", collectionID, err)
		}
		for _, ref := range refs {
			listed[ref.ID] = ref
		}
	}

	var mu sync.Mutex
	record := func(outcome string) {
		metrics.RecordSyncOutcome(outcome)
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case "created":
			report.Created++
		case "updated":
			report.Updated++
		case "unchanged":
			report.Unchanged++
		case "deleted":
			report.Deleted++
		case "failed":
			report.Failed++
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.Concurrency)
	for _, ref := range listed {
		group.Go(func() error {
			outcome, err := e.syncDocument(groupCtx, ref)
			if err != nil {
				// Failures are isolated per document; the pass continues.
				e.logger.Warn("document sync failed",
					zap.String("document_id", ref.ID),
					zap.Error(err),
				)
				record("failed")
				return nil
			}
			record(outcome)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	deleted, err := e.deleteAbsent(ctx, listed)
	for range deleted {
		record("deleted")
	}
	if err != nil {
		return report, err
	}
	return report, nil
}

// syncDocument converges one document and returns its outcome.
func (e *Engine) syncDocument(ctx context.Context, ref source.DocumentRef) (string, error) {
	entry, known, err := e.manifest.Get(ref.ID)
	if err != nil {
		return "", fmt.Errorf("reading manifest: %w", err)
	}
	if known && entry.Revision == ref.Revision {
		return "unchanged", nil
	}

	doc, err := e.source.Fetch(ctx, ref.ID)
	if err != nil {
		return "", fmt.Errorf("fetching document: %w", err)
	}

	chunks := e.chunker.Split(doc.ID, doc.Text)
	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Revision:   doc.Revision,
			Title:      doc.Title,
			URL:        doc.URL,
			Text:       c.Text,
			Tokens:     c.Tokens,
		}
	}

	// Replace, never patch: chunk boundaries shift with any edit, so the
	// whole chunk set goes. The manifest entry is removed first; a crash
	// anywhere before the final Put re-drives this document as new on the
	// next pass instead of silently skipping a half-written state. The
	// store delete runs unconditionally for the same reason: a re-driven
	// document has no manifest entry but may still hold records from an
	// interrupted pass, and those must never survive next to the new set.
	if err := e.manifest.Delete(ref.ID); err != nil {
		return "", fmt.Errorf("clearing manifest entry: %w", err)
	}
	if err := e.store.DeleteDocument(ctx, ref.ID); err != nil {
		return "", fmt.Errorf("deleting stale records: %w", err)
	}
	if len(records) > 0 {
		if err := e.store.Upsert(ctx, records); err != nil {
			return "", fmt.Errorf("upserting records: %w", err)
		}
	}
	if err := e.manifest.Put(ref.ID, Entry{Revision: doc.Revision, ChunkCount: len(records)}); err != nil {
		return "", fmt.Errorf("writing manifest entry: %w", err)
	}

	e.logger.Debug("document synced",
		zap.String("document_id", ref.ID),
		zap.String("revision", doc.Revision),
		zap.Int("chunks", len(records)),
	)
	if known {
		return "updated", nil
	}
	return "created", nil
}

// deleteAbsent removes every tracked document the source no longer lists
// and returns the ids it removed. The store is cleared before the
// manifest entry so an interrupted deletion is retried on the next pass.
func (e *Engine) deleteAbsent(ctx context.Context, listed map[string]source.DocumentRef) ([]string, error) {
	tracked, err := e.manifest.List()
	if err != nil {
		return nil, fmt.Errorf("listing manifest: %w", err)
	}

	var deleted []string
	for id := range tracked {
		if _, ok := listed[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := e.store.DeleteDocument(ctx, id); err != nil {
			return deleted, fmt.Errorf("deleting document %s: %w", id, err)
		}
		if err := e.manifest.Delete(id); err != nil {
			return deleted, fmt.Errorf("deleting manifest entry %s: %w", id, err)
		}
		e.logger.Debug("document removed", zap.String("document_id", id))
		deleted = append(deleted, id)
	}
	return deleted, nil
}
