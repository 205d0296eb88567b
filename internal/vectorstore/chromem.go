package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	Collection string

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension for the lifetime of the store.
	VectorSize int
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store on chromem-go, an embeddable pure-Go vector
// database with gob file persistence. No external service is needed.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a ChromemStore at the configured path.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandHome(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrStore, err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder to chromem's query-time callback.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: getting collection %s: %v", ErrStore, s.config.Collection, err)
	}
	return col, nil
}

// Upsert embeds the records in one batch and writes them. A record's key
// replaces any previous record with the same document id and chunk index.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	col, err := s.collection()
	if err != nil {
		return err
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding records: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: got %d vectors for %d records", ErrStore, len(vectors), len(records))
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		docs[i] = chromem.Document{
			ID:        rec.Key(),
			Content:   rec.Text,
			Metadata:  recordMetadata(rec),
			Embedding: vectors[i],
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: adding documents: %v", ErrStore, err)
	}

	s.logger.Debug("upserted records",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)
	return nil
}

// DeleteDocument removes every record with the given document id.
func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrStore)
	}

	col, err := s.collection()
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("%w: deleting document %s: %v", ErrStore, documentID, err)
	}

	s.logger.Debug("deleted document records", zap.String("document_id", documentID))
	return nil
}

// Query returns up to k nearest records, highest similarity first.
func (s *ChromemStore) Query(ctx context.Context, text string, k int) ([]ScoredRecord, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrStore, k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrStore)
	}

	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem requires k <= document count.
	count := col.Count()
	if count == 0 {
		return []ScoredRecord{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection: %v", ErrStore, err)
	}

	scored := make([]ScoredRecord, len(results))
	for i, res := range results {
		scored[i] = ScoredRecord{
			Record: recordFromMetadata(res.Content, res.Metadata),
			Score:  res.Similarity,
		}
	}
	return scored, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close closes the store. chromem persists on write, so this is a no-op
// beyond logging.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// recordMetadata renders a record's identity fields as chromem metadata.
func recordMetadata(rec Record) map[string]string {
	return map[string]string{
		metaDocumentID: rec.DocumentID,
		metaChunkIndex: strconv.Itoa(rec.ChunkIndex),
		metaRevision:   rec.Revision,
		metaTitle:      rec.Title,
		metaURL:        rec.URL,
		metaTokens:     strconv.Itoa(rec.Tokens),
	}
}

// recordFromMetadata rebuilds a record from stored content and metadata.
func recordFromMetadata(content string, meta map[string]string) Record {
	index, _ := strconv.Atoi(meta[metaChunkIndex])
	tokens, _ := strconv.Atoi(meta[metaTokens])
	return Record{
		DocumentID: meta[metaDocumentID],
		ChunkIndex: index,
		Revision:   meta[metaRevision],
		Title:      meta[metaTitle],
		URL:        meta[metaURL],
		Text:       content,
		Tokens:     tokens,
	}
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
