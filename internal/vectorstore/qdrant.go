package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantConfig holds configuration for the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize int
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 {
		return fmt.Errorf("%w: port must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store against an external Qdrant instance.
//
// Point ids are deterministic UUIDv5 hashes of the record key, so an upsert
// of the same (document_id, chunk_index) overwrites the previous point.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists with
// cosine distance and the configured vector size.
func NewQdrantStore(ctx context.Context, config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrStore, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrStore, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrStore, s.config.Collection, err)
	}
	return nil
}

// pointID derives a stable UUID from the record key.
func pointID(key string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String())
}

// Upsert embeds the records in one batch and upserts them as points.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
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

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(rec.Key()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: map[string]*qdrant.Value{
				metaDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: rec.DocumentID}},
				metaChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.ChunkIndex)}},
				metaRevision:   {Kind: &qdrant.Value_StringValue{StringValue: rec.Revision}},
				metaTitle:      {Kind: &qdrant.Value_StringValue{StringValue: rec.Title}},
				metaURL:        {Kind: &qdrant.Value_StringValue{StringValue: rec.URL}},
				metaTokens:     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.Tokens)}},
				"text":         {Kind: &qdrant.Value_StringValue{StringValue: rec.Text}},
			},
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upserting points: %v", ErrStore, err)
	}

	s.logger.Debug("upserted records",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)
	return nil
}

// DeleteDocument removes every point whose payload matches the document id.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrStore)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: metaDocumentID,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: deleting document %s: %v", ErrStore, documentID, err)
	}

	s.logger.Debug("deleted document records", zap.String("document_id", documentID))
	return nil
}

// Query embeds the text and runs a nearest-neighbor search.
func (s *QdrantStore) Query(ctx context.Context, text string, k int) ([]ScoredRecord, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrStore, k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrStore)
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection: %v", ErrStore, err)
	}

	scored := make([]ScoredRecord, 0, len(results))
	for _, point := range results {
		scored = append(scored, ScoredRecord{
			Record: recordFromPayload(point.Payload),
			Score:  point.Score,
		})
	}
	return scored, nil
}

// Count returns the number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting points: %v", ErrStore, err)
	}
	return int(count), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// recordFromPayload rebuilds a record from a point payload.
func recordFromPayload(payload map[string]*qdrant.Value) Record {
	rec := Record{}
	if v, ok := payload[metaDocumentID]; ok {
		rec.DocumentID = v.GetStringValue()
	}
	if v, ok := payload[metaChunkIndex]; ok {
		rec.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload[metaRevision]; ok {
		rec.Revision = v.GetStringValue()
	}
	if v, ok := payload[metaTitle]; ok {
		rec.Title = v.GetStringValue()
	}
	if v, ok := payload[metaURL]; ok {
		rec.URL = v.GetStringValue()
	}
	if v, ok := payload["text"]; ok {
		rec.Text = v.GetStringValue()
	}
	if v, ok := payload[metaTokens]; ok {
		rec.Tokens = int(v.GetIntegerValue())
	}
	return rec
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
