// Package vectorstore persists embedding records and serves similarity
// queries. Two providers are available: chromem-go (embedded, default) and
// Qdrant (external, gRPC).
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrStore indicates a vector store failure.
	ErrStore = errors.New("vector store error")

	// ErrEmptyRecords indicates an upsert with no records.
	ErrEmptyRecords = errors.New("empty records")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")
)

// Metadata keys persisted with every record.
const (
	metaDocumentID = "document_id"
	metaChunkIndex = "chunk_index"
	metaRevision   = "revision"
	metaTitle      = "title"
	metaURL        = "url"
	metaTokens     = "tokens"
)

// Record is a persisted chunk: identity, text, vector and source metadata.
type Record struct {
	// DocumentID and ChunkIndex form the record identity.
	DocumentID string
	ChunkIndex int

	// Revision is the source document's revision marker at embed time.
	Revision string

	// Title and URL attribute the chunk to its source page.
	Title string
	URL   string

	// Text is the chunk's original text.
	Text string

	// Tokens is the chunk's token count.
	Tokens int
}

// Key returns the record's store identity, `{document_id}#{chunk_index}`.
func (r Record) Key() string {
	return fmt.Sprintf("%s#%d", r.DocumentID, r.ChunkIndex)
}

// ScoredRecord is a query hit with its cosine similarity score.
type ScoredRecord struct {
	Record

	// Score is the cosine similarity in [-1, 1]; higher is closer.
	Score float32
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the narrow vector store interface the pipeline consumes.
//
// Mutations are scoped to one document id at a time; the sync engine
// serializes concurrent work on the same document.
type Store interface {
	// Upsert embeds and writes the given records. Records sharing a key
	// replace previous versions.
	Upsert(ctx context.Context, records []Record) error

	// DeleteDocument removes every record belonging to the document.
	// Deleting an absent document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Query embeds the text and returns up to k nearest records by cosine
	// similarity, highest score first. An empty store yields an empty
	// result, not an error.
	Query(ctx context.Context, text string, k int) ([]ScoredRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}
