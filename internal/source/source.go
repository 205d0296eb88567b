// Package source defines the document source boundary and its Notion adapter.
//
// The sync engine only sees the narrow Source interface; everything
// Notion-specific (pagination, property flattening, block traversal) stays
// inside this package.
package source

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the document source could not be reached. Sync
// treats it as retryable and isolated per document.
var ErrUnavailable = errors.New("document source unavailable")

// DocumentRef identifies a document and its current revision without
// fetching content.
type DocumentRef struct {
	// ID is the document's external identifier.
	ID string

	// Revision is an opaque revision marker (last-edited timestamp). Two
	// equal markers mean the content has not changed since last sync.
	Revision string
}

// Document is a fetched document, normalized to plain text. Owned by the
// source; read-only to braind.
type Document struct {
	ID       string
	Title    string
	Text     string
	Revision string
	URL      string
}

// Source lists and fetches documents from one collection of an external
// content system.
type Source interface {
	// List returns the id and revision marker of every document in the
	// collection, up to limit (0 means no limit). The listing is the
	// authority for deletions: ids present in the store but absent here
	// are removed on the next sync pass.
	List(ctx context.Context, collectionID string, limit int) ([]DocumentRef, error)

	// Fetch returns the document's normalized text content, title and
	// revision marker.
	Fetch(ctx context.Context, id string) (*Document, error)
}
