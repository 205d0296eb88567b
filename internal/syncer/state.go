package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// Entry records what the vector store holds for one document.
type Entry struct {
	Revision   string `json:"revision"`
	ChunkCount int    `json:"chunk_count"`
}

// Manifest is the sync engine's durable record of which document revisions
// the vector store holds. It is the authority for skip decisions: a source
// revision equal to the manifest revision means the document is unchanged.
//
// Mutation ordering makes interrupted syncs safe. The manifest entry is
// deleted before the store is touched and rewritten only after the store
// write completes, so a crash mid-update leaves no entry and the next pass
// re-drives the document as new.
type Manifest struct {
	db *bbolt.DB
}

// OpenManifest opens or creates the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening manifest db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest bucket: %w", err)
	}

	return &Manifest{db: db}, nil
}

// Get returns the entry for a document id, or ok=false when absent.
func (m *Manifest) Get(id string) (Entry, bool, error) {
	var entry Entry
	var found bool
	err := m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decoding manifest entry %s: %w", id, err)
		}
		found = true
		return nil
	})
	return entry, found, err
}

// Put writes the entry for a document id.
func (m *Manifest) Put(id string, entry Entry) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocuments).Put([]byte(id), data)
	})
}

// Delete removes a document's entry. Deleting an absent id is a no-op.
func (m *Manifest) Delete(id string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(id))
	})
}

// List returns every tracked document id and its entry.
func (m *Manifest) List() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decoding manifest entry %s: %w", k, err)
			}
			entries[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the manifest database.
func (m *Manifest) Close() error {
	return m.db.Close()
}
