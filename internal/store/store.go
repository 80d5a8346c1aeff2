// Package store defines the abstract Index Store contract that the match
// engine is built against. internal/store/sqlite provides the reference
// implementation; any other backend satisfying this interface is equally
// acceptable.
package store

import (
	"context"
	"errors"

	"github.com/arcspan/fingermatch/internal/model"
)

// PutOutcome reports whether PutItem actually wrote a new item.
type PutOutcome int

const (
	// Inserted means the content_id was new: metadata and postings were
	// written.
	Inserted PutOutcome = iota
	// AlreadyExists means the content_id was already present: nothing was
	// written (first write wins).
	AlreadyExists
)

// ErrNotFound is returned by GetItem when content_id is unknown.
var ErrNotFound = errors.New("store: item not found")

// Store is the engine's abstract Index Store collaborator.
type Store interface {
	// PutItem inserts fp/meta under meta.ContentID if it doesn't already
	// exist. On AlreadyExists, fp and meta are ignored entirely.
	PutItem(ctx context.Context, fp model.Fingerprint, meta model.ContentMetadata) (PutOutcome, error)

	// PostingsFor returns, for hash, the content_ids whose fingerprint
	// contains it and how many of their frames do, ordered by match count
	// descending. limit is advisory.
	PostingsFor(ctx context.Context, hash uint32, limit int) ([]model.PostingMatch, error)

	// GetItem returns the metadata for content_id, or ErrNotFound.
	GetItem(ctx context.Context, contentID string) (model.ContentMetadata, error)

	// DeleteItem removes content_id's metadata, fingerprint, and postings.
	// Returns ErrNotFound if content_id is unknown. Backs the HTTP front
	// end's DELETE /v1/items/{id}.
	DeleteItem(ctx context.Context, contentID string) error

	// Stats summarizes the store's contents.
	Stats(ctx context.Context) (model.StoreStats, error)

	// StoredHashCount returns the number of hashes in content_id's stored
	// fingerprint, used by the engine as the scoring denominator. Returns
	// 0, ErrNotFound if unknown.
	StoredHashCount(ctx context.Context, contentID string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
