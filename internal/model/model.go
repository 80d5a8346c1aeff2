// Package model holds the data types shared across fingermatch's
// extractor, engine, store, and service layers.
package model

// AudioBuffer is decoded, mono, floating-point PCM at a fixed sample rate.
// Producing one is the Decoder collaborator's job (internal/decoder), not
// the extractor's.
type AudioBuffer struct {
	Samples    []float64
	SampleRate int
}

// Fingerprint is the ordered sequence of 32-bit hashes an extractor run
// produces from one AudioBuffer, plus the duration of the source buffer in
// milliseconds. Invariant: len(Hashes)*8 == len(digest) for any digest
// derived from it (see extractor.Digest).
type Fingerprint struct {
	Hashes     []uint32
	DurationMs int64
}

// ContentMetadata is caller-supplied, opaque to the core beyond ContentID:
// the service never interprets Title, Source, or CreatedAt.
type ContentMetadata struct {
	ContentID  string
	Title      string
	Source     string
	DurationMs int64
	CreatedAt  int64
}

// StoredItem is one ingested fingerprint plus its metadata, as persisted by
// a Store.
type StoredItem struct {
	Metadata    ContentMetadata
	Fingerprint Fingerprint
}

// PostingMatch is one row of a PostingsFor result: a content_id and how
// many frames of that item's fingerprint carry the queried hash.
type PostingMatch struct {
	ContentID  string
	MatchCount int
}

// MatchResult is one ranked candidate returned by the match engine or the
// service façade.
type MatchResult struct {
	Metadata        ContentMetadata
	Score           float64
	MatchedSegments int
}

// StoreStats summarizes an Index Store's contents.
type StoreStats struct {
	ItemCount    int64
	PostingCount int64
	StorageBytes int64
}
