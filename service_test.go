package fingermatch

import (
	"context"
	"sync"
	"testing"

	"github.com/arcspan/fingermatch/internal/model"
	"github.com/arcspan/fingermatch/internal/store"
)

// testStore is a minimal in-memory Store, mirroring internal/engine's
// memStore, used to exercise the full Service pipeline without sqlite.
type testStore struct {
	mu       sync.Mutex
	items    map[string]model.StoredItem
	postings map[uint32][]model.PostingMatch
}

func newTestStore() *testStore {
	return &testStore{
		items:    make(map[string]model.StoredItem),
		postings: make(map[uint32][]model.PostingMatch),
	}
}

func (s *testStore) PutItem(ctx context.Context, fp model.Fingerprint, meta model.ContentMetadata) (store.PutOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[meta.ContentID]; exists {
		return store.AlreadyExists, nil
	}
	s.items[meta.ContentID] = model.StoredItem{Metadata: meta, Fingerprint: fp}

	counts := make(map[uint32]int)
	for _, h := range fp.Hashes {
		counts[h]++
	}
	for h, c := range counts {
		s.postings[h] = append(s.postings[h], model.PostingMatch{ContentID: meta.ContentID, MatchCount: c})
	}
	return store.Inserted, nil
}

func (s *testStore) PostingsFor(ctx context.Context, hash uint32, limit int) ([]model.PostingMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.postings[hash]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]model.PostingMatch, len(all))
	copy(out, all)
	return out, nil
}

func (s *testStore) GetItem(ctx context.Context, contentID string) (model.ContentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[contentID]
	if !ok {
		return model.ContentMetadata{}, store.ErrNotFound
	}
	return item.Metadata, nil
}

func (s *testStore) DeleteItem(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[contentID]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, contentID)
	for h, ps := range s.postings {
		kept := ps[:0]
		for _, p := range ps {
			if p.ContentID != contentID {
				kept = append(kept, p)
			}
		}
		s.postings[h] = kept
	}
	return nil
}

func (s *testStore) StoredHashCount(ctx context.Context, contentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[contentID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return len(item.Fingerprint.Hashes), nil
}

func (s *testStore) Stats(ctx context.Context) (model.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var postingCount int64
	for _, ps := range s.postings {
		postingCount += int64(len(ps))
	}
	return model.StoreStats{ItemCount: int64(len(s.items)), PostingCount: postingCount}, nil
}

func (s *testStore) Close() error { return nil }

func putContent(t *testing.T, s *testStore, id string, hashes []uint32) {
	t.Helper()
	_, err := s.PutItem(context.Background(), model.Fingerprint{Hashes: hashes}, model.ContentMetadata{ContentID: id})
	if err != nil {
		t.Fatalf("PutItem(%s): %v", id, err)
	}
}

func newTestService(t *testing.T, s *testStore, opts ...Option) *Service {
	t.Helper()
	allOpts := append([]Option{WithStore(s), WithNumThreads(4)}, opts...)
	svc, err := New(allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// A query fingerprint identical to a stored item scores 1.0.
func TestServiceSelfMatchIsPerfect(t *testing.T) {
	s := newTestStore()
	hashes := []uint32{1, 2, 3, 4, 5}
	putContent(t, s, "song-a", hashes)

	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:   "req-1",
		Fingerprint: model.Fingerprint{Hashes: hashes},
	})
	if !resp.Success {
		t.Fatalf("Success = false, error = %s", resp.ErrorMessage)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Score != 1.0 {
		t.Fatalf("Matches = %+v, want one perfect match", resp.Matches)
	}
}

// Results below min_similarity are filtered out.
func TestServiceThresholdFiltering(t *testing.T) {
	s := newTestStore()
	query := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	putContent(t, s, "close", []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 99})
	putContent(t, s, "far", []uint32{1, 2, 3, 99, 99, 99, 99, 99, 99, 99})

	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:     "req-2",
		Fingerprint:   model.Fingerprint{Hashes: query},
		MinSimilarity: 0.8,
		MaxResults:    10,
	})
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.ErrorMessage)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Metadata.ContentID != "close" {
		t.Fatalf("Matches = %+v, want only 'close'", resp.Matches)
	}
}

// Results are ranked by score desc then truncated to max_results.
func TestServiceRankingAndTruncation(t *testing.T) {
	s := newTestStore()
	query := make([]uint32, 10)
	for i := range query {
		query[i] = uint32(i)
	}
	cases := []struct {
		id    string
		match int
	}{{"top", 9}, {"mid", 7}, {"low", 5}}
	for _, c := range cases {
		hashes := make([]uint32, 10)
		copy(hashes, query[:c.match])
		for i := c.match; i < 10; i++ {
			hashes[i] = uint32(1000 + i)
		}
		putContent(t, s, c.id, hashes)
	}

	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:     "req-3",
		Fingerprint:   model.Fingerprint{Hashes: query},
		MinSimilarity: 0.4,
		MaxResults:    2,
	})
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.ErrorMessage)
	}
	if len(resp.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(resp.Matches))
	}
	if resp.Matches[0].Metadata.ContentID != "top" || resp.Matches[1].Metadata.ContentID != "mid" {
		t.Fatalf("Matches = %+v, want [top, mid]", resp.Matches)
	}
}

// A repeated identical query is served from cache on the second call, and
// cache_hits/cache_misses only ever sum to at most total_requests.
func TestServiceCacheHitOnRepeatedQuery(t *testing.T) {
	s := newTestStore()
	hashes := []uint32{11, 12, 13, 14}
	putContent(t, s, "song-b", hashes)

	svc := newTestService(t, s)
	req := Request{RequestID: "req-4a", Fingerprint: model.Fingerprint{Hashes: hashes}}

	first := svc.Match(context.Background(), req)
	if !first.Success {
		t.Fatalf("first Success = false: %s", first.ErrorMessage)
	}

	req.RequestID = "req-4b"
	second := svc.Match(context.Background(), req)
	if !second.Success {
		t.Fatalf("second Success = false: %s", second.ErrorMessage)
	}

	stats := svc.GetStats()
	if stats.CacheHits != 1 {
		t.Fatalf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.CacheMisses != 1 {
		t.Fatalf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
	if stats.CacheHits+stats.CacheMisses > stats.TotalRequests {
		t.Fatalf("cache_hits(%d)+cache_misses(%d) > total_requests(%d)", stats.CacheHits, stats.CacheMisses, stats.TotalRequests)
	}
}

// A concurrent batch of identical requests across multiple workers all
// succeed and preserve request_id/order.
func TestServiceMatchBatchPreservesOrderUnderConcurrency(t *testing.T) {
	s := newTestStore()
	hashes := []uint32{21, 22, 23, 24}
	putContent(t, s, "song-c", hashes)

	svc := newTestService(t, s, WithNumThreads(8))

	const n = 100
	reqs := make([]Request, n)
	for i := 0; i < n; i++ {
		reqs[i] = Request{
			RequestID:   requestIDFor(i),
			Fingerprint: model.Fingerprint{Hashes: hashes},
		}
	}

	resps, err := svc.MatchBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("MatchBatch: %v", err)
	}
	if len(resps) != n {
		t.Fatalf("len(resps) = %d, want %d", len(resps), n)
	}
	for i, resp := range resps {
		if resp.RequestID != requestIDFor(i) {
			t.Fatalf("resps[%d].RequestID = %s, want %s", i, resp.RequestID, requestIDFor(i))
		}
		if !resp.Success || len(resp.Matches) != 1 {
			t.Fatalf("resps[%d] = %+v, want one successful match", i, resp)
		}
	}
}

func requestIDFor(i int) string {
	return "batch-" + string(rune('a'+(i%26))) + string(rune('0'+(i/26)))
}

// Re-ingesting the same content_id is idempotent (first-write-wins, no
// duplicate postings), and match results are unaffected.
func TestServiceIdempotentIngest(t *testing.T) {
	s := newTestStore()
	hashes := []uint32{31, 32, 33}

	outcome1, err := s.PutItem(context.Background(), model.Fingerprint{Hashes: hashes}, model.ContentMetadata{ContentID: "song-d"})
	if err != nil || outcome1 != store.Inserted {
		t.Fatalf("first PutItem: outcome=%v err=%v", outcome1, err)
	}
	outcome2, err := s.PutItem(context.Background(), model.Fingerprint{Hashes: hashes}, model.ContentMetadata{ContentID: "song-d"})
	if err != nil || outcome2 != store.AlreadyExists {
		t.Fatalf("second PutItem: outcome=%v err=%v", outcome2, err)
	}

	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:   "req-6",
		Fingerprint: model.Fingerprint{Hashes: hashes},
	})
	if !resp.Success || len(resp.Matches) != 1 || resp.Matches[0].MatchedSegments != len(hashes) {
		t.Fatalf("Matches = %+v, want one match with %d segments", resp.Matches, len(hashes))
	}
}

func TestServiceRejectsInvalidMinSimilarity(t *testing.T) {
	s := newTestStore()
	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:     "req-bad",
		Fingerprint:   model.Fingerprint{Hashes: []uint32{1}},
		MinSimilarity: 1.5,
	})
	if resp.Success {
		t.Fatal("Success = true, want false for out-of-range min_similarity")
	}
}

func TestServiceRejectsExcessiveMaxResults(t *testing.T) {
	s := newTestStore()
	svc := newTestService(t, s)
	resp := svc.Match(context.Background(), Request{
		RequestID:   "req-bad2",
		Fingerprint: model.Fingerprint{Hashes: []uint32{1}},
		MaxResults:  MaxResultsLimit + 1,
	})
	if resp.Success {
		t.Fatal("Success = true, want false for max_results beyond limit")
	}
}

func TestServiceClearCacheForcesRefetch(t *testing.T) {
	s := newTestStore()
	hashes := []uint32{41, 42, 43}
	putContent(t, s, "song-e", hashes)

	svc := newTestService(t, s)
	req := Request{RequestID: "req-7a", Fingerprint: model.Fingerprint{Hashes: hashes}}
	svc.Match(context.Background(), req)

	svc.ClearCache()

	req.RequestID = "req-7b"
	svc.Match(context.Background(), req)

	stats := svc.GetStats()
	if stats.CacheHits != 0 {
		t.Fatalf("CacheHits = %d, want 0 after ClearCache", stats.CacheHits)
	}
	if stats.CacheMisses != 2 {
		t.Fatalf("CacheMisses = %d, want 2", stats.CacheMisses)
	}
}

func TestServiceRequiresStore(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("New() without WithStore should fail")
	}
}
