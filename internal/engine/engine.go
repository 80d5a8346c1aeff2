// Package engine implements the inverted-index match engine: candidate
// gathering over a Store's posting lists, scoring, thresholding, ranking,
// and truncation.
//
// Candidate bookkeeping uses RoaringBitmap/roaring for dense id-set
// tracking: it tracks which per-query candidate ordinals have been
// touched, so the final ranking pass can walk them in a deterministic
// order instead of a Go map's randomized iteration order.
package engine

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/arcspan/fingermatch/internal/model"
	"github.com/arcspan/fingermatch/internal/store"
)

// PostingsPerHashFactor is the advisory limit the engine passes to
// PostingsFor for each query hash: 2*max_results.
const PostingsPerHashFactor = 2

// Engine queries a Store for the candidates of a query fingerprint.
type Engine struct {
	store store.Store
}

func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// Query returns the ranked, thresholded, truncated matches for fp against
// the engine's store.
func (e *Engine) Query(ctx context.Context, fp model.Fingerprint, minSimilarity float64, maxResults int) ([]model.MatchResult, error) {
	if len(fp.Hashes) == 0 {
		return nil, nil
	}

	limit := maxResults * PostingsPerHashFactor
	if limit <= 0 {
		limit = PostingsPerHashFactor
	}

	ordinals := make(map[string]uint32)
	var contentIDs []string
	matchedSegments := make([]int, 0)
	touched := roaring.New()

	for _, h := range fp.Hashes {
		postings, err := e.store.PostingsFor(ctx, h, limit)
		if err != nil {
			return nil, err
		}

		for _, p := range postings {
			ord, ok := ordinals[p.ContentID]
			if !ok {
				ord = uint32(len(contentIDs))
				ordinals[p.ContentID] = ord
				contentIDs = append(contentIDs, p.ContentID)
				matchedSegments = append(matchedSegments, 0)
			}
			touched.Add(ord)
			matchedSegments[ord] += p.MatchCount
		}
	}

	queryLen := len(fp.Hashes)
	candidates := make([]model.MatchResult, 0, touched.GetCardinality())

	it := touched.Iterator()
	for it.HasNext() {
		ord := it.Next()
		contentID := contentIDs[ord]

		storedLen, err := e.store.StoredHashCount(ctx, contentID)
		if err != nil {
			return nil, err
		}

		denom := queryLen
		if storedLen > denom {
			denom = storedLen
		}
		if denom == 0 {
			continue
		}

		score := float64(matchedSegments[ord]) / float64(denom)
		if score < minSimilarity {
			continue
		}

		meta, err := e.store.GetItem(ctx, contentID)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, model.MatchResult{
			Metadata:        meta,
			Score:           score,
			MatchedSegments: matchedSegments[ord],
		})
	}

	rank(candidates)

	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

// rank sorts descending by Score, then descending by MatchedSegments, then
// ascending by ContentID.
func rank(results []model.MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.MatchedSegments != b.MatchedSegments {
			return a.MatchedSegments > b.MatchedSegments
		}
		return a.Metadata.ContentID < b.Metadata.ContentID
	})
}
