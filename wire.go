package fingermatch

import "github.com/arcspan/fingermatch/internal/model"

// Request is a single match query. A zero MinSimilarity or MaxResults
// means "use the service's configured default".
type Request struct {
	RequestID     string
	Fingerprint   model.Fingerprint
	MinSimilarity float64
	MaxResults    int
}

// Response is the result of one match query.
type Response struct {
	RequestID        string
	Matches          []model.MatchResult
	ProcessingTimeUs int64
	Success          bool
	ErrorMessage     string
}

// Stats is what GetStats returns.
type Stats struct {
	TotalRequests     int64
	SuccessfulMatches int64
	CacheHits         int64
	CacheMisses       int64
	AvgLatencyUs      float64
	P95LatencyUs      float64
	P99LatencyUs      float64
}
