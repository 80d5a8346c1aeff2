package main

// IngestResponse is the response for POST /v1/items.
type IngestResponse struct {
	Message    string `json:"message"`
	ContentID  string `json:"content_id"`
	DurationMs int64  `json:"duration_ms"`
	NumHashes  int    `json:"num_hashes"`
}

// MatchResponseDTO is the response for POST /v1/match.
type MatchResponseDTO struct {
	RequestID        string           `json:"request_id"`
	Matches          []MatchResultDTO `json:"matches"`
	ProcessingTimeUs int64            `json:"processing_time_us"`
	Success          bool             `json:"success"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// MatchResultDTO is a single ranked match.
type MatchResultDTO struct {
	ContentID       string  `json:"content_id"`
	Title           string  `json:"title"`
	Source          string  `json:"source"`
	Score           float64 `json:"score"`
	MatchedSegments int     `json:"matched_segments"`
}

// ItemDTO represents stored content metadata in API responses.
type ItemDTO struct {
	ContentID  string `json:"content_id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// StatsResponse is the response for GET /v1/stats.
type StatsResponse struct {
	TotalRequests     int64   `json:"total_requests"`
	SuccessfulMatches int64   `json:"successful_matches"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	AvgLatencyUs      float64 `json:"avg_latency_us"`
	P95LatencyUs      float64 `json:"p95_latency_us"`
	P99LatencyUs      float64 `json:"p99_latency_us"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
