package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	fingermatch "github.com/arcspan/fingermatch"
	"github.com/arcspan/fingermatch/internal/decoder"
	"github.com/arcspan/fingermatch/internal/extractor"
	"github.com/arcspan/fingermatch/internal/model"
	"github.com/arcspan/fingermatch/internal/store"
	"github.com/arcspan/fingermatch/pkg/logger"
	"github.com/arcspan/fingermatch/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies.
type Server struct {
	svc    *fingermatch.Service
	config *ServerConfig
	log    logger.Interface
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
}

// NewServer creates a new server instance.
func NewServer(svc *fingermatch.Service, config *ServerConfig) *Server {
	return &Server{
		svc:    svc,
		config: config,
		log:    logger.GetLogger().Named("server"),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.GetStats()
	s.respondJSON(w, http.StatusOK, StatsResponse{
		TotalRequests:     stats.TotalRequests,
		SuccessfulMatches: stats.SuccessfulMatches,
		CacheHits:         stats.CacheHits,
		CacheMisses:       stats.CacheMisses,
		AvgLatencyUs:      stats.AvgLatencyUs,
		P95LatencyUs:      stats.P95LatencyUs,
		P99LatencyUs:      stats.P99LatencyUs,
	})
}

// saveUploadedAudio copies a multipart "audio" field to a temp WAV file and
// returns its path. Caller must remove it.
func saveUploadedAudio(r *http.Request, maxBytes int64, prefix string) (string, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", fmt.Errorf("parsing form data: %w", err)
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		return "", fmt.Errorf("audio file is required: %w", err)
	}
	defer file.Close()

	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("%s_%d.wav", prefix, time.Now().UnixNano()))
	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		utils.DeleteFile(tempFile)
		return "", fmt.Errorf("saving uploaded file: %w", err)
	}
	return tempFile, nil
}

// handleIngest handles POST /v1/items (multipart WAV upload).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	path, err := saveUploadedAudio(r, 100<<20, "item")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer utils.DeleteFile(path)

	contentID := r.FormValue("content_id")
	title := r.FormValue("title")
	source := r.FormValue("source")
	if contentID == "" {
		s.respondError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	buf, err := decoder.DecodeWAV(path)
	if err != nil {
		s.log.Errorf("failed to decode wav: %v", err)
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode audio: %v", err))
		return
	}

	fp := extractor.Extract(buf)

	idxStore := s.svc.StoreAdapter()
	outcome, err := idxStore.PutItem(ctx, fp, model.ContentMetadata{
		ContentID:  contentID,
		Title:      title,
		Source:     source,
		DurationMs: fp.DurationMs,
		CreatedAt:  time.Now().Unix(),
	})
	if err != nil {
		s.log.Errorf("failed to store item %s: %v", contentID, err)
		s.respondError(w, http.StatusInternalServerError, "failed to store item")
		return
	}

	message := "item ingested"
	if outcome == store.AlreadyExists {
		message = "item already exists, ingest ignored"
	}

	s.log.Infof("ingest %s: %s (%d hashes)", contentID, message, len(fp.Hashes))
	s.respondJSON(w, http.StatusCreated, IngestResponse{
		Message:    message,
		ContentID:  contentID,
		DurationMs: fp.DurationMs,
		NumHashes:  len(fp.Hashes),
	})
}

// handleMatch handles POST /v1/match (multipart WAV upload).
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, err := saveUploadedAudio(r, 50<<20, "query")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer utils.DeleteFile(path)

	buf, err := decoder.DecodeWAV(path)
	if err != nil {
		s.log.Errorf("failed to decode wav: %v", err)
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode audio: %v", err))
		return
	}

	fp := extractor.Extract(buf)
	resp := s.svc.Match(ctx, fingermatch.Request{
		RequestID:   r.FormValue("request_id"),
		Fingerprint: fp,
	})

	matchDTOs := make([]MatchResultDTO, len(resp.Matches))
	for i, m := range resp.Matches {
		matchDTOs[i] = MatchResultDTO{
			ContentID:       m.Metadata.ContentID,
			Title:           m.Metadata.Title,
			Source:          m.Metadata.Source,
			Score:           m.Score,
			MatchedSegments: m.MatchedSegments,
		}
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	s.respondJSON(w, status, MatchResponseDTO{
		RequestID:        resp.RequestID,
		Matches:          matchDTOs,
		ProcessingTimeUs: resp.ProcessingTimeUs,
		Success:          resp.Success,
		ErrorMessage:     resp.ErrorMessage,
	})
}

// handleGetItem handles GET /v1/items/{id}.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, contentID string) {
	meta, err := s.svc.StoreAdapter().GetItem(r.Context(), contentID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("item %s not found", contentID))
		return
	}
	s.respondJSON(w, http.StatusOK, ItemDTO{
		ContentID:  meta.ContentID,
		Title:      meta.Title,
		Source:     meta.Source,
		DurationMs: meta.DurationMs,
		CreatedAt:  meta.CreatedAt,
	})
}

// handleDeleteItem handles DELETE /v1/items/{id}.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, contentID string) {
	if err := s.svc.StoreAdapter().DeleteItem(r.Context(), contentID); err != nil {
		if err == store.ErrNotFound {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("item %s not found", contentID))
			return
		}
		s.log.Errorf("failed to delete item %s: %v", contentID, err)
		s.respondError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	s.log.Infof("deleted item %s", contentID)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "item deleted", "content_id": contentID})
}

// handleItem routes requests to /v1/items/{id}.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Path[len("/v1/items/"):]
	if idStr == "" {
		s.respondError(w, http.StatusBadRequest, "content id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetItem(w, r, idStr)
	case http.MethodDelete:
		s.handleDeleteItem(w, r, idStr)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleItems routes requests to /v1/items.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleIngest(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMatchRoute routes requests to /v1/match.
func (s *Server) handleMatchRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleMatch(w, r)
}
