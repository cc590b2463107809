package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/keyword-agent/internal/export"
	"github.com/jonathan/keyword-agent/internal/research"
	"github.com/jonathan/keyword-agent/internal/types"
)

const (
	// maxBodyBytes bounds request bodies
	maxBodyBytes = 1 << 20
	// MaxBatchSeeds bounds the seeds accepted in one batch request
	MaxBatchSeeds = 50
)

// HealthResponse represents the response for /api/health
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	AgentInitialized bool      `json:"agent_initialized"`
	LLMEnabled       bool      `json:"llm_enabled"`
}

// decodeResearchRequest reads a research request, applying the form defaults
// to fields the body leaves out
func decodeResearchRequest(w http.ResponseWriter, r *http.Request) (types.ResearchRequest, error) {
	req := types.ResearchRequest{
		MaxKeywords:      types.DefaultMaxKeywords,
		Country:          types.DefaultCountry,
		IncludeQuestions: true,
		IncludeLongTail:  true,
	}
	if err := decodeBody(w, r, &req); err != nil {
		return req, err
	}
	return req, nil
}

func decodeBatchRequest(w http.ResponseWriter, r *http.Request) (types.BatchRequest, error) {
	req := types.BatchRequest{
		MaxKeywords:      types.DefaultBatchKeywords,
		Country:          types.DefaultCountry,
		IncludeQuestions: true,
		IncludeLongTail:  true,
	}
	if err := decodeBody(w, r, &req); err != nil {
		return req, err
	}
	if len(req.Seeds) == 0 {
		return req, &types.ValidationError{Field: "seed_keywords", Message: "at least one seed keyword is required"}
	}
	if len(req.Seeds) > MaxBatchSeeds {
		return req, &types.ValidationError{
			Field:   "seed_keywords",
			Message: fmt.Sprintf("at most %d seed keywords are allowed per batch", MaxBatchSeeds),
		}
	}
	return req, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &ErrBadRequest{Message: "invalid request body", Cause: err}
	}
	return nil
}

// researchContext applies the configured per-request deadline
func (s *Server) researchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// handleResearch runs one research request and returns the result
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeResearchRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ctx, cancel := s.researchContext(r.Context())
	defer cancel()

	result, err := s.researcher.Research(ctx, req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleResearchStream runs one research request and streams stage progress via SSE
func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeResearchRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ctx, cancel := s.researchContext(r.Context())
	defer cancel()

	ctx = research.WithProgress(ctx, func(event research.ProgressEvent) {
		if err := sse.WriteEvent("stage", event); err != nil {
			s.logger.WithError(err).Debug("failed to write SSE event")
		}
	})

	result, err := s.researcher.Research(ctx, req)
	if err != nil {
		s.logger.WithError(err).WithField("seed", req.SeedKeyword).Warn("streaming research failed")
		sse.WriteError(err)
		return
	}

	if err := sse.WriteEvent("result", result); err != nil {
		s.logger.WithError(err).Debug("failed to write SSE result")
		return
	}
	sse.WriteComplete(result.Metadata.RequestID, "completed")
}

// handleBatchResearch researches every seed and returns one entry per seed
func (s *Server) handleBatchResearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBatchRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	// seeds still running at the deadline become error entries
	ctx, cancel := s.researchContext(r.Context())
	defer cancel()

	result := s.batcher.Run(ctx, req)
	if err := r.Context().Err(); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleExport runs research and returns it as a downloadable document
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		s.jsonResponse(w, http.StatusNotFound, ErrorBody{Error: err.Error()})
		return
	}

	req, err := decodeResearchRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ctx, cancel := s.researchContext(r.Context())
	defer cancel()

	result, err := s.researcher.Research(ctx, req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, result, format); err != nil {
		s.errorResponse(w, err)
		return
	}

	filename := export.Filename(strings.TrimSpace(req.SeedKeyword), format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.WithError(err).Debug("failed to write export")
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		Timestamp:        s.now().UTC(),
		AgentInitialized: s.researcher != nil,
		LLMEnabled:       s.cfg.LLMEnabled,
	})
}
