package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/evidence"
	"github.com/hyperjump/dcia/internal/keyword"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/qa"
	"github.com/hyperjump/dcia/internal/retrieval"
)

const (
	welcomeMessage     = "Welcome to the Digital Crime Investigative Assistant API"
	defaultSimilar     = 5
	defaultKeywordHits = 10
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Error("knowledge store is not available", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "API is running, but the knowledge store is not available.")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "All services are running correctly.",
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.deps.QA.Ask(r.Context(), req.Question)
	switch {
	case errors.Is(err, qa.ErrEmptyQuestion):
		s.respondError(w, http.StatusBadRequest, "Question cannot be empty")
		return
	case errors.Is(err, qa.ErrEmptyEmbedding):
		s.respondError(w, http.StatusInternalServerError, "Failed to generate embedding for question")
		return
	case err != nil:
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error processing question: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.deps.Refresh.Trigger(r.Context())
	if err != nil {
		s.logger.Error("refresh trigger failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to start embedding refresh job: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.RefreshResponse{
		Message:        fmt.Sprintf("Embedding refresh job started for %d nodes", ticket.CandidateCount),
		JobStarted:     true,
		NodesToProcess: ticket.CandidateCount,
		JobID:          ticket.JobID,
	})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.deps.Refresh.Last()
	if !ok {
		s.respondError(w, http.StatusNotFound, "No embedding refresh has finished yet")
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCrimeSubtypes(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Evidence.Subtypes(r.Context())
	if err != nil {
		s.logger.Error("listing crime subtypes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve crime subtypes: "+err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	s.respondJSON(w, http.StatusOK, names)
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	subtype := chi.URLParam(r, "subtype")
	items, err := s.deps.Evidence.Lookup(r.Context(), subtype, r.URL.Query().Get("device"))
	if errors.Is(err, evidence.ErrInvalidDevice) {
		s.respondError(w, http.StatusBadRequest, "Device type must be either 'android' or 'windows'")
		return
	}
	if err != nil {
		s.logger.Error("evidence lookup failed", zap.String("subtype", subtype), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve evidence items: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSimilar
	}
	results, err := s.deps.Vectors.Search(r.Context(), req.Vector, req.Limit)
	if errors.Is(err, retrieval.ErrInvalidLimit) || errors.Is(err, retrieval.ErrInvalidVector) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("vector search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keyword == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	q := r.URL.Query()
	limit := defaultKeywordHits
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	opts := &keyword.SearchOptions{}
	if v := q.Get("fuzzy"); v != "" {
		fuzzy, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "fuzzy must be a boolean")
			return
		}
		opts.Fuzzy = fuzzy
	}
	res, err := s.deps.Keyword.Search(r.Context(), q.Get("q"), limit, opts)
	if errors.Is(err, keyword.ErrEmptyQuery) {
		s.respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes {"detail": message}, the error shape API clients already parse.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"detail": message})
}
