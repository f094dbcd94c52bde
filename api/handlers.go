package api

import (
	"net/http"
	"strconv"

	"github.com/kilianp07/enginesim/core/analyzer"
)

type summaryResponse struct {
	Report *analyzer.Report `json:"report,omitempty"`
	Text   string           `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.src.Status())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	r, ok := s.src.Summary()
	if !ok {
		respondJSON(w, http.StatusOK, summaryResponse{Text: analyzer.NoSamplesMessage})
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{Report: &r, Text: r.String()})
}

// handleSamples returns the samples of the rolling window, oldest first.
// ?limit=n keeps the n most recent.
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	samples := s.src.Samples()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(samples) {
			samples = samples[len(samples)-n:]
		}
	}
	respondJSON(w, http.StatusOK, samples)
}
