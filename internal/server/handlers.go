package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/history"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "augur",
	})
}

func (s *Server) handlePredictDouble(w http.ResponseWriter, r *http.Request) {
	pred, err := s.engine.PredictDouble(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handlePredictMines(w http.ResponseWriter, r *http.Request) {
	pred, err := s.engine.PredictMines(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pred)
}

// handleBacktest handles POST /api/backtest/{game}
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	game, err := domain.ParseGame(chi.URLParam(r, "game"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.engine.Backtest(r.Context(), game)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleGameStats(w http.ResponseWriter, r *http.Request) {
	game, err := domain.ParseGame(chi.URLParam(r, "game"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.engine.StatsFor(game)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleHistory handles GET /api/history/{game}?limit=n, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	game, err := domain.ParseGame(chi.URLParam(r, "game"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var outcomes interface{}
	switch game {
	case domain.GameDouble:
		outcomes = s.engine.DoubleHistory(limit)
	case domain.GameMines:
		outcomes = s.engine.MinesHistory(limit)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"game":     game,
		"limit":    limit,
		"outcomes": outcomes,
	})
}

// writeError maps domain errors onto status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownGame):
		status = http.StatusBadRequest
	case errors.Is(err, history.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
