package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
	"github.com/rocketscienceinc/quizduel-backend/internal/repository"
)

const defaultLeaderboardLimit = 20

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// handleCreateMatch is the matchmaking queue's intake: it accepts a
// formed grouping verbatim and spins up the session.
func (that *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleCreateMatch")

	var group duel.MatchGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeError(w, http.StatusBadRequest, "malformed match group")
		return
	}

	session, err := that.registry.CreateMatch(r.Context(), &group)
	if err != nil {
		log.Error("failed to create match", "error", err)
		switch {
		case errors.Is(err, apperror.ErrInsufficientQuestions), errors.Is(err, apperror.ErrInsufficientPlayers):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, apperror.ErrInvalidPayload):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create match")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"matchId": session.ID()})
}

func (that *Server) handleAbortMatch(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	if err := that.registry.Abort(matchID, "administrative stop"); err != nil {
		if errors.Is(err, apperror.ErrMatchNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to abort match")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Server) handleMatchResult(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	outcome, err := that.results.GetOutcome(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, repository.ErrOutcomeNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		that.logger.Error("failed to get outcome", "matchID", matchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (that *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "level is required")
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entries, err := that.results.TopPlayers(r.Context(), level, limit)
	if err != nil {
		that.logger.Error("failed to read leaderboard", "level", level, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read leaderboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"level": level, "entries": entries})
}

func (that *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"liveMatches": that.registry.Count()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
