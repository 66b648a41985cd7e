package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
	"github.com/rocketscienceinc/quizduel-backend/internal/repository"
)

type matchRegistry interface {
	CreateMatch(ctx context.Context, group *duel.MatchGroup) (*duel.Session, error)
	Abort(matchID, reason string) error
	Count() int
}

type Server struct {
	logger   *slog.Logger
	registry matchRegistry
	results  repository.ResultRepository
}

func New(logger *slog.Logger, registry matchRegistry, results repository.ResultRepository) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		registry: registry,
		results:  results,
	}
}

func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", that.handlePing)
	mux.HandleFunc("POST /matches", that.handleCreateMatch)
	mux.HandleFunc("DELETE /matches/{id}", that.handleAbortMatch)
	mux.HandleFunc("GET /matches/{id}/result", that.handleMatchResult)
	mux.HandleFunc("GET /leaderboard", that.handleLeaderboard)
	mux.HandleFunc("GET /stats", that.handleStats)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
