package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

type resultRepo interface {
	SaveOutcome(ctx context.Context, outcome *entity.MatchOutcome) (bool, error)
}

// ResultService is the stats writer collaborator: it records each
// finished match once, no matter how many times a finish notification
// is delivered.
type ResultService struct {
	logger *slog.Logger
	repo   resultRepo
}

func NewResultService(logger *slog.Logger, repo resultRepo) *ResultService {
	return &ResultService{
		logger: logger.With("component", "result-writer"),
		repo:   repo,
	}
}

func (that *ResultService) WriteOutcome(ctx context.Context, outcome *entity.MatchOutcome) error {
	stored, err := that.repo.SaveOutcome(ctx, outcome)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	if !stored {
		// duplicate finish notification, stats already counted
		that.logger.Info("outcome already recorded", "matchID", outcome.MatchID)
		return nil
	}

	that.logger.Info("outcome recorded", "matchID", outcome.MatchID, "outcome", outcome.Outcome, "winners", outcome.Winners)

	return nil
}
