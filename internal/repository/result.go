package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

var ErrOutcomeNotFound = errors.New("outcome not found")

const (
	outcomeKeyPrefix     = "duel:result:"
	leaderboardKeyPrefix = "duel:leaderboard:"
)

type ResultRepository interface {
	SaveOutcome(ctx context.Context, outcome *entity.MatchOutcome) (bool, error)
	GetOutcome(ctx context.Context, matchID string) (*entity.MatchOutcome, error)
	TopPlayers(ctx context.Context, level, limit int) ([]LeaderboardEntry, error)
}

type LeaderboardEntry struct {
	PlayerID string  `json:"playerId"`
	Wins     float64 `json:"wins"`
}

type dbResult struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) ResultRepository {
	return &dbResult{
		client: client,
	}
}

// SaveOutcome stores the outcome document and bumps the per-level
// leaderboard for the winners. The SETNX guard makes at-least-once
// finish delivery safe: a duplicate changes nothing and returns false.
func (that *dbResult) SaveOutcome(ctx context.Context, outcome *entity.MatchOutcome) (bool, error) {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("could not marshal outcome: %w", err)
	}

	outcomeKey := outcomeKeyPrefix + outcome.MatchID

	stored, err := that.client.SetNX(ctx, outcomeKey, outcomeJSON, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set outcome: %w", err)
	}

	if !stored {
		return false, nil
	}

	leaderboardKey := leaderboardKeyPrefix + strconv.Itoa(outcome.Level)
	for _, winner := range outcome.Winners {
		if err = that.client.ZIncrBy(ctx, leaderboardKey, 1, winner).Err(); err != nil {
			return true, fmt.Errorf("failed to update leaderboard: %w", err)
		}
	}

	return true, nil
}

func (that *dbResult) GetOutcome(ctx context.Context, matchID string) (*entity.MatchOutcome, error) {
	outcomeKey := outcomeKeyPrefix + matchID

	response, err := that.client.Get(ctx, outcomeKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrOutcomeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get outcome by id: %w", err)
	}

	var outcome entity.MatchOutcome
	if err = json.Unmarshal([]byte(response), &outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	return &outcome, nil
}

// TopPlayers reads the win leaderboard for a level, best first.
func (that *dbResult) TopPlayers(ctx context.Context, level, limit int) ([]LeaderboardEntry, error) {
	leaderboardKey := leaderboardKeyPrefix + strconv.Itoa(level)

	scores, err := that.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for _, score := range scores {
		member, _ := score.Member.(string)
		entries = append(entries, LeaderboardEntry{
			PlayerID: member,
			Wins:     score.Score,
		})
	}

	return entries, nil
}
