package entity

import "time"

// RoundResult is emitted exactly once per round and not retained
// beyond the broadcast and the stats trail.
type RoundResult struct {
	Round           int      `json:"round"`
	CorrectAnswerID string   `json:"correctAnswerId"`
	Eliminated      []string `json:"eliminated"`
	RemainingCount  int      `json:"remainingCount"`
	AllCorrect      bool     `json:"allCorrect,omitempty"`
	AllWrong        bool     `json:"allWrong,omitempty"`
}

type PlayerStanding struct {
	PlayerID        string         `json:"playerId"`
	Name            string         `json:"name"`
	Seat            int            `json:"seat"`
	IsBot           bool           `json:"isBot,omitempty"`
	Rank            int            `json:"rank"`
	IsWinner        bool           `json:"isWinner"`
	Streak          int            `json:"streak"`
	TotalLatencyMs  int64          `json:"totalLatencyMs"`
	EliminatedRound int            `json:"eliminatedRound"`
	Trail           []AnswerRecord `json:"trail"`
}

// MatchOutcome is what the result writer receives once per finished
// match. Delivery is at-least-once, so consumers must be idempotent.
type MatchOutcome struct {
	MatchID    string           `json:"matchId"`
	Level      int              `json:"level"`
	Outcome    string           `json:"outcome"`
	Winners    []string         `json:"winners,omitempty"`
	Standings  []PlayerStanding `json:"standings"`
	Rounds     int              `json:"rounds"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// BuildOutcome ranks every seat for the final document: survivors by
// the tie-break order, then eliminated seats by how long they lasted.
func (that *Match) BuildOutcome(outcome string, finishedAt time.Time) *MatchOutcome {
	winners := map[string]bool{}
	if outcome != OutcomeAborted {
		for _, player := range that.Winners() {
			winners[player.ID] = true
		}
	}

	ordered := that.RankContenders()
	var eliminated []*Player
	for _, player := range that.Players {
		if player.Status == StatusEliminated || player.Status == StatusSpectating {
			eliminated = append(eliminated, player)
		}
	}
	// later elimination round ranks higher
	for i := 0; i < len(eliminated); i++ {
		for j := i + 1; j < len(eliminated); j++ {
			if eliminated[j].EliminatedRound > eliminated[i].EliminatedRound {
				eliminated[i], eliminated[j] = eliminated[j], eliminated[i]
			}
		}
	}
	ordered = append(ordered, eliminated...)

	result := &MatchOutcome{
		MatchID:    that.ID,
		Level:      that.Level,
		Outcome:    outcome,
		Rounds:     that.Round + 1,
		FinishedAt: finishedAt,
	}

	for i, player := range ordered {
		standing := PlayerStanding{
			PlayerID:        player.ID,
			Name:            player.Name,
			Seat:            player.Seat,
			IsBot:           player.IsBot,
			Rank:            i + 1,
			IsWinner:        winners[player.ID],
			Streak:          player.Streak,
			TotalLatencyMs:  player.TotalLatency.Milliseconds(),
			EliminatedRound: player.EliminatedRound,
			Trail:           player.Trail,
		}
		result.Standings = append(result.Standings, standing)
		if winners[player.ID] {
			result.Winners = append(result.Winners, player.ID)
		}
	}

	return result
}
