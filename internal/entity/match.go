package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
)

const (
	StateForming        = "forming"
	StateQuestionActive = "question_active"
	StateResolving      = "resolving"
	StateFinished       = "finished"
)

const (
	OutcomeWon     = "won"
	OutcomeTie     = "tie"
	OutcomeAborted = "aborted"
)

// Match is owned exclusively by its session for its whole lifetime.
// Nothing outside the session goroutine may touch it; everyone else
// sees broadcast snapshots or the final outcome.
type Match struct {
	ID        string          `json:"id"`
	Level     int             `json:"level"`
	Players   []*Player       `json:"players"`
	Questions []Question      `json:"-"`
	Round     int             `json:"round"`
	State     string          `json:"state"`
	Stake     json.RawMessage `json:"stake,omitempty"`
}

func NewMatch(id string, level int, stake json.RawMessage) *Match {
	return &Match{
		ID:    id,
		Level: level,
		Round: -1, // no round open while forming
		State: StateForming,
		Stake: stake,
	}
}

func (that *Match) PlayerByID(id string) *Player {
	for _, player := range that.Players {
		if player.ID == id {
			return player
		}
	}
	return nil
}

// ContendingPlayers returns the seats that still count toward round
// resolution: active ones plus disconnected ones inside their grace.
func (that *Match) ContendingPlayers() []*Player {
	var players []*Player
	for _, player := range that.Players {
		if player.IsContending() {
			players = append(players, player)
		}
	}
	return players
}

func (that *Match) ContendingCount() int {
	return len(that.ContendingPlayers())
}

func (that *Match) CurrentQuestion() *Question {
	if that.Round < 0 || that.Round >= len(that.Questions) {
		return nil
	}
	return &that.Questions[that.Round]
}

func (that *Match) QuestionsExhausted() bool {
	return that.Round >= len(that.Questions)-1
}

func (that *Match) IsFinished() bool {
	return that.State == StateFinished
}

// SubmitAnswer records a seat's answer for the active round. The first
// answer wins; a duplicate returns ErrAlreadyAnswered and changes
// nothing. Reports whether the recorded answer is correct.
func (that *Match) SubmitAnswer(playerID, questionID, choiceID string, latency time.Duration) (bool, error) {
	if that.State != StateQuestionActive {
		return false, apperror.ErrMatchNotStarted
	}

	question := that.CurrentQuestion()
	if question == nil || question.ID != questionID {
		return false, apperror.ErrQuestionMismatch
	}

	if !question.HasChoice(choiceID) {
		return false, fmt.Errorf("%w: unknown choice %q", apperror.ErrInvalidPayload, choiceID)
	}

	player := that.PlayerByID(playerID)
	if player == nil {
		return false, apperror.ErrSeatNotFound
	}

	if !player.IsContending() {
		return false, apperror.ErrSeatNotFound
	}

	if player.HasAnswered() {
		return false, apperror.ErrAlreadyAnswered
	}

	player.Answer = &Answer{
		QuestionID: questionID,
		ChoiceID:   choiceID,
		Latency:    latency,
	}

	return question.IsCorrect(choiceID), nil
}

// AllContendersAnswered reports whether the round can close early. A
// disconnected seat never blocks it: its last submitted answer stands,
// or it counts as incorrect at resolution.
func (that *Match) AllContendersAnswered() bool {
	contenders := that.ContendingPlayers()
	if len(contenders) == 0 {
		return false
	}
	for _, player := range contenders {
		if !player.HasAnswered() && player.Status != StatusDisconnected {
			return false
		}
	}
	return true
}

// ResolveRound applies the elimination rule exactly once for the active
// round. A missing answer counts as incorrect. If every contender was
// wrong, nobody is knocked out; the match never wipes the whole field
// on a hard question. Seats in expired forfeited their reconnection
// grace and leave at this boundary regardless of the partition.
func (that *Match) ResolveRound(expired map[string]struct{}) *RoundResult {
	that.State = StateResolving

	question := that.CurrentQuestion()
	result := &RoundResult{
		Round:           that.Round,
		CorrectAnswerID: question.CorrectID,
	}

	var correct, incorrect []*Player
	for _, player := range that.ContendingPlayers() {
		isCorrect := player.HasAnswered() && question.IsCorrect(player.Answer.ChoiceID)

		record := AnswerRecord{
			Round:      that.Round,
			QuestionID: question.ID,
			Correct:    isCorrect,
		}
		if player.HasAnswered() {
			record.ChoiceID = player.Answer.ChoiceID
			record.LatencyMs = player.Answer.Latency.Milliseconds()
			player.TotalLatency += player.Answer.Latency
		} else {
			// a silent seat pays the full time limit in the tie-break
			record.LatencyMs = int64(question.TimeLimitSec) * 1000
			player.TotalLatency += time.Duration(question.TimeLimitSec) * time.Second
		}
		player.Trail = append(player.Trail, record)

		if isCorrect {
			player.Streak++
			correct = append(correct, player)
		} else {
			player.Streak = 0
			incorrect = append(incorrect, player)
		}
	}

	switch {
	case len(incorrect) == 0:
		result.AllCorrect = true
	case len(correct) == 0:
		result.AllWrong = true
	default:
		for _, player := range incorrect {
			that.eliminate(player, result)
		}
	}

	for _, player := range that.ContendingPlayers() {
		if _, gone := expired[player.ID]; gone {
			that.eliminate(player, result)
		}
	}

	result.RemainingCount = that.ContendingCount()

	return result
}

func (that *Match) eliminate(player *Player, result *RoundResult) {
	player.Status = StatusEliminated
	player.EliminatedRound = that.Round
	result.Eliminated = append(result.Eliminated, player.ID)
}

// AdvanceRound moves the match to the next question and opens it.
func (that *Match) AdvanceRound() {
	that.Round++
	for _, player := range that.Players {
		player.Answer = nil
	}
	that.State = StateQuestionActive
}

// RankContenders orders the surviving seats by the tie-break rule:
// longest final correct streak, then lowest cumulative answer latency,
// then seat index as the last deterministic key.
func (that *Match) RankContenders() []*Player {
	ranked := that.ContendingPlayers()
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Streak != ranked[j].Streak {
			return ranked[i].Streak > ranked[j].Streak
		}
		if ranked[i].TotalLatency != ranked[j].TotalLatency {
			return ranked[i].TotalLatency < ranked[j].TotalLatency
		}
		return ranked[i].Seat < ranked[j].Seat
	})
	return ranked
}

// Winners resolves the terminal ranking. A single survivor wins
// outright; at question exhaustion everyone tied with the top-ranked
// survivor on both tie-break keys shares the win.
func (that *Match) Winners() []*Player {
	ranked := that.RankContenders()
	if len(ranked) == 0 {
		return nil
	}
	if len(ranked) == 1 {
		return ranked
	}

	winners := []*Player{ranked[0]}
	for _, player := range ranked[1:] {
		if player.Streak == ranked[0].Streak && player.TotalLatency == ranked[0].TotalLatency {
			winners = append(winners, player)
		}
	}
	return winners
}
