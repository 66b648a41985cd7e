package entity

import "time"

const (
	StatusActive       = "active"
	StatusEliminated   = "eliminated"
	StatusDisconnected = "disconnected"
	StatusSpectating   = "spectating"
)

// Answer is a single seat's submission for one round. The first
// accepted answer per round is authoritative; later ones are ignored.
type Answer struct {
	QuestionID string        `json:"questionId"`
	ChoiceID   string        `json:"choiceId"`
	Latency    time.Duration `json:"latency"`
}

// AnswerRecord is one entry of a player's correctness/timing trail,
// kept for the final outcome document.
type AnswerRecord struct {
	Round      int    `json:"round"`
	QuestionID string `json:"questionId"`
	ChoiceID   string `json:"choiceId,omitempty"`
	Correct    bool   `json:"correct"`
	LatencyMs  int64  `json:"latencyMs"`
}

type Player struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Seat            int            `json:"seat"`
	IsBot           bool           `json:"isBot,omitempty"`
	Status          string         `json:"status"`
	Answer          *Answer        `json:"-"`
	Streak          int            `json:"-"`
	TotalLatency    time.Duration  `json:"-"`
	EliminatedRound int            `json:"-"`
	Trail           []AnswerRecord `json:"-"`
	LastSeen        time.Time      `json:"-"`
}

// IsContending reports whether the seat still counts toward round
// resolution. A disconnected seat keeps contending until its grace
// window runs out; a spectator or eliminated seat never does.
func (that *Player) IsContending() bool {
	return that.Status == StatusActive || that.Status == StatusDisconnected
}

func (that *Player) IsEliminated() bool {
	return that.Status == StatusEliminated
}

func (that *Player) HasAnswered() bool {
	return that.Answer != nil
}
