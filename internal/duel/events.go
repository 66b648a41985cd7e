package duel

import "github.com/rocketscienceinc/quizduel-backend/internal/entity"

// Actions mirror the message types the browser client reacts to.
const (
	ActionQuestion     = "match.question"
	ActionAnswerResult = "match.answerResult"
	ActionState        = "match.state"
	ActionRoundResult  = "match.roundResult"
	ActionFinish       = "match.finish"
)

// Event is one outbound frame of the duel protocol. Events are built
// inside the session goroutine and delivered to seats fire-and-forget;
// a slow consumer loses frames instead of stalling the round loop.
type Event interface {
	Action() string
}

// Outbound delivers events to a single seat. Implementations must not
// block the caller.
type Outbound interface {
	Deliver(event Event)
}

type QuestionEvent struct {
	Question         entity.Question `json:"question"`
	QuestionIndex    int             `json:"questionIndex"`
	TotalQuestions   int             `json:"totalQuestions"`
	TimeLimitSec     int             `json:"timeLimitSec"`
	RemainingSec     int             `json:"remainingSec"`
	RemainingPlayers int             `json:"remainingPlayers"`
}

func (QuestionEvent) Action() string { return ActionQuestion }

// AnswerResultEvent goes only to the seat that answered.
type AnswerResultEvent struct {
	QuestionID string `json:"questionId"`
	IsCorrect  bool   `json:"isCorrect"`
}

func (AnswerResultEvent) Action() string { return ActionAnswerResult }

type PlayerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Seat     int    `json:"seat"`
	IsBot    bool   `json:"isBot,omitempty"`
	Status   string `json:"status"`
	Answered bool   `json:"answered"`
}

type StateEvent struct {
	Players []PlayerState `json:"players"`
}

func (StateEvent) Action() string { return ActionState }

type RoundResultEvent struct {
	entity.RoundResult
}

func (RoundResultEvent) Action() string { return ActionRoundResult }

type FinishEvent struct {
	Outcome   string                  `json:"outcome"`
	Winners   []string                `json:"winners,omitempty"`
	Standings []entity.PlayerStanding `json:"standings"`
}

func (FinishEvent) Action() string { return ActionFinish }

// Snapshot is what a joining or reconnecting seat gets replayed so the
// client can resume mid-round: roster, active question with the true
// remaining time, and the seat's own answer result if it already
// answered this round.
type Snapshot struct {
	State        StateEvent
	Question     *QuestionEvent
	AnswerResult *AnswerResultEvent
}
