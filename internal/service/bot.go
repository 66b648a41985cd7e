package service

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
)

// BotPolicy is the fixed latency/accuracy profile a backfilled seat
// answers with. It lives outside the elimination logic: the engine
// sees a bot as an ordinary player session.
type BotPolicy struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Accuracy float64
}

type BotService struct {
	logger *slog.Logger
	clock  clockwork.Clock
	policy BotPolicy

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBotService(logger *slog.Logger, clock clockwork.Clock, policy BotPolicy, rng *rand.Rand) *BotService {
	return &BotService{
		logger: logger.With("component", "bot"),
		clock:  clock,
		policy: policy,
		rng:    rng,
	}
}

// Responder builds the scripted seat for one session. It implements
// duel.Outbound: on every question it schedules one answer and ignores
// everything else.
func (that *BotService) Responder(playerID string, session *duel.Session) duel.Outbound {
	return &botResponder{
		service:  that,
		playerID: playerID,
		session:  session,
	}
}

type botResponder struct {
	service  *BotService
	playerID string
	session  *duel.Session
}

func (that *botResponder) Deliver(event duel.Event) {
	question, ok := event.(duel.QuestionEvent)
	if !ok {
		return
	}

	svc := that.service
	choiceID := svc.chooseAnswer(&question)
	delay := svc.answerDelay(question.TimeLimitSec)

	svc.clock.AfterFunc(delay, func() {
		err := that.session.SubmitAnswer(context.Background(), that.playerID, question.Question.ID, choiceID)
		if err != nil {
			// the round may have resolved under the bot; nothing to do
			svc.logger.Debug("bot answer dropped", "playerID", that.playerID, "error", err)
		}
	})
}

func (that *BotService) chooseAnswer(event *duel.QuestionEvent) string {
	that.mu.Lock()
	defer that.mu.Unlock()

	correctID := event.Question.CorrectID
	if that.rng.Float64() < that.policy.Accuracy {
		return correctID
	}

	var wrong []string
	for _, choice := range event.Question.Choices {
		if choice.ID != correctID {
			wrong = append(wrong, choice.ID)
		}
	}
	if len(wrong) == 0 {
		return correctID
	}

	return wrong[that.rng.Intn(len(wrong))]
}

func (that *BotService) answerDelay(timeLimitSec int) time.Duration {
	that.mu.Lock()
	defer that.mu.Unlock()

	minDelay, maxDelay := that.policy.MinDelay, that.policy.MaxDelay
	if limit := time.Duration(timeLimitSec) * time.Second; maxDelay > limit {
		maxDelay = limit
	}
	if maxDelay <= minDelay {
		return minDelay
	}

	return minDelay + time.Duration(that.rng.Int63n(int64(maxDelay-minDelay)))
}
