package duel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

const awaitTimeout = 2 * time.Second

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (that *recordingSink) Deliver(event Event) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.events = append(that.events, event)
}

// await polls until an event matching the predicate was delivered.
func (that *recordingSink) await(t *testing.T, match func(Event) bool) Event {
	t.Helper()

	deadline := time.Now().Add(awaitTimeout)
	for time.Now().Before(deadline) {
		that.mu.Lock()
		for _, event := range that.events {
			if match(event) {
				that.mu.Unlock()
				return event
			}
		}
		that.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("expected event was never delivered")
	return nil
}

func (that *recordingSink) awaitAction(t *testing.T, action string) Event {
	t.Helper()
	return that.await(t, func(event Event) bool { return event.Action() == action })
}

func (that *recordingSink) countAction(action string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	count := 0
	for _, event := range that.events {
		if event.Action() == action {
			count++
		}
	}
	return count
}

type stubResultWriter struct {
	mu       sync.Mutex
	outcomes []*entity.MatchOutcome
}

func (that *stubResultWriter) WriteOutcome(_ context.Context, outcome *entity.MatchOutcome) error {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.outcomes = append(that.outcomes, outcome)
	return nil
}

func (that *stubResultWriter) written() []*entity.MatchOutcome {
	that.mu.Lock()
	defer that.mu.Unlock()
	return append([]*entity.MatchOutcome(nil), that.outcomes...)
}

type sessionFixture struct {
	session *Session
	clock   *clockwork.FakeClock
	writer  *stubResultWriter

	mu       sync.Mutex
	botSinks map[string]*recordingSink
}

func newSessionFixture(t *testing.T, playerCount, questionCount int) *sessionFixture {
	t.Helper()

	match := entity.NewMatch("match-1", 1, nil)
	for i := 0; i < playerCount; i++ {
		match.Players = append(match.Players, &entity.Player{
			ID:     string(rune('a' + i)),
			Name:   "player-" + string(rune('a'+i)),
			Seat:   i,
			Status: entity.StatusDisconnected,
		})
	}
	for i := 0; i < questionCount; i++ {
		match.Questions = append(match.Questions, entity.Question{
			ID:   "q-" + string(rune('1'+i)),
			Type: entity.QuestionTypeQuiz,
			Choices: []entity.Choice{
				{ID: "1", Text: "one"},
				{ID: "2", Text: "two"},
				{ID: "3", Text: "three"},
			},
			CorrectID:    "2",
			TimeLimitSec: 10,
		})
	}

	fixture := &sessionFixture{
		clock:    clockwork.NewFakeClock(),
		writer:   &stubResultWriter{},
		botSinks: make(map[string]*recordingSink),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settings := Settings{
		FormingGrace:         15 * time.Second,
		ReconnectGraceRounds: 1,
		MinPlayers:           2,
		MaxPlayers:           8,
	}

	fixture.session = NewSession(logger, match, fixture.clock, settings, fixture.writer, fixture.newBot, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go fixture.session.Run(ctx)

	return fixture
}

func (that *sessionFixture) newBot(playerID string) Outbound {
	that.mu.Lock()
	defer that.mu.Unlock()

	sink := &recordingSink{}
	that.botSinks[playerID] = sink
	return sink
}

func (that *sessionFixture) attach(t *testing.T, playerID string) *recordingSink {
	t.Helper()

	sink := &recordingSink{}
	_, err := that.session.Attach(context.Background(), playerID, sink)
	require.NoError(t, err)
	return sink
}

func (that *sessionFixture) answer(t *testing.T, playerID, questionID, choiceID string) {
	t.Helper()
	require.NoError(t, that.session.SubmitAnswer(context.Background(), playerID, questionID, choiceID))
}

func (that *sessionFixture) awaitFinished(t *testing.T) {
	t.Helper()

	select {
	case <-that.session.done:
	case <-time.After(awaitTimeout):
		t.Fatal("session never finished")
	}
}

func TestSession_Start(t *testing.T) {
	t.Run("Opens the first round once every seat attached", func(t *testing.T) {
		// Given: a two seat match waiting in forming
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")

		// When: the last seat attaches
		sink := &recordingSink{}
		snapshot, err := fixture.session.Attach(context.Background(), "b", sink)

		// Then: the first question is broadcast and replayed in the snapshot
		require.NoError(t, err)
		require.NotNil(t, snapshot.Question)
		assert.Equal(t, 0, snapshot.Question.QuestionIndex)
		assert.Equal(t, 10, snapshot.Question.RemainingSec)
		assert.Nil(t, snapshot.AnswerResult)

		event := sinkA.awaitAction(t, ActionQuestion)
		question, ok := event.(QuestionEvent)
		require.True(t, ok)
		assert.Equal(t, "q-1", question.Question.ID)
		assert.Equal(t, 2, question.RemainingPlayers)
	})

	t.Run("Rejects an identity that holds no seat", func(t *testing.T) {
		// Given: a forming match
		fixture := newSessionFixture(t, 2, 3)

		// When: an unknown identity attaches
		_, err := fixture.session.Attach(context.Background(), "stranger", &recordingSink{})

		// Then: the attach is refused
		require.Error(t, err)
	})
}

func TestSession_RoundFlow(t *testing.T) {
	t.Run("Resolves early and eliminates the wrong subset", func(t *testing.T) {
		// Given: a running three seat match
		fixture := newSessionFixture(t, 3, 3)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")
		fixture.attach(t, "c")

		// When: everyone answers before the deadline, one of them wrong
		fixture.answer(t, "a", "q-1", "2")
		fixture.answer(t, "b", "q-1", "2")
		fixture.answer(t, "c", "q-1", "1")

		// Then: the round resolves without the timer and the next one opens
		event := sinkA.awaitAction(t, ActionRoundResult)
		result, ok := event.(RoundResultEvent)
		require.True(t, ok)
		assert.Equal(t, []string{"c"}, result.Eliminated)
		assert.Equal(t, 2, result.RemainingCount)
		assert.Equal(t, "2", result.CorrectAnswerID)

		sinkA.await(t, func(event Event) bool {
			question, ok := event.(QuestionEvent)
			return ok && question.QuestionIndex == 1
		})
	})

	t.Run("Sends the answer verdict only to the answering seat", func(t *testing.T) {
		// Given: a running two seat match
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		sinkB := fixture.attach(t, "b")

		// When: one seat answers
		fixture.answer(t, "a", "q-1", "2")

		// Then: only that seat sees its verdict
		event := sinkA.awaitAction(t, ActionAnswerResult)
		verdict, ok := event.(AnswerResultEvent)
		require.True(t, ok)
		assert.True(t, verdict.IsCorrect)
		assert.Zero(t, sinkB.countAction(ActionAnswerResult))
	})

	t.Run("Resolves on the deadline and crowns the last survivor", func(t *testing.T) {
		// Given: one seat answered correctly and one stayed silent
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")
		fixture.answer(t, "a", "q-1", "2")

		// When: the round deadline passes
		fixture.clock.Advance(10 * time.Second)

		// Then: the silent seat is out and the match finishes with a winner
		event := sinkA.awaitAction(t, ActionFinish)
		finish, ok := event.(FinishEvent)
		require.True(t, ok)
		assert.Equal(t, entity.OutcomeWon, finish.Outcome)
		assert.Equal(t, []string{"a"}, finish.Winners)

		outcomes := fixture.writer.written()
		require.Len(t, outcomes, 1)
		assert.Equal(t, entity.OutcomeWon, outcomes[0].Outcome)
	})

	t.Run("Ignores a timer fire from an already resolved round", func(t *testing.T) {
		// Given: round zero resolved early and round one is active
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")
		fixture.answer(t, "a", "q-1", "1")
		fixture.answer(t, "b", "q-1", "3")
		sinkA.await(t, func(event Event) bool {
			question, ok := event.(QuestionEvent)
			return ok && question.QuestionIndex == 1
		})

		// When: a stale timer for round zero fires anyway
		fixture.session.enqueue(context.Background(), roundTimeout{round: 0})
		fixture.answer(t, "a", "q-2", "2") // synchronizes past the stale event

		// Then: round one is still the one that resolves, and only once
		assert.Equal(t, 1, sinkA.countAction(ActionRoundResult))
	})

	t.Run("Shares the win at question exhaustion", func(t *testing.T) {
		// Given: a single question match
		fixture := newSessionFixture(t, 2, 1)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")

		// When: both seats answer correctly at the same fake instant
		fixture.answer(t, "a", "q-1", "2")
		fixture.answer(t, "b", "q-1", "2")

		// Then: the match ends in a shared win
		event := sinkA.awaitAction(t, ActionFinish)
		finish, ok := event.(FinishEvent)
		require.True(t, ok)
		assert.Equal(t, entity.OutcomeTie, finish.Outcome)
		assert.ElementsMatch(t, []string{"a", "b"}, finish.Winners)
	})
}

func TestSession_Reconnect(t *testing.T) {
	t.Run("Replays the round to a reconnecting seat", func(t *testing.T) {
		// Given: a running match where one seat answered and dropped
		fixture := newSessionFixture(t, 3, 3)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")
		fixture.attach(t, "c")
		fixture.answer(t, "a", "q-1", "2")
		fixture.session.Detach("a", sinkA)

		// When: the identity attaches again on a new connection
		snapshot, err := fixture.session.Attach(context.Background(), "a", &recordingSink{})

		// Then: the active question and the seat's own verdict are replayed
		require.NoError(t, err)
		require.NotNil(t, snapshot.Question)
		assert.Equal(t, "q-1", snapshot.Question.Question.ID)
		require.NotNil(t, snapshot.AnswerResult)
		assert.True(t, snapshot.AnswerResult.IsCorrect)
	})

	t.Run("A stale connection cannot detach a reattached seat", func(t *testing.T) {
		// Given: a seat that dropped and already reattached
		fixture := newSessionFixture(t, 3, 3)
		oldSink := fixture.attach(t, "a")
		fixture.attach(t, "b")
		fixture.attach(t, "c")
		fixture.session.Detach("a", oldSink)
		newSink := &recordingSink{}
		_, err := fixture.session.Attach(context.Background(), "a", newSink)
		require.NoError(t, err)

		// When: the dying old connection detaches on close
		fixture.session.Detach("a", oldSink)
		fixture.answer(t, "a", "q-1", "2") // synchronizes past the detach

		// Then: the seat still answers through the fresh connection
		event := newSink.awaitAction(t, ActionAnswerResult)
		verdict, ok := event.(AnswerResultEvent)
		require.True(t, ok)
		assert.True(t, verdict.IsCorrect)
	})

	t.Run("Removes a seat that never came back within its grace", func(t *testing.T) {
		// Given: a seat that dropped during round zero
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		sinkB := fixture.attach(t, "b")
		fixture.session.Detach("b", sinkB)

		// When: round zero resolves all wrong and round one resolves too
		fixture.answer(t, "a", "q-1", "1")
		sinkA.await(t, func(event Event) bool {
			result, ok := event.(RoundResultEvent)
			return ok && result.Round == 0
		})
		fixture.answer(t, "a", "q-2", "3")

		// Then: the anti wipe rule spared the seat once, the expired grace did not
		event := sinkA.awaitAction(t, ActionFinish)
		finish, ok := event.(FinishEvent)
		require.True(t, ok)
		assert.Equal(t, entity.OutcomeWon, finish.Outcome)
		assert.Equal(t, []string{"a"}, finish.Winners)
	})

	t.Run("Aborts once every contender is gone", func(t *testing.T) {
		// Given: a running two seat match
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		sinkB := fixture.attach(t, "b")

		// When: both connections drop
		fixture.session.Detach("a", sinkA)
		fixture.session.Detach("b", sinkB)

		// Then: the match aborts and no outcome is recorded
		fixture.awaitFinished(t)
		assert.Empty(t, fixture.writer.written())
	})
}

func TestSession_Forming(t *testing.T) {
	t.Run("Backfills missing seats with bots when the grace expires", func(t *testing.T) {
		// Given: only one of two seats showed up
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")

		// When: the forming grace runs out
		fixture.clock.Advance(15 * time.Second)

		// Then: the empty seat plays as a bot and the match starts
		event := sinkA.awaitAction(t, ActionQuestion)
		question, ok := event.(QuestionEvent)
		require.True(t, ok)
		assert.Equal(t, 2, question.RemainingPlayers)

		roster := sinkA.await(t, func(event Event) bool {
			state, ok := event.(StateEvent)
			if !ok {
				return false
			}
			for _, player := range state.Players {
				if player.ID == "b" && player.IsBot {
					return true
				}
			}
			return false
		})
		require.NotNil(t, roster)

		fixture.mu.Lock()
		_, botAttached := fixture.botSinks["b"]
		fixture.mu.Unlock()
		assert.True(t, botAttached)
	})

	t.Run("A seat that connected and dropped keeps its grace instead of turning into a bot", func(t *testing.T) {
		// Given: three seats where one attached and dropped and one never showed
		fixture := newSessionFixture(t, 3, 3)
		sinkA := fixture.attach(t, "a")
		sinkB := fixture.attach(t, "b")
		fixture.session.Detach("b", sinkB)

		// When: the forming grace runs out
		fixture.clock.Advance(15 * time.Second)

		// Then: only the never-connected seat is backfilled
		sinkA.await(t, func(event Event) bool {
			state, ok := event.(StateEvent)
			if !ok {
				return false
			}
			for _, player := range state.Players {
				if player.ID == "c" && player.IsBot {
					return true
				}
			}
			return false
		})

		players := fixture.session.match.Players
		assert.False(t, players[1].IsBot)
		assert.Equal(t, entity.StatusDisconnected, players[1].Status)

		fixture.mu.Lock()
		_, botForB := fixture.botSinks["b"]
		_, botForC := fixture.botSinks["c"]
		fixture.mu.Unlock()
		assert.False(t, botForB)
		assert.True(t, botForC)
	})

	t.Run("A seat dropping during forming does not abort the match", func(t *testing.T) {
		// Given: the only attached seat drops while the match is still forming
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		fixture.session.Detach("a", sinkA)

		// When: the identity comes back before the forming grace runs out
		freshSink := &recordingSink{}
		_, err := fixture.session.Attach(context.Background(), "a", freshSink)

		// Then: the match is still forming and starts once the grace expires
		require.NoError(t, err)
		fixture.clock.Advance(15 * time.Second)
		freshSink.awaitAction(t, ActionQuestion)
	})

	t.Run("Aborts the match when nobody shows up", func(t *testing.T) {
		// Given: a formed match with no connection at all
		fixture := newSessionFixture(t, 2, 3)

		// When: the forming grace runs out
		fixture.clock.BlockUntil(1)
		fixture.clock.Advance(15 * time.Second)

		// Then: the session ends without recording an outcome
		fixture.awaitFinished(t)
		assert.Empty(t, fixture.writer.written())
	})
}

func TestSession_Abort(t *testing.T) {
	t.Run("An administrative abort finishes the match immediately", func(t *testing.T) {
		// Given: a running match
		fixture := newSessionFixture(t, 2, 3)
		sinkA := fixture.attach(t, "a")
		fixture.attach(t, "b")

		// When: the match is aborted
		fixture.session.Abort("operator request")

		// Then: everyone gets the aborted finish and no outcome is written
		event := sinkA.awaitAction(t, ActionFinish)
		finish, ok := event.(FinishEvent)
		require.True(t, ok)
		assert.Equal(t, entity.OutcomeAborted, finish.Outcome)
		assert.Empty(t, finish.Winners)
		assert.Empty(t, fixture.writer.written())
	})
}
