package duel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

const eventQueueSize = 64

// ResultWriter records a finished match. It is invoked at most once
// per session, with at-least-once delivery semantics downstream.
type ResultWriter interface {
	WriteOutcome(ctx context.Context, outcome *entity.MatchOutcome) error
}

// Settings carries the per-match tunables the registry resolves from
// config.
type Settings struct {
	FormingGrace         time.Duration
	ReconnectGraceRounds int
	MinPlayers           int
	MaxPlayers           int
}

// Session drives one match from forming to finish. All match state is
// mutated only inside Run's goroutine; the exported methods just
// enqueue commands, so no locking exists within a match.
type Session struct {
	logger   *slog.Logger
	match    *entity.Match
	clock    clockwork.Clock
	settings Settings
	results  ResultWriter
	newBot   func(playerID string) Outbound
	onFinish func(matchID string)

	events chan any
	done   chan struct{}

	sinks map[string]Outbound
	// seats that held a connection at least once; they are never
	// backfilled with a bot, the reconnection grace decides their fate
	everAttached map[string]struct{}

	roundTimer   clockwork.Timer
	roundStarted time.Time
	// round index at which a disconnected seat forfeits its grace
	graceExpiry map[string]int
}

func NewSession(
	logger *slog.Logger,
	match *entity.Match,
	clock clockwork.Clock,
	settings Settings,
	results ResultWriter,
	newBot func(playerID string) Outbound,
	onFinish func(matchID string),
) *Session {
	return &Session{
		logger:   logger.With("component", "duel-session", "matchID", match.ID),
		match:    match,
		clock:    clock,
		settings: settings,
		results:  results,
		newBot:   newBot,
		onFinish: onFinish,

		events:       make(chan any, eventQueueSize),
		done:         make(chan struct{}),
		sinks:        make(map[string]Outbound),
		everAttached: make(map[string]struct{}),
		graceExpiry:  make(map[string]int),
	}
}

func (that *Session) ID() string {
	return that.match.ID
}

type attachCmd struct {
	playerID string
	sink     Outbound
	reply    chan attachReply
}

type attachReply struct {
	snapshot *Snapshot
	err      error
}

type answerCmd struct {
	playerID   string
	questionID string
	choiceID   string
	reply      chan error
}

type detachCmd struct {
	playerID string
	sink     Outbound
}

type roundTimeout struct {
	round int
}

type formingExpired struct{}

type abortCmd struct {
	reason string
}

// Attach binds a connection to its seat and returns the replay
// snapshot. A reconnecting identity gets its existing seat back; an
// eliminated one comes back as a spectator.
func (that *Session) Attach(ctx context.Context, playerID string, sink Outbound) (*Snapshot, error) {
	reply := make(chan attachReply, 1)
	if !that.enqueue(ctx, attachCmd{playerID: playerID, sink: sink, reply: reply}) {
		return nil, apperror.ErrMatchFinished
	}

	select {
	case r := <-reply:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-that.done:
		return nil, apperror.ErrMatchFinished
	}
}

// SubmitAnswer records an answer for the active round. Duplicates are
// idempotent no-ops and return nil.
func (that *Session) SubmitAnswer(ctx context.Context, playerID, questionID, choiceID string) error {
	reply := make(chan error, 1)
	if !that.enqueue(ctx, answerCmd{playerID: playerID, questionID: questionID, choiceID: choiceID, reply: reply}) {
		return apperror.ErrMatchFinished
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-that.done:
		return apperror.ErrMatchFinished
	}
}

// Detach marks a seat disconnected. It is never an elimination by
// itself; the grace window decides at a resolution boundary. The sink
// identifies the connection, so a dying connection cannot detach a
// seat that already reattached elsewhere.
func (that *Session) Detach(playerID string, sink Outbound) {
	that.enqueue(context.Background(), detachCmd{playerID: playerID, sink: sink})
}

// Abort force-finishes the match with the aborted outcome.
func (that *Session) Abort(reason string) {
	that.enqueue(context.Background(), abortCmd{reason: reason})
}

func (that *Session) enqueue(ctx context.Context, event any) bool {
	select {
	case that.events <- event:
		return true
	case <-that.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run is the round loop. It blocks only on its own event queue; silent
// players are handled by the timeout path, never by waiting on them.
func (that *Session) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	formingTimer := that.clock.AfterFunc(that.settings.FormingGrace, func() {
		that.enqueue(context.Background(), formingExpired{})
	})
	defer formingTimer.Stop()

	log.Info("session started", "seats", len(that.match.Players))

	for {
		select {
		case <-ctx.Done():
			if !that.match.IsFinished() {
				that.finish(context.Background(), entity.OutcomeAborted)
			}
			close(that.done)
			return
		case event := <-that.events:
			that.handle(ctx, event)
			if that.match.IsFinished() {
				close(that.done)
				return
			}
		}
	}
}

func (that *Session) handle(ctx context.Context, event any) {
	switch ev := event.(type) {
	case attachCmd:
		ev.reply <- that.handleAttach(ev)
	case answerCmd:
		ev.reply <- that.handleAnswer(ctx, ev)
	case detachCmd:
		that.handleDetach(ctx, ev)
	case roundTimeout:
		that.handleRoundTimeout(ctx, ev)
	case formingExpired:
		that.handleFormingExpired(ctx)
	case abortCmd:
		that.logger.Info("match aborted", "reason", ev.reason)
		that.finish(ctx, entity.OutcomeAborted)
	}
}

func (that *Session) handleAttach(cmd attachCmd) attachReply {
	log := that.logger.With("method", "handleAttach", "playerID", cmd.playerID)

	player := that.match.PlayerByID(cmd.playerID)
	if player == nil {
		return attachReply{err: apperror.ErrSeatNotFound}
	}

	that.sinks[cmd.playerID] = cmd.sink
	that.everAttached[cmd.playerID] = struct{}{}
	player.LastSeen = that.clock.Now()

	switch player.Status {
	case entity.StatusEliminated:
		// late reconnect after the grace window: the seat is gone,
		// the connection stays as a read-only spectator
		player.Status = entity.StatusSpectating
	case entity.StatusSpectating:
	default:
		player.Status = entity.StatusActive
		delete(that.graceExpiry, cmd.playerID)
	}

	log.Info("seat attached", "status", player.Status)

	if that.match.State == entity.StateForming && that.allSeatsAttached() {
		that.startMatch()
	}

	that.broadcastState()

	return attachReply{snapshot: that.snapshotFor(player)}
}

func (that *Session) handleAnswer(ctx context.Context, cmd answerCmd) error {
	log := that.logger.With("method", "handleAnswer", "playerID", cmd.playerID)

	latency := that.clock.Now().Sub(that.roundStarted)

	correct, err := that.match.SubmitAnswer(cmd.playerID, cmd.questionID, cmd.choiceID, latency)
	if err != nil {
		// the first answer stays authoritative; repeats are fine
		if errors.Is(err, apperror.ErrAlreadyAnswered) {
			return nil
		}
		return err
	}

	if sink, ok := that.sinks[cmd.playerID]; ok {
		sink.Deliver(AnswerResultEvent{QuestionID: cmd.questionID, IsCorrect: correct})
	}

	that.broadcastState()

	log.Debug("answer recorded", "correct", correct, "latencyMs", latency.Milliseconds())

	if that.match.AllContendersAnswered() {
		that.resolveRound(ctx)
	}

	return nil
}

func (that *Session) handleDetach(ctx context.Context, cmd detachCmd) {
	log := that.logger.With("method", "handleDetach", "playerID", cmd.playerID)

	player := that.match.PlayerByID(cmd.playerID)
	if player == nil {
		return
	}

	if cmd.sink != nil && that.sinks[cmd.playerID] != cmd.sink {
		// a newer connection already owns this seat
		return
	}

	delete(that.sinks, cmd.playerID)

	if player.Status == entity.StatusActive {
		player.Status = entity.StatusDisconnected
		// remainder of the current round plus one extra round
		that.graceExpiry[cmd.playerID] = that.match.Round + that.settings.ReconnectGraceRounds
		log.Info("seat disconnected", "graceExpiresAfterRound", that.graceExpiry[cmd.playerID])
	}

	// while forming, the grace timer decides; a dropped seat may still
	// come back before the match starts
	if that.match.State != entity.StateForming && that.allContendersDisconnected() {
		log.Warn("every seat disconnected, aborting match")
		that.finish(ctx, entity.OutcomeAborted)
		return
	}

	that.broadcastState()

	if that.match.State == entity.StateQuestionActive && that.match.AllContendersAnswered() {
		that.resolveRound(ctx)
	}
}

func (that *Session) handleRoundTimeout(ctx context.Context, ev roundTimeout) {
	if that.match.State != entity.StateQuestionActive || ev.round != that.match.Round {
		// stale timer from an already resolved round
		that.logger.Debug("ignoring stale round timer", "round", ev.round)
		return
	}

	that.resolveRound(ctx)
}

func (that *Session) handleFormingExpired(ctx context.Context) {
	log := that.logger.With("method", "handleFormingExpired")

	if that.match.State != entity.StateForming {
		return
	}

	if !that.anyHumanAttached() {
		log.Warn("no player showed up, aborting match")
		that.finish(ctx, entity.OutcomeAborted)
		return
	}

	// seats that never connected become scripted responders so the
	// match still starts full; the round loop treats them like any
	// other player. A seat that connected and dropped keeps its
	// reconnection grace instead.
	for _, player := range that.match.Players {
		if _, ok := that.sinks[player.ID]; ok {
			continue
		}
		if _, connectedOnce := that.everAttached[player.ID]; connectedOnce {
			continue
		}
		player.IsBot = true
		player.Status = entity.StatusActive
		that.sinks[player.ID] = that.newBot(player.ID)
		log.Info("seat backfilled with bot", "playerID", player.ID, "seat", player.Seat)
	}

	that.startMatch()
	that.broadcastState()
}

func (that *Session) startMatch() {
	if that.match.ContendingCount() < that.settings.MinPlayers {
		that.logger.Warn("not enough players to start", "contending", that.match.ContendingCount())
		that.finish(context.Background(), entity.OutcomeAborted)
		return
	}

	that.match.AdvanceRound()
	that.startRound()
}

func (that *Session) startRound() {
	question := that.match.CurrentQuestion()

	that.roundStarted = that.clock.Now()
	round := that.match.Round

	// the deadline lives server-side only; clients get a limit value,
	// so clock skew cannot shorten or extend the true countdown
	limit := time.Duration(question.TimeLimitSec) * time.Second
	that.roundTimer = that.clock.AfterFunc(limit, func() {
		that.enqueue(context.Background(), roundTimeout{round: round})
	})

	that.broadcast(that.questionEvent(question.TimeLimitSec))

	that.logger.Info("round started", "round", round, "questionID", question.ID, "timeLimitSec", question.TimeLimitSec)
}

// resolveRound computes the elimination exactly once for the active
// round, on the earlier of "deadline reached" and "everyone answered".
func (that *Session) resolveRound(ctx context.Context) {
	if that.roundTimer != nil {
		that.roundTimer.Stop()
		that.roundTimer = nil
	}

	expired := make(map[string]struct{})
	for playerID, lastRound := range that.graceExpiry {
		if that.match.Round >= lastRound {
			expired[playerID] = struct{}{}
		}
	}

	result := that.match.ResolveRound(expired)

	that.logger.Info("round resolved",
		"round", result.Round,
		"eliminated", len(result.Eliminated),
		"remaining", result.RemainingCount,
		"allWrong", result.AllWrong,
	)

	that.broadcast(RoundResultEvent{RoundResult: *result})

	// an eliminated seat that kept its connection watches the rest of
	// the match read-only
	for _, playerID := range result.Eliminated {
		delete(that.graceExpiry, playerID)
		player := that.match.PlayerByID(playerID)
		if _, connected := that.sinks[playerID]; connected && player != nil {
			player.Status = entity.StatusSpectating
		}
	}

	that.broadcastState()

	switch remaining := that.match.ContendingCount(); {
	case remaining == 0:
		that.finish(ctx, entity.OutcomeAborted)
	case remaining == 1:
		that.finish(ctx, entity.OutcomeWon)
	case that.match.QuestionsExhausted():
		if len(that.match.Winners()) > 1 {
			that.finish(ctx, entity.OutcomeTie)
		} else {
			that.finish(ctx, entity.OutcomeWon)
		}
	default:
		that.match.AdvanceRound()
		that.startRound()
	}
}

func (that *Session) finish(ctx context.Context, outcome string) {
	log := that.logger.With("method", "finish")

	if that.match.IsFinished() {
		return
	}

	if that.roundTimer != nil {
		that.roundTimer.Stop()
		that.roundTimer = nil
	}

	outcomeDoc := that.match.BuildOutcome(outcome, that.clock.Now())
	that.match.State = entity.StateFinished

	that.broadcast(FinishEvent{
		Outcome:   outcomeDoc.Outcome,
		Winners:   outcomeDoc.Winners,
		Standings: outcomeDoc.Standings,
	})

	// an aborted match carries no ranking update
	if outcome != entity.OutcomeAborted && that.results != nil {
		if err := that.results.WriteOutcome(ctx, outcomeDoc); err != nil {
			log.Error("failed to write match outcome", "error", err)
		}
	}

	log.Info("match finished", "outcome", outcome, "winners", outcomeDoc.Winners)

	if that.onFinish != nil {
		that.onFinish(that.match.ID)
	}
}

func (that *Session) allSeatsAttached() bool {
	for _, player := range that.match.Players {
		if _, ok := that.sinks[player.ID]; !ok {
			return false
		}
	}
	return true
}

func (that *Session) anyHumanAttached() bool {
	for _, player := range that.match.Players {
		if player.IsBot {
			continue
		}
		if _, ok := that.sinks[player.ID]; ok {
			return true
		}
	}
	return false
}

func (that *Session) allContendersDisconnected() bool {
	contenders := that.match.ContendingPlayers()
	if len(contenders) == 0 {
		return false
	}
	for _, player := range contenders {
		if player.Status != entity.StatusDisconnected {
			return false
		}
	}
	return true
}

func (that *Session) questionEvent(remainingSec int) QuestionEvent {
	question := that.match.CurrentQuestion()

	return QuestionEvent{
		Question:         *question,
		QuestionIndex:    that.match.Round,
		TotalQuestions:   len(that.match.Questions),
		TimeLimitSec:     question.TimeLimitSec,
		RemainingSec:     remainingSec,
		RemainingPlayers: that.match.ContendingCount(),
	}
}

func (that *Session) stateEvent() StateEvent {
	event := StateEvent{}
	for _, player := range that.match.Players {
		event.Players = append(event.Players, PlayerState{
			ID:       player.ID,
			Name:     player.Name,
			Seat:     player.Seat,
			IsBot:    player.IsBot,
			Status:   player.Status,
			Answered: player.HasAnswered(),
		})
	}
	return event
}

func (that *Session) snapshotFor(player *entity.Player) *Snapshot {
	snapshot := &Snapshot{State: that.stateEvent()}

	if that.match.State != entity.StateQuestionActive {
		return snapshot
	}

	question := that.match.CurrentQuestion()
	remaining := time.Duration(question.TimeLimitSec)*time.Second - that.clock.Now().Sub(that.roundStarted)
	if remaining < 0 {
		remaining = 0
	}

	event := that.questionEvent(int(remaining / time.Second))
	snapshot.Question = &event

	if player.HasAnswered() {
		snapshot.AnswerResult = &AnswerResultEvent{
			QuestionID: player.Answer.QuestionID,
			IsCorrect:  question.IsCorrect(player.Answer.ChoiceID),
		}
	}

	return snapshot
}

func (that *Session) broadcast(event Event) {
	for _, sink := range that.sinks {
		sink.Deliver(event)
	}
}

func (that *Session) broadcastState() {
	that.broadcast(that.stateEvent())
}
