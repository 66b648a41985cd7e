package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
)

func (that *Server) handleJoin(ctx context.Context, caller *client, message *Message) error {
	log := that.logger.With("method", "handleJoin", "playerID", caller.identity.PlayerID)

	var payload JoinPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil || payload.MatchID == "" {
		return fmt.Errorf("%w: matchId is required", apperror.ErrInvalidPayload)
	}

	session, err := that.registry.Lookup(payload.MatchID)
	if err != nil {
		return err
	}

	snapshot, err := session.Attach(ctx, caller.identity.PlayerID, caller)
	if err != nil {
		return err
	}

	caller.setSession(session)

	replaySnapshot(caller, snapshot)

	log.Info("player joined match", "matchID", payload.MatchID)

	return nil
}

// replaySnapshot brings a joining or reconnecting seat up to date. The
// order matters: roster first, then the active question with the true
// remaining time, then the seat's own answer result.
func replaySnapshot(sink duel.Outbound, snapshot *duel.Snapshot) {
	sink.Deliver(snapshot.State)
	if snapshot.Question != nil {
		sink.Deliver(*snapshot.Question)
	}
	if snapshot.AnswerResult != nil {
		sink.Deliver(*snapshot.AnswerResult)
	}
}

func (that *Server) handleAnswer(ctx context.Context, caller *client, message *Message) error {
	var payload AnswerPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil || payload.MatchID == "" || payload.QuestionID == "" {
		return fmt.Errorf("%w: matchId and questionId are required", apperror.ErrInvalidPayload)
	}

	session, err := that.registry.Lookup(payload.MatchID)
	if err != nil {
		return err
	}

	return session.SubmitAnswer(ctx, caller.identity.PlayerID, payload.QuestionID, payload.Answer)
}

// errorCode maps the error taxonomy onto stable protocol codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperror.ErrMatchNotFound), errors.Is(err, apperror.ErrSeatNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrMatchFinished), errors.Is(err, apperror.ErrMatchAborted):
		return "match_finished"
	case errors.Is(err, apperror.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperror.ErrInvalidPayload), errors.Is(err, apperror.ErrQuestionMismatch), errors.Is(err, apperror.ErrMatchNotStarted):
		return "invalid_payload"
	default:
		return "internal"
	}
}
