package apperror

import "errors"

var (
	ErrMatchNotFound         = errors.New("match not found")
	ErrMatchFinished         = errors.New("match is already finished")
	ErrMatchNotStarted       = errors.New("match is not started")
	ErrMatchAborted          = errors.New("match was aborted")
	ErrUnauthorized          = errors.New("identity check failed")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrAlreadyAnswered       = errors.New("answer already recorded for this round")
	ErrSeatNotFound          = errors.New("player has no seat in this match")
	ErrQuestionMismatch      = errors.New("answer does not match the active question")
	ErrInsufficientQuestions = errors.New("question pool is too small for the match")
	ErrInsufficientPlayers   = errors.New("not enough players to run the match")
)
