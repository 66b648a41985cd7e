package websocket

import "encoding/json"

// Message is the frame envelope both directions share: an action name
// and an action-specific payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	MatchID string `json:"matchId"`
}

type AnswerPayload struct {
	MatchID    string `json:"matchId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type ErrorPayload struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}
