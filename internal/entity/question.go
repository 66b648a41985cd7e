package entity

const (
	QuestionTypeQuiz    = "quiz"
	QuestionTypeReading = "reading"
)

type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable once drawn into a match. The correct choice id
// never leaves the server: it is excluded from JSON and published only
// through RoundResult after the round is resolved.
type Question struct {
	ID           string   `json:"id"`
	Level        int      `json:"level"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Stem         string   `json:"stem"`
	Passage      string   `json:"passage,omitempty"`
	Choices      []Choice `json:"choices"`
	CorrectID    string   `json:"-"`
	TimeLimitSec int      `json:"timeLimitSec"`
}

func (that *Question) IsCorrect(choiceID string) bool {
	return choiceID != "" && choiceID == that.CorrectID
}

func (that *Question) HasChoice(choiceID string) bool {
	for _, choice := range that.Choices {
		if choice.ID == choiceID {
			return true
		}
	}
	return false
}
