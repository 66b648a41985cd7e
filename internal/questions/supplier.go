package questions

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

const defaultTimeLimitSec = 10

// Supplier produces an ordered, non-repeating question sequence for a
// match. Implementations must be safe for concurrent use: every match
// draws its own copy and never writes back.
type Supplier interface {
	Draw(level, count int, exclude map[string]struct{}) ([]entity.Question, error)
}

// Pool is an in-memory supplier seeded from a JSON file at startup.
type Pool struct {
	mu      sync.Mutex
	byLevel map[int][]entity.Question
	rng     *rand.Rand
}

type poolFile struct {
	Questions []poolQuestion `json:"questions"`
}

type poolQuestion struct {
	ID           string          `json:"id"`
	Level        int             `json:"level"`
	Category     string          `json:"category"`
	Type         string          `json:"type"`
	Stem         string          `json:"stem"`
	Passage      string          `json:"passage,omitempty"`
	Choices      []entity.Choice `json:"choices"`
	CorrectID    string          `json:"correct_id"`
	TimeLimitSec int             `json:"time_limit_sec"`
}

func NewPool(items []entity.Question, rng *rand.Rand) *Pool {
	byLevel := make(map[int][]entity.Question)
	for _, question := range items {
		byLevel[question.Level] = append(byLevel[question.Level], question)
	}

	return &Pool{
		byLevel: byLevel,
		rng:     rng,
	}
}

// LoadPool reads the question seed file. Malformed entries fail loudly
// at startup instead of surfacing mid-match.
func LoadPool(path string, rng *rand.Rand) (*Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question file: %w", err)
	}

	var file poolFile
	if err = json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse question file: %w", err)
	}

	items := make([]entity.Question, 0, len(file.Questions))
	for _, q := range file.Questions {
		if q.ID == "" || q.Stem == "" || len(q.Choices) < 2 {
			return nil, fmt.Errorf("%w: question %q is incomplete", apperror.ErrInvalidPayload, q.ID)
		}

		question := entity.Question{
			ID:           q.ID,
			Level:        q.Level,
			Category:     q.Category,
			Type:         q.Type,
			Stem:         q.Stem,
			Passage:      q.Passage,
			Choices:      q.Choices,
			CorrectID:    q.CorrectID,
			TimeLimitSec: q.TimeLimitSec,
		}
		if question.Type == "" {
			question.Type = entity.QuestionTypeQuiz
		}
		if question.TimeLimitSec <= 0 {
			question.TimeLimitSec = defaultTimeLimitSec
		}
		if !question.HasChoice(question.CorrectID) {
			return nil, fmt.Errorf("%w: question %q has no correct choice", apperror.ErrInvalidPayload, q.ID)
		}

		items = append(items, question)
	}

	return NewPool(items, rng), nil
}

// Draw returns count questions for the level, skipping the exclusion
// set, shuffled per match. The pool itself is never mutated.
func (that *Pool) Draw(level, count int, exclude map[string]struct{}) ([]entity.Question, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var candidates []entity.Question
	for _, question := range that.byLevel[level] {
		if _, skip := exclude[question.ID]; skip {
			continue
		}
		candidates = append(candidates, question)
	}

	if len(candidates) < count {
		return nil, fmt.Errorf("%w: level %d has %d of %d questions", apperror.ErrInsufficientQuestions, level, len(candidates), count)
	}

	that.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	return candidates[:count], nil
}
