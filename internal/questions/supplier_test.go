package questions

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
)

func poolItems(level, count int) []entity.Question {
	items := make([]entity.Question, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, entity.Question{
			ID:    "q-" + string(rune('a'+i)),
			Level: level,
			Stem:  "stem",
			Choices: []entity.Choice{
				{ID: "1", Text: "one"},
				{ID: "2", Text: "two"},
			},
			CorrectID:    "1",
			TimeLimitSec: 10,
		})
	}
	return items
}

func TestPool_Draw(t *testing.T) {
	t.Run("Draws the requested count without repeats", func(t *testing.T) {
		// Given: a pool with five questions on the level
		pool := NewPool(poolItems(1, 5), rand.New(rand.NewSource(1)))

		// When: a match draws three of them
		drawn, err := pool.Draw(1, 3, nil)

		// Then: three distinct questions come back
		require.NoError(t, err)
		require.Len(t, drawn, 3)
		seen := make(map[string]struct{})
		for _, question := range drawn {
			_, dup := seen[question.ID]
			assert.False(t, dup)
			seen[question.ID] = struct{}{}
		}
	})

	t.Run("Skips the exclusion set", func(t *testing.T) {
		// Given: a pool with three questions, one of them already seen
		pool := NewPool(poolItems(1, 3), rand.New(rand.NewSource(1)))
		exclude := map[string]struct{}{"q-a": {}}

		// When: a match draws two
		drawn, err := pool.Draw(1, 2, exclude)

		// Then: the excluded question never appears
		require.NoError(t, err)
		require.Len(t, drawn, 2)
		for _, question := range drawn {
			assert.NotEqual(t, "q-a", question.ID)
		}
	})

	t.Run("Fails when the level cannot supply enough questions", func(t *testing.T) {
		// Given: a pool with two questions on the level
		pool := NewPool(poolItems(1, 2), rand.New(rand.NewSource(1)))

		// When: a match asks for three
		_, err := pool.Draw(1, 3, nil)

		// Then: formation fails instead of starting a short match
		require.ErrorIs(t, err, apperror.ErrInsufficientQuestions)
	})

	t.Run("Levels do not bleed into each other", func(t *testing.T) {
		// Given: questions on level two only
		pool := NewPool(poolItems(2, 3), rand.New(rand.NewSource(1)))

		// When: a match draws from level one
		_, err := pool.Draw(1, 1, nil)

		// Then: the draw fails
		require.ErrorIs(t, err, apperror.ErrInsufficientQuestions)
	})
}

func TestLoadPool(t *testing.T) {
	t.Run("Loads a seed file and applies defaults", func(t *testing.T) {
		// Given: a seed file without type and time limit fields
		path := filepath.Join(t.TempDir(), "questions.json")
		seed := `{"questions":[{"id":"q1","level":1,"stem":"pick one","choices":[{"id":"1","text":"a"},{"id":"2","text":"b"}],"correct_id":"2"}]}`
		require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

		// When: the pool loads
		pool, err := LoadPool(path, rand.New(rand.NewSource(1)))

		// Then: the question carries the default type and time limit
		require.NoError(t, err)
		drawn, err := pool.Draw(1, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, entity.QuestionTypeQuiz, drawn[0].Type)
		assert.Equal(t, defaultTimeLimitSec, drawn[0].TimeLimitSec)
	})

	t.Run("Rejects a question whose correct choice is missing", func(t *testing.T) {
		// Given: a seed entry pointing at a choice that does not exist
		path := filepath.Join(t.TempDir(), "questions.json")
		seed := `{"questions":[{"id":"q1","level":1,"stem":"pick one","choices":[{"id":"1","text":"a"},{"id":"2","text":"b"}],"correct_id":"9"}]}`
		require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

		// When: the pool loads
		_, err := LoadPool(path, rand.New(rand.NewSource(1)))

		// Then: startup fails loudly
		require.ErrorIs(t, err, apperror.ErrInvalidPayload)
	})

	t.Run("Fails on a missing file", func(t *testing.T) {
		// When: the seed path does not exist
		_, err := LoadPool(filepath.Join(t.TempDir(), "missing.json"), rand.New(rand.NewSource(1)))

		// Then: the loader reports it
		require.Error(t, err)
	})
}
