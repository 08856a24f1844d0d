package gamification

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceprep/backend/internal/models"
)

func TestCooldownCodec(t *testing.T) {
	raw, err := encodeCooldowns(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	at := time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)
	in := map[string]map[string]time.Time{models.CooldownQuestion: {"12": at}}
	raw, err = encodeCooldowns(in)
	require.NoError(t, err)

	out, err := decodeCooldowns(raw)
	require.NoError(t, err)
	assert.True(t, out[models.CooldownQuestion]["12"].Equal(at))

	empty, err := decodeCooldowns(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)

	_, err = decodeCooldowns([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestClassifyDeleteError(t *testing.T) {
	err := classifyDeleteError(&pq.Error{Code: "23503", Constraint: "achievement_prerequisites_prerequisite_key_fkey"})
	assert.ErrorIs(t, err, ErrAchievementInUse)

	other := errors.New("connection reset")
	err = classifyDeleteError(other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrAchievementInUse)
}

func TestSavepointNames(t *testing.T) {
	for _, name := range []string{"achievements", "unlock_by_level", "unlock_by_achievement", "exam_rules"} {
		assert.True(t, savepointName.MatchString(name), name)
	}
	assert.False(t, savepointName.MatchString("x; DROP TABLE users"))
}
