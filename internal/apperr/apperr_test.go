package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindTooFar, "too far").WithDetails(map[string]int{"distanceMeters": 156})
	assert.Equal(t, KindTooFar, KindOf(err))
	assert.True(t, Is(err, KindTooFar))
	assert.False(t, Is(err, KindNotFound))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindDuplicateCheckIn, "already checked in"))
	assert.Equal(t, KindDuplicateCheckIn, KindOf(err))
}

func TestUntaggedErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
}
