package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindTransientService, "generate", "retries exhausted", errors.New("429"))
	err.Attempts = 3
	assert.Equal(t, "generate: TRANSIENT_SERVICE: retries exhausted (attempts=3): 429", err.Error())

	plain := New(KindEmptyResult, "generate", "no text")
	assert.Equal(t, "generate: EMPTY_RESULT: no text", plain.Error())
}

func TestKindOfThroughWrapping(t *testing.T) {
	cause := errors.New("exec: \"node\": executable file not found in $PATH")
	err := fmt.Errorf("dispatch prompt 7: %w", Wrap(KindToolUnavailable, "dispatch", "runtime missing", cause))

	assert.Equal(t, KindToolUnavailable, KindOf(err))
	assert.True(t, Is(err, KindToolUnavailable))
	assert.False(t, Is(err, KindTimeout))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindTimeout))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.True(t, IsTransient(New(KindTransientService, "generate", "rate limited")))
}
