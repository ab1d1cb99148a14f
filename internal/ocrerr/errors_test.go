package ocrerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrStructured(t *testing.T) {
	err := NewValidationError("empty file content", map[string]interface{}{
		"filename": "scan.pdf",
	})

	env := FromErr(err)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "empty file content", env.Error.Message)
	assert.Equal(t, "scan.pdf", env.Error.Details["filename"])
	assert.NotEmpty(t, env.Error.Timestamp)
}

func TestFromErrUnexpected(t *testing.T) {
	env := FromErr(fmt.Errorf("pixmap buffer overrun"))
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "pixmap buffer overrun", env.Error.Details["cause"],
		"original message must survive for diagnosis")
}

func TestFromErrWrapped(t *testing.T) {
	inner := NewRecognitionError("all recognition backends failed", nil, map[string]interface{}{
		"failures": []string{"openai-gpt-4o: 429"},
	})
	wrapped := fmt.Errorf("recognize stage: %w", inner)

	env := FromErr(wrapped)
	assert.Equal(t, "RECOGNITION_ERROR", env.Error.Code)
}

func TestFromErrDeadlineExceeded(t *testing.T) {
	env := FromErr(context.DeadlineExceeded)
	assert.Equal(t, "TIMEOUT_ERROR", env.Error.Code)

	env = FromErr(fmt.Errorf("recognizing page 1: %w", context.DeadlineExceeded))
	assert.Equal(t, "TIMEOUT_ERROR", env.Error.Code, "wrapped deadlines still classify as timeouts")
	assert.NotEmpty(t, env.Error.Details["cause"])
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewProcessingError("preprocess failed", cause, nil)
	assert.True(t, errors.Is(err, cause))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewTimeoutError("backend deadline", 30*time.Second, nil)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(NewProcessingError("render failed", context.DeadlineExceeded, nil)))

	assert.False(t, IsTransient(NewValidationError("unsupported file type", nil)))
	assert.False(t, IsTransient(errors.New("malformed JSON payload")))
	assert.False(t, IsTransient(nil))
}

func TestToMap(t *testing.T) {
	err := NewCacheError("redis set failed", errors.New("broken pipe"))
	m := err.ToMap()
	require.Equal(t, "CACHE_ERROR", m["error_code"])
	assert.Equal(t, "broken pipe", m["cause"])
}
