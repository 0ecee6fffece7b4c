package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewError(VALIDATION_FAILED, "bundle version is empty")
		assert.Equal(t, "[VALIDATION_FAILED] bundle version is empty", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := WrapError(GRAPH_CONNECTION_FAILED, "failed to connect", cause)
		assert.Equal(t, "[GRAPH_CONNECTION_FAILED] failed to connect: connection refused", err.Error())
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(ENTITY_STORE_FAILED, "insert failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError(VERSION_NOT_FOUND, "version 17.1 not found")

	assert.True(t, errors.Is(err, NewError(VERSION_NOT_FOUND, "")))
	assert.False(t, errors.Is(err, NewError(ENTITY_NOT_FOUND, "")))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	inner := NewError(EMBEDDER_FAILED, "upstream timeout")
	wrapped := fmt.Errorf("search: %w", inner)

	assert.True(t, errors.Is(wrapped, NewError(EMBEDDER_FAILED, "")))
	assert.Equal(t, EMBEDDER_FAILED, CodeOf(wrapped))
}

func TestCodeOfNonEngineError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestRetryable(t *testing.T) {
	retryable := NewRetryableError(ENTITY_STORE_UNAVAILABLE, "store closed")
	terminal := NewError(VALIDATION_FAILED, "bad bundle")

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(terminal))
	assert.False(t, IsRetryable(errors.New("plain")))

	wrapped := WrapRetryableError(GRAPH_STORE_FAILED, "edge write", errors.New("timeout"))
	assert.True(t, IsRetryable(fmt.Errorf("ingest: %w", wrapped)))
}
