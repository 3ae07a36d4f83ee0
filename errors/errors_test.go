package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Manager", "UpdateConfig", "persist version")
	require.Error(t, err)
	assert.Equal(t, "Manager.UpdateConfig: persist version failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Manager", "UpdateConfig", "persist version"))
}

func TestWrapClassification(t *testing.T) {
	base := stderrors.New("boom")

	tr := WrapTransient(base, "Store", "Save", "write")
	assert.True(t, IsTransient(tr))
	assert.False(t, IsInvalid(tr))
	assert.False(t, IsFatal(tr))

	inv := WrapInvalid(base, "Manager", "UpdateConfig", "validate")
	assert.True(t, IsInvalid(inv))
	assert.False(t, IsTransient(inv))

	fat := WrapFatal(base, "Store", "LoadLatest", "decode")
	assert.True(t, IsFatal(fat))
	assert.False(t, IsTransient(fat))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	err := WrapTransient(ErrStorageUnavailable, "Store", "Save", "write")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "Store", ce.Component)
	assert.Equal(t, "Save", ce.Operation)
	assert.True(t, stderrors.Is(err, ErrStorageUnavailable))
}

func TestIsTransientSentinels(t *testing.T) {
	assert.True(t, IsTransient(ErrTimeout))
	assert.True(t, IsTransient(ErrStorageUnavailable))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrNotFound))
}

func TestIsInvalidSentinels(t *testing.T) {
	for _, err := range []error{
		ErrNotFound,
		ErrVersionNotFound,
		ErrValidationFailed,
		ErrVersionConflict,
		ErrInvalidSpec,
		ErrInvalidData,
		ErrChecksumFailed,
	} {
		assert.True(t, IsInvalid(err), "expected %v to classify as invalid", err)
	}
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(ErrTimeout))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrNotFound))
	assert.Equal(t, ErrorInvalid, Classify(fmt.Errorf("update: %w", ErrValidationFailed)))
	assert.Equal(t, ErrorFatal, Classify(ErrDataCorrupted))
	assert.Equal(t, ErrorTransient, Classify(ErrTimeout))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("who knows")))
}

func TestRetryConfigShouldRetry(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrStorageUnavailable, 0))
	assert.False(t, rc.ShouldRetry(ErrStorageUnavailable, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrNotFound, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))
}

func TestRetryConfigConversion(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    4,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 1.5,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1.5, cfg.Multiplier)
	assert.True(t, cfg.AddJitter)
}
