package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coedit/pkg/models"
)

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	}, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpOnNonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(), func() error {
		attempts++
		return errors.New("invalid api key")
	}, zerolog.Nop())

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(), func() error {
		attempts++
		return errors.New("503 service unavailable")
	}, zerolog.Nop())

	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial try plus three retries
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, fastBackoff(), func() error {
		return errors.New("timeout awaiting response")
	}, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("429 Too Many Requests")))
	assert.True(t, IsRetryable(errors.New("rate limit exceeded")))
	assert.False(t, IsRetryable(errors.New("invalid request payload")))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	assert.Equal(t, time.Second, backoffDelay(cfg, 0))
	assert.Equal(t, 3*time.Second, backoffDelay(cfg, 1))
	assert.Equal(t, 3*time.Second, backoffDelay(cfg, 5))
}

func TestMockRoundTripsMetadata(t *testing.T) {
	m := NewMock(Completion{Text: "scripted"})

	var got Completion
	m.Send(context.Background(), Request{
		ID:      "r1",
		Content: "prompt",
		Metadata: models.RequestMetadata{
			RequestID:       "r1",
			ConversationIDs: []string{"c1"},
		},
	}, func(c Completion) { got = c })

	assert.Equal(t, "scripted", got.Text)
	assert.Equal(t, "r1", got.Metadata.RequestID)
	assert.Equal(t, []string{"c1"}, got.Metadata.ConversationIDs)
	require.Len(t, m.Requests, 1)
}

func TestMockDropsMetadataWhenConfigured(t *testing.T) {
	m := NewMock(Completion{Text: "scripted"})
	m.DropMetadata = true

	var got Completion
	m.Send(context.Background(), Request{
		ID:       "r1",
		Metadata: models.RequestMetadata{RequestID: "r1"},
	}, func(c Completion) { got = c })

	assert.Empty(t, got.Metadata.RequestID)
}
