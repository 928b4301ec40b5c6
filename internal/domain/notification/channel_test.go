package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelType_IsValidAndSupportsRichContent(t *testing.T) {
	assert.True(t, ChannelTypeDirectMessage.IsValid())
	assert.True(t, ChannelTypeGuildAnnouncement.SupportsRichContent())
	assert.False(t, ChannelTypeWebhook.SupportsRichContent())
	assert.False(t, ChannelType("bogus").IsValid())
}

func TestNewSuccessResult(t *testing.T) {
	result := NewSuccessResult(ChannelTypeDirectMessage, "msg-1")
	assert.True(t, result.Success)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.NoError(t, result.Error)
}

func TestNewFailureResult(t *testing.T) {
	result := NewFailureResult(ChannelTypeGuildAnnouncement, assert.AnError, true)
	assert.False(t, result.Success)
	assert.True(t, result.Retryable)
	assert.ErrorIs(t, result.Error, assert.AnError)
}

func TestNewRateLimitedResult(t *testing.T) {
	result := NewRateLimitedResult(ChannelTypeDirectMessage, 30*time.Second)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, ErrRateLimited)
	assert.Equal(t, 30*time.Second, result.RetryAfter)
	assert.Equal(t, "RATE_LIMITED", result.ErrorCode)
}

func TestDeliveryResult_SetMetadata_InitializesNilMap(t *testing.T) {
	result := DeliveryResult{}
	result.SetMetadata("k", "v")
	assert.Equal(t, "v", result.Metadata["k"])
}

func TestDeliveryOptions_BuilderMethods(t *testing.T) {
	opts := DefaultDeliveryOptions().WithSilent().WithTimeout(5 * time.Second).WithComponents([][]ActionButton{
		{NewURLButton("View", "https://example.com")},
	})

	assert.True(t, opts.Silent)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Len(t, opts.ComponentRows, 1)
}

func TestActionButton_IsValid(t *testing.T) {
	assert.True(t, NewURLButton("View", "https://example.com").IsValid())
	assert.True(t, NewCustomIDButton("Dismiss", "dismiss").IsValid())
	assert.False(t, ActionButton{Label: "No action"}.IsValid())
	assert.False(t, ActionButton{CustomID: "no-label"}.IsValid())
}
