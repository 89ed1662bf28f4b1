package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageText_OnlyTextParts(t *testing.T) {
	msg := Message{
		Role: "assistant",
		Content: []ContentPart{
			{Type: ContentTypeText, Text: "A"},
			{Type: "image_file"},
			{Type: ContentTypeText, Text: "B"},
		},
	}
	assert.Equal(t, "AB", msg.Text())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusFailed, StatusCancelled, StatusExpired} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{StatusQueued, StatusInProgress, "requires_action", "cancelling", ""} {
		assert.False(t, IsTerminal(s), s)
	}
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("get run: %w", &StatusError{StatusCode: 429, Err: errors.New("too many")})
	assert.Equal(t, 429, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}
