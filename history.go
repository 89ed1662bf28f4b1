package assistant

import (
	"strings"
	"time"
)

// Roles used in conversation history and provider messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn kept in session history.
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// TruncateHistory applies the message limit first, then drops the oldest messages
// until the summed token count fits tokenLimit. The newest messages are kept.
func TruncateHistory(history []Message, tokenLimit, messageLimit int) []Message {
	if len(history) == 0 {
		return history
	}

	if messageLimit > 0 && len(history) > messageLimit {
		history = history[len(history)-messageLimit:]
	}

	totalTokens := 0
	for _, msg := range history {
		totalTokens += msg.TokenCount
	}

	for tokenLimit > 0 && totalTokens > tokenLimit && len(history) > 0 {
		totalTokens -= history[0].TokenCount
		history = history[1:]
	}

	return history
}

// AddMessageToHistory appends a message with an estimated token count.
func AddMessageToHistory(history []Message, role, content string) []Message {
	return append(history, Message{
		Role:       role,
		Content:    content,
		TokenCount: EstimateTokens(content),
		Timestamp:  time.Now(),
	})
}

// RecentUserTurns returns up to limit non-blank user turns, newest first.
func RecentUserTurns(history []Message, limit int) []string {
	turns := make([]string, 0, limit)
	for i := len(history) - 1; i >= 0 && len(turns) < limit; i-- {
		if history[i].Role != RoleUser {
			continue
		}
		if text := strings.TrimSpace(history[i].Content); text != "" {
			turns = append(turns, text)
		}
	}
	return turns
}
