package assistant

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "ascii", text: "abcd", want: 1},
		{name: "ascii rounds up", text: "abcde", want: 2},
		{name: "accented", text: "ção", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestTruncateHistory_MessageLimit(t *testing.T) {
	var history []Message
	for i := 0; i < 5; i++ {
		history = AddMessageToHistory(history, RoleUser, fmt.Sprintf("m%d", i))
	}

	got := TruncateHistory(history, 1000, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "m4", got[2].Content)
}

func TestTruncateHistory_TokenLimit(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "old", TokenCount: 5},
		{Role: RoleUser, Content: "mid", TokenCount: 5},
		{Role: RoleUser, Content: "new", TokenCount: 5},
	}

	got := TruncateHistory(history, 10, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "mid", got[0].Content)
}

func TestRecentUserTurns(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleUser, Content: "  "},
		{Role: RoleUser, Content: "third"},
		{Role: RoleUser, Content: "fourth"},
	}

	assert.Equal(t, []string{"fourth", "third", "second"}, RecentUserTurns(history, 3))
	assert.Empty(t, RecentUserTurns(nil, 3))
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &ConfigError{Variable: "OPENAI_API_KEY"}
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	err = fmt.Errorf("resolve reply: %w", &RunFailedError{Status: "expired"})
	assert.True(t, errors.Is(err, ErrRunFailed))
	var rf *RunFailedError
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "expired", rf.Status)
}
