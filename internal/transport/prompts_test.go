package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPrompts_ReturnsStaticCatalog(t *testing.T) {
	result := listPrompts()
	require.Len(t, result.Prompts, len(staticPrompts))
}

func TestGetPrompt_FillsTopicIntoTemplate(t *testing.T) {
	prompt, err := getPrompt("research_query", map[string]any{"topic": "vector databases"})
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	require.Contains(t, prompt.Messages[0].Content.Text, "vector databases")
}

func TestGetPrompt_UnknownName(t *testing.T) {
	_, err := getPrompt("does_not_exist", nil)
	require.Error(t, err)
}
