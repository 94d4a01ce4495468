package builtin

import (
	"context"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

const (
	// MoodToolName is the registered name of the mood tool.
	MoodToolName = "mood"

	// MoodReply is the fixed answer of the mood tool.
	MoodReply = "I'm feeling great and happy to help you! ❤️"

	moodQuestionDescription = "Ask this MCP server about its mood! You can phrase your question " +
		"in any way you like - 'How are you?', 'What's your mood?', or even " +
		"'Are you having a good day?'. The server will always respond with " +
		"a cheerful message and a heart ❤️"
)

// MoodDescriptor describes the mood tool.
func MoodDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        MoodToolName,
		Description: "Ask the server about its mood - it's always happy!",
		InputSchema: tool.Schema{
			Required: []string{"question"},
			Properties: map[string]tool.Property{
				"question": {Type: tool.TypeString, Description: moodQuestionDescription},
			},
		},
	}
}

// Mood answers every question the same way.
func Mood(context.Context, tool.Arguments) []mcp.ContentBlock {
	return mcp.Text(MoodReply)
}
