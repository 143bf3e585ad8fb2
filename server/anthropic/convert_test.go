package anthropic

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/modelbridge/modelbridge/pkg/provider"

	"github.com/stretchr/testify/require"
)

func TestToMessagesRolesAndOrder(t *testing.T) {
	messages, err := toMessages("be brief", []MessageParam{
		{Role: MessageRoleUser, Content: "hello"},
		{Role: MessageRoleAssistant, Content: "hi there"},
		{Role: MessageRoleUser, Content: "bye"},
	})

	require.NoError(t, err)
	require.Len(t, messages, 4)

	require.Equal(t, provider.MessageRoleSystem, messages[0].Role)
	require.Equal(t, "be brief", messages[0].Text())
	require.Equal(t, provider.MessageRoleUser, messages[1].Role)
	require.Equal(t, provider.MessageRoleAssistant, messages[2].Role)
	require.Equal(t, provider.MessageRoleUser, messages[3].Role)
}

func TestToMessageImage(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("pixels"))

	message, err := toMessage(MessageParam{
		Role: MessageRoleUser,
		Content: []any{
			map[string]any{"type": "text", "text": "what is this?"},
			map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "image/png",
					"data":       data,
				},
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, message.Content, 2)

	require.Equal(t, "what is this?", message.Content[0].Text)

	file := message.Content[1].File
	require.NotNil(t, file)
	require.Equal(t, "image/png", file.ContentType)
	require.Equal(t, []byte("pixels"), file.Content)
}

func TestToMessageThinkingBlocks(t *testing.T) {
	message, err := toMessage(MessageParam{
		Role: MessageRoleAssistant,
		Content: []any{
			map[string]any{"type": "thinking", "thinking": "let me see", "signature": "sig_1"},
			map[string]any{"type": "redacted_thinking", "data": "opaque-blob"},
			map[string]any{"type": "text", "text": "the answer"},
		},
	})

	require.NoError(t, err)
	require.Len(t, message.Content, 3)

	require.NotNil(t, message.Content[0].Reasoning)
	require.Equal(t, "let me see", message.Content[0].Reasoning.Text)
	require.Equal(t, "sig_1", message.Content[0].Reasoning.Signature)

	require.NotNil(t, message.Content[1].Reasoning)
	require.Empty(t, message.Content[1].Reasoning.Text)
	require.Equal(t, "opaque-blob", message.Content[1].Reasoning.Signature)

	require.Equal(t, "the answer", message.Content[2].Text)
}

func TestToMessageToolBlocks(t *testing.T) {
	message, err := toMessage(MessageParam{
		Role: MessageRoleAssistant,
		Content: []any{
			map[string]any{
				"type":  "tool_use",
				"id":    "toolu_1",
				"name":  "get_weather",
				"input": map[string]any{"city": "Bern"},
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, message.Content, 1)

	call := message.Content[0].ToolCall
	require.NotNil(t, call)
	require.Equal(t, "toolu_1", call.ID)
	require.Equal(t, "get_weather", call.Name)
	require.JSONEq(t, `{"city":"Bern"}`, call.Arguments)

	message, err = toMessage(MessageParam{
		Role: MessageRoleUser,
		Content: []any{
			map[string]any{
				"type":        "tool_result",
				"tool_use_id": "toolu_1",
				"content":     "sunny",
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, message.Content, 1)

	result := message.Content[0].ToolResult
	require.NotNil(t, result)
	require.Equal(t, "toolu_1", result.ID)
	require.Equal(t, "sunny", result.Data)
}

func TestToToolsDropsUnsupportedSchema(t *testing.T) {
	tools := []ToolParam{
		{
			Name: "good",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
				"required": []any{"city"},
			},
		},
		{
			Name: "bad",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"x": map[string]any{
						"oneOf": []any{
							map[string]any{"type": "string"},
							map[string]any{"type": "number"},
						},
					},
				},
			},
		},
		{
			Name:        "empty",
			InputSchema: nil,
		},
	}

	pairs, dropped := toTools(tools)

	require.Len(t, pairs, 2)
	require.Equal(t, "good", pairs[0].Name)
	require.Equal(t, "empty", pairs[1].Name)

	require.Len(t, dropped, 1)
	require.Contains(t, dropped[0].Error(), "oneOf")
	require.Equal(t, "properties.x.oneOf", dropped[0].Path)

	provided := toProviderTools(tools, pairs)
	require.Len(t, provided, 2)

	var names []string
	for _, p := range provided {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"good", "empty"}, names)

	// External schema of surviving tools is carried verbatim
	require.Equal(t, pairs[0].External, provided[0].Parameters)
}

func TestToStopReason(t *testing.T) {
	require.Equal(t, StopReasonToolUse, toStopReason(provider.CompletionReasonStop, []provider.Content{
		provider.ToolCallContent(provider.ToolCall{ID: "toolu_1"}),
	}))

	require.Equal(t, StopReasonMaxTokens, toStopReason(provider.CompletionReasonLength, nil))
	require.Equal(t, StopReasonToolUse, toStopReason(provider.CompletionReasonTool, nil))
	require.Equal(t, StopReasonEndTurn, toStopReason(provider.CompletionReasonStop, nil))
	require.Equal(t, StopReasonEndTurn, toStopReason("", nil))
}

func TestToContentBlocks(t *testing.T) {
	blocks := toContentBlocks([]provider.Content{
		provider.ReasoningContent(provider.Reasoning{Text: "pondering", Signature: "sig"}),
		provider.TextContent("result"),
		provider.ToolCallContent(provider.ToolCall{ID: "toolu_1", Name: "lookup", Arguments: `{"q":"x"}`}),
	})

	require.Len(t, blocks, 3)

	require.Equal(t, "thinking", blocks[0].Type)
	require.Equal(t, "pondering", blocks[0].Thinking)
	require.Equal(t, "sig", blocks[0].Signature)

	require.Equal(t, "text", blocks[1].Type)
	require.Equal(t, "result", blocks[1].Text)

	require.Equal(t, "tool_use", blocks[2].Type)
	require.Equal(t, "lookup", blocks[2].Name)
	require.Equal(t, map[string]any{"q": "x"}, blocks[2].Input)
}

func TestGenerateIDs(t *testing.T) {
	id := generateMessageID()
	require.True(t, strings.HasPrefix(id, "msg_"))
	require.Len(t, id, len("msg_")+24)

	tid := generateToolUseID()
	require.True(t, strings.HasPrefix(tid, "toolu_"))
	require.NotEqual(t, generateToolUseID(), tid)
}
