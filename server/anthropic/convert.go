package anthropic

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelbridge/modelbridge/pkg/provider"
	"github.com/modelbridge/modelbridge/pkg/tool"
)

func toMessages(system string, messages []MessageParam) ([]provider.Message, error) {
	var result []provider.Message

	if system != "" {
		result = append(result, provider.SystemMessage(system))
	}

	for _, m := range messages {
		message, err := toMessage(m)

		if err != nil {
			return nil, err
		}

		result = append(result, *message)
	}

	return result, nil
}

func toMessage(m MessageParam) (*provider.Message, error) {
	blocks, err := parseContentBlocks(m.Content)

	if err != nil {
		return nil, err
	}

	var role provider.MessageRole

	switch m.Role {
	case MessageRoleUser:
		role = provider.MessageRoleUser

	case MessageRoleAssistant:
		role = provider.MessageRoleAssistant

	default:
		role = provider.MessageRoleUser
	}

	var content []provider.Content

	for _, block := range blocks {
		switch block.Type {
		case "text":
			content = append(content, provider.TextContent(block.Text))

		case "image":
			if block.Source != nil {
				file, err := toFile(block.Source)

				if err != nil {
					return nil, err
				}

				content = append(content, provider.FileContent(file))
			}

		case "thinking":
			// Thinking in assistant history is replayed with its signature
			content = append(content, provider.ReasoningContent(provider.Reasoning{
				Text:      block.Thinking,
				Signature: block.Signature,
			}))

		case "redacted_thinking":
			// Opaque: the payload is carried as the signature, text stays empty
			content = append(content, provider.ReasoningContent(provider.Reasoning{
				Signature: block.Data,
			}))

		case "tool_use":
			// Tool use in assistant message (for multi-turn conversations)
			args, err := toJSONString(block.Input)

			if err != nil {
				return nil, err
			}

			content = append(content, provider.ToolCallContent(provider.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			}))

		case "tool_result":
			// Tool result in user message
			result, err := toToolResultContent(block.Content)

			if err != nil {
				return nil, err
			}

			content = append(content, provider.ToolResultContent(provider.ToolResult{
				ID:   block.ToolUseID,
				Data: result,
			}))
		}
	}

	return &provider.Message{
		Role:    role,
		Content: content,
	}, nil
}

func toFile(source *ImageSource) (*provider.File, error) {
	if source == nil {
		return nil, nil
	}

	file := &provider.File{
		ContentType: source.MediaType,
	}

	switch source.Type {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(source.Data)

		if err != nil {
			return nil, err
		}

		file.Content = data

	case "url":
		// For URL sources, we store the URL in the content
		// The provider should handle fetching if needed
		file.Content = []byte(source.URL)

	default:
		return nil, errors.New("unsupported image source type")
	}

	return file, nil
}

func toToolResultContent(content any) (string, error) {
	if content == nil {
		return "", nil
	}

	switch v := content.(type) {
	case string:
		return v, nil

	case []any:
		// Array of content blocks - extract text
		var texts []string

		for _, item := range v {
			data, err := json.Marshal(item)

			if err != nil {
				return "", err
			}

			var block ContentBlockParam

			if err := json.Unmarshal(data, &block); err != nil {
				return "", err
			}

			if block.Type == "text" {
				texts = append(texts, block.Text)
			}
		}
		return strings.Join(texts, "\n"), nil

	default:
		data, err := json.Marshal(v)

		if err != nil {
			return "", err
		}

		return string(data), nil
	}
}

func toJSONString(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}

	if s, ok := v.(string); ok {
		return s, nil
	}

	data, err := json.Marshal(v)

	if err != nil {
		return "", err
	}

	return string(data), nil
}

// toTools converts tool definitions, running every input schema through the
// native converter. A tool whose schema falls outside the supported subset is
// dropped and its conversion error returned; the remaining tools proceed with
// their external schema untouched.
func toTools(tools []ToolParam) ([]tool.SchemaPair, []*tool.ConversionError) {
	var pairs []tool.SchemaPair
	var dropped []*tool.ConversionError

	for _, t := range tools {
		external := tool.NormalizeSchema(t.InputSchema)

		native, err := tool.ToNative(external)

		if err != nil {
			var convErr *tool.ConversionError

			if !errors.As(err, &convErr) {
				convErr = &tool.ConversionError{Reason: err.Error()}
			}

			dropped = append(dropped, convErr)
			continue
		}

		pairs = append(pairs, tool.SchemaPair{
			Name: t.Name,

			External: external,
			Native:   native,
		})
	}

	return pairs, dropped
}

func toProviderTools(tools []ToolParam, pairs []tool.SchemaPair) []provider.Tool {
	byName := make(map[string]tool.SchemaPair, len(pairs))

	for _, p := range pairs {
		byName[p.Name] = p
	}

	var result []provider.Tool

	for _, t := range tools {
		pair, ok := byName[t.Name]

		if !ok {
			continue
		}

		result = append(result, provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  pair.External,
		})
	}

	return result
}

func toContentBlocks(content []provider.Content) []ContentBlock {
	var result []ContentBlock

	for _, c := range content {
		if c.Text != "" {
			result = append(result, ContentBlock{
				Type: "text",
				Text: c.Text,
			})
		}

		if c.Reasoning != nil {
			result = append(result, ContentBlock{
				Type: "thinking",

				Thinking:  c.Reasoning.Text,
				Signature: c.Reasoning.Signature,
			})
		}

		if c.ToolCall != nil {
			var input any

			if c.ToolCall.Arguments != "" {
				json.Unmarshal([]byte(c.ToolCall.Arguments), &input)
			}

			if input == nil {
				input = map[string]any{}
			}

			id := c.ToolCall.ID

			if id == "" {
				id = generateToolUseID()
			}

			result = append(result, ContentBlock{
				Type: "tool_use",

				ID:    id,
				Name:  c.ToolCall.Name,
				Input: input,
			})
		}
	}

	return result
}

func toStopReason(reason provider.CompletionReason, content []provider.Content) StopReason {
	for _, c := range content {
		if c.ToolCall != nil {
			return StopReasonToolUse
		}
	}

	switch reason {
	case provider.CompletionReasonLength:
		return StopReasonMaxTokens

	case provider.CompletionReasonTool:
		return StopReasonToolUse
	}

	return StopReasonEndTurn
}

func hasImages(messages []provider.Message) bool {
	for _, m := range messages {
		for _, c := range m.Content {
			if c.File != nil {
				return true
			}
		}
	}

	return false
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%s", generateID(24))
}

func generateToolUseID() string {
	return fmt.Sprintf("toolu_%s", generateID(24))
}

func generateID(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)

	return hex.EncodeToString(bytes)[:length]
}
