package provider

import (
	"context"
	"iter"
	"strings"
)

type Completer interface {
	Complete(ctx context.Context, messages []Message, options *CompleteOptions) iter.Seq2[*Completion, error]
}

type Message struct {
	Role MessageRole

	Content []Content
}

func SystemMessage(content string) Message {
	return Message{
		Role: MessageRoleSystem,

		Content: []Content{
			{
				Text: content,
			},
		},
	}
}

func UserMessage(content string) Message {
	return Message{
		Role: MessageRoleUser,

		Content: []Content{
			{
				Text: content,
			},
		},
	}
}

func AssistantMessage(content string) Message {
	return Message{
		Role: MessageRoleAssistant,

		Content: []Content{
			{
				Text: content,
			},
		},
	}
}

func ToolMessage(id, content string) Message {
	return Message{
		Role: MessageRoleUser,

		Content: []Content{
			{
				ToolResult: &ToolResult{
					ID:   id,
					Data: content,
				},
			},
		},
	}
}

func (m Message) Text() string {
	var parts []string

	for _, c := range m.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}

	return strings.Join(parts, "\n\n")
}

func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall

	for _, c := range m.Content {
		if c.ToolCall != nil {
			calls = append(calls, *c.ToolCall)
		}
	}

	return calls
}

type Content struct {
	Text string

	File *File

	Reasoning *Reasoning

	ToolCall   *ToolCall
	ToolResult *ToolResult
}

func TextContent(val string) Content {
	return Content{
		Text: val,
	}
}

func FileContent(val *File) Content {
	return Content{
		File: val,
	}
}

func ReasoningContent(val Reasoning) Content {
	return Content{
		Reasoning: &val,
	}
}

func ToolCallContent(val ToolCall) Content {
	return Content{
		ToolCall: &val,
	}
}

func ToolResultContent(val ToolResult) Content {
	return Content{
		ToolResult: &val,
	}
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Reasoning carries internal model reasoning ("thinking") content. Signature
// is an opaque provider token required to replay the block in a later turn.
type Reasoning struct {
	Text      string
	Signature string
}

type ToolCall struct {
	ID string

	Name      string
	Arguments string
}

type CompleteOptions struct {
	Stop  []string
	Tools []Tool

	MaxTokens   *int
	Temperature *float32

	// Thinking and Effort are the provider-specific reasoning options.
	// At most one is set, decided per provider by the dispatch package.
	Thinking *ThinkingConfig
	Effort   ReasoningEffort
}

// ThinkingConfig enables extended thinking on providers that stream
// explicit reasoning blocks.
type ThinkingConfig struct {
	BudgetTokens int
}

type Completion struct {
	ID    string
	Model string

	Reason CompletionReason

	Message *Message

	Usage *Usage
}

type CompletionReason string

const (
	CompletionReasonStop   CompletionReason = "stop"
	CompletionReasonLength CompletionReason = "length"
	CompletionReasonTool   CompletionReason = "tool"
	CompletionReasonFilter CompletionReason = "filter"
)

type ReasoningEffort string

const (
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

// CompletionAccumulator merges streamed completion deltas into a final
// completion for the non-streaming response path.
type CompletionAccumulator struct {
	id    string
	model string

	reason CompletionReason

	content strings.Builder

	reasoning          strings.Builder
	reasoningSignature string

	toolCalls []ToolCall

	usage *Usage
}

func (a *CompletionAccumulator) Add(c Completion) {
	if c.ID != "" {
		a.id = c.ID
	}

	if c.Model != "" {
		a.model = c.Model
	}

	if c.Reason != "" {
		a.reason = c.Reason
	}

	if c.Message != nil {
		for _, content := range c.Message.Content {
			if content.Text != "" {
				a.content.WriteString(content.Text)
			}

			if content.Reasoning != nil {
				a.reasoning.WriteString(content.Reasoning.Text)

				if content.Reasoning.Signature != "" {
					a.reasoningSignature = content.Reasoning.Signature
				}
			}

			if content.ToolCall != nil {
				if content.ToolCall.ID != "" {
					a.toolCalls = append(a.toolCalls, ToolCall{
						ID: content.ToolCall.ID,
					})
				}

				if len(a.toolCalls) == 0 {
					continue
				}

				a.toolCalls[len(a.toolCalls)-1].Name += content.ToolCall.Name
				a.toolCalls[len(a.toolCalls)-1].Arguments += content.ToolCall.Arguments
			}
		}
	}

	if c.Usage != nil {
		if a.usage == nil {
			a.usage = &Usage{}
		}

		if c.Usage.InputTokens > a.usage.InputTokens {
			a.usage.InputTokens = c.Usage.InputTokens
		}

		if c.Usage.OutputTokens > a.usage.OutputTokens {
			a.usage.OutputTokens = c.Usage.OutputTokens
		}
	}
}

func (a *CompletionAccumulator) Result() *Completion {
	var content []Content

	if a.reasoning.Len() > 0 {
		content = append(content, ReasoningContent(Reasoning{
			Text:      a.reasoning.String(),
			Signature: a.reasoningSignature,
		}))
	}

	if a.content.Len() > 0 {
		content = append(content, TextContent(a.content.String()))
	}

	for _, call := range a.toolCalls {
		content = append(content, ToolCallContent(call))
	}

	return &Completion{
		ID:    a.id,
		Model: a.model,

		Reason: a.reason,

		Message: &Message{
			Role:    MessageRoleAssistant,
			Content: content,
		},

		Usage: a.usage,
	}
}
