package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"

	"github.com/modelbridge/modelbridge/pkg/provider"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var _ provider.Completer = (*Completer)(nil)

type Completer struct {
	*Config
	completions openai.ChatCompletionService
}

func NewCompleter(url, model string, options ...Option) (*Completer, error) {
	cfg := &Config{
		url:   url,
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	return &Completer{
		Config:      cfg,
		completions: openai.NewChatCompletionService(cfg.Options()...),
	}, nil
}

func (c *Completer) Complete(ctx context.Context, messages []provider.Message, options *provider.CompleteOptions) iter.Seq2[*provider.Completion, error] {
	return func(yield func(*provider.Completion, error) bool) {
		if options == nil {
			options = new(provider.CompleteOptions)
		}

		req, err := c.convertCompletionRequest(messages, options)

		if err != nil {
			yield(nil, err)
			return
		}

		stream := c.completions.NewStreaming(ctx, *req)

		for stream.Next() {
			chunk := stream.Current()

			delta := &provider.Completion{
				ID:    chunk.ID,
				Model: c.model,

				Message: &provider.Message{
					Role: provider.MessageRoleAssistant,
				},

				Usage: toUsage(chunk.Usage),
			}

			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]

				delta.Reason = toCompletionReason(choice.FinishReason)

				if choice.Delta.Content != "" {
					delta.Message.Content = append(delta.Message.Content, provider.TextContent(choice.Delta.Content))
				}

				for _, t := range choice.Delta.ToolCalls {
					call := provider.ToolCall{
						ID: t.ID,

						Name:      t.Function.Name,
						Arguments: t.Function.Arguments,
					}

					delta.Message.Content = append(delta.Message.Content, provider.ToolCallContent(call))
				}
			}

			if !yield(delta, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, convertError(err))
			return
		}
	}
}

func (c *Completer) convertCompletionRequest(input []provider.Message, options *provider.CompleteOptions) (*openai.ChatCompletionNewParams, error) {
	tools, err := convertTools(options.Tools)

	if err != nil {
		return nil, err
	}

	messages, err := c.convertMessages(input)

	if err != nil {
		return nil, err
	}

	req := &openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),

		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if len(tools) > 0 {
		req.Tools = tools
	}

	if len(messages) > 0 {
		req.Messages = messages
	}

	switch options.Effort {
	case provider.ReasoningEffortLow:
		req.ReasoningEffort = shared.ReasoningEffortLow

	case provider.ReasoningEffortMedium:
		req.ReasoningEffort = shared.ReasoningEffortMedium

	case provider.ReasoningEffortHigh:
		req.ReasoningEffort = shared.ReasoningEffortHigh
	}

	if options.Stop != nil {
		req.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: options.Stop,
		}
	}

	if options.MaxTokens != nil {
		req.MaxCompletionTokens = openai.Int(int64(*options.MaxTokens))
	}

	if options.Temperature != nil {
		req.Temperature = openai.Float(float64(*options.Temperature))
	}

	return req, nil
}

func (c *Completer) convertMessages(input []provider.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion

	for _, m := range input {
		switch m.Role {
		case provider.MessageRoleSystem:
			parts := []openai.ChatCompletionContentPartTextParam{}

			for _, c := range m.Content {
				if c.Text != "" {
					parts = append(parts, openai.ChatCompletionContentPartTextParam{Text: c.Text})
				}
			}

			result = append(result, openai.SystemMessage(parts))

		case provider.MessageRoleUser:
			parts := []openai.ChatCompletionContentPartUnionParam{}

			for _, c := range m.Content {
				if c.Text != "" {
					parts = append(parts, openai.TextContentPart(c.Text))
				}

				if c.File != nil {
					mime := c.File.ContentType
					content := base64.StdEncoding.EncodeToString(c.File.Content)

					switch mime {
					case "image/png", "image/jpeg", "image/webp", "image/gif":
						imageURL := openai.ChatCompletionContentPartImageImageURLParam{
							URL: "data:" + mime + ";base64," + content,
						}

						parts = append(parts, openai.ImageContentPart(imageURL))

					default:
						return nil, errors.New("unsupported content type")
					}
				}

				if c.ToolResult != nil {
					result = append(result, openai.ToolMessage(c.ToolResult.Data, c.ToolResult.ID))
				}
			}

			if len(parts) > 0 {
				result = append(result, openai.UserMessage(parts))
			}

		case provider.MessageRoleAssistant:
			message := openai.ChatCompletionAssistantMessageParam{}

			var content []openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion

			for _, c := range m.Content {
				if c.Text != "" {
					content = append(content, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
						OfText: &openai.ChatCompletionContentPartTextParam{
							Text: c.Text,
						},
					})
				}

				if c.ToolCall != nil {
					call := openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: c.ToolCall.ID,

							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      c.ToolCall.Name,
								Arguments: c.ToolCall.Arguments,
							},
						},
					}

					message.ToolCalls = append(message.ToolCalls, call)
				}
			}

			if len(content) > 0 {
				message.Content.OfArrayOfContentParts = content
			}

			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &message})
		}
	}

	return result, nil
}

func convertTools(tools []provider.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	var result []openai.ChatCompletionToolUnionParam

	for _, t := range tools {
		if t.Name == "" {
			continue
		}

		function := shared.FunctionDefinitionParam{
			Name: t.Name,

			Parameters: shared.FunctionParameters(t.Parameters),
		}

		if t.Description != "" {
			function.Description = openai.String(t.Description)
		}

		if t.Strict != nil {
			function.Strict = openai.Bool(*t.Strict)
		}

		result = append(result, openai.ChatCompletionFunctionTool(function))
	}

	return result, nil
}

func toCompletionReason(val string) provider.CompletionReason {
	switch val {
	case "stop":
		return provider.CompletionReasonStop

	case "length":
		return provider.CompletionReasonLength

	case "tool_calls":
		return provider.CompletionReasonTool

	case "content_filter":
		return provider.CompletionReasonFilter

	default:
		return ""
	}
}

func toUsage(usage openai.CompletionUsage) *provider.Usage {
	if usage.TotalTokens == 0 {
		return nil
	}

	return &provider.Usage{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
	}
}
