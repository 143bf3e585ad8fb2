package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/modelbridge/modelbridge/pkg/provider"
	"github.com/modelbridge/modelbridge/pkg/tool"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

var _ provider.Completer = (*Completer)(nil)

type Completer struct {
	*Config
}

func NewCompleter(model string, options ...Option) (*Completer, error) {
	cfg := &Config{
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	return &Completer{
		Config: cfg,
	}, nil
}

func (c *Completer) Complete(ctx context.Context, messages []provider.Message, options *provider.CompleteOptions) iter.Seq2[*provider.Completion, error] {
	return func(yield func(*provider.Completion, error) bool) {
		if options == nil {
			options = new(provider.CompleteOptions)
		}

		client, err := c.newClient(ctx)

		if err != nil {
			yield(nil, err)
			return
		}

		config, err := convertGenerateConfig(messages, options)

		if err != nil {
			yield(nil, err)
			return
		}

		contents, err := convertContents(messages)

		if err != nil {
			yield(nil, err)
			return
		}

		id := uuid.New().String()

		for resp, err := range client.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				yield(nil, convertError(err))
				return
			}

			delta := &provider.Completion{
				ID:    id,
				Model: c.model,

				Message: &provider.Message{
					Role: provider.MessageRoleAssistant,
				},

				Usage: toUsage(resp.UsageMetadata),
			}

			if len(resp.Candidates) > 0 {
				candidate := resp.Candidates[0]

				delta.Reason = toCompletionReason(candidate)
				delta.Message.Content = toContent(candidate.Content)
			}

			if !yield(delta, nil) {
				return
			}
		}
	}
}

func convertGenerateConfig(messages []provider.Message, options *provider.CompleteOptions) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	if system := convertSystem(messages); system != nil {
		config.SystemInstruction = system
	}

	if len(options.Tools) > 0 {
		tools, err := convertTools(options.Tools)

		if err != nil {
			return nil, err
		}

		config.Tools = tools
	}

	if len(options.Stop) > 0 {
		config.StopSequences = options.Stop
	}

	if options.MaxTokens != nil {
		config.MaxOutputTokens = int32(*options.MaxTokens)
	}

	if options.Temperature != nil {
		config.Temperature = options.Temperature
	}

	return config, nil
}

func convertSystem(messages []provider.Message) *genai.Content {
	var parts []*genai.Part

	for _, m := range messages {
		if m.Role != provider.MessageRoleSystem {
			continue
		}

		for _, c := range m.Content {
			if c.Text != "" {
				parts = append(parts, genai.NewPartFromText(c.Text))
			}
		}
	}

	if len(parts) == 0 {
		return nil
	}

	return &genai.Content{
		Parts: parts,
	}
}

func convertContents(messages []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case provider.MessageRoleSystem:
			continue

		case provider.MessageRoleUser:
			content := &genai.Content{
				Role: genai.RoleUser,
			}

			for _, c := range m.Content {
				if c.Text != "" {
					content.Parts = append(content.Parts, genai.NewPartFromText(c.Text))
				}

				if c.File != nil {
					switch c.File.ContentType {
					case "image/png", "image/jpeg", "image/webp", "image/heic", "image/heif":
						part := &genai.Part{
							InlineData: &genai.Blob{
								Data:     c.File.Content,
								MIMEType: c.File.ContentType,
							},
						}

						content.Parts = append(content.Parts, part)

					default:
						return nil, errors.New("unsupported content type")
					}
				}

				if c.ToolResult != nil {
					var data any
					json.Unmarshal([]byte(c.ToolResult.Data), &data)

					response, ok := data.(map[string]any)

					if !ok {
						response = map[string]any{"data": data}
					}

					part := &genai.Part{
						FunctionResponse: &genai.FunctionResponse{
							ID: c.ToolResult.ID,

							Name:     c.ToolResult.ID,
							Response: response,
						},
					}

					content.Parts = append(content.Parts, part)
				}
			}

			result = append(result, content)

		case provider.MessageRoleAssistant:
			content := &genai.Content{
				Role: genai.RoleModel,
			}

			for _, c := range m.Content {
				if c.Text != "" {
					content.Parts = append(content.Parts, genai.NewPartFromText(c.Text))
				}

				if c.ToolCall != nil {
					var args map[string]any
					json.Unmarshal([]byte(c.ToolCall.Arguments), &args)

					part := &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID: c.ToolCall.ID,

							Name: c.ToolCall.Name,
							Args: args,
						},
					}

					content.Parts = append(content.Parts, part)
				}
			}

			result = append(result, content)
		}
	}

	return result, nil
}

func convertTools(tools []provider.Tool) ([]*genai.Tool, error) {
	var functions []*genai.FunctionDeclaration

	for _, t := range tools {
		if t.Name == "" {
			continue
		}

		function := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}

		if len(t.Parameters) > 0 {
			schema, err := tool.ToNative(t.Parameters)

			if err != nil {
				return nil, err
			}

			function.Parameters = convertSchema(schema)
		}

		functions = append(functions, function)
	}

	if len(functions) == 0 {
		return nil, nil
	}

	return []*genai.Tool{
		{
			FunctionDeclarations: functions,
		},
	}, nil
}

func convertSchema(s *tool.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	schema := &genai.Schema{
		Title:       s.Title,
		Description: s.Description,

		Format:  s.Format,
		Pattern: s.Pattern,

		Default: s.Default,
	}

	switch s.Kind {
	case tool.KindObject:
		schema.Type = genai.TypeObject
	case tool.KindArray:
		schema.Type = genai.TypeArray
	case tool.KindString:
		schema.Type = genai.TypeString
	case tool.KindNumber:
		schema.Type = genai.TypeNumber
	case tool.KindInteger:
		schema.Type = genai.TypeInteger
	case tool.KindBoolean:
		schema.Type = genai.TypeBoolean
	}

	if s.Nullable {
		schema.Nullable = genai.Ptr(true)
	}

	for _, e := range s.Enum {
		schema.Enum = append(schema.Enum, fmt.Sprintf("%v", e))
	}

	if s.Properties != nil {
		schema.Properties = make(map[string]*genai.Schema, len(s.Properties))

		for name, p := range s.Properties {
			schema.Properties[name] = convertSchema(p)
		}
	}

	if s.Required != nil {
		schema.Required = append([]string{}, s.Required...)
	}

	if s.Items != nil {
		schema.Items = convertSchema(s.Items)
	}

	schema.Minimum = s.Minimum
	schema.Maximum = s.Maximum

	schema.MinLength = s.MinLength
	schema.MaxLength = s.MaxLength

	schema.MinItems = s.MinItems
	schema.MaxItems = s.MaxItems

	return schema
}

func toContent(content *genai.Content) []provider.Content {
	if content == nil {
		return nil
	}

	var parts []provider.Content

	for _, p := range content.Parts {
		if p.Text != "" {
			parts = append(parts, provider.TextContent(p.Text))
		}

		if p.FunctionCall != nil {
			data, _ := json.Marshal(p.FunctionCall.Args)

			id := p.FunctionCall.ID

			if id == "" {
				id = uuid.New().String()
			}

			call := provider.ToolCall{
				ID: id,

				Name:      p.FunctionCall.Name,
				Arguments: string(data),
			}

			parts = append(parts, provider.ToolCallContent(call))
		}
	}

	return parts
}

func toCompletionReason(candidate *genai.Candidate) provider.CompletionReason {
	if candidate.Content != nil {
		for _, p := range candidate.Content.Parts {
			if p.FunctionCall != nil {
				return provider.CompletionReasonTool
			}
		}
	}

	switch candidate.FinishReason {
	case genai.FinishReasonStop:
		return provider.CompletionReasonStop

	case genai.FinishReasonMaxTokens:
		return provider.CompletionReasonLength

	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return provider.CompletionReasonFilter
	}

	return ""
}

func toUsage(metadata *genai.GenerateContentResponseUsageMetadata) *provider.Usage {
	if metadata == nil {
		return nil
	}

	return &provider.Usage{
		InputTokens:  int(metadata.PromptTokenCount),
		OutputTokens: int(metadata.CandidatesTokenCount),
	}
}

func convertError(err error) error {
	var apierr genai.APIError

	if errors.As(err, &apierr) {
		return errors.New(apierr.Error())
	}

	return err
}
