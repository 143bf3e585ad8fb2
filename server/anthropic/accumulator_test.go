package anthropic

import (
	"errors"
	"testing"

	"github.com/modelbridge/modelbridge/pkg/provider"

	"github.com/stretchr/testify/require"
)

// newTestAccumulator creates an accumulator that collects events
func newTestAccumulator() (*StreamingAccumulator, *[]StreamEvent) {
	events := &[]StreamEvent{}
	acc := NewStreamingAccumulator("msg_test", "test-model", func(event StreamEvent) error {
		*events = append(*events, event)
		return nil
	})
	return acc, events
}

func eventTypes(events []StreamEvent) []StreamEventType {
	var types []StreamEventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

// textChunk creates a completion chunk with text content
func textChunk(text string) provider.Completion {
	return provider.Completion{
		Message: &provider.Message{
			Role:    provider.MessageRoleAssistant,
			Content: []provider.Content{{Text: text}},
		},
	}
}

func reasoningChunk(text, signature string) provider.Completion {
	return provider.Completion{
		Message: &provider.Message{
			Role: provider.MessageRoleAssistant,
			Content: []provider.Content{
				provider.ReasoningContent(provider.Reasoning{Text: text, Signature: signature}),
			},
		},
	}
}

func toolChunk(id, name, args string) provider.Completion {
	return provider.Completion{
		Message: &provider.Message{
			Role: provider.MessageRoleAssistant,
			Content: []provider.Content{
				provider.ToolCallContent(provider.ToolCall{ID: id, Name: name, Arguments: args}),
			},
		},
	}
}

func TestStreamingAccumulatorTextSequence(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(textChunk("Hello")))
	require.NoError(t, acc.Add(textChunk(" world!")))
	require.NoError(t, acc.Complete())

	require.Equal(t, []StreamEventType{
		StreamEventMessageStart,
		StreamEventPing,
		StreamEventContentBlockStart,
		StreamEventContentBlockDelta,
		StreamEventContentBlockDelta,
		StreamEventContentBlockStop,
		StreamEventMessageDelta,
		StreamEventMessageStop,
	}, eventTypes(*events))

	require.Equal(t, "msg_test", (*events)[0].Message.ID)
	require.Equal(t, "text", (*events)[2].ContentBlock.Type)
	require.Equal(t, "Hello", (*events)[3].Delta.Text)
	require.Equal(t, StopReasonEndTurn, (*events)[6].MessageDelta.StopReason)
}

func TestStreamingAccumulatorBlockIndices(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(reasoningChunk("considering", "")))
	require.NoError(t, acc.Add(reasoningChunk("", "sig_abc")))
	require.NoError(t, acc.Add(textChunk("Answer")))
	require.NoError(t, acc.Add(toolChunk("toolu_1", "get_weather", `{"city":`)))
	require.NoError(t, acc.Add(toolChunk("", "", `"Bern"}`)))
	require.NoError(t, acc.Complete())

	// Every start has exactly one matching stop, indices strictly increasing
	var starts, stops []int
	for _, e := range *events {
		switch e.Type {
		case StreamEventContentBlockStart:
			starts = append(starts, e.Index)
		case StreamEventContentBlockStop:
			stops = append(stops, e.Index)
		}
	}

	require.Equal(t, []int{0, 1, 2}, starts)
	require.Equal(t, []int{0, 1, 2}, stops)

	// One block open at a time: stop(i) precedes start(i+1)
	open := -1
	for _, e := range *events {
		switch e.Type {
		case StreamEventContentBlockStart:
			require.Equal(t, -1, open, "block opened while another is open")
			open = e.Index
		case StreamEventContentBlockDelta:
			require.Equal(t, open, e.Index)
		case StreamEventContentBlockStop:
			require.Equal(t, open, e.Index)
			open = -1
		}
	}
	require.Equal(t, -1, open, "stream ended with an open block")
}

func TestStreamingAccumulatorThinkingDeltas(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(reasoningChunk("step one", "")))
	require.NoError(t, acc.Add(reasoningChunk(" step two", "")))
	require.NoError(t, acc.Add(reasoningChunk("", "sig_xyz")))
	require.NoError(t, acc.Complete())

	var thinking, signature string
	for _, e := range *events {
		if e.Type != StreamEventContentBlockDelta {
			continue
		}
		switch e.Delta.Type {
		case "thinking_delta":
			thinking += e.Delta.Thinking
		case "signature_delta":
			signature += e.Delta.Signature
		}
	}

	require.Equal(t, "step one step two", thinking)
	require.Equal(t, "sig_xyz", signature)

	start := (*events)[2]
	require.Equal(t, StreamEventContentBlockStart, start.Type)
	require.Equal(t, "thinking", start.ContentBlock.Type)
}

func TestStreamingAccumulatorToolUse(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(toolChunk("toolu_1", "get_weather", "")))
	require.NoError(t, acc.Add(toolChunk("", "", `{"city":"Bern"}`)))
	require.NoError(t, acc.Complete())

	var start *StreamEvent
	var args string
	for i := range *events {
		e := (*events)[i]
		if e.Type == StreamEventContentBlockStart && e.ContentBlock.Type == "tool_use" {
			start = &(*events)[i]
		}
		if e.Type == StreamEventContentBlockDelta && e.Delta.Type == "input_json_delta" {
			args += e.Delta.PartialJSON
		}
	}

	require.NotNil(t, start)
	require.Equal(t, "toolu_1", start.ContentBlock.ID)
	require.Equal(t, "get_weather", start.ContentBlock.Name)
	require.Equal(t, `{"city":"Bern"}`, args)

	last := (*events)[len(*events)-1]
	require.Equal(t, StreamEventMessageStop, last.Type)

	delta := (*events)[len(*events)-2]
	require.Equal(t, StopReasonToolUse, delta.MessageDelta.StopReason)
}

func TestStreamingAccumulatorEmptyStream(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(provider.Completion{
		Message: &provider.Message{Role: provider.MessageRoleAssistant},
	}))
	require.NoError(t, acc.Complete())

	// An empty text block is synthesized so the framing stays valid
	require.Equal(t, []StreamEventType{
		StreamEventMessageStart,
		StreamEventPing,
		StreamEventContentBlockStart,
		StreamEventContentBlockStop,
		StreamEventMessageDelta,
		StreamEventMessageStop,
	}, eventTypes(*events))
}

func TestStreamingAccumulatorErrorClosesOpenBlock(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(textChunk("partial")))
	require.NoError(t, acc.Error(errors.New("upstream failed")))

	n := len(*events)
	require.Equal(t, StreamEventError, (*events)[n-1].Type)
	require.Equal(t, StreamEventContentBlockStop, (*events)[n-2].Type)
	require.Equal(t, "api_error", (*events)[n-1].Error.Type)
}

func TestStreamingAccumulatorTerminalIsAbsorbing(t *testing.T) {
	acc, events := newTestAccumulator()

	require.NoError(t, acc.Add(textChunk("done")))
	require.NoError(t, acc.Complete())

	n := len(*events)

	var violation *ProtocolViolation
	require.ErrorAs(t, acc.Add(textChunk("late")), &violation)
	require.ErrorAs(t, acc.Complete(), &violation)

	// Error after terminal emits nothing
	require.NoError(t, acc.Error(errors.New("late")))
	require.Len(t, *events, n)
}

func TestStreamingAccumulatorRejectsForeignContent(t *testing.T) {
	acc, _ := newTestAccumulator()

	chunk := provider.Completion{
		Message: &provider.Message{
			Role: provider.MessageRoleAssistant,
			Content: []provider.Content{
				provider.ToolResultContent(provider.ToolResult{ID: "toolu_1", Data: "{}"}),
			},
		},
	}

	var violation *ProtocolViolation
	require.ErrorAs(t, acc.Add(chunk), &violation)

	acc, _ = newTestAccumulator()

	chunk = provider.Completion{
		Message: &provider.Message{
			Role: provider.MessageRoleAssistant,
			Content: []provider.Content{
				provider.FileContent(&provider.File{ContentType: "image/png"}),
			},
		},
	}

	require.ErrorAs(t, acc.Add(chunk), &violation)
}

func TestStreamingAccumulatorUsage(t *testing.T) {
	acc, events := newTestAccumulator()

	first := textChunk("hi")
	first.Usage = &provider.Usage{InputTokens: 12}
	require.NoError(t, acc.Add(first))

	last := provider.Completion{
		Message: &provider.Message{Role: provider.MessageRoleAssistant},
		Usage:   &provider.Usage{InputTokens: 12, OutputTokens: 7},
	}
	require.NoError(t, acc.Add(last))
	require.NoError(t, acc.Complete())

	require.Equal(t, 12, (*events)[0].Message.Usage.InputTokens)

	for _, e := range *events {
		if e.Type == StreamEventMessageDelta {
			require.Equal(t, 12, e.DeltaUsage.InputTokens)
			require.Equal(t, 7, e.DeltaUsage.OutputTokens)
		}
	}
}
