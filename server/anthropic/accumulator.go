package anthropic

import (
	"github.com/modelbridge/modelbridge/pkg/provider"
)

// ProtocolViolation signals a broken stream invariant: an event after the
// terminal state, or content kinds an assistant stream can never produce.
// It is a defect, not a provider error, and is never retried.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return "protocol violation: " + e.Reason
}

// StreamEventType represents the type of streaming event
type StreamEventType string

const (
	StreamEventMessageStart      StreamEventType = "message_start"
	StreamEventPing              StreamEventType = "ping"
	StreamEventContentBlockStart StreamEventType = "content_block_start"
	StreamEventContentBlockDelta StreamEventType = "content_block_delta"
	StreamEventContentBlockStop  StreamEventType = "content_block_stop"
	StreamEventMessageDelta      StreamEventType = "message_delta"
	StreamEventMessageStop       StreamEventType = "message_stop"
	StreamEventError             StreamEventType = "error"
)

// StreamEvent represents a streaming event with its data
type StreamEvent struct {
	Type StreamEventType

	// For message_start
	Message *Message

	// For content_block_start/stop
	Index        int
	ContentBlock *ContentBlock

	// For content_block_delta
	Delta *Delta

	// For message_delta
	MessageDelta *MessageDelta
	DeltaUsage   *DeltaUsage

	// For error events
	Error *Error

	// The accumulated completion (available on final events)
	Completion *provider.Completion
}

// StreamEventHandler is called for each streaming event
type StreamEventHandler func(event StreamEvent) error

// StreamingAccumulator converts canonical completion deltas into the ordered
// vendor event sequence. Block indices increase strictly from 0, at most one
// block is open at a time, and once a terminal event (message_stop or error)
// has been emitted the accumulator absorbs nothing further.
type StreamingAccumulator struct {
	accumulator provider.CompletionAccumulator

	handler StreamEventHandler

	messageID string
	model     string

	// State tracking
	started           bool
	terminal          bool
	currentBlockIndex int
	currentBlockType  string // "text", "thinking" or "tool_use"
	hasContent        bool

	// Tool call tracking
	toolCallID   string
	toolCallName string

	// Usage tracking
	inputTokens  int
	outputTokens int
}

// NewStreamingAccumulator creates a new StreamingAccumulator with an event handler
func NewStreamingAccumulator(messageID, model string, handler StreamEventHandler) *StreamingAccumulator {
	return &StreamingAccumulator{
		handler:   handler,
		messageID: messageID,
		model:     model,

		currentBlockIndex: -1,
	}
}

// Add processes a completion chunk and emits appropriate events
func (s *StreamingAccumulator) Add(c provider.Completion) error {
	if s.terminal {
		return &ProtocolViolation{Reason: "delta received after terminal event"}
	}

	if c.Usage != nil && c.Usage.InputTokens > s.inputTokens {
		s.inputTokens = c.Usage.InputTokens
	}

	if err := s.start(); err != nil {
		return err
	}

	if c.Model != "" {
		s.model = c.Model
	}

	if c.Usage != nil && c.Usage.OutputTokens > s.outputTokens {
		s.outputTokens = c.Usage.OutputTokens
	}

	// Skip empty content chunks
	if c.Message == nil || len(c.Message.Content) == 0 {
		s.accumulator.Add(c)
		return nil
	}

	for _, content := range c.Message.Content {
		if content.ToolResult != nil {
			return &ProtocolViolation{Reason: "tool result block in assistant stream"}
		}

		if content.File != nil {
			return &ProtocolViolation{Reason: "file block in assistant stream"}
		}

		if content.Reasoning != nil {
			if s.currentBlockType != "thinking" {
				if err := s.openBlock("thinking", &ContentBlock{
					Type:     "thinking",
					Thinking: "",
				}); err != nil {
					return err
				}
			}

			if content.Reasoning.Text != "" {
				if err := s.emitEvent(StreamEvent{
					Type:  StreamEventContentBlockDelta,
					Index: s.currentBlockIndex,
					Delta: &Delta{
						Type:     "thinking_delta",
						Thinking: content.Reasoning.Text,
					},
				}); err != nil {
					return err
				}
			}

			if content.Reasoning.Signature != "" {
				if err := s.emitEvent(StreamEvent{
					Type:  StreamEventContentBlockDelta,
					Index: s.currentBlockIndex,
					Delta: &Delta{
						Type:      "signature_delta",
						Signature: content.Reasoning.Signature,
					},
				}); err != nil {
					return err
				}
			}
		}

		if content.Text != "" {
			if s.currentBlockType != "text" {
				if err := s.openBlock("text", &ContentBlock{
					Type: "text",
					Text: "",
				}); err != nil {
					return err
				}
			}

			if err := s.emitEvent(StreamEvent{
				Type:  StreamEventContentBlockDelta,
				Index: s.currentBlockIndex,
				Delta: &Delta{
					Type: "text_delta",
					Text: content.Text,
				},
			}); err != nil {
				return err
			}
		}

		if content.ToolCall != nil {
			// A non-empty ID opens a new tool_use block; continuation chunks
			// carry only argument fragments
			isNewToolCall := content.ToolCall.ID != "" && content.ToolCall.ID != s.toolCallID

			if isNewToolCall {
				s.toolCallID = content.ToolCall.ID
				s.toolCallName = content.ToolCall.Name

				if err := s.openBlock("tool_use", &ContentBlock{
					Type:  "tool_use",
					ID:    s.toolCallID,
					Name:  s.toolCallName,
					Input: map[string]any{},
				}); err != nil {
					return err
				}
			}

			if content.ToolCall.Arguments != "" {
				if err := s.emitEvent(StreamEvent{
					Type:  StreamEventContentBlockDelta,
					Index: s.currentBlockIndex,
					Delta: &Delta{
						Type:        "input_json_delta",
						PartialJSON: content.ToolCall.Arguments,
					},
				}); err != nil {
					return err
				}
			}
		}
	}

	s.accumulator.Add(c)

	return nil
}

// start emits message_start and the keep-alive ping exactly once.
func (s *StreamingAccumulator) start() error {
	if s.started {
		return nil
	}

	s.started = true

	if err := s.emitEvent(StreamEvent{
		Type: StreamEventMessageStart,
		Message: &Message{
			ID:   s.messageID,
			Type: "message",
			Role: "assistant",

			Model:   s.model,
			Content: []ContentBlock{},

			Usage: Usage{
				InputTokens:  s.inputTokens,
				OutputTokens: 0,
			},
		},
	}); err != nil {
		return err
	}

	return s.emitEvent(StreamEvent{Type: StreamEventPing})
}

// openBlock closes any open block and starts the next one at the following
// index.
func (s *StreamingAccumulator) openBlock(blockType string, block *ContentBlock) error {
	if err := s.closeBlock(); err != nil {
		return err
	}

	s.currentBlockIndex++
	s.currentBlockType = blockType
	s.hasContent = true

	return s.emitEvent(StreamEvent{
		Type:         StreamEventContentBlockStart,
		Index:        s.currentBlockIndex,
		ContentBlock: block,
	})
}

func (s *StreamingAccumulator) closeBlock() error {
	if s.currentBlockType == "" {
		return nil
	}

	s.currentBlockType = ""

	return s.emitEvent(StreamEvent{
		Type:  StreamEventContentBlockStop,
		Index: s.currentBlockIndex,
	})
}

// Complete signals that streaming is done and emits final events
func (s *StreamingAccumulator) Complete() error {
	if s.terminal {
		return &ProtocolViolation{Reason: "completion after terminal event"}
	}

	result := s.accumulator.Result()

	if err := s.start(); err != nil {
		return err
	}

	if err := s.closeBlock(); err != nil {
		return err
	}

	// If no content was generated, send an empty text block
	if !s.hasContent {
		if err := s.emitEvent(StreamEvent{
			Type:  StreamEventContentBlockStart,
			Index: 0,
			ContentBlock: &ContentBlock{
				Type: "text",
				Text: "",
			},
		}); err != nil {
			return err
		}

		if err := s.emitEvent(StreamEvent{
			Type:  StreamEventContentBlockStop,
			Index: 0,
		}); err != nil {
			return err
		}
	}

	stopReason := StopReasonEndTurn

	if result.Message != nil {
		stopReason = toStopReason(result.Reason, result.Message.Content)
	}

	inputTokens := s.inputTokens
	outputTokens := s.outputTokens

	if result.Usage != nil {
		if result.Usage.InputTokens > inputTokens {
			inputTokens = result.Usage.InputTokens
		}
		if result.Usage.OutputTokens > outputTokens {
			outputTokens = result.Usage.OutputTokens
		}
	}

	if err := s.emitEvent(StreamEvent{
		Type: StreamEventMessageDelta,
		MessageDelta: &MessageDelta{
			StopReason: stopReason,
		},
		DeltaUsage: &DeltaUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		},
		Completion: result,
	}); err != nil {
		return err
	}

	if err := s.emitEvent(StreamEvent{
		Type:       StreamEventMessageStop,
		Completion: result,
	}); err != nil {
		return err
	}

	s.terminal = true

	return nil
}

// Error terminates the stream. Any open block is closed first so the framing
// stays well-formed, then the terminal error event is emitted. Calling Error
// on an already-terminal stream is a no-op.
func (s *StreamingAccumulator) Error(err error) error {
	if s.terminal {
		return nil
	}

	s.terminal = true

	if s.started {
		if err := s.closeBlock(); err != nil {
			return err
		}
	}

	return s.emitEvent(StreamEvent{
		Type: StreamEventError,
		Error: &Error{
			Type:    "api_error",
			Message: err.Error(),
		},
	})
}

// Result returns the accumulated completion
func (s *StreamingAccumulator) Result() *provider.Completion {
	return s.accumulator.Result()
}

func (s *StreamingAccumulator) emitEvent(event StreamEvent) error {
	if s.handler != nil {
		return s.handler(event)
	}
	return nil
}
