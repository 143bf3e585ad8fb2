package anthropic

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelbridge/modelbridge/pkg/catalog"
	"github.com/modelbridge/modelbridge/pkg/dispatch"
	"github.com/modelbridge/modelbridge/pkg/provider"
)

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Model == "" {
		writeError(w, http.StatusBadRequest, errors.New("model is required"))
		return
	}

	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("messages are required"))
		return
	}

	profile, err := h.resolver.Resolve(req.Model)

	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	completer, err := h.Completer(req.Model)

	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	system, err := parseSystemContent(req.System)

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	messages, err := toMessages(system, req.Messages)

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pairs, dropped := toTools(req.Tools)

	for _, convErr := range dropped {
		slog.Warn("tool dropped", "model", req.Model, "error", convErr)
	}

	options := &provider.CompleteOptions{
		Tools: toProviderTools(req.Tools, pairs),

		Stop:        req.StopSequences,
		Temperature: req.Temperature,
	}

	warnings := h.resolver.Validate(profile, catalog.Check{
		MaxTokens: req.MaxTokens,

		HasTools:  len(options.Tools) > 0,
		HasImages: hasImages(messages),
	})

	if req.MaxTokens > 0 {
		maxTokens := catalog.EffectiveMaxTokens(profile, req.MaxTokens)
		options.MaxTokens = &maxTokens
	}

	budget := 0

	if req.Thinking != nil {
		budget = req.Thinking.BudgetTokens
	}

	thinking, warning := dispatch.ResolveThinking(profile.Provider, profile.ID, req.Thinking.Enabled(), budget)

	if warning != nil {
		warnings = append(warnings, *warning)
	}

	thinking.Apply(options)

	for _, warning := range warnings {
		slog.Warn("capability mismatch", "model", req.Model, "warning", warning.String())
	}

	if req.Stream {
		h.handleMessagesStream(w, r, req, completer, messages, options)
	} else {
		h.handleMessagesComplete(w, r, req, completer, messages, options)
	}
}

func (h *Handler) handleMessagesComplete(w http.ResponseWriter, r *http.Request, req MessageRequest, completer provider.Completer, messages []provider.Message, options *provider.CompleteOptions) {
	acc := provider.CompletionAccumulator{}

	for completion, err := range completer.Complete(r.Context(), messages, options) {
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}

		acc.Add(*completion)
	}

	completion := acc.Result()

	result := Message{
		ID: generateMessageID(),

		Type: "message",
		Role: "assistant",

		Model:   completion.Model,
		Content: []ContentBlock{},

		StopReason: StopReasonEndTurn,
	}

	if result.Model == "" {
		result.Model = req.Model
	}

	if completion.Usage != nil {
		result.Usage = Usage{
			InputTokens:  completion.Usage.InputTokens,
			OutputTokens: completion.Usage.OutputTokens,
		}
	}

	if completion.Message != nil {
		result.Content = toContentBlocks(completion.Message.Content)
		result.StopReason = toStopReason(completion.Reason, completion.Message.Content)
	}

	writeJson(w, result)
}

func (h *Handler) handleMessagesStream(w http.ResponseWriter, r *http.Request, req MessageRequest, completer provider.Completer, messages []provider.Message, options *provider.CompleteOptions) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	messageID := generateMessageID()
	model := req.Model

	accumulator := NewStreamingAccumulator(messageID, model, func(event StreamEvent) error {
		switch event.Type {
		case StreamEventMessageStart:
			return writeEvent(w, "message_start", MessageStartEvent{
				Type:    "message_start",
				Message: *event.Message,
			})

		case StreamEventPing:
			return writeEvent(w, "ping", PingEvent{
				Type: "ping",
			})

		case StreamEventContentBlockStart:
			return writeEvent(w, "content_block_start", ContentBlockStartEvent{
				Type:         "content_block_start",
				Index:        event.Index,
				ContentBlock: *event.ContentBlock,
			})

		case StreamEventContentBlockDelta:
			return writeEvent(w, "content_block_delta", ContentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: event.Index,
				Delta: *event.Delta,
			})

		case StreamEventContentBlockStop:
			return writeEvent(w, "content_block_stop", ContentBlockStopEvent{
				Type:  "content_block_stop",
				Index: event.Index,
			})

		case StreamEventMessageDelta:
			return writeEvent(w, "message_delta", MessageDeltaEvent{
				Type:  "message_delta",
				Delta: *event.MessageDelta,
				Usage: *event.DeltaUsage,
			})

		case StreamEventMessageStop:
			return writeEvent(w, "message_stop", MessageStopEvent{
				Type: "message_stop",
			})

		case StreamEventError:
			return writeEvent(w, "error", ErrorResponse{
				Type:  "error",
				Error: *event.Error,
			})
		}

		return nil
	})

	for completion, err := range completer.Complete(r.Context(), messages, options) {
		if err != nil {
			accumulator.Error(err)
			return
		}

		if err := accumulator.Add(*completion); err != nil {
			var violation *ProtocolViolation

			if errors.As(err, &violation) {
				slog.Error("stream invariant broken", "model", req.Model, "reason", violation.Reason)
			}

			accumulator.Error(err)
			return
		}
	}

	if err := accumulator.Complete(); err != nil {
		accumulator.Error(err)
		return
	}
}
