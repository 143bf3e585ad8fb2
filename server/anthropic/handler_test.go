package anthropic_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelbridge/modelbridge/config"
	"github.com/modelbridge/modelbridge/pkg/catalog"
	"github.com/modelbridge/modelbridge/pkg/provider"
	"github.com/modelbridge/modelbridge/server/anthropic"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeCompleter yields a scripted sequence of deltas and records the options
// it was asked with.
type fakeCompleter struct {
	completions []provider.Completion
	err         error

	messages []provider.Message
	options  *provider.CompleteOptions
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []provider.Message, options *provider.CompleteOptions) iter.Seq2[*provider.Completion, error] {
	f.messages = messages
	f.options = options

	return func(yield func(*provider.Completion, error) bool) {
		for i := range f.completions {
			if !yield(&f.completions[i], nil) {
				return
			}
		}

		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func newTestServer(t *testing.T, profiles []catalog.Profile, completers map[string]provider.Completer) *httptest.Server {
	t.Helper()

	cfg := config.New()

	for _, p := range profiles {
		require.NoError(t, cfg.RegisterCompleter(p, completers[p.ID]))
	}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		anthropic.New(cfg).Attach(r)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return server
}

func defaultProfile(id string) catalog.Profile {
	return catalog.Profile{
		ID:       id,
		Provider: catalog.ProviderAnthropic,

		SupportsTools:  true,
		SupportsVision: true,

		MaxOutputTokens: 4096,
	}
}

func postJSON(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)

	return resp
}

type sseEvent struct {
	Event string
	Data  map[string]any
}

func parseSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	defer resp.Body.Close()

	var events []sseEvent
	var current sseEvent

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.Data))
		case line == "":
			if current.Event != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	require.NoError(t, scanner.Err())

	return events
}

func eventNames(events []sseEvent) []string {
	var names []string
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}

func TestMessagesComplete(t *testing.T) {
	completer := &fakeCompleter{
		completions: []provider.Completion{
			{
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "Hello "}},
				},
			},
			{
				Reason: provider.CompletionReasonStop,
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "world"}},
				},
				Usage: &provider.Usage{InputTokens: 9, OutputTokens: 2},
			},
		},
	}

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": completer},
	)

	resp := postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model":      "test-model",
		"max_tokens": 256,
		"messages": []map[string]any{
			{"role": "user", "content": "greet me"},
		},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var message map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&message))

	require.True(t, strings.HasPrefix(message["id"].(string), "msg_"))
	require.Equal(t, "message", message["type"])
	require.Equal(t, "assistant", message["role"])
	require.Equal(t, "end_turn", message["stop_reason"])

	content := message["content"].([]any)
	require.Len(t, content, 1)

	block := content[0].(map[string]any)
	require.Equal(t, "text", block["type"])
	require.Equal(t, "Hello world", block["text"])

	usage := message["usage"].(map[string]any)
	require.Equal(t, float64(9), usage["input_tokens"])
	require.Equal(t, float64(2), usage["output_tokens"])
}

func TestMessagesStream(t *testing.T) {
	completer := &fakeCompleter{
		completions: []provider.Completion{
			{
				Message: &provider.Message{
					Role: provider.MessageRoleAssistant,
					Content: []provider.Content{
						provider.ReasoningContent(provider.Reasoning{Text: "hmm"}),
					},
				},
				Usage: &provider.Usage{InputTokens: 5},
			},
			{
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "sure"}},
				},
			},
			{
				Reason:  provider.CompletionReasonStop,
				Message: &provider.Message{Role: provider.MessageRoleAssistant},
				Usage:   &provider.Usage{InputTokens: 5, OutputTokens: 3},
			},
		},
	}

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": completer},
	)

	resp := postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model":      "test-model",
		"max_tokens": 256,
		"stream":     true,
		"messages": []map[string]any{
			{"role": "user", "content": "greet me"},
		},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := parseSSE(t, resp)

	require.Equal(t, []string{
		"message_start",
		"ping",
		"content_block_start", // thinking
		"content_block_delta",
		"content_block_stop",
		"content_block_start", // text
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(events))

	start := events[2].Data["content_block"].(map[string]any)
	require.Equal(t, "thinking", start["type"])

	delta := events[6].Data["delta"].(map[string]any)
	require.Equal(t, "text_delta", delta["type"])
	require.Equal(t, "sure", delta["text"])

	messageDelta := events[8].Data
	require.Equal(t, "end_turn", messageDelta["delta"].(map[string]any)["stop_reason"])
	require.Equal(t, float64(3), messageDelta["usage"].(map[string]any)["output_tokens"])
}

func TestMessagesStreamProviderError(t *testing.T) {
	completer := &fakeCompleter{
		completions: []provider.Completion{
			{
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "partial"}},
				},
			},
		},
		err: context.DeadlineExceeded,
	}

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": completer},
	)

	resp := postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model":  "test-model",
		"stream": true,
		"messages": []map[string]any{
			{"role": "user", "content": "greet me"},
		},
	})

	events := parseSSE(t, resp)
	require.NotEmpty(t, events)

	// The open text block is closed before the terminal error event
	last := events[len(events)-1]
	require.Equal(t, "error", last.Event)
	require.Equal(t, "api_error", last.Data["error"].(map[string]any)["type"])

	require.Equal(t, "content_block_stop", events[len(events)-2].Event)
}

func TestMessagesValidation(t *testing.T) {
	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": &fakeCompleter{}},
	)

	resp := postJSON(t, server.URL+"/v1/messages", map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model": "test-model",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model":    "no-such-model",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	require.Equal(t, "error", errResp["type"])
	require.Equal(t, "not_found_error", errResp["error"].(map[string]any)["type"])
}

func TestMessagesMaxTokensClamped(t *testing.T) {
	completer := &fakeCompleter{
		completions: []provider.Completion{
			{
				Reason: provider.CompletionReasonStop,
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "ok"}},
				},
			},
		},
	}

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": completer},
	)

	resp := postJSON(t, server.URL+"/v1/messages", map[string]any{
		"model":      "test-model",
		"max_tokens": 8000,
		"messages": []map[string]any{
			{"role": "user", "content": "hi"},
		},
	})
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, completer.options.MaxTokens)
	require.Equal(t, 4096, *completer.options.MaxTokens)
}

func TestMessagesThinkingDispatch(t *testing.T) {
	anthropicCompleter := &fakeCompleter{
		completions: []provider.Completion{
			{
				Reason: provider.CompletionReasonStop,
				Message: &provider.Message{
					Role:    provider.MessageRoleAssistant,
					Content: []provider.Content{{Text: "ok"}},
				},
			},
		},
	}

	googleCompleter := &fakeCompleter{completions: anthropicCompleter.completions}

	googleProfile := defaultProfile("gemini-model")
	googleProfile.Provider = catalog.ProviderGoogle

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("claude-model"), googleProfile},
		map[string]provider.Completer{
			"claude-model": anthropicCompleter,
			"gemini-model": googleCompleter,
		},
	)

	body := map[string]any{
		"max_tokens": 1024,
		"thinking":   map[string]any{"type": "enabled", "budget_tokens": 2048},
		"messages": []map[string]any{
			{"role": "user", "content": "hi"},
		},
	}

	body["model"] = "claude-model"
	resp := postJSON(t, server.URL+"/v1/messages", body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, anthropicCompleter.options.Thinking)
	require.Equal(t, 2048, anthropicCompleter.options.Thinking.BudgetTokens)
	require.Empty(t, anthropicCompleter.options.Effort)

	// No thinking support: request proceeds without it
	body["model"] = "gemini-model"
	resp = postJSON(t, server.URL+"/v1/messages", body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Nil(t, googleCompleter.options.Thinking)
	require.Empty(t, googleCompleter.options.Effort)
}

func TestCountTokens(t *testing.T) {
	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("test-model")},
		map[string]provider.Completer{"test-model": &fakeCompleter{}},
	)

	resp := postJSON(t, server.URL+"/v1/messages/count_tokens", map[string]any{
		"model":  "test-model",
		"system": "you are terse",
		"messages": []map[string]any{
			{"role": "user", "content": strings.Repeat("word ", 100)},
		},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Greater(t, result["input_tokens"].(float64), float64(100))
}

func TestModelsListsOnlyCapable(t *testing.T) {
	limited := defaultProfile("text-only-model")
	limited.SupportsVision = false

	server := newTestServer(t,
		[]catalog.Profile{defaultProfile("full-model"), limited},
		map[string]provider.Completer{
			"full-model":      &fakeCompleter{},
			"text-only-model": &fakeCompleter{},
		},
	)

	resp, err := http.Get(server.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	data := result["data"].([]any)
	require.Len(t, data, 1)

	model := data[0].(map[string]any)
	require.Equal(t, "model", model["type"])
	require.Equal(t, "full-model", model["id"])
	require.Equal(t, false, result["has_more"])
}
