package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tandem-chat/backend/internal/config"
	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/platform/logger"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:             "http://upstream",
		APIKey:              "sk-test",
		ChatCompletionsPath: "/v1/chat/completions",
		ModelsPath:          "/v1/models",
		Timeout:             config.Duration{Duration: 2 * time.Second},
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := NewWithHTTPClient(testConfig(), logger.NewNop(), &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	return c
}

func jsonResponse(status int, v any) *http.Response {
	b, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

func TestCompleteParsesEnvelope(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization=%q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if payload["model"] != "openai/gpt-4o" {
			t.Fatalf("model=%v", payload["model"])
		}
		if _, ok := payload["stream"]; ok {
			t.Fatalf("non-streaming request must not set stream")
		}

		return jsonResponse(http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Hej!", "reasoning": "greeting"}},
			},
		}), nil
	})

	res, err := c.Complete(context.Background(), llm.Request{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "Hej"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "Hej!" {
		t.Fatalf("text=%q", res.Text)
	}
	if res.Reasoning != "greeting" {
		t.Fatalf("reasoning=%q", res.Reasoning)
	}
	if res.Model != "openai/gpt-4o" {
		t.Fatalf("model=%q", res.Model)
	}
}

func TestCompleteMultimodalContentArray(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		last := payload.Messages[len(payload.Messages)-1]
		parts, ok := last.Content.([]any)
		if !ok {
			t.Fatalf("multimodal content must marshal as an array, got %T", last.Content)
		}
		if len(parts) != 2 {
			t.Fatalf("parts=%d", len(parts))
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		}), nil
	})

	_, err := c.Complete(context.Background(), llm.Request{
		Model: "openai/gpt-4o",
		Messages: []llm.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Parts: []llm.ContentPart{
				llm.TextPart("look"),
				llm.ImagePart("https://x.com/a.jpg"),
			}},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestCompleteErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"object envelope", `{"error":{"message":"model is overloaded"}}`, "model is overloaded"},
		{"string envelope", `{"error":"quota exceeded"}`, "quota exceeded"},
		{"opaque body", `upstream exploded`, http.StatusText(http.StatusBadGateway)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusBadGateway,
					Body:       io.NopCloser(strings.NewReader(tc.body)),
				}, nil
			})

			_, err := c.Complete(context.Background(), llm.Request{
				Model:    "openai/gpt-4o",
				Messages: []llm.Message{{Role: "user", Content: "hi"}},
			})
			var herr *HTTPError
			if err == nil {
				t.Fatalf("expected error")
			}
			if !asHTTPError(err, &herr) {
				t.Fatalf("expected HTTPError, got %T", err)
			}
			if herr.StatusCode != http.StatusBadGateway {
				t.Fatalf("status=%d", herr.StatusCode)
			}
			if !strings.Contains(herr.Error(), tc.want) {
				t.Fatalf("error %q missing %q", herr.Error(), tc.want)
			}
		})
	}
}

func asHTTPError(err error, target **HTTPError) bool {
	he, ok := err.(*HTTPError)
	if !ok {
		return false
	}
	*target = he
	return true
}

func sseBody(frames ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(frames, "\n") + "\n"))
}

func TestStreamTranscodesContentFrames(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.Header.Get("Accept"), "text/event-stream") {
			t.Fatalf("accept=%q", req.Header.Get("Accept"))
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if payload["stream"] != true {
			t.Fatalf("stream flag not set")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body: sseBody(
				`data: {"choices":[{"delta":{"content":"Hej "}}]}`,
				"",
				`data: {"choices":[{"delta":{"content":"hej!"}}]}`,
				"",
				"data: [DONE]",
				"",
			),
		}, nil
	})

	stream, err := c.Stream(context.Background(), llm.Request{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "Hej"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var types []llm.StreamEventType
	res, err := llm.Assemble(stream, func(ev llm.StreamEvent) {
		types = append(types, ev.Type)
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Text != "Hej hej!" {
		t.Fatalf("text=%q", res.Text)
	}

	want := []llm.StreamEventType{llm.StreamEventContent, llm.StreamEventContent, llm.StreamEventDone}
	if len(types) != len(want) {
		t.Fatalf("events=%v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d]=%s want %s", i, types[i], want[i])
		}
	}

	// Nothing after the terminal event.
	if _, ok := stream.Recv(); ok {
		t.Fatalf("stream yielded an event after done")
	}
}

func TestStreamReasoningDeltas(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body: sseBody(
				`data: {"choices":[{"delta":{"reasoning":"thinking "}}]}`,
				"",
				`data: {"choices":[{"delta":{"reasoning_content":"harder"}}]}`,
				"",
				`data: {"choices":[{"delta":{"content":"svar"}}]}`,
				"",
				"data: [DONE]",
				"",
			),
		}, nil
	})

	stream, err := c.Stream(context.Background(), llm.Request{
		Model:     "openai/gpt-4o",
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		Reasoning: true,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	res, err := llm.Assemble(stream, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Reasoning != "thinking harder" {
		t.Fatalf("reasoning=%q", res.Reasoning)
	}
	if res.Text != "svar" {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestStreamNon2xxSurfacesHTTPError(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"bad key"}}`)),
		}, nil
	})

	_, err := c.Stream(context.Background(), llm.Request{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("error=%q", err)
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/models" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "openai/gpt-4o", "architecture": map[string]any{"input_modalities": []string{"text", "image"}}},
				{"id": "meta/llama-3-8b", "architecture": map[string]any{"input_modalities": []string{"text"}}},
			},
		}), nil
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models=%d", len(models))
	}
	if !models[0].ImageCapable() {
		t.Fatalf("gpt-4o should be image capable")
	}
	if models[1].ImageCapable() {
		t.Fatalf("llama should not be image capable")
	}
}

func TestListModelsRetriesTransientFailures(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     http.Header{"Retry-After": []string{"0"}},
				Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"try later"}}`)),
			}, nil
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"data": []map[string]any{{"id": "openai/gpt-4o"}},
		}), nil
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts=%d, want 2", attempts)
	}
	if len(models) != 1 {
		t.Fatalf("models=%d", len(models))
	}
}

func TestListModelsDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		attempts++
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"bad key"}}`)),
		}, nil
	})

	if _, err := c.ListModels(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts=%d, want 1", attempts)
	}
}
