package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tandem-chat/backend/internal/config"
	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/pkg/httpx"
	"github.com/tandem-chat/backend/internal/platform/logger"
)

// Client talks to an OpenRouter-style OpenAI-compatible completion provider.
type Client struct {
	baseURL string
	apiKey  string

	chatCompletionsPath string
	modelsPath          string

	appURL  string
	appName string

	timeout       time.Duration
	streamTimeout time.Duration

	httpClient *http.Client
	log        *logger.Logger
}

func New(cfg config.UpstreamConfig, log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("openrouter: base_url required")
	}

	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}
	modelsPath := strings.TrimSpace(cfg.ModelsPath)
	if modelsPath == "" {
		modelsPath = "/v1/models"
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:             baseURL,
		apiKey:              strings.TrimSpace(cfg.APIKey),
		chatCompletionsPath: chatPath,
		modelsPath:          modelsPath,
		appURL:              strings.TrimSpace(cfg.AppURL),
		appName:             strings.TrimSpace(cfg.AppName),
		timeout:             timeout,
		streamTimeout:       cfg.StreamTimeout.Duration,
		httpClient:          &http.Client{Transport: tr},
		log:                 log.With("service", "OpenRouterClient"),
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using
// a custom RoundTripper.
func NewWithHTTPClient(cfg config.UpstreamConfig, log *logger.Logger, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.CompletionResult, error) {
	body := c.buildRequest(req, false)

	var resp chatCompletionResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, c.chatCompletionsPath, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter: no choices in response")
	}

	msg := resp.Choices[0].Message
	if strings.TrimSpace(msg.Content) == "" {
		return nil, errors.New("openrouter: empty completion")
	}

	return &llm.CompletionResult{
		Text:      msg.Content,
		Reasoning: msg.Reasoning,
		Model:     req.Model,
	}, nil
}

func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	body := c.buildRequest(req, true)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if c.streamTimeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, c.streamTimeout)
	}

	httpReq, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+c.chatCompletionsPath, &buf)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	c.setHeaders(httpReq, "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if cancel != nil {
			cancel()
		}
		return nil, responseError(resp, raw)
	}

	return &eventStream{
		body:   resp.Body,
		tr:     NewTranscoder(resp.Body),
		cancel: cancel,
	}, nil
}

// ListModels fetches the provider's model catalog. Unlike completion calls,
// which are never retried, a throttled or flaky catalog fetch is retried a
// couple of times before giving up.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	const maxAttempts = 3

	var resp modelsResponse
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		err := c.doJSON(ctx, c.timeout, http.MethodGet, c.modelsPath, nil, &resp)
		if err == nil {
			break
		}
		if attempt >= maxAttempts || !httpx.IsRetryableError(err) || ctx.Err() != nil {
			return nil, err
		}

		sleepFor := backoff
		var herr *HTTPError
		if errors.As(err, &herr) && herr.RetryAfter > 0 {
			sleepFor = herr.RetryAfter
		}
		c.log.Warn("model catalog fetch failed, retrying",
			"attempt", attempt, "backoff", sleepFor.String(), "error", err)
		select {
		case <-time.After(httpx.JitterSleep(sleepFor)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	out := make([]llm.ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		out = append(out, llm.ModelInfo{
			ID:              id,
			InputModalities: m.Architecture.InputModalities,
		})
	}
	return out, nil
}

func (c *Client) buildRequest(req llm.Request, stream bool) chatCompletionRequest {
	out := chatCompletionRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Reasoning {
		out.Reasoning = &reasoningOptions{Enabled: true}
	}
	return out
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.appURL != "" {
		req.Header.Set("HTTP-Referer", c.appURL)
	}
	if c.appName != "" {
		req.Header.Set("X-Title", c.appName)
	}
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type eventStream struct {
	body   io.ReadCloser
	tr     *Transcoder
	cancel context.CancelFunc
	closed bool
}

func (s *eventStream) Recv() (llm.StreamEvent, bool) {
	return s.tr.Next()
}

func (s *eventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}

var _ llm.Client = (*Client)(nil)
