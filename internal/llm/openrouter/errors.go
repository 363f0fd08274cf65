package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tandem-chat/backend/internal/pkg/httpx"
)

// HTTPError is a non-2xx response from the provider. The message is taken
// from the provider's own error body when it parses, else it stays empty and
// Error falls back to a status-coded message.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string

	// RetryAfter is the provider's requested backoff, zero when absent.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "upstream http error"
	}
	return fmt.Sprintf("upstream http error: status=%d message=%s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// responseError builds the HTTPError for a non-2xx response, carrying over
// the Retry-After header when the provider sent one.
func responseError(resp *http.Response, raw []byte) error {
	err := parseHTTPError(resp.StatusCode, raw)
	if herr, ok := err.(*HTTPError); ok {
		herr.RetryAfter = httpx.RetryAfterDuration(resp, 0, 30*time.Second)
	}
	return err
}

// parseHTTPError extracts the provider's error message. Both envelope shapes
// are seen in the wild: {"error":{"message":"..."}} and {"error":"..."}.
func parseHTTPError(status int, raw []byte) error {
	body := strings.TrimSpace(string(raw))

	var objEnv struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &objEnv); err == nil && strings.TrimSpace(objEnv.Error.Message) != "" {
		return &HTTPError{StatusCode: status, Message: strings.TrimSpace(objEnv.Error.Message), Body: body}
	}

	var strEnv struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &strEnv); err == nil && strings.TrimSpace(strEnv.Error) != "" {
		return &HTTPError{StatusCode: status, Message: strings.TrimSpace(strEnv.Error), Body: body}
	}

	return &HTTPError{StatusCode: status, Body: body}
}
