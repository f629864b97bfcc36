package oaihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrKeyRejected matches an HTTPError whose status says the API key was refused.
var ErrKeyRejected = errors.New("oaihttp: api key rejected")

// HTTPError is a non-2xx answer from the completion endpoint. Message and Type
// come from the provider's {"error": {...}} envelope when it sends one.
type HTTPError struct {
	StatusCode int
	Type       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "completion endpoint error"
	}
	switch {
	case e.Message != "" && e.Type != "":
		return fmt.Sprintf("completion endpoint: status=%d %s: %s", e.StatusCode, e.Type, e.Message)
	case e.Message != "":
		return fmt.Sprintf("completion endpoint: status=%d: %s", e.StatusCode, e.Message)
	case e.Body != "":
		return fmt.Sprintf("completion endpoint: status=%d body=%s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("completion endpoint: status=%d", e.StatusCode)
}

func (e *HTTPError) Is(target error) bool {
	return e != nil && target == ErrKeyRejected && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Overloaded reports a rate limit or server-side failure.
func (e *HTTPError) Overloaded() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func readHTTPError(resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	out := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		out.Message = strings.TrimSpace(env.Error.Message)
		out.Type = strings.TrimSpace(env.Error.Type)
	}
	return out
}
