package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campusconnect/internal/domain"
	"campusconnect/internal/metrics"
)

// AuthHeader carries the raw session token; the server does not use a
// bearer scheme.
const AuthHeader = "x-auth-token"

// maxBodyBytes bounds how much of a response is read into memory.
const maxBodyBytes = 4 << 20

// Response is a successful (2xx) API response.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
}

// Decode parses the body into out. A body that does not match the expected
// shape is reported as a Malformed error.
func (r *Response) Decode(out any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return domain.NewError(domain.KindMalformed, "empty response body", nil)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return domain.NewError(domain.KindMalformed, "", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Client calls the campus events API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Headers map[string]string
}

// New creates a client with a single per-request timeout. The client never
// retries; retry policy belongs to the caller.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}
}

// Do sends one request. body, when non-nil, is JSON encoded. token, when
// non-empty, is attached in the auth header.
func (c *Client) Do(ctx context.Context, method, path string, body any, token string) (*Response, error) {
	route := routeTemplate(path)
	start := time.Now()
	resp, err := c.do(ctx, method, path, body, token)
	metrics.APILatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	metrics.APIRequests.WithLabelValues(method, route, outcome(err)).Inc()

	evt := log.Debug().Str("method", method).Str("route", route).Dur("took", time.Since(start))
	if err != nil {
		evt.Str("outcome", outcome(err)).Msg("api request failed")
		return nil, err
	}
	evt.Int("status", resp.Status).Str("request_id", resp.RequestID).Msg("api request")
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, domain.Invalid("encode request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, domain.Invalid("build request: %v", err)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(AuthHeader, token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindNetworkUnavailable, "", fmt.Errorf("api request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewError(domain.KindNetworkUnavailable, "", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		return nil, classify(resp.StatusCode, data)
	}
	return &Response{Status: resp.StatusCode, Body: data, RequestID: requestID}, nil
}

// classify turns a non-2xx response into the error taxonomy.
func classify(status int, body []byte) error {
	msg := serverMessage(body)
	var kind domain.Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = domain.KindUnauthorized
	case status >= 500:
		kind = domain.KindServerFault
	case status >= 400:
		kind = domain.KindServerRejected
		if msg == "" {
			msg = http.StatusText(status)
		}
	default:
		// 3xx is not followed into a usable body.
		kind = domain.KindServerFault
	}
	return &domain.Error{Kind: kind, Status: status, Message: msg}
}

// serverMessage extracts the human-readable message from an error body.
// The API answers with {msg}, {message}, {error} or {errors:[{msg}]}.
func serverMessage(body []byte) string {
	var out struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  []struct {
			Msg string `json:"msg"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	switch {
	case out.Msg != "":
		return out.Msg
	case out.Message != "":
		return out.Message
	case out.Error != "":
		return out.Error
	case len(out.Errors) > 0:
		return out.Errors[0].Msg
	}
	return ""
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return domain.Code(err)
}

var idSegment = regexp.MustCompile(`^([0-9a-fA-F]{24}|[0-9a-fA-F-]{36}|[0-9]+)$`)

// routeTemplate replaces identifier segments so metrics stay low-cardinality.
func routeTemplate(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
