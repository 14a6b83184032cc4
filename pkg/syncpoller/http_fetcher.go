package syncpoller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("syncpoller: server returned %d: %s", e.Code, e.Message)
}

// Retryable mirrors the server's retryable flag for 5xx and 409 answers.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == fiber.StatusConflict
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type versionDoc struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// HTTPFetcher reads one connection through the REST API. It implements both
// Fetcher and VersionChecker.
type HTTPFetcher struct {
	baseURL      string
	token        string
	connectionId uuid.UUID
	timeout      time.Duration
}

func NewHTTPFetcher(baseURL, token string, connectionId uuid.UUID) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		connectionId: connectionId,
		timeout:      15 * time.Second,
	}
}

func (f *HTTPFetcher) url(suffix string) string {
	return f.baseURL + "/api/connection/v1/" + f.connectionId.String() + suffix
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	agent := fiber.Get(url)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+f.token)
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("syncpoller: GET %s: %w", url, errs[0])
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("syncpoller: decode response (status %d): %w", code, err)
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{Code: code, Message: env.Message}
	}
	return env.Data, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	data, err := f.get(ctx, f.url(""))
	if err != nil {
		return nil, err
	}
	var doc versionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("syncpoller: decode connection: %w", err)
	}
	return &Snapshot{UpdatedAt: doc.UpdatedAt, Raw: data}, nil
}

func (f *HTTPFetcher) Version(ctx context.Context) (time.Time, error) {
	data, err := f.get(ctx, f.url("/version"))
	if err != nil {
		return time.Time{}, err
	}
	var doc versionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return time.Time{}, fmt.Errorf("syncpoller: decode version: %w", err)
	}
	return doc.UpdatedAt, nil
}
