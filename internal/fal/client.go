package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
)

// ---------------------------------------------------------------------------
// fal.ai Queue API Client
// Generation requests follow a deferred pattern: submit → poll by request_id →
// fetch the response and extract the artifact URL.
// ---------------------------------------------------------------------------

const (
	defaultQueueBaseURL = "https://queue.fal.run"

	// Fixed cadence between status polls. Generation jobs routinely take
	// minutes, so the deadline is generous.
	defaultPollInterval   = 3 * time.Second
	defaultResolveTimeout = 22 * time.Minute

	// How deep the artifact search descends into a response document.
	defaultSearchDepth = 6
)

// Client talks to the fal.ai queue API.
type Client struct {
	apiKey         string
	baseURL        string
	pollInterval   time.Duration
	resolveTimeout time.Duration
	httpClient     *http.Client
}

// NewClient creates a fal queue client with default polling behavior.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultQueueBaseURL)
}

// NewClientWithBaseURL creates a client against a custom queue endpoint
// (used by tests and self-hosted proxies).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:         apiKey,
		baseURL:        baseURL,
		pollInterval:   defaultPollInterval,
		resolveTimeout: defaultResolveTimeout,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
	}
}

// SetPollInterval overrides the cadence between status polls.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// SetResolveTimeout overrides the wall-clock deadline for resolving a job.
func (c *Client) SetResolveTimeout(d time.Duration) {
	if d > 0 {
		c.resolveTimeout = d
	}
}

// Handle identifies an in-flight queue request. When the explicit URLs are
// empty they are derived from the app path and request id.
type Handle struct {
	App         string
	RequestID   string
	StatusURL   string
	ResponseURL string
}

func (h Handle) statusURL(base string) string {
	if h.StatusURL != "" {
		return h.StatusURL
	}
	return fmt.Sprintf("%s/%s/requests/%s/status", base, h.App, h.RequestID)
}

func (h Handle) responseURL(base string) string {
	if h.ResponseURL != "" {
		return h.ResponseURL
	}
	return fmt.Sprintf("%s/%s/requests/%s", base, h.App, h.RequestID)
}

// submitResponse is the body returned by POST {base}/{app}.
type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

// queueStatus is the body returned by the status endpoint.
type queueStatus struct {
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
	ResponseURL   string `json:"response_url"`
}

// Submit enqueues a generation request on the given app and returns its
// handle. A 403 from the queue indicates the account is not entitled to the
// app; callers use the status on the returned error to decide provider
// fallback.
func (c *Client) Submit(ctx context.Context, app string, payload any) (Handle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to marshal fal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+app, bytes.NewReader(body))
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create fal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Handle{}, faults.External("fal submit", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to read fal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return Handle{}, faults.Externalf("fal submit", resp.StatusCode, "%s: %s", app, truncate(string(respBody), 300))
	}

	var sub submitResponse
	if err := json.Unmarshal(respBody, &sub); err != nil {
		return Handle{}, fmt.Errorf("failed to parse fal submit response: %w (body: %s)", err, truncate(string(respBody), 300))
	}
	if sub.RequestID == "" && sub.StatusURL == "" {
		return Handle{}, faults.Externalf("fal submit", 0, "no request_id in response: %s", truncate(string(respBody), 300))
	}

	return Handle{
		App:         app,
		RequestID:   sub.RequestID,
		StatusURL:   sub.StatusURL,
		ResponseURL: sub.ResponseURL,
	}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
