package fal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
)

// Status vocabulary reported by the queue. Anything not explicitly
// in-progress triggers a response fetch, since completed requests sometimes
// report odd status strings while the artifact is already available.
var (
	terminalFailureStatuses = map[string]bool{
		"FAILED":    true,
		"ERROR":     true,
		"CANCELLED": true,
	}
	inProgressStatuses = map[string]bool{
		"SUBMITTED":   true,
		"IN_QUEUE":    true,
		"IN_PROGRESS": true,
	}
)

// Resolve polls a queue request until it yields an artifact URL of the wanted
// kind, the queue reports a terminal failure, or the resolve deadline
// elapses.
//
// Transient problems (network hiccups, "still in progress" response bodies)
// are logged and retried on the normal poll cadence; they are never fatal on
// their own. There is no mid-flight cancellation of the remote job; on
// timeout we simply stop waiting.
func (c *Client) Resolve(ctx context.Context, h Handle, kind ArtifactKind) (string, error) {
	deadline := time.Now().Add(c.resolveTimeout)
	pollCount := 0

	label := h.RequestID
	if label == "" {
		label = h.StatusURL
	}

	for {
		if time.Now().After(deadline) {
			return "", faults.Timeout("fal resolve",
				"no %s artifact after %v (polled %d times, request=%s)", kind, c.resolveTimeout, pollCount, label)
		}
		pollCount++

		status, err := c.getStatus(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("fal resolve cancelled: %w", ctx.Err())
			}
			log.Printf("[Fal] Poll %d: status check failed (retrying): %v", pollCount, err)
			if err := c.sleep(ctx); err != nil {
				return "", err
			}
			continue
		}

		normalized := strings.ToUpper(strings.TrimSpace(status.Status))
		if terminalFailureStatuses[normalized] {
			return "", faults.Externalf("fal", 0, "request %s ended with status %s", label, normalized)
		}

		if !inProgressStatuses[normalized] {
			url, err := c.fetchArtifact(ctx, h, kind)
			if err != nil {
				if ctx.Err() != nil {
					return "", fmt.Errorf("fal resolve cancelled: %w", ctx.Err())
				}
				log.Printf("[Fal] Poll %d: no artifact yet (%v)", pollCount, err)
			} else if url != "" {
				log.Printf("[Fal] Poll %d: %s artifact resolved for request %s", pollCount, kind, label)
				return url, nil
			}
		} else if status.QueuePosition > 0 {
			log.Printf("[Fal] Poll %d: request %s %s (queue position %d)", pollCount, label, normalized, status.QueuePosition)
		}

		if err := c.sleep(ctx); err != nil {
			return "", err
		}
	}
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("fal resolve cancelled: %w", ctx.Err())
	case <-time.After(c.pollInterval):
		return nil
	}
}

// getStatus queries the status endpoint, falling back to the default URL
// derived from the app path and request id when no explicit URL is present.
func (c *Client) getStatus(ctx context.Context, h Handle) (*queueStatus, error) {
	body, statusCode, err := c.get(ctx, h.statusURL(c.baseURL))
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK && statusCode != http.StatusAccepted {
		return nil, fmt.Errorf("status endpoint returned %d: %s", statusCode, truncate(string(body), 200))
	}

	var st queueStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to parse status body: %w", err)
	}
	return &st, nil
}

// fetchArtifact queries the response endpoint and extracts the artifact URL
// from the (provider-shaped) nested document.
func (c *Client) fetchArtifact(ctx context.Context, h Handle, kind ArtifactKind) (string, error) {
	body, statusCode, err := c.get(ctx, h.responseURL(c.baseURL))
	if err != nil {
		return "", err
	}
	if statusCode != http.StatusOK {
		return "", fmt.Errorf("response endpoint returned %d: %s", statusCode, truncate(string(body), 200))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse response body: %w", err)
	}

	url, ok := FindArtifactURL(doc, kind, defaultSearchDepth)
	if !ok {
		return "", fmt.Errorf("no %s url in response document", kind)
	}
	return url, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
