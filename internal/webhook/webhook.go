// Package webhook delivers job outcome callbacks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const callbackTimeout = 30 * time.Second

type Notifier struct {
	client *http.Client
}

func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: callbackTimeout}}
}

// NotifySuccess posts the success payload to the job's callback URL.
func (n *Notifier) NotifySuccess(ctx context.Context, callbackURL string, cb models.SuccessCallback) error {
	cb.Status = "success"
	return n.post(ctx, callbackURL, cb)
}

// NotifyFailure posts the failure payload. Callers treat delivery errors as
// log-only; the job outcome is already decided.
func (n *Notifier) NotifyFailure(ctx context.Context, callbackURL string, cb models.FailureCallback) error {
	cb.Status = "failed"
	return n.post(ctx, callbackURL, cb)
}

func (n *Notifier) post(ctx context.Context, callbackURL string, payload any) error {
	if callbackURL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return faults.External("webhook", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return faults.Externalf("webhook", resp.StatusCode, "%s", string(respBody))
	}

	log.Printf("[Webhook] Callback delivered to %s", callbackURL)
	return nil
}
