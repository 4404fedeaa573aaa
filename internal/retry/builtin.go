package retry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Names of the job bodies shipped with the engine binary. Descriptors
// select a body by name; operators can register more before Start.
const (
	HandlerWebhook = "webhook"
	HandlerLog     = "log"
)

// RegisterBuiltinHandlers wires the built-in job bodies into the scheduler.
func RegisterBuiltinHandlers(s *Scheduler, logger *slog.Logger) {
	client := &http.Client{Timeout: 30 * time.Second}
	s.Register(HandlerWebhook, WebhookHandler(client))
	s.Register(HandlerLog, LogHandler(logger))
}

type webhookParams struct {
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// WebhookHandler delivers the job's body to an external HTTP endpoint.
// A non-2xx response counts as a failure so it lands in the failure log.
func WebhookHandler(client *http.Client) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) error {
		var p webhookParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("invalid webhook parameters: %w", err)
		}
		if p.URL == "" {
			return errors.New("webhook parameters require a url")
		}

		method := p.Method
		if method == "" {
			method = http.MethodPost
		}

		req, err := http.NewRequestWithContext(ctx, method, p.URL, bytes.NewReader(p.Body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook %s returned status %d", p.URL, resp.StatusCode)
		}
		return nil
	}
}

// LogHandler writes the job parameters to the engine log. Useful for
// verifying trigger wiring without external side effects.
func LogHandler(logger *slog.Logger) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) error {
		logger.Info("log job fired", "params", string(params))
		return nil
	}
}
