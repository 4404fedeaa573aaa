package correlate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPResumer calls the process-continuation collaborator over HTTP. The
// engine never walks the process graph itself; it only tells the executor
// which flow node to resume and with what payload.
type HTTPResumer struct {
	baseURL    string
	httpClient *http.Client
}

type resumeRequest struct {
	FlowNodeInstanceID int64           `json:"flow_node_instance_id"`
	Payload            json.RawMessage `json:"payload,omitempty"`
}

// NewHTTPResumer creates a resumer targeting the given continuation
// endpoint.
func NewHTTPResumer(baseURL string) *HTTPResumer {
	// Ensure no trailing slash
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPResumer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResumeFlowNode posts the delivered payload to the continuation endpoint.
// A non-2xx response counts as a delivery failure and releases the couple.
func (r *HTTPResumer) ResumeFlowNode(ctx context.Context, flowNodeInstanceID int64, payload json.RawMessage) error {
	body, err := json.Marshal(resumeRequest{
		FlowNodeInstanceID: flowNodeInstanceID,
		Payload:            payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal resume request: %w", err)
	}

	url := fmt.Sprintf("%s/resume", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("continuation endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
