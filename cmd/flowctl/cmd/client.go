package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowplane/pkg/api"
)

// FlowClient handles API calls to the flowplane engine.
type FlowClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewFlowClient creates a new client with the given base URL and token.
func NewFlowClient(baseURL, token string) *FlowClient {
	return &FlowClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *FlowClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateTenant sends POST /tenants to register a new tenant.
func (c *FlowClient) CreateTenant(req api.CreateTenantRequest) (*api.CreateTenantResponse, error) {
	var result api.CreateTenantResponse
	if err := c.do(http.MethodPost, "/tenants", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ThrowMessage sends POST /messages to throw a message event.
func (c *FlowClient) ThrowMessage(req api.ThrowMessageRequest) (*api.ThrowMessageResponse, error) {
	var result api.ThrowMessageResponse
	if err := c.do(http.MethodPost, "/messages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ThrowSignal sends POST /signals to broadcast a signal event.
func (c *FlowClient) ThrowSignal(req api.ThrowSignalRequest) (*api.ThrowSignalResponse, error) {
	var result api.ThrowSignalResponse
	if err := c.do(http.MethodPost, "/signals", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ThrowError sends POST /errors to throw an error event at a scope.
func (c *FlowClient) ThrowError(req api.ThrowErrorRequest) (*api.ThrowErrorResponse, error) {
	var result api.ThrowErrorResponse
	if err := c.do(http.MethodPost, "/errors", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListWaits sends GET /waits to list a tenant's active waiting events.
func (c *FlowClient) ListWaits(limit, offset int) ([]api.WaitResponse, error) {
	var result api.ListWaitsResponse
	path := fmt.Sprintf("/waits?limit=%d&offset=%d", limit, offset)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Waits, nil
}

// ListFailingJobs sends GET /jobs/failing to retrieve the failing-jobs projection.
func (c *FlowClient) ListFailingJobs(limit, offset int) ([]api.FailedJobResponse, error) {
	var result api.ListFailingJobsResponse
	path := fmt.Sprintf("/jobs/failing?limit=%d&offset=%d", limit, offset)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// ReplayJob sends POST /jobs/{id}/replay to force a re-execution.
func (c *FlowClient) ReplayJob(jobID string, req api.ReplayJobRequest) (*api.ReplayJobResponse, error) {
	var result api.ReplayJobResponse
	path := fmt.Sprintf("/jobs/%s/replay", jobID)
	if err := c.do(http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
