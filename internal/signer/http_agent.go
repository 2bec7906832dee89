package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPApprovalAgent posts approval requests as JSON and reads the answer
// from the response body. The endpoint may hold the request open while a
// human decides.
type HTTPApprovalAgent struct {
	url    string
	client *http.Client
}

// NewHTTPApprovalAgent creates an agent for url. The request context bounds
// each call, so client needs no timeout of its own.
func NewHTTPApprovalAgent(url string, client *http.Client) *HTTPApprovalAgent {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPApprovalAgent{url: url, client: client}
}

func (a *HTTPApprovalAgent) Ready() bool { return a.url != "" }

func (a *HTTPApprovalAgent) RequestApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal approval request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post approval: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read approval response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("approval agent returned %d: %s", resp.StatusCode, respBody)
	}

	var out ApprovalResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal approval response: %w", err)
	}
	if out.ID != "" && out.ID != req.ID {
		return nil, fmt.Errorf("approval response id %s does not match request %s", out.ID, req.ID)
	}
	return &out, nil
}
