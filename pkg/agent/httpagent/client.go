// Package httpagent implements agent.Provider over HTTP.
package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/user/tickerchat/pkg/agent"
)

const (
	defaultChatPath       = "/api/chat"
	defaultConnectTimeout = 30 * time.Second
	maxErrorBody          = 4096
)

// Client implements the agent.Provider interface for the HTTP chat endpoint.
type Client struct {
	config     *agent.Config
	httpClient *http.Client
}

// New creates a new HTTP agent client with the given configuration.
func New(config *agent.Config) *Client {
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
	}
	return &Client{
		config: config,
		// No client-wide Timeout: it would cut long streams short. The
		// caller's context bounds the full exchange.
		httpClient: &http.Client{Transport: transport},
	}
}

// Stream posts the request and returns the response body once the backend
// has answered with 200 OK.
func (c *Client) Stream(ctx context.Context, req *agent.Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	path := c.config.ChatPath
	if path == "" {
		path = defaultChatPath
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &agent.StatusError{Code: resp.StatusCode, Body: string(msg)}
	}

	return resp.Body, nil
}
