package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

const (
	defaultTimeout  = 60 * time.Second
	maxErrorBodyLen = 512
)

// Config holds configuration for the assistant backend client
type Config struct {
	BaseURL string        // Required: e.g. http://localhost:8000
	Timeout time.Duration // Optional: defaults to 60s
}

// Client calls the assistant backend's POST /process-text endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure Client implements the Assistant interface
var _ repositories.Assistant = (*Client)(nil)

// NewClient creates a new assistant backend client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("assistant backend URL is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Process implements repositories.Assistant
func (c *Client) Process(ctx context.Context, text string) (domain.AssistantReply, error) {
	requestBody, err := sonic.Marshal(domain.ProcessTextRequest{Text: text})
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/process-text"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending request to assistant backend", zap.String("url", url))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		if len(detail) > maxErrorBodyLen {
			detail = detail[:maxErrorBodyLen]
		}
		c.logger.Error("Assistant backend returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", detail))
		return domain.AssistantReply{}, &domain.BackendError{StatusCode: resp.StatusCode, Body: detail}
	}

	reply, err := Normalize(body)
	if err != nil {
		return domain.AssistantReply{}, err
	}

	c.logger.Info("Received assistant reply",
		zap.String("agentName", reply.AgentName),
		zap.String("agentType", reply.AgentType),
		zap.Duration("latency", time.Since(start)))

	return reply, nil
}
