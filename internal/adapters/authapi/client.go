package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mikey/phish-scanner/internal/api"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// Client talks to the action-dispatched token/mail backend. It implements
// core.CodeExchanger, core.TokenRefresher and core.MailRetriever.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new backend client
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return NewClientWithHTTP(cfg.URL+cfg.Path, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewClientWithHTTP creates a backend client posting to endpoint
func NewClientWithHTTP(endpoint string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ExchangeCode trades an authorization code for tokens
func (c *Client) ExchangeCode(ctx context.Context, slot core.Slot, code string) (*core.TokenResponse, error) {
	var resp core.TokenResponse
	req := api.Request{Action: api.ExchangeActionFor(slot), Code: code}
	if err := c.do(ctx, req, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken trades a refresh token for a new access token
func (c *Client) RefreshToken(ctx context.Context, slot core.Slot, refreshToken string) (*core.TokenResponse, error) {
	var resp core.TokenResponse
	req := api.Request{Action: api.ActionRefreshToken, RefreshToken: refreshToken, TokenType: string(slot)}
	if err := c.do(ctx, req, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetrieveMail reads the mailbox with a bearer token
func (c *Client) RetrieveMail(ctx context.Context, accessToken string) ([]core.EmailItem, error) {
	var resp api.MailResponse
	if err := c.do(ctx, api.Request{Action: api.ActionRetrieveMail}, accessToken, &resp); err != nil {
		return nil, err
	}
	return resp.Mails, nil
}

func (c *Client) do(ctx context.Context, body api.Request, bearer string, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", body.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", body.Action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call backend %s: %w", body.Action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", body.Action, err)
	}

	c.logger.Debug("Backend call finished",
		zap.String("action", string(body.Action)),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		message := ""
		if json.Unmarshal(respBody, &apiErr) == nil {
			message = apiErr.Error
		}
		return fmt.Errorf("backend %s: %w", body.Action, &core.HTTPError{StatusCode: resp.StatusCode, Message: message})
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", body.Action, err)
	}
	return nil
}
