// Package inference classifies text against a hosted inference endpoint.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/phish-scanner/internal/classify"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// Name is the provider name used in configuration and metrics
const Name = "http"

// Flavor is the request/response shape an endpoint speaks
type Flavor int

const (
	// FlavorStandard sends {"inputs": text} and expects label/score lists
	FlavorStandard Flavor = iota
	// FlavorSpace sends {"text": text} and expects {prediction, probabilities}
	FlavorSpace
)

func (f Flavor) String() string {
	if f == FlavorSpace {
		return "space"
	}
	return "standard"
}

// DetectFlavor picks the shape from the endpoint URL
func DetectFlavor(endpoint string) Flavor {
	u, err := url.Parse(endpoint)
	if err != nil {
		return FlavorStandard
	}
	host := strings.ToLower(u.Hostname())
	path := strings.TrimRight(u.Path, "/")
	if strings.HasSuffix(host, ".hf.space") ||
		strings.Contains(path, "/spaces/") ||
		strings.HasSuffix(path, "/predict") {
		return FlavorSpace
	}
	return FlavorStandard
}

// Client is a core.Classifier backed by an HTTP endpoint
type Client struct {
	endpoint   string
	token      string
	flavor     Flavor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a classifier for cfg.URL
func NewClient(cfg config.ClassifierConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return NewClientWithHTTP(cfg.URL, cfg.Token, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP creates a classifier using httpClient
func NewClientWithHTTP(endpoint, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	flavor := DetectFlavor(endpoint)
	logger.Debug("Using inference endpoint", zap.Stringer("flavor", flavor))

	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		token:      strings.TrimSpace(token),
		flavor:     flavor,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return Name
}

// Flavor returns the detected endpoint shape
func (c *Client) Flavor() Flavor {
	return c.flavor
}

// Validate checks that an endpoint and a token are configured
func (c *Client) Validate() error {
	if c.endpoint == "" {
		return fmt.Errorf("%w: classifier URL is not set", core.ErrClassifierPrecondition)
	}
	u, err := url.Parse(c.endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid classifier URL %q", core.ErrClassifierPrecondition, c.endpoint)
	}
	if c.token == "" {
		return fmt.Errorf("%w: classifier token is not set", core.ErrClassifierPrecondition)
	}
	return nil
}

// Classify posts text to the endpoint and normalizes the answer
func (c *Client) Classify(ctx context.Context, text string) (*core.Classification, error) {
	var payload any
	if c.flavor == FlavorSpace {
		payload = map[string]string{"text": text}
	} else {
		payload = map[string]string{"inputs": text}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", core.ErrClassifierCallFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrClassifierCallFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrClassifierCallFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", core.ErrClassifierCallFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", core.ErrClassifierCallFailed, &core.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		})
	}

	c.logger.Debug("Classifier response received",
		zap.String("flavor", c.flavor.String()),
		zap.Int("bytes", len(respBody)))

	if c.flavor == FlavorSpace {
		return classify.DecodeSpace(respBody)
	}
	return classify.DecodeStandard(respBody)
}
