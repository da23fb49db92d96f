// Package gemini classifies text with a Google Gemini model.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/phish-scanner/internal/classify"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Name is the provider name used in configuration and metrics
const Name = "gemini"

// generator is the part of *genai.GenerativeModel the classifier uses
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Classifier is a core.Classifier backed by a Gemini model. The SDK client
// is created on first use so that Validate can run without credentials.
type Classifier struct {
	cfg    config.GeminiConfig
	logger *zap.Logger

	mu     sync.Mutex
	client *genai.Client
	model  generator
}

// NewClassifier creates a Gemini classifier
func NewClassifier(cfg config.GeminiConfig, logger *zap.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: logger}
}

// Name returns the provider name
func (c *Classifier) Name() string {
	return Name
}

// Validate checks that an API key and a model are configured
func (c *Classifier) Validate() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return fmt.Errorf("%w: gemini API key is not set", core.ErrClassifierPrecondition)
	}
	if c.cfg.ModelName == "" {
		return fmt.Errorf("%w: gemini model is not set", core.ErrClassifierPrecondition)
	}
	return nil
}

// Classify asks the model for a verdict on text
func (c *Classifier) Classify(ctx context.Context, text string) (*core.Classification, error) {
	model, err := c.generativeModel(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(classify.Prompt(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", core.ErrClassifierCallFailed, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", core.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	c.logger.Debug("Gemini response received", zap.String("model", c.cfg.ModelName))
	return classify.DecodeLLM(sb.String())
}

// Close releases the SDK client
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client, c.model = nil, nil
	return err
}

func (c *Classifier) generativeModel(ctx context.Context) (generator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil {
		return c.model, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", core.ErrClassifierCallFailed, err)
	}

	model := client.GenerativeModel(c.cfg.ModelName)
	model.SetTemperature(c.cfg.Temperature)
	model.SetTopP(c.cfg.TopP)
	model.SetMaxOutputTokens(int32(c.cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"

	c.client = client
	c.model = model
	return model, nil
}
