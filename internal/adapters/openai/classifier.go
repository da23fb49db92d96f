// Package openai classifies text with an OpenAI chat model.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/phish-scanner/internal/classify"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Name is the provider name used in configuration and metrics
const Name = "openai"

// Classifier is a core.Classifier backed by the chat completions API
type Classifier struct {
	client      *openai.Client
	apiKey      string
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewClassifier creates an OpenAI classifier
func NewClassifier(cfg config.OpenAIConfig, logger *zap.Logger) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Classifier{
		client:      openai.NewClientWithConfig(clientCfg),
		apiKey:      cfg.APIKey,
		modelName:   cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		logger:      logger,
	}
}

// Name returns the provider name
func (c *Classifier) Name() string {
	return Name
}

// Validate checks that an API key and a model are configured
func (c *Classifier) Validate() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("%w: openai API key is not set", core.ErrClassifierPrecondition)
	}
	if c.modelName == "" {
		return fmt.Errorf("%w: openai model is not set", core.ErrClassifierPrecondition)
	}
	return nil
}

// Classify asks the model for a verdict on text
func (c *Classifier) Classify(ctx context.Context, text string) (*core.Classification, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: classify.SystemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: classify.Prompt(text),
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			TopP:        c.topP,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", core.ErrClassifierCallFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", core.ErrMalformedResponse)
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("OpenAI response received",
		zap.String("model", c.modelName),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return classify.DecodeLLM(content)
}
