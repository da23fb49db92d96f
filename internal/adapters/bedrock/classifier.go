// Package bedrock classifies text with a model hosted on Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/phish-scanner/internal/classify"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// Name is the provider name used in configuration and metrics
const Name = "bedrock"

// InvokeAPI is the part of *bedrockruntime.Client the classifier uses
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Classifier is a core.Classifier backed by Bedrock InvokeModel
type Classifier struct {
	client      InvokeAPI
	region      string
	modelID     string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewClassifier creates a Bedrock classifier over client
func NewClassifier(client InvokeAPI, cfg config.BedrockConfig, logger *zap.Logger) *Classifier {
	return &Classifier{
		client:      client,
		region:      cfg.Region,
		modelID:     cfg.ModelID,
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

// Validate checks that a region and a model are configured
func (c *Classifier) Validate() error {
	if c.region == "" {
		return fmt.Errorf("%w: bedrock region is not set", core.ErrClassifierPrecondition)
	}
	if c.modelID == "" {
		return fmt.Errorf("%w: bedrock model is not set", core.ErrClassifierPrecondition)
	}
	if c.client == nil {
		return fmt.Errorf("%w: bedrock client is not available", core.ErrClassifierPrecondition)
	}
	return nil
}

// Classify asks the model for a verdict on text
func (c *Classifier) Classify(ctx context.Context, text string) (*core.Classification, error) {
	payload, err := c.requestBody(classify.Prompt(text))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request payload: %v", core.ErrClassifierCallFailed, err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bedrock: %v", core.ErrClassifierCallFailed, err)
	}

	responseText, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Bedrock response received", zap.String("model", c.modelID))
	return classify.DecodeLLM(responseText)
}

func (c *Classifier) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.")
}

func (c *Classifier) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}

func (c *Classifier) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]any{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

func (c *Classifier) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		return claudeResp.Completion, nil
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("%w: titan returned no results", core.ErrMalformedResponse)
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return string(body), nil
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}
