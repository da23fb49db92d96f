package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeModel struct {
	resp   *genai.GenerateContentResponse
	err    error
	prompt string
}

func (f *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if len(parts) > 0 {
		if t, ok := parts[0].(genai.Text); ok {
			f.prompt = string(t)
		}
	}
	return f.resp, f.err
}

func answer(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func newTestClassifier(model generator) *Classifier {
	c := NewClassifier(config.GeminiConfig{APIKey: "key", ModelName: "gemini-pro"}, zap.NewNop())
	c.model = model
	return c
}

func TestClassify(t *testing.T) {
	model := &fakeModel{resp: answer(
		genai.Text(`{"prediction":"Legitimate",`),
		genai.Text(`"probabilities":{"Legitimate":0.88}}`),
	)}
	c := newTestClassifier(model)

	result, err := c.Classify(context.Background(), "Hello\n\nBody")
	require.NoError(t, err)
	assert.Equal(t, core.LabelLegitimate, result.Label)
	assert.Contains(t, model.prompt, "Hello\n\nBody")
}

func TestClassifyFailures(t *testing.T) {
	_, err := newTestClassifier(&fakeModel{err: errors.New("quota")}).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrClassifierCallFailed)

	_, err = newTestClassifier(&fakeModel{resp: &genai.GenerateContentResponse{}}).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)

	_, err = newTestClassifier(&fakeModel{resp: answer(genai.Text("no idea"))}).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, NewClassifier(config.GeminiConfig{ModelName: "m"}, zap.NewNop()).Validate(), core.ErrClassifierPrecondition)
	assert.NoError(t, NewClassifier(config.GeminiConfig{APIKey: "k", ModelName: "m"}, zap.NewNop()).Validate())
}
