package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	body    []byte
	err     error
	request map[string]any
	modelID string
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.modelID = *params.ModelId
	if err := json.Unmarshal(params.Body, &f.request); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

const verdict = `{"prediction":"AI Phishing","probabilities":{"AI Phishing":0.9,"Human Phishing":0.05,"Legitimate":0.05}}`

func newTestClassifier(client InvokeAPI, modelID string) *Classifier {
	return NewClassifier(client, config.BedrockConfig{Region: "us-east-1", ModelID: modelID, MaxTokens: 200}, zap.NewNop())
}

func TestClassifyAnthropic(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"completion": " " + verdict})
	invoker := &fakeInvoker{body: body}

	result, err := newTestClassifier(invoker, "anthropic.claude-v2").Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, core.LabelAIPhishing, result.Label)
	assert.Equal(t, "anthropic.claude-v2", invoker.modelID)
	assert.Contains(t, invoker.request["prompt"], "Human: ")
	assert.EqualValues(t, 200, invoker.request["max_tokens_to_sample"])
}

func TestClassifyTitan(t *testing.T) {
	body, _ := json.Marshal(map[string]any{"results": []map[string]string{{"outputText": verdict}}})
	invoker := &fakeInvoker{body: body}

	result, err := newTestClassifier(invoker, "amazon.titan-text-express-v1").Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, core.LabelAIPhishing, result.Label)
	assert.Contains(t, invoker.request, "textGenerationConfig")

	_, err = newTestClassifier(&fakeInvoker{body: []byte(`{"results":[]}`)}, "amazon.titan-text-express-v1").
		Classify(context.Background(), "text")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestClassifyGenericModel(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"output": verdict})
	result, err := newTestClassifier(&fakeInvoker{body: body}, "meta.llama3").Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, core.LabelAIPhishing, result.Label)
}

func TestClassifyCallFailure(t *testing.T) {
	_, err := newTestClassifier(&fakeInvoker{err: errors.New("throttled")}, "anthropic.claude-v2").
		Classify(context.Background(), "text")
	assert.ErrorIs(t, err, core.ErrClassifierCallFailed)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, newTestClassifier(&fakeInvoker{}, "anthropic.claude-v2").Validate())
	assert.ErrorIs(t, newTestClassifier(&fakeInvoker{}, "").Validate(), core.ErrClassifierPrecondition)
	assert.ErrorIs(t, NewClassifier(nil, config.BedrockConfig{Region: "r", ModelID: "m"}, zap.NewNop()).Validate(),
		core.ErrClassifierPrecondition)
}
