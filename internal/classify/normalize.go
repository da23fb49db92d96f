// Package classify normalizes classifier answers into labelled
// probabilities.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/phish-scanner/internal/core"
)

// SpaceResponse is the answer shape of space-hosted endpoints and of the
// LLM prompt
type SpaceResponse struct {
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// LabelScore is one entry of a standard inference answer
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// FromSpace normalizes a space-shaped answer. The prediction must name a
// known label; probabilities for missing labels default to 0.
func FromSpace(resp SpaceResponse) (*core.Classification, error) {
	label, ok := core.ParseLabel(resp.Prediction)
	if !ok {
		return nil, fmt.Errorf("%w: unknown prediction %q", core.ErrMalformedResponse, resp.Prediction)
	}

	probabilities := core.ZeroProbabilities()
	for name, p := range resp.Probabilities {
		if l, ok := core.ParseLabel(name); ok {
			probabilities[l] = clamp(p)
		}
	}
	return &core.Classification{Label: label, Probabilities: probabilities}, nil
}

// FromScores normalizes a list of label scores; the highest known label
// wins.
func FromScores(scores []LabelScore) (*core.Classification, error) {
	probabilities := core.ZeroProbabilities()
	best := core.LabelUnknown
	bestScore := -1.0

	for _, s := range scores {
		l, ok := core.ParseLabel(s.Label)
		if !ok {
			continue
		}
		p := clamp(s.Score)
		probabilities[l] = p
		if p > bestScore {
			best, bestScore = l, p
		}
	}

	if best == core.LabelUnknown {
		return nil, fmt.Errorf("%w: no known label in %d scores", core.ErrMalformedResponse, len(scores))
	}
	return &core.Classification{Label: best, Probabilities: probabilities}, nil
}

// DecodeSpace parses a space-shaped body
func DecodeSpace(body []byte) (*core.Classification, error) {
	var resp SpaceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return FromSpace(resp)
}

// DecodeStandard parses a standard inference body, either a nested list
// [[{label,score}...]] or a flat list [{label,score}...].
func DecodeStandard(body []byte) (*core.Classification, error) {
	var nested [][]LabelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return FromScores(nested[0])
	}

	var flat []LabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return FromScores(flat)
}

// DecodeLLM parses a free-text LLM answer expected to hold a space-shaped
// JSON object, tolerating text around it.
func DecodeLLM(text string) (*core.Classification, error) {
	var resp SpaceResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		jsonStr, ok := ExtractJSON(text)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object in LLM answer", core.ErrMalformedResponse)
		}
		if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
	}
	return FromSpace(resp)
}

// ExtractJSON returns the text between the first '{' and the last '}'
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
