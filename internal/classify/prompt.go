package classify

import "fmt"

const promptFormat = `You are a phishing detection system. Classify the following email as exactly one of:
- "AI Phishing": phishing that appears to be machine-generated
- "Human Phishing": phishing written by a person
- "Legitimate": not phishing

Respond with a JSON object containing:
- prediction: one of the three labels above
- probabilities: an object mapping each of the three labels to a number between 0 and 1

Email:
%s

Respond only with the JSON object and nothing else.`

// SystemPrompt is sent as the system message where a provider supports one
const SystemPrompt = "You are a phishing detection system. Respond only with JSON."

// Prompt wraps classifier input in the LLM instructions
func Prompt(text string) string {
	return fmt.Sprintf(promptFormat, text)
}
