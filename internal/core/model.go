package core

import (
	"strings"
)

// Slot names one of the two independently scoped grants
type Slot string

const (
	SlotBasic Slot = "basic"
	SlotMail  Slot = "mail"
)

// Slots lists every slot in a stable order
var Slots = []Slot{SlotBasic, SlotMail}

// Valid reports whether s names a known slot
func (s Slot) Valid() bool {
	return s == SlotBasic || s == SlotMail
}

// ParseSlot converts user input into a Slot
func ParseSlot(s string) (Slot, bool) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	return slot, slot.Valid()
}

// DefaultLifetimeSeconds is used when the provider omits expires_in.
// Whether this matches the provider's real default is an assumption.
const DefaultLifetimeSeconds int64 = 3600

// Credential is a bearer token plus its refresh token and the issuance
// metadata observed by this client.
type Credential struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token,omitempty"`
	IssuedAt        int64  `json:"issued_at"`
	LifetimeSeconds int64  `json:"lifetime_seconds"`
	Scope           string `json:"scope,omitempty"`
}

// CredentialSet is the single persisted unit holding both slots and the
// shared identity assertion.
type CredentialSet struct {
	Basic             *Credential `json:"basic,omitempty"`
	Mail              *Credential `json:"mail,omitempty"`
	IdentityAssertion string      `json:"identity_assertion,omitempty"`
}

// Get returns the credential stored in slot, or nil
func (s CredentialSet) Get(slot Slot) *Credential {
	switch slot {
	case SlotBasic:
		return s.Basic
	case SlotMail:
		return s.Mail
	}
	return nil
}

// With returns a copy of the set with slot replaced by c
func (s CredentialSet) With(slot Slot, c *Credential) CredentialSet {
	switch slot {
	case SlotBasic:
		s.Basic = c
	case SlotMail:
		s.Mail = c
	}
	return s
}

// Empty reports whether nothing is stored
func (s CredentialSet) Empty() bool {
	return s.Basic == nil && s.Mail == nil && s.IdentityAssertion == ""
}

// TokenResponse is the body returned by the backend for code exchanges and
// refreshes.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	JWTToken     string `json:"jwt_token,omitempty"`
}

// EmailItem is a classifiable message. Every source produces the same
// shape; fields a source cannot supply are left nil or empty.
type EmailItem struct {
	BodyText             string   `json:"text"`
	BodyHTML             string   `json:"html,omitempty"`
	SubjectLines         []string `json:"subject"`
	FromAddresses        []string `json:"from_sender"`
	ToAddresses          []string `json:"to_recipient"`
	DeliveredToAddresses []string `json:"delivered_to"`
	Timestamps           []string `json:"datetime"`
	ReturnPathAddresses  []string `json:"return_path"`
}

// Subject returns the first subject line, or "" when absent
func (e EmailItem) Subject() string {
	return first(e.SubjectLines)
}

// Sender returns the first from address, or "" when absent
func (e EmailItem) Sender() string {
	return first(e.FromAddresses)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Label is a classifier verdict
type Label string

const (
	LabelAIPhishing    Label = "AI Phishing"
	LabelHumanPhishing Label = "Human Phishing"
	LabelLegitimate    Label = "Legitimate"
	LabelUnknown       Label = "Unknown"
)

// Labels are the three labels every result carries a probability for
var Labels = []Label{LabelAIPhishing, LabelHumanPhishing, LabelLegitimate}

// ParseLabel matches provider label spellings ("AI Phishing", "ai_phishing",
// "human-phishing", ...) against the known labels.
func ParseLabel(s string) (Label, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	for _, l := range Labels {
		if strings.ToLower(string(l)) == norm {
			return l, true
		}
	}
	return LabelUnknown, false
}

// Classification is a normalized classifier answer for one item
type Classification struct {
	Label         Label
	Probabilities map[Label]float64
}

// ZeroProbabilities returns a probability map with every label at 0.0
func ZeroProbabilities() map[Label]float64 {
	p := make(map[Label]float64, len(Labels))
	for _, l := range Labels {
		p[l] = 0
	}
	return p
}

// UnknownClassification is the degraded result used for malformed answers
func UnknownClassification() *Classification {
	return &Classification{Label: LabelUnknown, Probabilities: ZeroProbabilities()}
}

// MaxProbability returns the highest probability across the known labels
func (c Classification) MaxProbability() float64 {
	var max float64
	for _, l := range Labels {
		if p := c.Probabilities[l]; p > max {
			max = p
		}
	}
	return max
}

// ScanResult is one entry of the incremental result list. ItemIndex refers
// to the item list that was active when the scan ran.
type ScanResult struct {
	ItemIndex          int
	PredictedLabel     Label
	ClassProbabilities map[Label]float64
}

// Confidence returns the tier derived from the maximum probability
func (r ScanResult) Confidence() string {
	return ConfidenceTier(Classification{Probabilities: r.ClassProbabilities}.MaxProbability())
}

// ConfidenceTier maps a probability to High (>=0.8), Medium (>=0.6) or Low
func ConfidenceTier(p float64) string {
	switch {
	case p >= 0.8:
		return "High"
	case p >= 0.6:
		return "Medium"
	default:
		return "Low"
	}
}
