package authflow

import (
	"fmt"
	"strings"

	"github.com/mikey/phish-scanner/internal/core"
)

// ScopeMatcher maps a granted scope string to a slot by looking for
// configured markers. Mail markers take precedence over basic ones.
type ScopeMatcher struct {
	mailMarkers  []string
	basicMarkers []string
}

// NewScopeMatcher creates a matcher from marker lists
func NewScopeMatcher(mailMarkers, basicMarkers []string) *ScopeMatcher {
	return &ScopeMatcher{
		mailMarkers:  mailMarkers,
		basicMarkers: basicMarkers,
	}
}

// Slot returns the slot a granted scope belongs to
func (m *ScopeMatcher) Slot(grantedScope string) (core.Slot, error) {
	if containsAny(grantedScope, m.mailMarkers) {
		return core.SlotMail, nil
	}
	if containsAny(grantedScope, m.basicMarkers) {
		return core.SlotBasic, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrScopeUnrecognized, grantedScope)
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
