package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when no identity assertion is stored
var ErrNoIdentity = errors.New("no identity assertion stored")

// Identity is the display view of the stored identity assertion
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the assertion has passed its exp claim
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Identity decodes the stored assertion without verifying its signature.
// Verification belongs to the backend that issued it.
func (l *Lifecycle) Identity(ctx context.Context) (*Identity, error) {
	assertion := l.Snapshot(ctx).IdentityAssertion
	if assertion == "" {
		return nil, ErrNoIdentity
	}
	return ParseIdentity(assertion)
}

// ParseIdentity extracts user_id and exp from an assertion
func ParseIdentity(assertion string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, claims); err != nil {
		return nil, fmt.Errorf("failed to decode identity assertion: %w", err)
	}

	identity := &Identity{}
	switch v := claims["user_id"].(type) {
	case string:
		identity.UserID = v
	case float64:
		identity.UserID = fmt.Sprintf("%.0f", v)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("failed to read exp claim: %w", err)
	}
	if exp != nil {
		identity.ExpiresAt = exp.Time
	}

	return identity, nil
}
