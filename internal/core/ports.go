package core

import (
	"context"
)

// KeyValueStore is the durable storage surface. A Set replaces the whole
// value for a key in one step.
type KeyValueStore interface {
	// Get returns the stored value, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources
	Close() error
}

// CodeExchanger turns an authorization code into tokens for a slot
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, slot Slot, code string) (*TokenResponse, error)
}

// TokenRefresher trades a refresh token for a new access token
type TokenRefresher interface {
	RefreshToken(ctx context.Context, slot Slot, refreshToken string) (*TokenResponse, error)
}

// MailRetriever reads the mailbox with a bearer access token
type MailRetriever interface {
	RetrieveMail(ctx context.Context, accessToken string) ([]EmailItem, error)
}

// Classifier classifies the text of one item
type Classifier interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Validate checks the configuration before any item is processed
	Validate() error

	// Classify returns the normalized verdict. Errors wrapping
	// ErrMalformedResponse mean the call succeeded but the body was unusable.
	Classify(ctx context.Context, text string) (*Classification, error)
}

// EmailSource produces an ordered list of items
type EmailSource interface {
	// Name identifies the source kind
	Name() string

	// Items returns a copy of the current list
	Items() []EmailItem
}
