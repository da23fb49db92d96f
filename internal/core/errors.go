package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Authorization errors
var (
	ErrAuthorizationRequired   = errors.New("authorization required")
	ErrRefreshFailed           = errors.New("token refresh failed")
	ErrScopeUnrecognized       = errors.New("granted scope not recognized")
	ErrAuthorizationInProgress = errors.New("authorization already in progress")
	ErrCodeAlreadyUsed         = errors.New("authorization code already handled")
)

// Mailbox errors
var (
	ErrFetchFailed     = errors.New("mailbox fetch failed")
	ErrFetchInProgress = errors.New("mailbox fetch already in progress")
)

// Classifier and scan errors
var (
	ErrClassifierPrecondition = errors.New("classifier is not configured")
	ErrClassifierCallFailed   = errors.New("classifier call failed")
	ErrMalformedResponse      = errors.New("malformed classifier response")
	ErrInvalidSelection       = errors.New("invalid selection")
	ErrScanInProgress         = errors.New("scan already in progress")
)

// Storage errors
var (
	ErrNotFound = errors.New("key not found")
)

// RequiresReauthorization reports whether err means the user has to go
// through the redirect flow again.
func RequiresReauthorization(err error) bool {
	return errors.Is(err, ErrAuthorizationRequired) || errors.Is(err, ErrRefreshFailed)
}

// HTTPError is returned by HTTP collaborators for non-success responses
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// IsAuthRejection reports whether err (or any error in its chain) is an
// HTTP 401 or 403.
func IsAuthRejection(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
}
