package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/metrics"
	"go.uber.org/zap"
)

// RemoteName identifies the provider mailbox source
const RemoteName = "remote"

// FetchState is a step of a mailbox fetch
type FetchState int

const (
	StateIdle FetchState = iota
	StateFetching
	StateRefreshingThenRetrying
	StateFetchingFinal
)

func (s FetchState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateRefreshingThenRetrying:
		return "refreshing_then_retrying"
	case StateFetchingFinal:
		return "fetching_final"
	default:
		return "idle"
	}
}

// MailCredentials is the view of the credential lifecycle a remote fetch needs
type MailCredentials interface {
	EnsureFresh(ctx context.Context, slot core.Slot) (*core.Credential, error)
	Refresh(ctx context.Context, slot core.Slot) (*core.Credential, error)
	Current(ctx context.Context, slot core.Slot) *core.Credential
	Clear(ctx context.Context)
}

// RemoteMailSource reads the provider mailbox through the backend. An auth
// rejection is retried exactly once, after a refresh.
type RemoteMailSource struct {
	credentials MailCredentials
	retriever   core.MailRetriever
	logger      *zap.Logger

	inFlight atomic.Bool
	state    atomic.Int32

	mu    sync.RWMutex
	items []core.EmailItem
}

// NewRemoteMailSource creates a new remote mailbox source
func NewRemoteMailSource(credentials MailCredentials, retriever core.MailRetriever, logger *zap.Logger) *RemoteMailSource {
	return &RemoteMailSource{
		credentials: credentials,
		retriever:   retriever,
		logger:      logger,
	}
}

// Name returns the source name
func (s *RemoteMailSource) Name() string {
	return RemoteName
}

// Items returns a copy of the last fetched list
func (s *RemoteMailSource) Items() []core.EmailItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.EmailItem(nil), s.items...)
}

// State returns the current fetch step
func (s *RemoteMailSource) State() FetchState {
	return FetchState(s.state.Load())
}

func (s *RemoteMailSource) enter(state FetchState) {
	s.state.Store(int32(state))
	s.logger.Debug("Mailbox fetch state", zap.Stringer("state", state))
}

// Fetch reads the mailbox and replaces the item list. Only one fetch runs
// at a time.
func (s *RemoteMailSource) Fetch(ctx context.Context) ([]core.EmailItem, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, core.ErrFetchInProgress
	}
	defer s.inFlight.Store(false)
	defer s.enter(StateIdle)

	cred, err := s.credentials.EnsureFresh(ctx, core.SlotMail)
	if err != nil {
		metrics.IncrementMailFetch("reauthorize")
		return nil, err
	}

	state := StateFetching
	token := cred.AccessToken
	for {
		s.enter(state)

		items, err := s.retriever.RetrieveMail(ctx, token)
		if err == nil {
			s.mu.Lock()
			s.items = items
			s.mu.Unlock()

			outcome := "success"
			if state == StateFetchingFinal {
				outcome = "retried"
			}
			metrics.IncrementMailFetch(outcome)
			s.logger.Info("Mailbox fetched", zap.Int("count", len(items)), zap.Stringer("state", state))
			return append([]core.EmailItem(nil), items...), nil
		}

		if !core.IsAuthRejection(err) {
			metrics.IncrementMailFetch("failed")
			return nil, fmt.Errorf("%w: %w", core.ErrFetchFailed, err)
		}

		next, nextToken, err := s.afterRejection(ctx, state, err)
		if err != nil {
			metrics.IncrementMailFetch("reauthorize")
			return nil, err
		}
		state, token = next, nextToken
	}
}

// afterRejection is the transition taken when the mailbox answers 401/403
func (s *RemoteMailSource) afterRejection(ctx context.Context, state FetchState, rejection error) (FetchState, string, error) {
	switch state {
	case StateFetching:
		current := s.credentials.Current(ctx, core.SlotMail)
		if current == nil || current.RefreshToken == "" {
			s.logger.Warn("Mailbox rejected credential and no refresh token is stored", zap.Error(rejection))
			s.credentials.Clear(ctx)
			return StateIdle, "", fmt.Errorf("%w: %w", core.ErrAuthorizationRequired, rejection)
		}

		s.enter(StateRefreshingThenRetrying)
		refreshed, err := s.credentials.Refresh(ctx, core.SlotMail)
		if err != nil {
			return StateIdle, "", err
		}
		return StateFetchingFinal, refreshed.AccessToken, nil

	default:
		s.logger.Warn("Mailbox rejected refreshed credential, clearing session", zap.Error(rejection))
		s.credentials.Clear(ctx)
		return StateIdle, "", fmt.Errorf("%w: %w", core.ErrAuthorizationRequired, rejection)
	}
}
