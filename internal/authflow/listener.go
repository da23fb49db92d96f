package authflow

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// CallbackResult is what the redirect listener observed
type CallbackResult struct {
	Slot       core.Slot
	Credential *core.Credential
	Err        error
}

// Listener serves the redirect target on the local machine and hands the
// first callback to the flow. After handling a callback it redirects the
// browser to the bare path so the code never stays in the address bar.
type Listener struct {
	flow    *Flow
	path    string
	app     *fiber.App
	results chan CallbackResult
	shown   chan struct{}
	grace   time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	last *CallbackResult
}

// NewListener creates a listener for redirectURL
func NewListener(flow *Flow, redirectURL string, logger *zap.Logger) (*Listener, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	l := &Listener{
		flow:    flow,
		path:    path,
		results: make(chan CallbackResult, 1),
		shown:   make(chan struct{}, 1),
		grace:   2 * time.Second,
		logger:  logger,
	}

	l.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	l.app.Get(path, l.handle)

	return l, nil
}

// App exposes the fiber app
func (l *Listener) App() *fiber.App {
	return l.app
}

func (l *Listener) handle(c *fiber.Ctx) error {
	code := c.Query("code")
	providerErr := c.Query("error")

	if code == "" && providerErr == "" {
		return l.showOutcome(c)
	}

	var result CallbackResult
	if providerErr != "" {
		result.Err = fmt.Errorf("provider refused authorization: %s", providerErr)
	} else {
		result.Slot, result.Credential, result.Err = l.flow.HandleCallback(c.UserContext(), code, c.Query("scope"))
	}
	if result.Err != nil {
		l.logger.Warn("Authorization callback failed", zap.Error(result.Err))
	}

	l.mu.Lock()
	l.last = &result
	l.mu.Unlock()

	select {
	case l.results <- result:
	default:
	}

	return c.Redirect(l.path, fiber.StatusFound)
}

func (l *Listener) showOutcome(c *fiber.Ctx) error {
	l.mu.Lock()
	last := l.last
	l.mu.Unlock()

	if last == nil {
		return c.SendString("Waiting for authorization.")
	}

	select {
	case l.shown <- struct{}{}:
	default:
	}

	if last.Err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Authorization failed: " + last.Err.Error())
	}
	return c.SendString(fmt.Sprintf("Authorization for %s access completed. You can close this window.", last.Slot))
}

// Wait serves addr until one callback has been handled or ctx is done
func (l *Listener) Wait(ctx context.Context, addr string) (*CallbackResult, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.app.Listen(addr)
	}()
	defer func() {
		if err := l.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			l.logger.Warn("Failed to stop redirect listener", zap.Error(err))
		}
	}()

	select {
	case result := <-l.results:
		// Give the browser a moment to load the outcome page.
		select {
		case <-l.shown:
		case <-time.After(l.grace):
		case <-ctx.Done():
		}
		return &result, nil
	case err := <-errCh:
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
