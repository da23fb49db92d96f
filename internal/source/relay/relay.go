// Package relay is an email source fed by a local SMTP listener. Every
// accepted message is parsed and appended to the item list.
package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/mailparse"
	"github.com/mikey/phish-scanner/internal/metrics"
	"go.uber.org/zap"
)

// Name identifies the relay source
const Name = "relay"

// Source collects messages delivered over SMTP
type Source struct {
	cfg    config.RelayConfig
	logger *zap.Logger
	server *smtp.Server

	mu    sync.RWMutex
	items []core.EmailItem
}

// NewSource creates a relay source; call Start to accept mail
func NewSource(cfg config.RelayConfig, logger *zap.Logger) *Source {
	s := &Source{
		cfg:    cfg,
		logger: logger,
	}

	s.server = smtp.NewServer(&backend{source: s})
	s.server.Addr = cfg.ListenAddress
	s.server.Domain = cfg.Domain
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = cfg.MaxMessageBytes
	s.server.MaxRecipients = 50

	return s
}

// Name returns the source name
func (s *Source) Name() string {
	return Name
}

// Items returns a copy of the messages received so far
func (s *Source) Items() []core.EmailItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.EmailItem(nil), s.items...)
}

// Start listens on the configured address in the background
func (s *Source) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.Serve(l)
	return nil
}

// Serve accepts connections from l in the background
func (s *Source) Serve(l net.Listener) {
	s.logger.Info("Relay source listening", zap.String("address", l.Addr().String()))

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
}

// Stop closes the listener and open sessions
func (s *Source) Stop() error {
	return s.server.Close()
}

func (s *Source) add(raw []byte, sender string, recipients []string) error {
	msg, err := mailparse.Parse(raw)
	if err != nil {
		metrics.IncrementRelayMessage("rejected")
		return fmt.Errorf("failed to parse message: %w", err)
	}

	item := msg.Item()
	if item.ReturnPathAddresses == nil && sender != "" {
		item.ReturnPathAddresses = []string{"<" + sender + ">"}
	}
	if item.DeliveredToAddresses == nil && len(recipients) > 0 {
		item.DeliveredToAddresses = append([]string(nil), recipients...)
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	count := len(s.items)
	s.mu.Unlock()

	metrics.IncrementRelayMessage("accepted")
	s.logger.Info("Relayed message received",
		zap.String("sender", sender),
		zap.Int("recipients", len(recipients)),
		zap.Int("items", count))
	return nil
}

// backend implements the go-smtp Backend interface
type backend struct {
	source *Source
}

// NewSession creates a new SMTP session
func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{source: b.source}, nil
}

// session implements the go-smtp Session interface
type session struct {
	source     *Source
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data reads and stores the message
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.source.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	if err := s.source.add(raw, s.sender, s.recipients); err != nil {
		s.source.logger.Warn("Rejected relayed message", zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	return nil
}

// Logout ends the session
func (s *session) Logout() error {
	return nil
}
