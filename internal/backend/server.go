// Package backend serves the action-dispatched token and mailbox endpoint
// the CLI talks to.
package backend

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mikey/phish-scanner/internal/api"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ProviderPath is where the action endpoint is mounted
const ProviderPath = "/api/auth/provider/"

// Server is the backend HTTP server
type Server struct {
	app      *fiber.App
	cfg      config.ServerConfig
	provider TokenProvider
	mailbox  MailboxReader
	issuer   *Issuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates the server and registers its routes
func NewServer(cfg config.ServerConfig, provider TokenProvider, mailbox MailboxReader, issuer *Issuer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(api.ErrorResponse{Error: err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,OPTIONS",
	}))

	s := &Server{
		app:      app,
		cfg:      cfg,
		provider: provider,
		mailbox:  mailbox,
		issuer:   issuer,
		logger:   logger,
		now:      time.Now,
	}

	app.Post(ProviderPath, s.handleAction)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	return s
}

// App exposes the fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called
func (s *Server) Listen() error {
	s.logger.Info("Backend listening", zap.String("address", s.cfg.ListenAddress))
	return s.app.Listen(s.cfg.ListenAddress)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleAction(c *fiber.Ctx) error {
	start := time.Now()

	var req api.Request
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, start, "invalid", fiber.StatusBadRequest, "Invalid request body")
	}

	ctx := c.UserContext()
	switch req.Action {
	case api.ActionLogin:
		return s.login(ctx, c, start, req)
	case api.ActionExchangeMailToken:
		return s.exchangeMail(ctx, c, start, req)
	case api.ActionRefreshToken:
		return s.refresh(ctx, c, start, req)
	case api.ActionRetrieveMail:
		return s.retrieveMail(ctx, c, start)
	default:
		return s.fail(c, start, "invalid", fiber.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) login(ctx context.Context, c *fiber.Ctx, start time.Time, req api.Request) error {
	action := string(api.ActionLogin)
	if req.Code == "" {
		return s.fail(c, start, action, fiber.StatusBadRequest, "Authorization code is required")
	}

	tok, err := s.provider.Exchange(ctx, req.Code)
	if err != nil {
		s.logger.Warn("Code exchange failed", zap.String("action", action), zap.Error(err))
		return s.fail(c, start, action, fiber.StatusBadRequest, "Token is invalid or expired")
	}

	info, err := s.provider.UserInfo(ctx, tok.AccessToken)
	if err != nil {
		s.logger.Error("Failed to fetch user information", zap.Error(err))
		return s.fail(c, start, action, fiber.StatusBadGateway, "Failed to fetch user information")
	}

	userID := info.Subject
	if userID == "" {
		userID = info.Email
	}
	assertion, err := s.issuer.Issue(userID)
	if err != nil {
		s.logger.Error("Failed to sign identity assertion", zap.Error(err))
		return s.fail(c, start, action, fiber.StatusInternalServerError, "An unexpected error occurred")
	}

	resp := tokenResponse(tok, s.now())
	resp.JWTToken = assertion

	s.logger.Info("User logged in", zap.String("user_id", userID))
	return s.ok(c, start, action, resp)
}

func (s *Server) exchangeMail(ctx context.Context, c *fiber.Ctx, start time.Time, req api.Request) error {
	action := string(api.ActionExchangeMailToken)
	if req.Code == "" {
		return s.fail(c, start, action, fiber.StatusBadRequest, "Authorization code is required")
	}

	tok, err := s.provider.Exchange(ctx, req.Code)
	if err != nil {
		s.logger.Warn("Code exchange failed", zap.String("action", action), zap.Error(err))
		return s.fail(c, start, action, fiber.StatusBadRequest, "Token is invalid or expired")
	}

	return s.ok(c, start, action, tokenResponse(tok, s.now()))
}

func (s *Server) refresh(ctx context.Context, c *fiber.Ctx, start time.Time, req api.Request) error {
	action := string(api.ActionRefreshToken)
	if req.RefreshToken == "" {
		return s.fail(c, start, action, fiber.StatusBadRequest, "Refresh token is required")
	}

	tok, err := s.provider.Refresh(ctx, req.RefreshToken)
	if err != nil {
		s.logger.Warn("Token refresh failed", zap.Error(err))
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return s.fail(c, start, action, fiber.StatusBadRequest, "Failed to refresh token: "+retrieveErr.ErrorCode)
		}
		return s.fail(c, start, action, fiber.StatusInternalServerError, "Failed to refresh token")
	}

	resp := tokenResponse(tok, s.now())
	if resp.RefreshToken == "" {
		resp.RefreshToken = req.RefreshToken
	}
	resp.TokenType = req.TokenType
	if resp.TokenType == "" {
		resp.TokenType = string(core.SlotBasic)
	}

	return s.ok(c, start, action, resp)
}

func (s *Server) retrieveMail(ctx context.Context, c *fiber.Ctx, start time.Time) error {
	action := string(api.ActionRetrieveMail)
	accessToken := bearerToken(c.Get(fiber.HeaderAuthorization))
	if accessToken == "" {
		return s.fail(c, start, action, fiber.StatusBadRequest, "Bearer token was not provided")
	}

	items, err := s.mailbox.ReadMailbox(ctx, accessToken)
	if err != nil {
		if core.IsAuthRejection(err) {
			s.logger.Info("Mailbox rejected access token", zap.Error(err))
			return s.fail(c, start, action, fiber.StatusUnauthorized, "Access token was rejected")
		}
		s.logger.Error("Mailbox read failed", zap.Error(err))
		return s.fail(c, start, action, fiber.StatusBadGateway, "Failed to read mailbox")
	}
	if items == nil {
		items = []core.EmailItem{}
	}

	return s.ok(c, start, action, api.MailResponse{Mails: items})
}

func (s *Server) ok(c *fiber.Ctx, start time.Time, action string, body interface{}) error {
	metrics.RecordBackendAction(action, strconv.Itoa(fiber.StatusOK), time.Since(start))
	return c.JSON(body)
}

func (s *Server) fail(c *fiber.Ctx, start time.Time, action string, status int, message string) error {
	metrics.RecordBackendAction(action, strconv.Itoa(status), time.Since(start))
	return c.Status(status).JSON(api.ErrorResponse{Error: message})
}

// bearerToken extracts the token of an "Authorization: Bearer x" header
func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
