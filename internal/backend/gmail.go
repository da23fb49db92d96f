package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/mailparse"
	"github.com/mikey/phish-scanner/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MailboxReader lists the newest messages of the token owner's mailbox
type MailboxReader interface {
	ReadMailbox(ctx context.Context, accessToken string) ([]core.EmailItem, error)
}

// GmailReader is a MailboxReader over the Gmail API
type GmailReader struct {
	maxResults    int64
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	options       []option.ClientOption
}

// NewGmailReader creates a reader returning at most maxResults messages.
// opts are appended to every service created.
func NewGmailReader(maxResults int64, textProcessor *utils.TextProcessor, logger *zap.Logger, opts ...option.ClientOption) *GmailReader {
	if maxResults <= 0 {
		maxResults = 40
	}
	return &GmailReader{
		maxResults:    maxResults,
		textProcessor: textProcessor,
		logger:        logger,
		options:       opts,
	}
}

// ReadMailbox fetches and parses the newest messages. A provider 401 or
// 403 is returned as a core.HTTPError so the caller can answer in kind.
func (r *GmailReader) ReadMailbox(ctx context.Context, accessToken string) ([]core.EmailItem, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}, r.options...)

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	list, err := srv.Users.Messages.List("me").MaxResults(r.maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", asHTTPError(err))
	}

	items := make([]core.EmailItem, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := srv.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", ref.Id, asHTTPError(err))
		}

		item, err := r.parse(msg.Raw)
		if err != nil {
			r.logger.Warn("Skipping unparseable message",
				zap.String("message_id", ref.Id),
				zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	r.logger.Debug("Mailbox read",
		zap.Int("listed", len(list.Messages)),
		zap.Int("parsed", len(items)))
	return items, nil
}

func (r *GmailReader) parse(raw string) (core.EmailItem, error) {
	data, err := decodeRaw(raw)
	if err != nil {
		return core.EmailItem{}, err
	}

	parsed, err := mailparse.Parse(data)
	if err != nil {
		return core.EmailItem{}, err
	}

	item := parsed.Item()
	if item.BodyText == "" && item.BodyHTML != "" {
		item.BodyText = strings.TrimSpace(r.textProcessor.StripHTML(item.BodyHTML))
	}
	item.BodyText = r.textProcessor.PreprocessMailText(item.BodyText)
	return item, nil
}

// decodeRaw accepts padded and unpadded base64url
func decodeRaw(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if data, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw message: %w", err)
	}
	return data, nil
}

func asHTTPError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &core.HTTPError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
