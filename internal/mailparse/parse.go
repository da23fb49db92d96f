// Package mailparse turns raw RFC 5322 messages into email items
package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/phish-scanner/internal/core"
)

// Parse reads a raw message. Header fields that may repeat are returned in
// order of appearance; fields missing from the message stay nil. Only
// inline text/plain and text/html parts are read; the first of each wins.
func Parse(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedMessage{
		Subject:     headerValues(mr.Header, "Subject"),
		From:        headerValues(mr.Header, "From"),
		To:          headerValues(mr.Header, "To"),
		DeliveredTo: headerValues(mr.Header, "Delivered-To"),
		Date:        headerValues(mr.Header, "Date"),
		ReturnPath:  headerValues(mr.Header, "Return-Path"),
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			if parsed.Text != "" || parsed.HTML != "" {
				break
			}
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case contentType == "text/plain" && parsed.Text == "":
			parsed.Text = strings.TrimSpace(string(body))
		case contentType == "text/html" && parsed.HTML == "":
			parsed.HTML = strings.TrimSpace(string(body))
		}
	}

	return parsed, nil
}

// ParsedMessage is the decoded view of one message
type ParsedMessage struct {
	Subject     []string
	From        []string
	To          []string
	DeliveredTo []string
	Date        []string
	ReturnPath  []string
	Text        string
	HTML        string
}

func headerValues(h mail.Header, key string) []string {
	fields := h.FieldsByKey(key)
	var values []string
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		values = append(values, strings.TrimSpace(value))
	}
	return values
}

// Item converts the message to an email item with the bodies as parsed
func (m *ParsedMessage) Item() core.EmailItem {
	return core.EmailItem{
		BodyText:             m.Text,
		BodyHTML:             m.HTML,
		SubjectLines:         m.Subject,
		FromAddresses:        m.From,
		ToAddresses:          m.To,
		DeliveredToAddresses: m.DeliveredTo,
		Timestamps:           m.Date,
		ReturnPathAddresses:  m.ReturnPath,
	}
}
