package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/mikey/phish-scanner/internal/core"
)

// TextProcessor provides utilities for processing message text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText cuts text to at most maxRunes characters. A non-positive
// limit disables truncation.
func (tp *TextProcessor) TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	count := 0
	for i := range text {
		if count == maxRunes {
			tp.logger.Debug("Text truncated",
				zap.Int("original_size", len(text)),
				zap.Int("truncated_size", i),
				zap.Int("max_runes", maxRunes))
			return text[:i]
		}
		count++
	}
	return text
}

// SanitizeUTF8 drops invalid UTF-8 sequences and normalizes to NFC
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return norm.NFC.String(text)
}

// StripHTML returns the visible text of an HTML document. Script and style
// contents are skipped.
func (tp *TextProcessor) StripHTML(doc string) string {
	if doc == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "li", "tr":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// CollapseWhitespace replaces every whitespace run with one space
func (tp *TextProcessor) CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ClassifierInput builds the bounded text sent to a classifier: the first
// subject line, a blank line, then the body capped at maxBodyRunes. The
// plain text body is preferred; an HTML-only body is stripped and
// whitespace-collapsed before truncation.
func (tp *TextProcessor) ClassifierInput(item core.EmailItem, maxBodyRunes int) string {
	body := item.BodyText
	if strings.TrimSpace(body) == "" && item.BodyHTML != "" {
		body = tp.CollapseWhitespace(tp.StripHTML(item.BodyHTML))
	}
	body = tp.TruncateText(tp.SanitizeUTF8(body), maxBodyRunes)

	return tp.SanitizeUTF8(item.Subject()) + "\n\n" + body
}

var imagePlaceholder = regexp.MustCompile(`\[image: [^\]]*\]`)

// PreprocessMailText prepares a retrieved body for display and scanning:
// markup and image placeholders removed, whitespace collapsed, lower case.
func (tp *TextProcessor) PreprocessMailText(text string) string {
	text = tp.StripHTML(text)
	text = imagePlaceholder.ReplaceAllString(text, "")
	text = tp.CollapseWhitespace(text)
	return strings.ToLower(text)
}
