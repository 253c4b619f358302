package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

const (
	FormatMarkdown = "md"
	FormatText     = "txt"

	shareTitle   = "Script from Scenarist AI"
	mailSubject  = "My new video script"
	mailtoPrefix = "mailto:?"
)

type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Sharer is a platform share facility (system share sheet, chat, etc.).
type Sharer interface {
	Share(ctx context.Context, title, text string) error
}

type ShareOutcome struct {
	Method string `json:"method"` // "native" | "mailto"
	URL    string `json:"url,omitempty"`
}

type Exporter struct {
	Now func() time.Time
}

func (e Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func errNothingToExport() error {
	return apperr.New(apperr.KindNotFound, "There is no script to export yet.")
}

// Copy returns the text placed on the clipboard.
func (e Exporter) Copy(r domain.GenerateResult) (string, error) {
	if IsEmpty(r) {
		return "", errNothingToExport()
	}
	return Markdown(r), nil
}

// Download produces the file for format. Both formats carry the same
// markdown body; only the name and content type differ.
func (e Exporter) Download(r domain.GenerateResult, format string) (File, error) {
	if IsEmpty(r) {
		return File{}, errNothingToExport()
	}

	var contentType string
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown:
		format = FormatMarkdown
		contentType = "text/markdown; charset=utf-8"
	case FormatText:
		format = FormatText
		contentType = "text/plain; charset=utf-8"
	default:
		return File{}, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Unsupported export format %q. Use md or txt.", format))
	}

	return File{
		Name:        fmt.Sprintf("scenario_%d.%s", e.now().UnixMilli(), format),
		ContentType: contentType,
		Body:        []byte(Markdown(r)),
	}, nil
}

// Share hands the document to sharer. Without one it falls back to a
// mailto link with the document as the body.
func (e Exporter) Share(ctx context.Context, sharer Sharer, r domain.GenerateResult) (ShareOutcome, error) {
	if IsEmpty(r) {
		return ShareOutcome{}, errNothingToExport()
	}
	md := Markdown(r)

	if sharer != nil {
		if err := sharer.Share(ctx, shareTitle, md); err != nil {
			return ShareOutcome{Method: "native"}, fmt.Errorf("share: %w", err)
		}
		return ShareOutcome{Method: "native"}, nil
	}

	return ShareOutcome{Method: "mailto", URL: MailtoURL(mailSubject, md)}, nil
}

// MailtoURL builds a mailto link with percent-encoded subject and body.
func MailtoURL(subject, body string) string {
	return mailtoPrefix + "subject=" + encodeComponent(subject) + "&body=" + encodeComponent(body)
}

// encodeComponent escapes like URI component encoding: spaces become %20,
// never "+", which mail clients would show literally.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
