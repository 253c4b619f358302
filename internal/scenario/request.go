package scenario

import (
	"strings"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

// NewRequest snapshots the user's input into an immutable request. Later
// edits to the caller's slices do not leak into it.
func NewRequest(text string, attachments []domain.Attachment, opts domain.Options, client domain.ClientInfo) domain.GenerateRequest {
	opts = opts.WithDefaults()
	opts.DurationSec = ClampDuration(opts.DurationSec)

	return domain.GenerateRequest{
		Input: domain.Input{
			Text:        text,
			Attachments: append([]domain.Attachment(nil), attachments...),
		},
		Options: opts,
		Client:  client,
	}
}

// ValidateInput refuses a request with neither text nor attachments.
func ValidateInput(in domain.Input) error {
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
		return apperr.EmptyInput()
	}
	return nil
}
