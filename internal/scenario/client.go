package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

// Model is the remote generation capability.
type Model interface {
	GenerateText(ctx context.Context, p domain.TextPrompt) (string, error)
	GenerateImage(ctx context.Context, p domain.ImagePrompt) (domain.Image, error)
}

const DefaultTimeout = 240 * time.Second

type ClientOptions struct {
	Model          Model
	TextModel      string
	ThinkingBudget int
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Client turns a GenerateRequest into a GenerateResult with one remote call.
type Client struct {
	model          Model
	textModel      string
	thinkingBudget int
	timeout        time.Duration
	logger         *slog.Logger
}

func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		model:          opts.Model,
		textModel:      opts.TextModel,
		thinkingBudget: opts.ThinkingBudget,
		timeout:        timeout,
		logger:         logger,
	}
}

// Generate runs one generation under the client's deadline. It never retries.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	if err := ValidateInput(req.Input); err != nil {
		return domain.GenerateResult{}, err
	}
	if c.model == nil {
		return domain.GenerateResult{}, apperr.Config("")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.model.GenerateText(ctx, domain.TextPrompt{
		Model:             c.textModel,
		Parts:             buildParts(req),
		SystemInstruction: SystemInstruction(),
		ResponseMIMEType:  "application/json",
		ThinkingBudget:    c.thinkingBudget,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !apperr.Is(err, apperr.KindTimeout) {
			err = apperr.Timeout(err)
		}
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Transport(err)
		}
		c.logger.Warn("generation failed", "kind", apperr.KindOf(err).String(), "dur_ms", time.Since(start).Milliseconds(), "err", err)
		return domain.GenerateResult{}, err
	}

	result, err := ParseResult(text)
	if err != nil {
		c.logger.Warn("model answer not parseable", "bytes", len(text), "err", err)
		return domain.GenerateResult{}, err
	}

	c.logger.Info("generation done",
		"dur_ms", time.Since(start).Milliseconds(),
		"attachments", len(req.Input.Attachments),
		"shots", len(result.Shots),
	)
	return result, nil
}
