package scenario

import (
	"context"
	"io"
	"log/slog"
	"time"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/credit"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/metrics"
	"scenarist-ai/internal/render"
)

// History records successful generations.
type History interface {
	Append(ctx context.Context, account string, title, markdown string, result *domain.GenerateResult) (domain.HistoryEntry, error)
}

type ServiceOptions struct {
	Client *Client
	Gate   *credit.Gate
	// History is optional.
	History History
	Info    domain.ClientInfo
	Logger  *slog.Logger
}

// Service is the generate flow shared by every front-end: input check,
// credit, remote call, render, history.
type Service struct {
	client  *Client
	gate    *credit.Gate
	history History
	info    domain.ClientInfo
	logger  *slog.Logger
}

type Outcome struct {
	Request  domain.GenerateRequest `json:"request"`
	Result   domain.GenerateResult  `json:"result"`
	Markdown string                 `json:"markdown"`
	Limits   domain.Limits          `json:"limits"`
	Entry    *domain.HistoryEntry   `json:"historyEntry,omitempty"`
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gate := opts.Gate
	if gate == nil {
		gate = credit.NewGate(credit.Options{Logger: logger})
	}
	client := opts.Client
	if client == nil {
		client = NewClient(ClientOptions{Logger: logger})
	}
	return &Service{
		client:  client,
		gate:    gate,
		history: opts.History,
		info:    opts.Info,
		logger:  logger,
	}
}

// Generate validates the input before spending a credit, so an empty
// request never costs anything and a refused credit never reaches the
// network. Limits are re-read after every attempt.
func (s *Service) Generate(ctx context.Context, account string, in domain.Input, opts domain.Options) (Outcome, error) {
	acct := s.gate.Account(account)
	out := Outcome{}

	if err := ValidateInput(in); err != nil {
		out.Limits, _ = acct.Status(ctx)
		return out, err
	}
	if err := ValidateOptions(opts); err != nil {
		out.Limits, _ = acct.Status(ctx)
		return out, err
	}

	ok, err := acct.ConsumeCredit(ctx)
	if err != nil {
		return out, apperr.Wrap(err, apperr.KindUnknown, "Could not check the daily limit. Please try again.").WithOp("scenario.Generate")
	}
	if !ok {
		metrics.GenerationTotal.WithLabelValues("denied", apperr.KindQuotaExceeded.String()).Inc()
		out.Limits, _ = acct.Status(ctx)
		return out, apperr.QuotaExceeded(s.gate.DailyLimit())
	}

	info := s.info
	info.Account = acct.ID()
	out.Request = NewRequest(in.Text, in.Attachments, opts, info)

	start := time.Now()
	result, err := s.client.Generate(ctx, out.Request)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := apperr.KindOf(err)
		metrics.GenerationTotal.WithLabelValues("error", kind.String()).Inc()
		if kind == apperr.KindConfig {
			// the call never left the process
			if refundErr := acct.Refund(ctx); refundErr != nil {
				s.logger.Error("credit refund failed", "account", acct.ID(), "err", refundErr)
			}
		}
		out.Limits, _ = acct.Status(ctx)
		return out, err
	}

	metrics.GenerationTotal.WithLabelValues("ok", "").Inc()

	out.Result = result
	out.Markdown = render.Markdown(result)

	if s.history != nil {
		entry, histErr := s.history.Append(ctx, acct.ID(), result.Title(render.DefaultTitle), out.Markdown, &result)
		if histErr != nil {
			s.logger.Warn("history append failed", "account", acct.ID(), "err", histErr)
		} else {
			out.Entry = &entry
		}
	}

	out.Limits, _ = acct.Status(ctx)
	return out, nil
}

func (s *Service) Limits(ctx context.Context, account string) (domain.Limits, error) {
	return s.gate.Account(account).Status(ctx)
}

// Subscribe upgrades the account and returns the new limits.
func (s *Service) Subscribe(ctx context.Context, account string) (domain.Limits, error) {
	acct := s.gate.Account(account)
	if err := acct.Subscribe(ctx); err != nil {
		return domain.Limits{}, err
	}
	return acct.Status(ctx)
}
