// Package pipeline implements the sequential send-and-report mailing loop:
// extract an address from each recipient's contact field, render the
// templates, submit the message, record an outcome and pace the next send.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sheetmail/sheetmail/internal/mail"
	"github.com/sheetmail/sheetmail/internal/message"
	"github.com/sheetmail/sheetmail/internal/template"
)

// Transport is the mail-submission capability: send one message, which
// may fail with a descriptive error. The concrete SMTP client is injected;
// tests use a fake.
type Transport interface {
	Send(ctx context.Context, msg *message.Message) error
}

// Config carries the per-run inputs supplied by the caller.
type Config struct {
	From            string
	SubjectTemplate string
	BodyTemplate    string
	Attachments     []message.Attachment
	// Headers holds extra headers stamped on every message of the run.
	Headers map[string]string
	Pacer   *Pacer
	// SendDuplicates sends to recipients whose resolved email was already
	// seen earlier in the run instead of skipping them.
	SendDuplicates bool
	// Progress, when set, is invoked after every processed recipient in
	// processing order. It must not block for long; delivery is
	// fire-and-forget.
	Progress func(Outcome)
}

// Runner executes mailing runs. One recipient at a time, in input order;
// a failure never aborts the run and nothing is retried.
type Runner struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	// wait performs one pacing suspension; swapped out in tests.
	wait func(ctx context.Context) error
}

// NewRunner creates a runner for one or more sequential runs.
func NewRunner(transport Transport, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pacer == nil {
		cfg.Pacer = &Pacer{}
	}
	return &Runner{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "pipeline"),
		wait:      cfg.Pacer.Wait,
	}
}

// Run processes every recipient and returns the complete ordered outcome
// list. The returned slice always has exactly one outcome per recipient.
// Cancellation is a hardening hook: when ctx ends mid-run the remaining
// recipients are recorded as FAIL with the context error instead of being
// dropped.
func (r *Runner) Run(ctx context.Context, recipients []Recipient) []Outcome {
	outcomes := make([]Outcome, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))

	r.logger.Info("run started", "recipients", len(recipients))

	for i, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			out := outcomeFor(rcpt, rcpt.Email)
			out.Status = StatusFail
			out.Error = err.Error()
			outcomes = r.record(outcomes, out)
			continue
		}

		out, pause := r.process(ctx, rcpt, seen)
		outcomes = r.record(outcomes, out)

		if pause && i < len(recipients)-1 {
			if err := r.wait(ctx); err != nil {
				r.logger.Warn("pacing interrupted", "error", err)
			}
		}
	}

	r.logger.Info("run finished", "outcomes", len(outcomes))
	return outcomes
}

// process yields exactly one outcome for the recipient and reports whether
// the pacing delay applies before the next one.
func (r *Runner) process(ctx context.Context, rcpt Recipient, seen map[string]struct{}) (Outcome, bool) {
	email, ok := mail.Extract(rcpt.Contacts)
	if !ok {
		// Invalid contacts cost no quota: skip the pacing delay.
		out := outcomeFor(rcpt, "")
		out.Status = StatusFail
		out.Error = ErrInvalidEmail
		r.logger.Warn("no email in contact field", "row", rcpt.RowNumber, "name", rcpt.Name)
		return out, false
	}

	key := strings.ToLower(email)
	if _, dup := seen[key]; dup && !r.cfg.SendDuplicates {
		out := outcomeFor(rcpt, email)
		out.Status = StatusDuplicate
		r.logger.Info("duplicate address skipped", "row", rcpt.RowNumber, "email", email)
		return out, false
	}
	seen[key] = struct{}{}

	vars := template.Vars(rcpt.Name, email, strconv.Itoa(rcpt.RowNumber))
	msg := &message.Message{
		From:        r.cfg.From,
		To:          email,
		Subject:     template.Render(r.cfg.SubjectTemplate, vars),
		HTML:        template.Render(r.cfg.BodyTemplate, vars),
		Attachments: r.cfg.Attachments,
		Headers:     r.cfg.Headers,
	}

	out := outcomeFor(rcpt, email)
	start := time.Now()
	if err := r.transport.Send(ctx, msg); err != nil {
		out.Status = StatusFail
		out.Error = err.Error()
		out.Duration = time.Since(start)
		r.logger.Error("send failed", "row", rcpt.RowNumber, "email", email, "error", err)
		return out, true
	}

	out.Status = StatusOK
	out.SentAt = time.Now()
	out.Duration = out.SentAt.Sub(start)
	r.logger.Debug("message sent", "row", rcpt.RowNumber, "email", email)
	return out, true
}

// record appends the outcome and emits the progress notification.
func (r *Runner) record(outcomes []Outcome, out Outcome) []Outcome {
	outcomes = append(outcomes, out)
	if r.cfg.Progress != nil {
		r.cfg.Progress(out)
	}
	return outcomes
}
