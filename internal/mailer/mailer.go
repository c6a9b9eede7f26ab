// Package mailer orchestrates one mailing run end to end: spreadsheet
// import, templated sends over SMTP, report compilation and history
// persistence.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetmail/sheetmail/internal/config"
	"github.com/sheetmail/sheetmail/internal/dkim"
	"github.com/sheetmail/sheetmail/internal/dns"
	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/importer"
	"github.com/sheetmail/sheetmail/internal/mail"
	"github.com/sheetmail/sheetmail/internal/message"
	"github.com/sheetmail/sheetmail/internal/metrics"
	"github.com/sheetmail/sheetmail/internal/pipeline"
	"github.com/sheetmail/sheetmail/internal/report"
	"github.com/sheetmail/sheetmail/internal/sandbox"
	"github.com/sheetmail/sheetmail/internal/smtp"
)

// RunRequest describes one mailing run: the source spreadsheet, the
// templates to render and the account to submit through.
type RunRequest struct {
	// ID names the run; generated when empty. Callers that hand out the
	// run ID before the run completes set it up front.
	ID string `json:"-"`

	Account       string   `json:"account,omitempty"`
	SheetPath     string   `json:"sheet_path"`
	NameColumn    string   `json:"name_column,omitempty"`    // header text; empty = guess
	ContactColumn string   `json:"contact_column,omitempty"` // header text; empty = guess
	Subject       string   `json:"subject"`
	Body          string   `json:"body"`
	Attachments   []string `json:"attachments,omitempty"`
	From          string   `json:"from,omitempty"` // default: account user

	// Headers holds extra message headers stamped on every send, for
	// list-management headers like List-Unsubscribe.
	Headers map[string]string `json:"headers,omitempty"`

	SendDuplicates bool `json:"send_duplicates,omitempty"`

	// VerifyMX marks preview rows whose email domain publishes no MX
	// records.
	VerifyMX bool `json:"verify_mx,omitempty"`

	// DryRun captures rendered messages into sandbox storage instead of
	// submitting them. The report and history entry are still produced.
	DryRun bool `json:"dry_run,omitempty"`

	// PauseMin/PauseMax override the configured pacing bounds when both
	// are set.
	PauseMin time.Duration `json:"pause_min,omitempty"`
	PauseMax time.Duration `json:"pause_max,omitempty"`

	// ReportColumns overrides the default report layout.
	ReportColumns []report.Column `json:"report_columns,omitempty"`

	// Progress, when set, observes every outcome as it is recorded.
	Progress func(pipeline.Outcome) `json:"-"`
}

// Mailer executes mailing runs end to end: import, send, report, persist.
// The history store and metrics are optional.
type Mailer struct {
	cfg     *config.Config
	store   *history.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	// transport builds the per-run transport; swapped out in tests.
	transport func(account config.MailAccount) (pipeline.Transport, func() error, error)

	// resolver overrides the MX resolver used by VerifyMX previews;
	// nil means a fresh system-backed resolver per preview.
	resolver interface {
		HasMX(ctx context.Context, domain string) bool
	}
}

// NewMailer creates a mailer. store and m may be nil.
func NewMailer(cfg *config.Config, store *history.Store, m *metrics.Metrics, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	ml := &Mailer{
		cfg:     cfg,
		store:   store,
		metrics: m,
		logger:  logger,
	}
	ml.transport = ml.smtpTransport
	return ml
}

// smtpTransport opens one submission client per run, signing with DKIM
// when configured.
func (m *Mailer) smtpTransport(account config.MailAccount) (pipeline.Transport, func() error, error) {
	client := smtp.NewClient(account, 0, m.logger.With("component", "smtp_client"))

	if m.cfg.DKIM.Enabled {
		signer, err := dkim.NewSignerFromFile(m.cfg.DKIM.KeyFile, m.cfg.DKIM.Domain, m.cfg.DKIM.Selector)
		if err != nil {
			return nil, nil, fmt.Errorf("DKIM signer: %w", err)
		}
		client.SetDKIMSigner(signer)
	}

	return client, client.Close, nil
}

// Execute performs one mailing run. Per-recipient failures are recorded
// in the run's outcomes; only run-level failures (bad account, unreadable
// spreadsheet, report write) return an error. The returned run is
// persisted when a history store is attached.
func (m *Mailer) Execute(ctx context.Context, req RunRequest) (*history.Run, error) {
	account, err := m.cfg.Account(req.Account)
	if err != nil {
		return nil, err
	}

	recipients, _, sheet, err := m.load(req)
	if err != nil {
		return nil, err
	}

	pacer, err := m.pacer(req)
	if err != nil {
		return nil, err
	}

	attachments := make([]message.Attachment, 0, len(req.Attachments))
	for _, path := range req.Attachments {
		att := message.NewAttachment("", path)
		if _, err := att.Read(); err != nil {
			return nil, fmt.Errorf("attachment %s: %w", path, err)
		}
		attachments = append(attachments, att)
	}

	from := req.From
	if from == "" {
		from = account.User
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	run := &history.Run{
		ID:        id,
		Account:   account.Label,
		StartedAt: time.Now(),
		DryRun:    req.DryRun,
	}

	var transport pipeline.Transport
	closeTransport := func() error { return nil }
	if req.DryRun {
		if m.store == nil {
			return nil, fmt.Errorf("dry run requires history storage")
		}
		captures, err := sandbox.NewStorage(m.store.DB())
		if err != nil {
			return nil, err
		}
		transport = sandbox.NewTransport(captures, run.ID, m.logger.With("component", "sandbox"))
	} else {
		transport, closeTransport, err = m.transport(*account)
		if err != nil {
			return nil, err
		}
	}
	defer closeTransport()

	if m.metrics != nil {
		m.metrics.RunActive.Set(1)
		defer m.metrics.RunActive.Set(0)
	}

	m.logger.Info("starting mailing run",
		"run_id", run.ID,
		"account", account.Label,
		"recipients", len(recipients),
		"dry_run", req.DryRun,
	)

	runner := pipeline.NewRunner(transport, pipeline.Config{
		From:            from,
		SubjectTemplate: req.Subject,
		BodyTemplate:    req.Body,
		Attachments:     attachments,
		Headers:         req.Headers,
		Pacer:           pacer,
		SendDuplicates:  req.SendDuplicates,
		Progress:        m.progress(req.Progress),
	}, m.logger.With("component", "pipeline"))

	run.Outcomes = runner.Run(ctx, recipients)
	run.FinishedAt = time.Now()

	// Persist and report even when the run was cancelled mid-flight.
	ctx = context.WithoutCancel(ctx)

	compiler := report.NewCompiler(m.cfg.Report.OutputDir)
	path, err := compiler.CompileColumns(run.Outcomes, sheet, req.ReportColumns)
	if err != nil {
		m.finish(ctx, run, "failed")
		return run, fmt.Errorf("compile report: %w", err)
	}
	run.ReportPath = path

	if m.metrics != nil {
		m.metrics.ReportRowsTotal.Add(float64(len(run.Outcomes)))
	}

	m.finish(ctx, run, "completed")

	stats := run.Stats()
	m.logger.Info("mailing run finished",
		"run_id", run.ID,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"report", run.ReportPath,
	)
	return run, nil
}

// Preview imports the spreadsheet and classifies every row without
// sending anything. With VerifyMX set, rows whose email domain has no
// MX records get an advisory note in the Error field; their status is
// unchanged, extraction alone decides validity.
func (m *Mailer) Preview(ctx context.Context, req RunRequest) ([]pipeline.Outcome, error) {
	_, preview, _, err := m.load(req)
	if err != nil {
		return nil, err
	}

	if req.VerifyMX {
		resolver := m.resolver
		if resolver == nil {
			resolver = dns.NewResolver(0)
		}
		for i := range preview {
			out := &preview[i]
			if out.Email == "" {
				continue
			}
			if !resolver.HasMX(ctx, mail.ExtractDomain(out.Email)) {
				out.Error = "domain has no MX records"
			}
		}
	}

	return preview, nil
}

func (m *Mailer) load(req RunRequest) ([]pipeline.Recipient, []pipeline.Outcome, *importer.Sheet, error) {
	sheet, err := importer.Load(req.SheetPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load spreadsheet: %w", err)
	}

	nameIdx, contactIdx := importer.GuessColumns(sheet.Headers)
	if req.NameColumn != "" {
		if nameIdx = sheet.Column(req.NameColumn); nameIdx < 0 {
			return nil, nil, nil, fmt.Errorf("column %q not found", req.NameColumn)
		}
	}
	if req.ContactColumn != "" {
		if contactIdx = sheet.Column(req.ContactColumn); contactIdx < 0 {
			return nil, nil, nil, fmt.Errorf("column %q not found", req.ContactColumn)
		}
	}

	recipients, preview := importer.Build(sheet, nameIdx, contactIdx)
	return recipients, preview, sheet, nil
}

func (m *Mailer) pacer(req RunRequest) (*pipeline.Pacer, error) {
	min, max := m.cfg.Pause.Min, m.cfg.Pause.Max
	if req.PauseMin > 0 || req.PauseMax > 0 {
		min, max = req.PauseMin, req.PauseMax
	}
	pacer, err := pipeline.NewPacer(min, max)
	if err != nil {
		return nil, fmt.Errorf("pacing bounds: %w", err)
	}
	return pacer, nil
}

// progress fans one outcome out to metrics and the caller's observer.
func (m *Mailer) progress(observer func(pipeline.Outcome)) func(pipeline.Outcome) {
	return func(out pipeline.Outcome) {
		if m.metrics != nil {
			m.metrics.ObserveOutcome(out, mail.ExtractDomain(out.Email))
		}
		if observer != nil {
			observer(out)
		}
	}
}

func (m *Mailer) finish(ctx context.Context, run *history.Run, status string) {
	if m.metrics != nil {
		m.metrics.RunsTotal.WithLabelValues(status).Inc()
	}
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, run); err != nil {
		m.logger.Error("failed to save run history", "run_id", run.ID, "error", err)
	}
}
