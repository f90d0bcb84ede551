// Package pipeline runs one report end to end: build the prompt, invoke the
// agent, sanitize its output and deliver it.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/dbrain/pkg/agent"
	"github.com/jingkaihe/dbrain/pkg/config"
	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/report"
	"github.com/jingkaihe/dbrain/pkg/sanitize"
	"github.com/jingkaihe/dbrain/pkg/telegram"
	"github.com/jingkaihe/dbrain/pkg/telemetry"
)

// ErrMissingCredential is returned by Run before any external call when the
// bot token is not configured.
var ErrMissingCredential = config.ErrMissingCredential

// Stage names a step of a run in logs, spans and failure alerts.
type Stage string

const (
	StageConfig   Stage = "config"
	StageTemplate Stage = "templates"
	StagePrompt   Stage = "prompt"
	StageAgent    Stage = "agent"
	StageSanitize Stage = "sanitize"
	StageDeliver  Stage = "deliver"
	StageSummary  Stage = "summary"
)

// StageError is a failure of a stage that aborted the run.
type StageError struct {
	Stage    Stage
	ExitCode int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailureAlert is the text sent when a run aborts.
func FailureAlert(variant string, e *StageError) string {
	return fmt.Sprintf("❌ dbrain %s failed at %s (exit %d): %v", variant, e.Stage, e.ExitCode, e.Err)
}

// SummaryStore persists delivered reports that ask for it.
type SummaryStore interface {
	Save(ctx context.Context, reportHTML string, date time.Time) (string, error)
	LinkInMOC(ctx context.Context, summaryPath string) (bool, error)
}

// Result is everything known about one run.
type Result struct {
	Variant   string
	RunID     string
	Prompt    string
	RawOutput string
	// Report is the sanitized, trimmed text handed to delivery.
	Report      string
	Agent       agent.Result
	Delivery    telegram.Outcome
	DryRun      bool
	SummaryPath string
	// Failure is set when the run aborted and the failure alert was sent.
	Failure *StageError
	// AlertErr is set when the failure alert itself could not be sent.
	AlertErr error
}

// Pipeline holds the stages of a run. It is built once from an explicit
// configuration; no stage reads the environment.
type Pipeline struct {
	cfg       config.Config
	builder   *report.Builder
	runner    agent.Runner
	sanitizer *sanitize.Sanitizer
	deliverer *telegram.Deliverer
	summaries SummaryStore
	now       func() time.Time
	request   string
}

type Option func(*Pipeline)

func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(p *Pipeline) { p.sanitizer = s }
}

func WithSummaries(s SummaryStore) Option {
	return func(p *Pipeline) { p.summaries = s }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRequest sets the user request passed to request-driven variants.
func WithRequest(text string) Option {
	return func(p *Pipeline) { p.request = strings.TrimSpace(text) }
}

// New creates a pipeline. Without WithSanitizer the default rule chain is
// used with the emoji markers of every loaded template.
func New(cfg config.Config, builder *report.Builder, runner agent.Runner, deliverer *telegram.Deliverer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		builder:   builder,
		runner:    runner,
		deliverer: deliverer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sanitizer == nil {
		p.sanitizer = sanitize.New(sanitize.WithEmojiMarkers(Markers(builder)...))
	}
	return p
}

// Markers is the union of the default emoji markers and those of every
// template known to builder.
func Markers(builder *report.Builder) []string {
	markers := append([]string{}, sanitize.DefaultEmojiMarkers...)
	for _, name := range builder.Variants() {
		if t, err := builder.Template(name); err == nil {
			markers = append(markers, t.Markers()...)
		}
	}
	return lo.Uniq(markers)
}

// Run executes variant once.
//
// The returned error is reserved for configuration problems (missing
// credential, unknown variant, missing request) detected before anything is
// contacted.
// Everything after that is reported through the Result: agent failures are
// tolerated, delivery failures are recorded in Result.Delivery, and a failing
// stage sends one failure alert and is recorded in Result.Failure.
func (p *Pipeline) Run(ctx context.Context, variant string) (res *Result, err error) {
	if err := p.cfg.RequireCredential(); err != nil {
		return nil, err
	}
	tmpl, err := p.builder.Template(variant)
	if err != nil {
		return nil, err
	}
	if tmpl.RequiresRequest && p.request == "" {
		return nil, errors.Wrapf(report.ErrEmptyRequest, "variant %s", variant)
	}

	ctx, runID := logger.WithRun(ctx, variant)
	log := logger.G(ctx)
	deliverer := p.deliverer.ForVariant(variant)
	res = &Result{Variant: variant, RunID: runID, DryRun: p.cfg.DryRun}
	now := p.now()

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.String("variant", variant),
		attribute.String("run_id", runID),
		attribute.Bool("dry_run", p.cfg.DryRun),
	)
	defer span.End()

	stage := StageConfig
	defer func() {
		if r := recover(); r != nil {
			p.trap(ctx, deliverer, res, &StageError{Stage: stage, ExitCode: 2, Err: errors.Errorf("panic: %v", r)})
		}
	}()

	log.Info("starting report run")

	stage = StagePrompt
	prompt, err := telemetry.Span(ctx, "pipeline.prompt", func(context.Context) (string, error) {
		return p.builder.Build(variant, now, report.WithRequest(p.request))
	})
	if err != nil {
		p.trap(ctx, deliverer, res, &StageError{Stage: stage, ExitCode: 1, Err: err})
		return res, nil
	}
	res.Prompt = prompt

	// Agent failures never abort the run: whatever it printed moves on.
	stage = StageAgent
	res.Agent, _ = telemetry.Span(ctx, "pipeline.agent", func(ctx context.Context) (agent.Result, error) {
		r := p.runner.Run(ctx, prompt)
		telemetry.SetAttributes(ctx,
			attribute.Int("exit_code", r.ExitCode),
			attribute.Int("output_chars", len(r.Output)),
		)
		return r, r.Err
	})
	res.RawOutput = res.Agent.Output

	stage = StageSanitize
	res.Report, _ = telemetry.Span(ctx, "pipeline.sanitize", func(context.Context) (string, error) {
		return strings.TrimSpace(p.sanitizer.Sanitize(res.RawOutput)), nil
	})
	log.WithFields(logrus.Fields{
		"raw_chars":    len(res.RawOutput),
		"report_chars": len(res.Report),
	}).Debug("sanitized agent output")

	if p.cfg.DryRun {
		log.Info("dry run, skipping delivery")
		return res, nil
	}

	stage = StageDeliver
	res.Delivery, _ = telemetry.Span(ctx, "pipeline.deliver", func(ctx context.Context) (telegram.Outcome, error) {
		out := deliverer.Deliver(ctx, res.Report)
		telemetry.SetAttributes(ctx,
			attribute.String("status", out.Status.String()),
			attribute.Int("attempts", out.Attempts),
		)
		if !out.Sent() {
			return out, lo.Ternary(out.Err != nil, out.Err, errors.Errorf("telegram rejected message: %s", out.Description))
		}
		return out, nil
	})
	logOutcome(log, res.Delivery)

	if tmpl.SaveSummary && p.summaries != nil && !res.Agent.Failed() && res.Report != "" && res.Delivery.Sent() {
		stage = StageSummary
		res.SummaryPath = p.saveSummary(ctx, res.Report, now)
	}

	log.WithField("status", res.Delivery.Status.String()).Info("report run finished")
	return res, nil
}

// saveSummary failures are logged, not alerted: the report already went out.
func (p *Pipeline) saveSummary(ctx context.Context, reportHTML string, now time.Time) string {
	log := logger.G(ctx)
	path, err := p.summaries.Save(ctx, reportHTML, now)
	if err != nil {
		log.WithError(err).Warn("failed to save weekly summary")
		return ""
	}
	if _, err := p.summaries.LinkInMOC(ctx, path); err != nil {
		log.WithError(err).Warn("failed to link weekly summary")
	}
	return path
}

// trap reports an aborted run once through the chat API.
func (p *Pipeline) trap(ctx context.Context, d *telegram.Deliverer, res *Result, e *StageError) {
	res.Failure = e
	log := logger.G(ctx).WithField("stage", e.Stage).WithError(e.Err)
	log.Error("report run aborted")
	telemetry.AddEvent(ctx, "pipeline.trap", attribute.String("stage", string(e.Stage)))

	if err := d.Alert(ctx, telegram.Truncate(FailureAlert(res.Variant, e), telegram.MaxMessageLength)); err != nil {
		res.AlertErr = err
		log.WithField("alert_error", err.Error()).Error("failed to send failure alert")
	}
}

func logOutcome(log *logrus.Entry, out telegram.Outcome) {
	fields := logrus.Fields{"status": out.Status.String(), "attempts": out.Attempts}
	if out.Description != "" {
		fields["description"] = out.Description
	}
	entry := log.WithFields(fields)
	if out.Err != nil {
		entry = entry.WithError(out.Err)
	}
	switch out.Status {
	case telegram.Delivered:
		entry.Info("report delivered")
	case telegram.DeliveredPlain:
		entry.Warn("report delivered as plain text after formatting was rejected")
	case telegram.AlertSent:
		entry.Warn("report was empty, alert sent")
	default:
		entry.Error("report delivery failed")
	}
}
