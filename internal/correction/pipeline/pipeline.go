// Package pipeline runs one correction: markup extraction, redaction, the
// completion call, reassembly and statistics. It persists only when asked to
// update an existing document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/markup"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/redact"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/metrics"
)

// Corrector turns anonymized plain text into corrected plain text.
type Corrector interface {
	Correct(ctx context.Context, p agent.Profile, text string) (string, error)
}

// DocumentUpdater stores a correction on an existing document together with
// its history row.
type DocumentUpdater interface {
	ApplyCorrection(ctx context.Context, owner, id string, c document.Correction) (*document.Document, error)
}

// Request is one correction run. An empty Agent selects agent.DefaultKey.
type Request struct {
	Owner      string
	Role       string
	Input      string
	Agent      string
	DocumentID string
}

type Orchestrator struct {
	agents    *agent.Registry
	corrector Corrector
	redactor  *redact.Redactor
	docs      DocumentUpdater
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithDocuments(d DocumentUpdater) Option { return func(o *Orchestrator) { o.docs = d } }

func WithRedactor(r *redact.Redactor) Option { return func(o *Orchestrator) { o.redactor = r } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(agents *agent.Registry, corrector Corrector, opts ...Option) *Orchestrator {
	o := &Orchestrator{agents: agents, corrector: corrector, redactor: redact.New(nil), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs the pipeline. On error no statistics are returned.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*correction.Result, error) {
	name := req.Agent
	if name == "" {
		name = agent.DefaultKey
	}
	res, err := o.process(ctx, name, req)
	metrics.CorrectionRuns.WithLabelValues(name, outcome(err)).Inc()
	if err != nil {
		logger.L().Warn("correction failed", zap.String("agent", name), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, name string, req Request) (*correction.Result, error) {
	profile, ok := o.agents.Get(name)
	if !ok || !profile.Allows(req.Role) {
		return nil, fmt.Errorf("%w: %q", correction.ErrUnknownAgent, name)
	}

	plain, hint := markup.ExtractPlainText(req.Input)
	if strings.TrimSpace(plain) == "" {
		return nil, correction.ErrEmptyInput
	}

	start := o.now()
	redacted, report := o.redactor.Apply(plain)
	for rule, n := range report {
		if n > 0 {
			metrics.Redactions.WithLabelValues(rule).Add(float64(n))
		}
	}

	corrected, err := o.corrector.Correct(ctx, profile, redacted)
	if err != nil {
		return nil, err
	}
	elapsed := o.now().Sub(start)
	metrics.CorrectionDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	stats := correction.Stats{
		ProcessingTime:   math.Round(elapsed.Seconds()*100) / 100,
		WordCount:        document.CountWords(plain),
		CorrectionsCount: CountCorrections(plain, corrected),
	}
	out := markup.Reassemble(corrected, hint)

	if req.DocumentID != "" {
		if o.docs == nil {
			return nil, errors.New("document persistence is not configured")
		}
		_, err := o.docs.ApplyCorrection(ctx, req.Owner, req.DocumentID, document.Correction{
			Original:         req.Input,
			Corrected:        out,
			AgentUsed:        name,
			WordCount:        stats.WordCount,
			CorrectionsCount: stats.CorrectionsCount,
			ProcessingTime:   stats.ProcessingTime,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.L().Info("correction done",
		zap.String("agent", name),
		zap.Bool("html", hint.HTML),
		zap.Int("words", stats.WordCount),
		zap.Int("redactions", report.Total()),
		zap.Int("corrections", stats.CorrectionsCount),
		zap.Float64("seconds", stats.ProcessingTime))

	return &correction.Result{CorrectedText: out, AgentUsed: name, Stats: stats}, nil
}

// CountCorrections is a coarse change count: 0 for identical texts, else the
// difference in word counts with a floor of 1.
func CountCorrections(original, corrected string) int {
	if original == corrected {
		return 0
	}
	d := document.CountWords(corrected) - document.CountWords(original)
	if d < 0 {
		d = -d
	}
	if d < 1 {
		d = 1
	}
	return d
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, correction.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, correction.ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, correction.ErrExternalService):
		return "external_error"
	case errors.Is(err, document.ErrNotFound):
		return "not_found"
	case errors.Is(err, document.ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
