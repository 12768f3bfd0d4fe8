// Package provision creates types, factories and relationships on the
// platform. Work is split into independent units; a failed unit is reported
// and never stops its siblings.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ocelbridge/internal/platform"
	"ocelbridge/pkg/models"
)

// Platform is the subset of the platform client a run needs.
type Platform interface {
	CreateObjectType(ctx context.Context, schema platform.TypeSchema) error
	CreateEventType(ctx context.Context, schema platform.TypeSchema) error
	CreateFactory(ctx context.Context, req platform.FactoryCreateRequest) (*platform.Factory, error)
	UpdateFactory(ctx context.Context, f platform.Factory) (*platform.Factory, error)
	ListEventTypes(ctx context.Context) ([]platform.EventTypeDefinition, error)
	UpdateEventType(ctx context.Context, name string, upd platform.EventTypeUpdate) error
}

// ProgressSink receives one message per discrete step.
type ProgressSink interface {
	Emit(p models.Progress)
}

// Recorder receives unit outcomes and gate occupancy.
type Recorder interface {
	UnitFinished(phase string, outcome Outcome)
	GateInFlight(n int64)
}

type nopRecorder struct{}

func (nopRecorder) UnitFinished(string, Outcome) {}
func (nopRecorder) GateInFlight(int64)           {}

type nopSink struct{}

func (nopSink) Emit(models.Progress) {}

// Config tunes a run.
type Config struct {
	Concurrency      int
	Color            string
	Category         string
	DataConnectionID string
}

// Provisioner executes a Plan against one platform.
type Provisioner struct {
	client   Platform
	cfg      Config
	gate     *Gate
	sink     ProgressSink
	recorder Recorder
	runID    string
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithProgress sends progress messages to sink.
func WithProgress(sink ProgressSink) Option {
	return func(p *Provisioner) {
		p.sink = sink
	}
}

// WithRecorder reports outcomes and gate usage to r.
func WithRecorder(r Recorder) Option {
	return func(p *Provisioner) {
		p.recorder = r
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(p *Provisioner) {
		p.runID = id
	}
}

// New creates a Provisioner.
func New(client Platform, cfg Config, opts ...Option) *Provisioner {
	if cfg.Color == "" {
		cfg.Color = DefaultColor
	}
	if cfg.Category == "" {
		cfg.Category = DefaultCategory
	}
	p := &Provisioner{
		client:   client,
		cfg:      cfg,
		gate:     NewGate(cfg.Concurrency),
		sink:     nopSink{},
		recorder: nopRecorder{},
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.gate.onChange = p.recorder.GateInFlight
	return p
}

// RunID identifies this run in progress messages.
func (p *Provisioner) RunID() string {
	return p.runID
}

// Report collects every unit result of a run.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Results  []UnitResult  `json:"results"`
}

// Count returns how many units of phase ended with outcome.
func (r *Report) Count(phase string, outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Phase == phase && res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failures returns units that did not succeed.
func (r *Report) Failures() []UnitResult {
	var out []UnitResult
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeFailed, OutcomeAbandoned, OutcomeInvalid:
			out = append(out, res)
		}
	}
	return out
}

// Run executes the plan phase by phase: object types, event types, chunk
// factories, relationships. Each phase finishes before the next starts.
// Unit failures are in the report; the returned error is non-nil only when
// a unit failed unexpectedly.
func (p *Provisioner) Run(ctx context.Context, plan *Plan) (*Report, error) {
	report := &Report{RunID: p.runID, Started: time.Now()}
	p.emit(models.SeverityInfo, "", "provisioning %d object types, %d event types, %d chunks, %d relationship groups",
		len(plan.ObjectTypes), len(plan.EventTypes), plan.Chunks(), len(plan.Relationships))

	objects := p.createTypes(ctx, PhaseObjectTypes, plan.ObjectTypes)
	report.Results = append(report.Results, objects...)

	events := p.createTypes(ctx, PhaseEventTypes, plan.EventTypes)
	report.Results = append(report.Results, events...)

	created := make(map[string]bool)
	for _, r := range append(objects, events...) {
		if r.Outcome == OutcomeOK || r.Outcome == OutcomeExisting {
			created[r.Unit] = true
		}
	}
	report.Results = append(report.Results, p.createTransformations(ctx, plan, created)...)
	report.Results = append(report.Results, p.provisionRelationships(ctx, plan.Relationships)...)
	report.Duration = time.Since(report.Started)

	var unexpected []error
	for _, r := range report.Results {
		var ue *UnexpectedError
		if errors.As(r.Err, &ue) {
			unexpected = append(unexpected, ue)
		}
	}
	failures := len(report.Failures())
	if failures > 0 {
		p.emit(models.SeverityWarning, "", "finished with %d failed units in %s", failures, report.Duration.Round(time.Millisecond))
	} else {
		p.emit(models.SeverityInfo, "", "finished in %s", report.Duration.Round(time.Millisecond))
	}
	if len(unexpected) > 0 {
		return report, fmt.Errorf("provisioning run %s: %w", p.runID, errors.Join(unexpected...))
	}
	return report, nil
}

func (p *Provisioner) emit(sev models.Severity, unit, format string, args ...any) {
	p.sink.Emit(models.Progress{
		Time:     time.Now(),
		RunID:    p.runID,
		Severity: sev,
		Unit:     unit,
		Message:  fmt.Sprintf(format, args...),
	})
}
