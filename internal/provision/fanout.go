package provision

import (
	"context"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"ocelbridge/pkg/models"
)

// Outcome of one unit of work.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeExisting  Outcome = "existing"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// Phase names.
const (
	PhaseObjectTypes     = "object_types"
	PhaseEventTypes      = "event_types"
	PhaseTransformations = "transformations"
	PhaseRelationships   = "relationships"
)

// UnitResult is collected for every unit at the end of its phase.
type UnitResult struct {
	Phase   string  `json:"phase"`
	Unit    string  `json:"unit"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

type unit struct {
	name string
	run  func(ctx context.Context) (Outcome, error)
}

// fanOut starts every unit, waits for all of them and returns their results
// in input order. Gated units hold the shared gate for their whole run.
func (p *Provisioner) fanOut(ctx context.Context, phase string, gated bool, units []unit) []UnitResult {
	results := make([]UnitResult, len(units))
	var g errgroup.Group
	for i, u := range units {
		g.Go(func() error {
			results[i] = p.runUnit(ctx, phase, gated, u)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		p.recorder.UnitFinished(phase, r.Outcome)
	}
	return results
}

func (p *Provisioner) runUnit(ctx context.Context, phase string, gated bool, u unit) (res UnitResult) {
	res = UnitResult{Phase: phase, Unit: u.name}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = &UnexpectedError{Phase: phase, Unit: u.name, Value: r, Stack: debug.Stack()}
			p.emit(models.SeverityError, u.name, "unexpected failure: %v", r)
		}
	}()

	if gated {
		if err := p.gate.Acquire(ctx); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			p.emit(models.SeverityError, u.name, "not started: %v", err)
			return res
		}
		defer p.gate.Release()
	}

	res.Outcome, res.Err = u.run(ctx)
	return res
}
