// Package pipeline wires loading, flattening, encoding and provisioning into
// one run and routes its progress messages.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"ocelbridge/internal/flatten"
	"ocelbridge/internal/input/ocel"
	"ocelbridge/internal/provision"
	"ocelbridge/pkg/models"
)

// Prepared holds everything derived from the input before any remote call.
type Prepared struct {
	Log  *models.EventLog
	Flat *flatten.Result
	Plan *provision.Plan
}

// Warnings returns loader and flattener warnings in order.
func (p *Prepared) Warnings() []string {
	return p.Flat.Warnings
}

// Prepare loads path, flattens it and builds the provisioning plan. Loader
// and sanitizer warnings go to sink. Input errors abort here.
func Prepare(path string, opts flatten.Options, sink provision.ProgressSink, runID string) (*Prepared, error) {
	loaded, err := ocel.Load(path)
	if err != nil {
		return nil, err
	}
	for _, w := range loaded.Warnings {
		emit(sink, runID, models.SeverityWarning, w)
	}

	flat := flatten.Flatten(loaded.Log, opts)
	plan := provision.BuildPlan(loaded.Log, flat)
	flat.Warnings = append(loaded.Warnings, flat.Warnings...)
	for _, w := range flat.Warnings[len(loaded.Warnings):] {
		emit(sink, runID, models.SeverityWarning, w)
	}

	emit(sink, runID, models.SeverityInfo, fmt.Sprintf("loaded %d events, %d objects, %d relations; %d datasets, %d relationship candidates",
		len(loaded.Log.Events), len(loaded.Log.Objects), len(loaded.Log.Relations), len(flat.Datasets()), len(flat.Candidates)))
	return &Prepared{Log: loaded.Log, Flat: flat, Plan: plan}, nil
}

// Run prepares the input and provisions it.
func Run(ctx context.Context, path string, opts flatten.Options, prov *provision.Provisioner, sink provision.ProgressSink) (*Prepared, *provision.Report, error) {
	prep, err := Prepare(path, opts, sink, prov.RunID())
	if err != nil {
		emit(sink, prov.RunID(), models.SeverityError, err.Error())
		return nil, nil, err
	}
	if n := len(prep.Flat.OneToMany(models.ScopeObjectObject)); n > 0 {
		emit(sink, prov.RunID(), models.SeverityInfo, fmt.Sprintf("%d object-to-object junction tables are exported only", n))
	}
	report, err := prov.Run(ctx, prep.Plan)
	return prep, report, err
}

func emit(sink provision.ProgressSink, runID string, sev models.Severity, msg string) {
	if sink == nil {
		return
	}
	sink.Emit(models.Progress{Time: time.Now(), RunID: runID, Severity: sev, Message: msg})
}
