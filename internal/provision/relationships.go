package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ocelbridge/internal/platform"
	"ocelbridge/pkg/models"
)

// provisionRelationships attaches HAS_MANY relationships to event types and
// feeds them through one relationship factory per event type. Relationships
// are only ever added; existing ones are left untouched.
func (p *Provisioner) provisionRelationships(ctx context.Context, plans []RelationshipPlan) []UnitResult {
	if len(plans) == 0 {
		return nil
	}

	defs, err := p.client.ListEventTypes(ctx)
	if err != nil {
		err = classify(err)
		p.emit(models.SeverityError, "", "failed to list event types: %v", err)
		results := make([]UnitResult, 0, len(plans))
		for _, rp := range plans {
			results = append(results, UnitResult{Phase: PhaseRelationships, Unit: rp.EventType, Outcome: OutcomeFailed, Err: err})
			p.recorder.UnitFinished(PhaseRelationships, OutcomeFailed)
		}
		return results
	}

	lookup := make(map[string]platform.EventTypeDefinition, len(defs))
	for _, d := range defs {
		lookup[strings.ToLower(d.Name)] = d
	}

	units := make([]unit, 0, len(plans))
	for _, rp := range plans {
		units = append(units, unit{
			name: rp.EventType,
			run: func(ctx context.Context) (Outcome, error) {
				def, ok := lookup[strings.ToLower(rp.EventType)]
				if !ok {
					err := fmt.Errorf("event type %s not found on platform", rp.EventType)
					p.emit(models.SeverityError, rp.EventType, "%v", err)
					return OutcomeFailed, err
				}
				return p.provisionEventRelationships(ctx, def, rp)
			},
		})
	}
	return p.fanOut(ctx, PhaseRelationships, true, units)
}

func (p *Provisioner) provisionEventRelationships(ctx context.Context, def platform.EventTypeDefinition, rp RelationshipPlan) (Outcome, error) {
	event := rp.EventType
	upd := def.Updatable()

	added := make(map[string][]models.SQLChunk)
	for _, target := range rp.Targets {
		if upd.HasRelationship(target.ObjectType) {
			p.emit(models.SeverityInfo, event, "relationship %s -> %s already present; skipping", event, target.ObjectType)
			continue
		}
		upd.Relationships = append(upd.Relationships, platform.HasMany(target.ObjectType))
		added[target.ObjectType] = target.Chunks
	}
	if len(added) == 0 {
		return OutcomeSkipped, nil
	}

	if err := p.client.UpdateEventType(ctx, def.Name, upd); err != nil {
		return p.relationshipFailure(event, "failed to add relationships to", err)
	}
	for _, target := range rp.Targets {
		if _, ok := added[target.ObjectType]; ok {
			p.emit(models.SeverityInfo, event, "added relationship %s -> %s", event, target.ObjectType)
		}
	}

	display := fmt.Sprintf("%s relationships", event)
	draft, err := p.client.CreateFactory(ctx, p.newFactoryRequest(display, def.Name, platform.TargetEvent))
	if err != nil {
		return p.relationshipFailure(event, "failed to create relationship factory for", err)
	}

	slots := []platform.RelationshipTransformation{}
	attached := make(map[string]bool)
	for _, name := range draft.RelationshipSlots() {
		datasets := []platform.SQLFactoryDataset{}
		for _, ch := range added[name] {
			datasets = append(datasets, sqlDataset(ch.SQL))
		}
		if _, ok := added[name]; ok {
			attached[name] = true
		}
		slots = append(slots, platform.RelationshipTransformation{RelationshipName: name, SQLFactoryDatasets: datasets})
	}
	for _, target := range rp.Targets {
		if _, ok := added[target.ObjectType]; ok && !attached[target.ObjectType] {
			p.emit(models.SeverityWarning, event, "platform offers no slot for relationship %s -> %s; no data attached", event, target.ObjectType)
		}
	}

	tr := platform.Transformation{
		Namespace:                   platform.Namespace,
		ForeignKeyNames:             []string{},
		PropertyNames:               []string{},
		PropertySQLFactoryDatasets:  []platform.SQLFactoryDataset{},
		ChangeSQLFactoryDatasets:    []platform.SQLFactoryDataset{},
		RelationshipTransformations: slots,
	}
	out, err := p.client.UpdateFactory(ctx, finalize(*draft, tr))
	if err != nil {
		return p.relationshipFailure(event, "failed to update relationship factory for", err)
	}
	if out.ValidationStatus != platform.StatusValid {
		p.emit(models.SeverityError, event, "relationship factory for %s has validation status %q", event, out.ValidationStatus)
		return OutcomeInvalid, nil
	}

	p.emit(models.SeverityInfo, event, "created relationship factory for %s with %d relationships", event, len(attached))
	return OutcomeOK, nil
}

func (p *Provisioner) relationshipFailure(event, what string, err error) (Outcome, error) {
	err = classify(err)
	p.emit(models.SeverityError, event, "%s %s: %v", what, event, err)
	if errors.Is(err, ErrRemoteValidation) {
		return OutcomeAbandoned, err
	}
	return OutcomeFailed, err
}
