package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ocelbridge/internal/platform"
	"ocelbridge/pkg/models"
)

// createTransformations creates one factory per chunk across all types in a
// single gated phase. Chunks of types that could not be created are skipped.
func (p *Provisioner) createTransformations(ctx context.Context, plan *Plan, created map[string]bool) []UnitResult {
	var units []unit
	var skipped []UnitResult
	for _, types := range [][]TypePlan{plan.ObjectTypes, plan.EventTypes} {
		for _, t := range types {
			if !created[t.Name] {
				for _, ch := range t.Chunks {
					skipped = append(skipped, UnitResult{Phase: PhaseTransformations, Unit: chunkUnit(ch), Outcome: OutcomeSkipped})
					p.recorder.UnitFinished(PhaseTransformations, OutcomeSkipped)
				}
				if len(t.Chunks) > 0 {
					p.emit(models.SeverityWarning, t.Name, "type %s was not created; skipping %d chunks", t.Name, len(t.Chunks))
				}
				continue
			}
			for _, ch := range t.Chunks {
				units = append(units, unit{
					name: chunkUnit(ch),
					run: func(ctx context.Context) (Outcome, error) {
						return p.createChunkFactory(ctx, t, ch)
					},
				})
			}
		}
	}
	return append(p.fanOut(ctx, PhaseTransformations, true, units), skipped...)
}

func chunkUnit(ch models.SQLChunk) string {
	return fmt.Sprintf("%s#%d", ch.Dataset, ch.Index+1)
}

func targetKind(kind models.DatasetKind) string {
	if kind == models.DatasetEvent {
		return platform.TargetEvent
	}
	return platform.TargetObject
}

// newFactoryRequest builds a draft factory targeting typeName.
func (p *Provisioner) newFactoryRequest(displayName, typeName, kind string) platform.FactoryCreateRequest {
	return platform.FactoryCreateRequest{
		FactoryID:        uuid.Nil.String(),
		Namespace:        platform.Namespace,
		DataConnectionID: p.cfg.DataConnectionID,
		DisplayName:      displayName,
		Target: platform.FactoryTarget{
			EntityRef: platform.EntityRef{Name: typeName, Namespace: platform.Namespace},
			Kind:      kind,
		},
		Draft:           true,
		LocalParameters: []any{},
		ChangedBy:       map[string]any{},
		CreatedBy:       map[string]any{},
	}
}

func sqlDataset(sql string) platform.SQLFactoryDataset {
	return platform.SQLFactoryDataset{
		ID:   uuid.NewString(),
		SQL:  sql,
		Type: platform.DatasetTypeSQL,
	}
}

// finalize turns a created draft into the update body: validated, not a
// draft, and disabled so nothing runs until someone enables it.
func finalize(f platform.Factory, t platform.Transformation) platform.Factory {
	f.Transformations = []platform.Transformation{t}
	f.Draft = false
	f.SaveMode = platform.SaveModeValidate
	f.Disabled = true
	f.ValidationStatus = ""
	return f
}

// PropertyNames orders the chunk's columns as ID, Time, then the rest,
// without duplicates.
func PropertyNames(kind models.DatasetKind, columns []string) []string {
	names := []string{models.ColumnID}
	seen := map[string]bool{models.ColumnID: true}
	if kind == models.DatasetEvent {
		names = append(names, models.ColumnTime)
		seen[models.ColumnTime] = true
	}
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		names = append(names, c)
	}
	return names
}

func (p *Provisioner) createChunkFactory(ctx context.Context, t TypePlan, ch models.SQLChunk) (Outcome, error) {
	name := chunkUnit(ch)
	display := fmt.Sprintf("%s %d", t.Name, ch.Index+1)

	draft, err := p.client.CreateFactory(ctx, p.newFactoryRequest(display, t.Name, targetKind(t.Kind)))
	if err != nil {
		err = classify(err)
		p.emit(models.SeverityError, name, "failed to create factory %q: %v", display, err)
		return OutcomeFailed, err
	}

	tr := platform.Transformation{
		Namespace:                   platform.Namespace,
		ForeignKeyNames:             []string{},
		PropertyNames:               PropertyNames(t.Kind, ch.Columns),
		PropertySQLFactoryDatasets:  []platform.SQLFactoryDataset{sqlDataset(ch.SQL)},
		ChangeSQLFactoryDatasets:    []platform.SQLFactoryDataset{},
		RelationshipTransformations: emptySlots(*draft),
	}
	if _, err := p.client.UpdateFactory(ctx, finalize(*draft, tr)); err != nil {
		err = classify(err)
		if errors.Is(err, ErrRemoteValidation) {
			p.emit(models.SeverityError, name, "factory %q rejected by validation, chunk abandoned: %v", display, err)
			return OutcomeAbandoned, err
		}
		p.emit(models.SeverityError, name, "failed to update factory %q: %v", display, err)
		return OutcomeFailed, err
	}

	p.emit(models.SeverityInfo, name, "created factory %q with %d rows", display, ch.Rows)
	return OutcomeOK, nil
}

// emptySlots keeps the relationship slots of a draft with no datasets.
func emptySlots(f platform.Factory) []platform.RelationshipTransformation {
	slots := []platform.RelationshipTransformation{}
	for _, name := range f.RelationshipSlots() {
		slots = append(slots, platform.RelationshipTransformation{
			RelationshipName:   name,
			SQLFactoryDatasets: []platform.SQLFactoryDataset{},
		})
	}
	return slots
}
