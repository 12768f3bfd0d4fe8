package provision

import (
	"context"

	"ocelbridge/internal/platform"
	"ocelbridge/pkg/models"
)

// Defaults for object type presentation.
const (
	DefaultColor    = "#4608B3"
	DefaultCategory = "curriculum"
)

func (p *Provisioner) categories() []platform.Category {
	return []platform.Category{{
		Metadata: platform.CategoryMetadata{Name: "Processes", Namespace: "celonis"},
		Values: []platform.CategoryValue{{
			Name:        p.cfg.Category,
			DisplayName: p.cfg.Category,
			Namespace:   platform.Namespace,
			Description: "",
		}},
	}}
}

// Schema builds the create body for a type.
func (p *Provisioner) Schema(t TypePlan) platform.TypeSchema {
	s := platform.TypeSchema{
		Name:          t.Name,
		Tags:          []string{},
		Description:   "",
		Fields:        t.Fields,
		Relationships: []platform.RelationshipDeclaration{},
		Categories:    p.categories(),
	}
	if t.Kind == models.DatasetObject {
		s.Color = p.cfg.Color
	}
	return s
}

// createTypes creates every type of one kind. Types are independent: an
// existing type counts as done and a failed one does not stop the others.
func (p *Provisioner) createTypes(ctx context.Context, phase string, types []TypePlan) []UnitResult {
	units := make([]unit, 0, len(types))
	for _, t := range types {
		units = append(units, unit{
			name: t.Name,
			run: func(ctx context.Context) (Outcome, error) {
				return p.createType(ctx, t)
			},
		})
	}
	return p.fanOut(ctx, phase, false, units)
}

func (p *Provisioner) createType(ctx context.Context, t TypePlan) (Outcome, error) {
	schema := p.Schema(t)
	create := p.client.CreateObjectType
	label := "object"
	if t.Kind == models.DatasetEvent {
		create = p.client.CreateEventType
		label = "event"
	}

	err := create(ctx, schema)
	switch {
	case err == nil:
		p.emit(models.SeverityInfo, t.Name, "created %s type %s", label, t.Name)
		return OutcomeOK, nil
	case isAlreadyExists(err):
		p.emit(models.SeverityWarning, t.Name, "%s type %s already exists; skipping", label, t.Name)
		return OutcomeExisting, nil
	default:
		err = classify(err)
		p.emit(models.SeverityError, t.Name, "failed to create %s type %s: %v", label, t.Name, err)
		return OutcomeFailed, err
	}
}
