package provision

import (
	"ocelbridge/internal/flatten"
	"ocelbridge/internal/naming"
	"ocelbridge/internal/platform"
	"ocelbridge/internal/sqlchunk"
	"ocelbridge/pkg/models"
)

// TypePlan is one remote type plus the chunks that feed it.
type TypePlan struct {
	Name    string
	RawName string
	Kind    models.DatasetKind
	Fields  []platform.Field
	Chunks  []models.SQLChunk
}

// RelationshipTarget is one HAS_MANY relationship an event type should get.
type RelationshipTarget struct {
	ObjectType string
	Chunks     []models.SQLChunk
}

// RelationshipPlan groups the one-to-many targets of one event type.
type RelationshipPlan struct {
	EventType string
	Targets   []RelationshipTarget
}

// Plan is everything a run will send.
type Plan struct {
	ObjectTypes   []TypePlan
	EventTypes    []TypePlan
	Relationships []RelationshipPlan
}

// Chunks returns the number of chunk units in the plan.
func (p *Plan) Chunks() int {
	n := 0
	for _, t := range p.ObjectTypes {
		n += len(t.Chunks)
	}
	for _, t := range p.EventTypes {
		n += len(t.Chunks)
	}
	return n
}

// BuildPlan turns flattened tables into remote types, chunks and
// relationships. Declared types without any records still get a type.
func BuildPlan(log *models.EventLog, res *flatten.Result) *Plan {
	plan := &Plan{
		ObjectTypes: buildTypePlans(models.DatasetObject, log.ObjectTypes, res.Objects, res),
		EventTypes:  buildTypePlans(models.DatasetEvent, log.EventTypes, res.Events, res),
	}

	byEvent := make(map[string]int)
	for _, cand := range res.OneToMany(models.ScopeEventObject) {
		i, ok := byEvent[cand.SourceType]
		if !ok {
			i = len(plan.Relationships)
			byEvent[cand.SourceType] = i
			plan.Relationships = append(plan.Relationships, RelationshipPlan{EventType: cand.SourceType})
		}
		plan.Relationships[i].Targets = append(plan.Relationships[i].Targets, RelationshipTarget{
			ObjectType: cand.TargetType,
			Chunks:     sqlchunk.Encode(cand.Dataset),
		})
	}
	return plan
}

func buildTypePlans(kind models.DatasetKind, decls []models.TypeDecl, datasets []*models.Dataset, res *flatten.Result) []TypePlan {
	var plans []TypePlan
	seen := make(map[string]bool)
	for _, ds := range datasets {
		decl := findDecl(decls, ds.SourceType)
		plans = append(plans, TypePlan{
			Name:    ds.Name,
			RawName: ds.SourceType,
			Kind:    kind,
			Fields:  schemaFields(kind, decl, ds),
			Chunks:  sqlchunk.Encode(ds),
		})
		seen[ds.SourceType] = true
	}
	for _, decl := range decls {
		if seen[decl.Name] {
			continue
		}
		seen[decl.Name] = true
		plans = append(plans, TypePlan{
			Name:    res.TypeName(kind, decl.Name),
			RawName: decl.Name,
			Kind:    kind,
			Fields:  schemaFields(kind, decl, nil),
		})
	}
	return plans
}

func findDecl(decls []models.TypeDecl, name string) models.TypeDecl {
	for _, d := range decls {
		if d.Name == name {
			return d
		}
	}
	return models.TypeDecl{Name: name}
}

// schemaFields lists declared attributes first, then columns only the data
// revealed, then the ID field and, for events, the Time field. Time is only
// reserved on events; an object attribute may own a column named Time.
func schemaFields(kind models.DatasetKind, decl models.TypeDecl, ds *models.Dataset) []platform.Field {
	reserved := map[string]bool{models.ColumnID: true}
	if kind == models.DatasetEvent {
		reserved[models.ColumnTime] = true
	}
	taken := make([]string, 0, len(reserved))
	for name := range reserved {
		taken = append(taken, name)
	}

	bySource := make(map[string]models.Column)
	namer := naming.NewNamer(taken...)
	if ds != nil {
		for _, col := range ds.Columns {
			if reserved[col.Name] {
				continue
			}
			namer.Claim(col.Name)
			if !col.Fold {
				bySource[col.Source] = col
			}
		}
	}

	var fields []platform.Field
	used := make(map[string]bool)
	for _, attr := range decl.Attributes {
		if col, ok := bySource[attr.Name]; ok {
			fields = append(fields, field(col.Name, attr.Type))
			used[col.Name] = true
			continue
		}
		name := naming.Sanitize(attr.Name)
		if reserved[name] {
			continue
		}
		name, _ = namer.Claim(name)
		fields = append(fields, field(name, attr.Type))
	}
	if ds != nil {
		for _, col := range ds.Columns {
			if reserved[col.Name] || used[col.Name] {
				continue
			}
			fields = append(fields, field(col.Name, col.Type))
		}
	}

	fields = append(fields, field(models.ColumnID, models.TypeString))
	if kind == models.DatasetEvent {
		fields = append(fields, field(models.ColumnTime, models.TypeDatetime))
	}
	return fields
}

func field(name string, t models.SemanticType) platform.Field {
	return platform.Field{Name: name, Namespace: platform.Namespace, DataType: DataType(t)}
}

// DataType maps a semantic type to the platform storage type.
func DataType(t models.SemanticType) string {
	switch t {
	case models.TypeInteger:
		return platform.DataTypeLong
	case models.TypeDatetime:
		return platform.DataTypeInstant
	case models.TypeFloat:
		return platform.DataTypeDouble
	case models.TypeBoolean:
		return platform.DataTypeBoolean
	default:
		return platform.DataTypeString
	}
}
