package flatten

import (
	"time"

	"ocelbridge/internal/naming"
	"ocelbridge/pkg/models"
)

type record struct {
	id    string
	typ   string
	time  time.Time
	attrs models.Attributes
}

type typeGroup struct {
	rawType string
	records []record
}

func groupObjects(log *models.EventLog, res *Result) []*models.Dataset {
	records := make([]record, len(log.Objects))
	for i, o := range log.Objects {
		records[i] = record{id: o.ID, typ: o.Type, attrs: o.Attributes}
	}
	datasets := groupByType(records, models.DatasetObject, log.DeclaredObjectType, res)
	for _, ds := range datasets {
		res.objectByType[ds.SourceType] = ds
	}
	return datasets
}

func groupEvents(log *models.EventLog, res *Result) []*models.Dataset {
	records := make([]record, len(log.Events))
	for i, e := range log.Events {
		records[i] = record{id: e.ID, typ: e.Type, time: e.Time, attrs: e.Attributes}
	}
	datasets := groupByType(records, models.DatasetEvent, log.DeclaredEventType, res)
	for _, ds := range datasets {
		res.eventByType[ds.SourceType] = ds
	}
	return datasets
}

// groupByType partitions records by type and builds one dataset per type.
// Columns are ID (plus Time for events) followed by every attribute that has
// at least one non-null value, in first-seen order.
func groupByType(records []record, kind models.DatasetKind, declared func(string) (models.TypeDecl, bool), res *Result) []*models.Dataset {
	var groups []*typeGroup
	byType := make(map[string]*typeGroup)
	for _, rec := range records {
		g, ok := byType[rec.typ]
		if !ok {
			g = &typeGroup{rawType: rec.typ}
			byType[rec.typ] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, rec)
	}

	withTime := kind == models.DatasetEvent
	datasets := make([]*models.Dataset, 0, len(groups))
	for _, g := range groups {
		decl, _ := declared(g.rawType)
		datasets = append(datasets, buildTypeDataset(g, kind, withTime, decl, res))
	}
	return datasets
}

func buildTypeDataset(g *typeGroup, kind models.DatasetKind, withTime bool, decl models.TypeDecl, res *Result) *models.Dataset {
	ds := &models.Dataset{
		Name:       res.TypeName(kind, g.rawType),
		Kind:       kind,
		SourceType: g.rawType,
		Columns:    []models.Column{{Name: models.ColumnID, Type: models.TypeString}},
	}
	reserved := []string{models.ColumnID}
	if withTime {
		ds.Columns = append(ds.Columns, models.Column{Name: models.ColumnTime, Type: models.TypeDatetime})
		reserved = append(reserved, models.ColumnTime)
	}
	res.namers[ds] = naming.NewNamer(reserved...)

	var attrOrder []string
	hasValue := make(map[string]bool)
	for _, rec := range g.records {
		for _, a := range rec.attrs {
			if _, seen := hasValue[a.Name]; !seen {
				attrOrder = append(attrOrder, a.Name)
				hasValue[a.Name] = false
			}
			if a.Value != nil {
				hasValue[a.Name] = true
			}
		}
	}

	var kept []string
	for _, attr := range attrOrder {
		if !hasValue[attr] {
			continue
		}
		kept = append(kept, attr)
		values := make([]any, 0, len(g.records))
		for _, rec := range g.records {
			if v, ok := rec.attrs.Get(attr); ok && v != nil {
				values = append(values, v)
			}
		}
		colType, ok := declaredType(decl, attr)
		if !ok {
			colType = inferType(values)
		}
		name := res.claimColumn(ds, res.sanitize(attr, "attribute"), attr)
		ds.Columns = append(ds.Columns, models.Column{Name: name, Source: attr, Type: colType})
	}

	ds.Rows = make([][]any, 0, len(g.records))
	for _, rec := range g.records {
		row := make([]any, 0, len(ds.Columns))
		row = append(row, rec.id)
		if withTime {
			row = append(row, rec.time)
		}
		for _, attr := range kept {
			v, _ := rec.attrs.Get(attr)
			row = append(row, v)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func declaredType(decl models.TypeDecl, attr string) (models.SemanticType, bool) {
	for _, a := range decl.Attributes {
		if a.Name == attr {
			return a.Type, true
		}
	}
	return "", false
}

// inferType picks the narrowest semantic type that fits every value.
func inferType(values []any) models.SemanticType {
	if len(values) == 0 {
		return models.TypeString
	}
	var ints, floats, bools, times int
	for _, v := range values {
		switch v.(type) {
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		}
	}
	n := len(values)
	switch {
	case times == n:
		return models.TypeDatetime
	case ints == n:
		return models.TypeInteger
	case ints+floats == n:
		return models.TypeFloat
	case bools == n:
		return models.TypeBoolean
	default:
		return models.TypeString
	}
}
