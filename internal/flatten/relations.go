package flatten

import (
	"fmt"

	"ocelbridge/pkg/models"
)

type typePair struct {
	source string
	target string
}

// discoverEventObjectRelationships classifies every (event type, object
// type) pair that has at least one edge. One-to-one pairs become a column on
// the event table; one-to-many pairs get a junction table.
func discoverEventObjectRelationships(log *models.EventLog, res *Result) {
	var order []typePair
	edges := make(map[typePair][]models.Relation)
	for _, rel := range log.Relations {
		p := typePair{source: rel.EventType, target: rel.ObjectType}
		if _, ok := edges[p]; !ok {
			order = append(order, p)
		}
		edges[p] = append(edges[p], rel)
	}

	for _, p := range order {
		rels := edges[p]
		evtDS, ok := res.eventByType[p.source]
		if !ok {
			continue
		}

		targets := make(map[string]map[string]struct{})
		for _, rel := range rels {
			set, ok := targets[rel.EventID]
			if !ok {
				set = make(map[string]struct{})
				targets[rel.EventID] = set
			}
			set[rel.ObjectID] = struct{}{}
		}
		maxTargets := 0
		for _, set := range targets {
			if len(set) > maxTargets {
				maxTargets = len(set)
			}
		}

		objName := res.TypeName(models.DatasetObject, p.target)
		cand := &models.RelationshipCandidate{
			Scope:         models.ScopeEventObject,
			SourceType:    evtDS.Name,
			TargetType:    objName,
			RawSourceType: p.source,
			RawTargetType: p.target,
			Kind:          models.ClassifyCardinality(maxTargets),
			MaxTargets:    maxTargets,
			Edges:         len(rels),
		}
		res.Candidates = append(res.Candidates, cand)

		if cand.Kind == models.OneToOne {
			mapping := make(map[string]string, len(rels))
			for _, rel := range rels {
				mapping[rel.EventID] = rel.ObjectID
			}
			col := res.claimColumn(evtDS, objName, p.target)
			evtDS.AddColumn(models.Column{Name: col, Source: p.target, Type: models.TypeString, Fold: true}, lookup(mapping))
			continue
		}

		ds := &models.Dataset{
			Name:       fmt.Sprintf("%s_%s_relations", evtDS.Name, objName),
			Kind:       models.DatasetRelation,
			SourceType: p.source,
			Columns: []models.Column{
				{Name: models.ColumnID, Source: p.source, Type: models.TypeString},
				{Name: objName, Source: p.target, Type: models.TypeString},
			},
			Rows: make([][]any, 0, len(rels)),
		}
		for _, rel := range rels {
			ds.Rows = append(ds.Rows, []any{rel.EventID, rel.ObjectID})
		}
		cand.Dataset = ds
		res.Relations = append(res.Relations, ds)
	}
}

func lookup(mapping map[string]string) func(string) any {
	return func(id string) any {
		if v, ok := mapping[id]; ok {
			return v
		}
		return nil
	}
}
