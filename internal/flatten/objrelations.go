package flatten

import (
	"fmt"

	"ocelbridge/pkg/models"
)

type objectEdge struct {
	child string
	lead  string
}

// discoverObjectRelationships links objects of every other type to objects
// of leadType when they take part in the same event. A child type whose
// objects each meet exactly one lead object gets a lead column; otherwise a
// junction table with one row per distinct (child, lead) pair is built.
func discoverObjectRelationships(log *models.EventLog, leadType string, res *Result) {
	if _, ok := res.objectByType[leadType]; !ok {
		res.warnf("lead object type %q has no objects; object relationships skipped", leadType)
		return
	}
	leadName := res.TypeName(models.DatasetObject, leadType)

	leadsByEvent := make(map[string][]string)
	for _, rel := range log.Relations {
		if rel.ObjectType == leadType {
			leadsByEvent[rel.EventID] = append(leadsByEvent[rel.EventID], rel.ObjectID)
		}
	}

	var childTypes []string
	edgesByType := make(map[string][]objectEdge)
	seen := make(map[string]map[objectEdge]struct{})
	for _, rel := range log.Relations {
		if rel.ObjectType == leadType {
			continue
		}
		for _, lead := range leadsByEvent[rel.EventID] {
			e := objectEdge{child: rel.ObjectID, lead: lead}
			set, ok := seen[rel.ObjectType]
			if !ok {
				set = make(map[objectEdge]struct{})
				seen[rel.ObjectType] = set
				childTypes = append(childTypes, rel.ObjectType)
			}
			if _, dup := set[e]; dup {
				continue
			}
			set[e] = struct{}{}
			edgesByType[rel.ObjectType] = append(edgesByType[rel.ObjectType], e)
		}
	}

	for _, childType := range childTypes {
		childDS, ok := res.objectByType[childType]
		if !ok {
			continue
		}
		edges := edgesByType[childType]

		leadCount := make(map[string]int)
		maxLeads := 0
		for _, e := range edges {
			leadCount[e.child]++
			if leadCount[e.child] > maxLeads {
				maxLeads = leadCount[e.child]
			}
		}

		cand := &models.RelationshipCandidate{
			Scope:         models.ScopeObjectObject,
			SourceType:    childDS.Name,
			TargetType:    leadName,
			RawSourceType: childType,
			RawTargetType: leadType,
			Kind:          models.ClassifyCardinality(maxLeads),
			MaxTargets:    maxLeads,
			Edges:         len(edges),
		}
		res.Candidates = append(res.Candidates, cand)

		if cand.Kind == models.OneToOne {
			mapping := make(map[string]string, len(edges))
			for _, e := range edges {
				mapping[e.child] = e.lead
			}
			col := res.claimColumn(childDS, leadName, leadType)
			childDS.AddColumn(models.Column{Name: col, Source: leadType, Type: models.TypeString, Fold: true}, lookup(mapping))
			continue
		}

		ds := &models.Dataset{
			Name:       fmt.Sprintf("%s_%s_objrelations", leadName, childDS.Name),
			Kind:       models.DatasetObjectRelation,
			SourceType: childType,
			Columns: []models.Column{
				{Name: models.ColumnID, Source: childType, Type: models.TypeString},
				{Name: leadName, Source: leadType, Type: models.TypeString},
			},
			Rows: make([][]any, 0, len(edges)),
		}
		for _, e := range edges {
			ds.Rows = append(ds.Rows, []any{e.child, e.lead})
		}
		cand.Dataset = ds
		res.ObjectRelations = append(res.ObjectRelations, ds)
	}
}
