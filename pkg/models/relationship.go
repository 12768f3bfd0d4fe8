package models

// Cardinality classifies a discovered relationship.
type Cardinality string

const (
	OneToOne  Cardinality = "ONE_TO_ONE"
	OneToMany Cardinality = "ONE_TO_MANY"
)

// ClassifyCardinality returns OneToOne when no source instance has more than
// one distinct target.
func ClassifyCardinality(maxTargets int) Cardinality {
	if maxTargets <= 1 {
		return OneToOne
	}
	return OneToMany
}

// RelationshipScope tells which kinds of entities a candidate connects.
type RelationshipScope string

const (
	ScopeEventObject  RelationshipScope = "event_object"
	ScopeObjectObject RelationshipScope = "object_object"
)

// RelationshipCandidate is a discovered (source type, target type) pair.
//
// For event-object candidates the source is the event type and the target the
// object type. For object-object candidates the source is the child type and
// the target the lead type. Dataset is set only for OneToMany candidates.
type RelationshipCandidate struct {
	Scope         RelationshipScope `json:"scope"`
	SourceType    string            `json:"source_type"`
	TargetType    string            `json:"target_type"`
	RawSourceType string            `json:"raw_source_type"`
	RawTargetType string            `json:"raw_target_type"`
	Kind          Cardinality       `json:"kind"`
	MaxTargets    int               `json:"max_targets"`
	Edges         int               `json:"edges"`
	Dataset       *Dataset          `json:"-"`
}
