// Package flatten decomposes an object-centric event log into per-type
// tables and relationship tables.
package flatten

import (
	"fmt"

	"ocelbridge/internal/naming"
	"ocelbridge/pkg/models"
)

// Options controls optional parts of flattening.
type Options struct {
	// LeadObjectType enables object-to-object relationships derived through
	// shared events with objects of this (raw) type.
	LeadObjectType string
}

// Result holds every table derived from one log.
type Result struct {
	Objects         []*models.Dataset
	Events          []*models.Dataset
	Relations       []*models.Dataset
	ObjectRelations []*models.Dataset
	Candidates      []*models.RelationshipCandidate
	Warnings        []string

	objectByType map[string]*models.Dataset
	eventByType  map[string]*models.Dataset
	namers       map[*models.Dataset]*naming.Namer
	typeNames    *naming.Namer
	typeNameOf   map[string]string
}

func newResult() *Result {
	return &Result{
		objectByType: make(map[string]*models.Dataset),
		eventByType:  make(map[string]*models.Dataset),
		namers:       make(map[*models.Dataset]*naming.Namer),
		typeNames:    naming.NewNamer(),
		typeNameOf:   make(map[string]string),
	}
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ObjectDataset returns the dataset built for a raw object type.
func (r *Result) ObjectDataset(rawType string) (*models.Dataset, bool) {
	ds, ok := r.objectByType[rawType]
	return ds, ok
}

// EventDataset returns the dataset built for a raw event type.
func (r *Result) EventDataset(rawType string) (*models.Dataset, bool) {
	ds, ok := r.eventByType[rawType]
	return ds, ok
}

// TypeName returns the sanitized remote name for a raw type name.
func (r *Result) TypeName(kind models.DatasetKind, rawType string) string {
	key := string(kind) + "\x00" + rawType
	if name, ok := r.typeNameOf[key]; ok {
		return name
	}
	name := r.sanitize(rawType, "type")
	if kind == models.DatasetObject || kind == models.DatasetEvent {
		unique, fresh := r.typeNames.Claim(name)
		if !fresh {
			r.warnf("type %q sanitizes to %q which is already used; renamed to %q", rawType, name, unique)
		}
		name = unique
	}
	r.typeNameOf[key] = name
	return name
}

// OneToMany returns the candidates that need a junction table.
func (r *Result) OneToMany(scope models.RelationshipScope) []*models.RelationshipCandidate {
	var out []*models.RelationshipCandidate
	for _, c := range r.Candidates {
		if c.Scope == scope && c.Kind == models.OneToMany {
			out = append(out, c)
		}
	}
	return out
}

// Datasets returns all datasets in a stable order: objects, events,
// event-object junctions, object-object junctions.
func (r *Result) Datasets() []*models.Dataset {
	out := make([]*models.Dataset, 0, len(r.Objects)+len(r.Events)+len(r.Relations)+len(r.ObjectRelations))
	out = append(out, r.Objects...)
	out = append(out, r.Events...)
	out = append(out, r.Relations...)
	out = append(out, r.ObjectRelations...)
	return out
}

// sanitize cleans a name and records one warning per dropped character.
func (r *Result) sanitize(raw, what string) string {
	res := naming.Clean(raw)
	for _, ch := range res.Dropped {
		r.warnf("stripping invalid character %q from %s name %q", ch, what, raw)
	}
	if res.Prefixed {
		r.warnf("%s name %q does not start with a letter; prepended 'A'", what, raw)
	}
	return res.Name
}

// claimColumn reserves a column name on ds.
func (r *Result) claimColumn(ds *models.Dataset, name, source string) string {
	n := r.namers[ds]
	unique, fresh := n.Claim(name)
	if !fresh {
		r.warnf("column %q of %s clashes with an existing column; renamed to %q", source, ds.Name, unique)
	}
	return unique
}

// Flatten runs the full decomposition: type tables, event-object
// relationships and, when a lead type is set, object-object relationships.
func Flatten(log *models.EventLog, opts Options) *Result {
	res := newResult()
	res.Objects = groupObjects(log, res)
	res.Events = groupEvents(log, res)
	discoverEventObjectRelationships(log, res)
	if opts.LeadObjectType != "" {
		discoverObjectRelationships(log, opts.LeadObjectType, res)
	}
	return res
}
