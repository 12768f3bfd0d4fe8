package ocel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"ocelbridge/pkg/models"
)

// InputError reports a malformed OCEL document. It is fatal: nothing is
// provisioned when loading fails.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid ocel document: %s: %v", e.Reason, e.Err)
	}
	return "invalid ocel document: " + e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputErrorf(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

type rawDocument struct {
	ObjectTypes []rawTypeDecl `json:"objectTypes"`
	EventTypes  []rawTypeDecl `json:"eventTypes"`
	Events      *[]rawEvent   `json:"events"`
	Objects     *[]rawObject  `json:"objects"`
}

type rawTypeDecl struct {
	Name       string `json:"name"`
	Attributes []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"attributes"`
}

type rawAttribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Time  string `json:"time"`
}

type rawRelationship struct {
	ObjectID  string `json:"objectId"`
	Qualifier string `json:"qualifier"`
}

type rawEvent struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Time          string            `json:"time"`
	Attributes    []rawAttribute    `json:"attributes"`
	Relationships []rawRelationship `json:"relationships"`
}

type rawObject struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    []rawAttribute    `json:"attributes"`
	Relationships []rawRelationship `json:"relationships"`
}

// Result is a loaded log plus the non-fatal problems found while loading.
type Result struct {
	Log      *models.EventLog
	Warnings []string
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Load reads an OCEL 2.0 JSON document from path ("-" for stdin).
func Load(path string) (*Result, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read ocel document: %w", err)
	}
	return Parse(data)
}

// Parse converts an OCEL 2.0 JSON document into a canonical EventLog.
func Parse(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc rawDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, &InputError{Reason: "malformed json", Err: err}
	}
	if doc.Events == nil {
		return nil, inputErrorf("missing events array")
	}
	if doc.Objects == nil {
		return nil, inputErrorf("missing objects array")
	}

	res := &Result{}
	objectTypes := parseTypeDecls(doc.ObjectTypes, res)
	eventTypes := parseTypeDecls(doc.EventTypes, res)

	objects, changes, err := normalizeObjects(*doc.Objects, objectTypes, res)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(objects))
	for _, o := range objects {
		known[o.ID] = struct{}{}
	}
	for i := range objects {
		objects[i].Links = resolveLinks(objects[i].Links, known, "object", objects[i].ID, res)
	}

	events, err := normalizeEvents(*doc.Events, eventTypes, res)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Links = resolveLinks(events[i].Links, known, "event", events[i].ID, res)
	}

	res.Log = models.NewEventLog(events, objects, changes, objectTypes, eventTypes)
	return res, nil
}

func parseTypeDecls(raw []rawTypeDecl, res *Result) []models.TypeDecl {
	out := make([]models.TypeDecl, 0, len(raw))
	for _, d := range raw {
		decl := models.TypeDecl{Name: d.Name}
		for _, a := range d.Attributes {
			st, ok := models.ParseSemanticType(a.Type)
			if !ok {
				res.warnf("type %q attribute %q has unknown type %q; using string", d.Name, a.Name, a.Type)
			}
			decl.Attributes = append(decl.Attributes, models.AttributeDecl{Name: a.Name, Type: st})
		}
		out = append(out, decl)
	}
	return out
}

func normalizeEvents(raw []rawEvent, decls []models.TypeDecl, res *Result) ([]models.Event, error) {
	events := make([]models.Event, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, e := range raw {
		if strings.TrimSpace(e.ID) == "" {
			return nil, inputErrorf("event at index %d has no id", i)
		}
		if strings.TrimSpace(e.Type) == "" {
			return nil, inputErrorf("event %q has no type", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			res.warnf("duplicate event id %q; keeping the first occurrence", e.ID)
			continue
		}
		seen[e.ID] = struct{}{}

		ts, ok := parseTime(e.Time)
		if !ok {
			return nil, inputErrorf("event %q has invalid time %q", e.ID, e.Time)
		}

		decl, _ := findDecl(decls, e.Type)
		event := models.Event{ID: e.ID, Type: e.Type, Time: ts}
		for _, a := range e.Attributes {
			if _, exists := event.Attributes.Get(a.Name); exists {
				res.warnf("event %q repeats attribute %q; keeping the first value", e.ID, a.Name)
				continue
			}
			event.Attributes = append(event.Attributes, models.Attribute{
				Name:  a.Name,
				Value: coerce(normalizeValue(a.Value), decl, a.Name, res),
			})
		}
		event.Links = dedupLinks(e.Relationships)
		events = append(events, event)
	}
	return events, nil
}

func normalizeObjects(raw []rawObject, decls []models.TypeDecl, res *Result) ([]models.Object, []models.ObjectChange, error) {
	objects := make([]models.Object, 0, len(raw))
	var changes []models.ObjectChange
	seen := make(map[string]struct{}, len(raw))
	for i, o := range raw {
		if strings.TrimSpace(o.ID) == "" {
			return nil, nil, inputErrorf("object at index %d has no id", i)
		}
		if strings.TrimSpace(o.Type) == "" {
			return nil, nil, inputErrorf("object %q has no type", o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			res.warnf("duplicate object id %q; keeping the first occurrence", o.ID)
			continue
		}
		seen[o.ID] = struct{}{}

		decl, _ := findDecl(decls, o.Type)
		obj := models.Object{ID: o.ID, Type: o.Type}
		last := make(map[string]any)
		for _, a := range o.Attributes {
			value := coerce(normalizeValue(a.Value), decl, a.Name, res)
			prev, exists := last[a.Name]
			if !exists {
				obj.Attributes = append(obj.Attributes, models.Attribute{Name: a.Name, Value: value})
				last[a.Name] = value
				continue
			}
			if valuesEqual(prev, value) {
				continue
			}
			ts, _ := parseTime(a.Time)
			changes = append(changes, models.ObjectChange{
				ObjectID: o.ID,
				Type:     o.Type,
				Field:    a.Name,
				Value:    value,
				Time:     ts,
			})
			last[a.Name] = value
		}
		obj.Links = dedupLinks(o.Relationships)
		objects = append(objects, obj)
	}
	return objects, changes, nil
}

func dedupLinks(raw []rawRelationship) []models.Link {
	if len(raw) == 0 {
		return nil
	}
	links := make([]models.Link, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if _, dup := seen[r.ObjectID]; dup {
			continue
		}
		seen[r.ObjectID] = struct{}{}
		links = append(links, models.Link{ObjectID: r.ObjectID, Qualifier: r.Qualifier})
	}
	return links
}

func resolveLinks(links []models.Link, known map[string]struct{}, kind, id string, res *Result) []models.Link {
	out := links[:0]
	for _, l := range links {
		if _, ok := known[l.ObjectID]; !ok {
			res.warnf("%s %q references unknown object %q; relationship dropped", kind, id, l.ObjectID)
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func findDecl(decls []models.TypeDecl, name string) (models.TypeDecl, bool) {
	for _, d := range decls {
		if d.Name == name {
			return d, true
		}
	}
	return models.TypeDecl{}, false
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		// Integers beyond int64 keep their digits as text.
		if !strings.ContainsAny(val.String(), ".eE") {
			return val.String()
		}
		if f, err := val.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
		return val.String()
	case string, bool:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// coerce converts v to the declared type of attribute name. Values that do
// not convert are kept as they are.
func coerce(v any, decl models.TypeDecl, name string, res *Result) any {
	if v == nil {
		return nil
	}
	var want models.SemanticType
	found := false
	for _, a := range decl.Attributes {
		if a.Name == name {
			want, found = a.Type, true
			break
		}
	}
	if !found {
		return v
	}

	switch want {
	case models.TypeDatetime:
		if s, ok := v.(string); ok {
			if ts, ok := parseTime(s); ok {
				return ts
			}
		}
	case models.TypeInteger:
		switch val := v.(type) {
		case int64:
			return val
		case float64:
			if val == math.Trunc(val) {
				return int64(val)
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return i
			}
		}
	case models.TypeFloat:
		switch val := v.(type) {
		case float64:
			return val
		case int64:
			return float64(val)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f
			}
		}
	case models.TypeBoolean:
		switch val := v.(type) {
		case bool:
			return val
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				return b
			}
		}
	case models.TypeString:
		return models.Attributes{{Name: name, Value: v}}.String(name)
	}

	res.warnf("%s attribute %q value %v does not match declared type %s", decl.Name, name, v, want)
	return v
}

func valuesEqual(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok || bok {
		return aok && bok && ta.Equal(tb)
	}
	return a == b
}

// parseTime accepts RFC3339 and plain "2006-01-02 15:04:05" style layouts.
// Values without a zone are read as UTC.
func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.000000000",
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000000000",
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// IsInputError reports whether err is an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
