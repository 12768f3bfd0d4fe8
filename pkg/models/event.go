package models

import (
	"fmt"
	"time"
)

// Attribute is a named value on an event or object. Value is nil, string,
// int64, float64, bool or time.Time.
type Attribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Attributes keeps attribute order as first seen in the source document.
type Attributes []Attribute

// Get returns the value for name.
func (a Attributes) Get(name string) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// String returns the attribute value formatted as text.
func (a Attributes) String(name string) string {
	v, ok := a.Get(name)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%f", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Link is a qualified reference to an object.
type Link struct {
	ObjectID  string `json:"object_id"`
	Qualifier string `json:"qualifier,omitempty"`
}

// Event is one OCEL event.
type Event struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Time       time.Time  `json:"time"`
	Attributes Attributes `json:"attributes,omitempty"`
	Links      []Link     `json:"links,omitempty"`
}

// Object is one OCEL object. Attributes hold the current value of each
// attribute; later distinct values live in EventLog.ObjectChanges.
type Object struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes,omitempty"`
	Links      []Link     `json:"links,omitempty"`
}

// ObjectChange archives a later value of an object attribute.
type ObjectChange struct {
	ObjectID string    `json:"object_id"`
	Type     string    `json:"type"`
	Field    string    `json:"field"`
	Value    any       `json:"value"`
	Time     time.Time `json:"time,omitempty"`
}

// Relation is one event-to-object edge.
type Relation struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	ObjectID   string `json:"object_id"`
	ObjectType string `json:"object_type"`
	Qualifier  string `json:"qualifier,omitempty"`
}

// AttributeDecl declares an attribute and its semantic type.
type AttributeDecl struct {
	Name string       `json:"name"`
	Type SemanticType `json:"type"`
}

// TypeDecl declares an object or event type.
type TypeDecl struct {
	Name       string          `json:"name"`
	Attributes []AttributeDecl `json:"attributes"`
}

// EventLog is the canonical, read-only form of an OCEL document.
type EventLog struct {
	Events        []Event
	Objects       []Object
	Relations     []Relation
	ObjectChanges []ObjectChange
	ObjectTypes   []TypeDecl
	EventTypes    []TypeDecl

	objectIndex map[string]int
}

// NewEventLog builds an EventLog and derives its relations.
func NewEventLog(events []Event, objects []Object, changes []ObjectChange, objectTypes, eventTypes []TypeDecl) *EventLog {
	l := &EventLog{
		Events:        events,
		Objects:       objects,
		ObjectChanges: changes,
		ObjectTypes:   objectTypes,
		EventTypes:    eventTypes,
		objectIndex:   make(map[string]int, len(objects)),
	}
	for i, o := range objects {
		l.objectIndex[o.ID] = i
	}
	for _, e := range events {
		for _, link := range e.Links {
			obj, ok := l.Object(link.ObjectID)
			if !ok {
				continue
			}
			l.Relations = append(l.Relations, Relation{
				EventID:    e.ID,
				EventType:  e.Type,
				ObjectID:   obj.ID,
				ObjectType: obj.Type,
				Qualifier:  link.Qualifier,
			})
		}
	}
	return l
}

// Object returns the object with the given id.
func (l *EventLog) Object(id string) (*Object, bool) {
	i, ok := l.objectIndex[id]
	if !ok {
		return nil, false
	}
	return &l.Objects[i], true
}

// DeclaredObjectType returns the declaration for an object type, if any.
func (l *EventLog) DeclaredObjectType(name string) (TypeDecl, bool) {
	return findDecl(l.ObjectTypes, name)
}

// DeclaredEventType returns the declaration for an event type, if any.
func (l *EventLog) DeclaredEventType(name string) (TypeDecl, bool) {
	return findDecl(l.EventTypes, name)
}

func findDecl(decls []TypeDecl, name string) (TypeDecl, bool) {
	for _, d := range decls {
		if d.Name == name {
			return d, true
		}
	}
	return TypeDecl{}, false
}
