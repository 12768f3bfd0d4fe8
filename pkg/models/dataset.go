package models

import "strings"

// SemanticType is the platform-independent type of a column.
type SemanticType string

const (
	TypeString   SemanticType = "string"
	TypeInteger  SemanticType = "integer"
	TypeDatetime SemanticType = "datetime"
	TypeFloat    SemanticType = "float"
	TypeBoolean  SemanticType = "boolean"
)

// ParseSemanticType maps a declared attribute type to a SemanticType.
// OCEL declares timestamps as "time"; unknown types report false.
func ParseSemanticType(raw string) (SemanticType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "string", "text":
		return TypeString, true
	case "integer", "int":
		return TypeInteger, true
	case "float", "double", "number":
		return TypeFloat, true
	case "boolean", "bool":
		return TypeBoolean, true
	case "datetime", "time", "timestamp", "date":
		return TypeDatetime, true
	default:
		return TypeString, false
	}
}

// Reserved column names.
const (
	ColumnID   = "ID"
	ColumnTime = "Time"
)

// DatasetKind tells where a dataset came from.
type DatasetKind string

const (
	DatasetObject         DatasetKind = "object"
	DatasetEvent          DatasetKind = "event"
	DatasetRelation       DatasetKind = "relation"
	DatasetObjectRelation DatasetKind = "object_relation"
)

// Column is one dataset column. Source is the raw attribute name, or the
// raw related type name for a folded one-to-one relationship (Fold set).
type Column struct {
	Name   string       `json:"name"`
	Source string       `json:"source,omitempty"`
	Type   SemanticType `json:"type"`
	Fold   bool         `json:"fold,omitempty"`
}

// Dataset is a flattened table. A nil cell is NULL.
type Dataset struct {
	Name       string      `json:"name"`
	Kind       DatasetKind `json:"kind"`
	SourceType string      `json:"source_type"`
	Columns    []Column    `json:"columns"`
	Rows       [][]any     `json:"rows"`
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of a column or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// AddColumn appends a column filled by fill(rowID). Rows without a value get nil.
func (d *Dataset) AddColumn(col Column, fill func(id string) any) {
	idIdx := d.ColumnIndex(ColumnID)
	d.Columns = append(d.Columns, col)
	for i, row := range d.Rows {
		var v any
		if idIdx >= 0 {
			if id, ok := row[idIdx].(string); ok {
				v = fill(id)
			}
		}
		d.Rows[i] = append(row, v)
	}
}
