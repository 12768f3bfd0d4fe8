package platform

import (
	"errors"
	"fmt"
)

// Namespace used for everything this tool creates.
const Namespace = "custom"

// Remote storage types.
const (
	DataTypeString   = "CT_UTF8_STRING"
	DataTypeLong     = "CT_LONG"
	DataTypeInstant  = "CT_INSTANT"
	DataTypeDouble   = "CT_DOUBLE"
	DataTypeBoolean  = "CT_BOOLEAN"
	FieldID          = "ID"
	FieldTime        = "Time"
	CardinalityMany  = "HAS_MANY"
	DatasetTypeSQL   = "SQL_FACTORY_DATA_SET"
	SaveModeValidate = "VALIDATE"
	StatusValid      = "VALID"
)

// Factory target kinds.
const (
	TargetObject = "OBJECT"
	TargetEvent  = "EVENT"
)

var errEmptyName = errors.New("name is empty")

// Field is one attribute of a type schema.
type Field struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	DataType  string `json:"dataType"`
}

// CategoryMetadata names a category.
type CategoryMetadata struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// CategoryValue is one value assigned within a category.
type CategoryValue struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
}

// Category tags a type.
type Category struct {
	Metadata CategoryMetadata `json:"metadata"`
	Values   []CategoryValue  `json:"values"`
}

// EntityRef points at a type by name.
type EntityRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// RelationshipTarget is the object side of a relationship.
type RelationshipTarget struct {
	MappedBy          *string   `json:"mappedBy"`
	MappedByNamespace *string   `json:"mappedByNamespace"`
	ObjectRef         EntityRef `json:"objectRef"`
}

// RelationshipDeclaration declares a relationship on an event type.
type RelationshipDeclaration struct {
	Cardinality string             `json:"cardinality"`
	Name        string             `json:"name"`
	Namespace   string             `json:"namespace"`
	Target      RelationshipTarget `json:"target"`
}

// HasMany builds a HAS_MANY declaration towards objectType.
func HasMany(objectType string) RelationshipDeclaration {
	return RelationshipDeclaration{
		Cardinality: CardinalityMany,
		Name:        objectType,
		Namespace:   Namespace,
		Target: RelationshipTarget{
			ObjectRef: EntityRef{Name: objectType, Namespace: Namespace},
		},
	}
}

// Validate checks required fields.
func (r RelationshipDeclaration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relationship: %w", errEmptyName)
	}
	if r.Target.ObjectRef.Name == "" {
		return fmt.Errorf("relationship %q: target object is empty", r.Name)
	}
	if r.Cardinality == "" {
		return fmt.Errorf("relationship %q: cardinality is empty", r.Name)
	}
	return nil
}

// TypeSchema is the create body for object and event types.
type TypeSchema struct {
	Name          string                    `json:"name"`
	Tags          []string                  `json:"tags"`
	Description   string                    `json:"description"`
	Fields        []Field                   `json:"fields"`
	Relationships []RelationshipDeclaration `json:"relationships"`
	Categories    []Category                `json:"categories"`
	Color         string                    `json:"color,omitempty"`
}

// Validate checks the schema carries a name and exactly one string ID.
func (s TypeSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("type schema: %w", errEmptyName)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %s: field %w", s.Name, errEmptyName)
		}
		if seen[f.Name] {
			return fmt.Errorf("type %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return s.requireField(FieldID, DataTypeString)
}

// ValidateEvent additionally requires exactly one instant Time field.
func (s TypeSchema) ValidateEvent() error {
	if err := s.Validate(); err != nil {
		return err
	}
	return s.requireField(FieldTime, DataTypeInstant)
}

func (s TypeSchema) requireField(name, dataType string) error {
	for _, f := range s.Fields {
		if f.Name == name {
			if f.DataType != dataType {
				return fmt.Errorf("type %s: field %s must be %s, got %s", s.Name, name, dataType, f.DataType)
			}
			return nil
		}
	}
	return fmt.Errorf("type %s: missing field %s", s.Name, name)
}

// FactoryTarget says which type a factory feeds.
type FactoryTarget struct {
	EntityRef EntityRef `json:"entityRef"`
	Kind      string    `json:"kind"`
}

// FactoryCreateRequest is the body for creating a draft factory.
type FactoryCreateRequest struct {
	FactoryID        string         `json:"factoryId"`
	Namespace        string         `json:"namespace"`
	ChangeDate       int64          `json:"changeDate"`
	CreationDate     int64          `json:"creationDate"`
	DataConnectionID string         `json:"dataConnectionId"`
	DisplayName      string         `json:"displayName"`
	Target           FactoryTarget  `json:"target"`
	Draft            bool           `json:"draft"`
	LocalParameters  []any          `json:"localParameters"`
	ChangedBy        map[string]any `json:"changedBy"`
	CreatedBy        map[string]any `json:"createdBy"`
}

// Validate checks required fields.
func (r FactoryCreateRequest) Validate() error {
	if r.DisplayName == "" {
		return fmt.Errorf("factory: display %w", errEmptyName)
	}
	if r.Target.EntityRef.Name == "" {
		return fmt.Errorf("factory %q: target is empty", r.DisplayName)
	}
	if r.Target.Kind != TargetObject && r.Target.Kind != TargetEvent {
		return fmt.Errorf("factory %q: unknown target kind %q", r.DisplayName, r.Target.Kind)
	}
	return nil
}

// SQLFactoryDataset is one SQL statement attached to a transformation.
type SQLFactoryDataset struct {
	ID                string `json:"id"`
	Disabled          bool   `json:"disabled"`
	SQL               string `json:"sql"`
	Overwrite         any    `json:"overwrite"`
	MaterialiseCte    bool   `json:"materialiseCte"`
	Type              string `json:"type"`
	CompleteOverwrite bool   `json:"completeOverwrite"`
}

// RelationshipTransformation is a relationship slot of a factory.
type RelationshipTransformation struct {
	RelationshipName   string              `json:"relationshipName"`
	SQLFactoryDatasets []SQLFactoryDataset `json:"sqlFactoryDatasets"`
}

// Transformation maps SQL datasets to the target's properties and
// relationships.
type Transformation struct {
	Namespace                   string                       `json:"namespace"`
	ForeignKeyNames             []string                     `json:"foreignKeyNames"`
	PropertyNames               []string                     `json:"propertyNames"`
	PropertySQLFactoryDatasets  []SQLFactoryDataset          `json:"propertySqlFactoryDatasets"`
	ChangeSQLFactoryDatasets    []SQLFactoryDataset          `json:"changeSqlFactoryDatasets"`
	RelationshipTransformations []RelationshipTransformation `json:"relationshipTransformations"`
}

// Factory is both the stored factory returned by the platform and the
// update body sent back to it.
type Factory struct {
	FactoryID        string           `json:"factoryId"`
	Namespace        string           `json:"namespace"`
	ChangeDate       int64            `json:"changeDate"`
	CreationDate     int64            `json:"creationDate"`
	DataConnectionID string           `json:"dataConnectionId"`
	DisplayName      string           `json:"displayName"`
	Target           FactoryTarget    `json:"target"`
	Draft            bool             `json:"draft"`
	LocalParameters  []any            `json:"localParameters"`
	ChangedBy        map[string]any   `json:"changedBy"`
	CreatedBy        map[string]any   `json:"createdBy"`
	Transformations  []Transformation `json:"transformations"`
	SaveMode         string           `json:"saveMode,omitempty"`
	Disabled         bool             `json:"disabled"`
	ValidationStatus string           `json:"validationStatus,omitempty"`
}

// Validate checks the factory can be addressed and its datasets are
// complete.
func (f Factory) Validate() error {
	if f.FactoryID == "" {
		return fmt.Errorf("factory %q: factoryId is empty", f.DisplayName)
	}
	for _, t := range f.Transformations {
		for _, ds := range t.PropertySQLFactoryDatasets {
			if err := ds.validate(); err != nil {
				return fmt.Errorf("factory %s: %w", f.FactoryID, err)
			}
		}
		for _, rt := range t.RelationshipTransformations {
			for _, ds := range rt.SQLFactoryDatasets {
				if err := ds.validate(); err != nil {
					return fmt.Errorf("factory %s relationship %s: %w", f.FactoryID, rt.RelationshipName, err)
				}
			}
		}
	}
	return nil
}

// RelationshipSlots lists relationship names the factory exposes.
func (f Factory) RelationshipSlots() []string {
	var names []string
	seen := make(map[string]bool)
	for _, t := range f.Transformations {
		for _, rt := range t.RelationshipTransformations {
			if rt.RelationshipName == "" || seen[rt.RelationshipName] {
				continue
			}
			seen[rt.RelationshipName] = true
			names = append(names, rt.RelationshipName)
		}
	}
	return names
}

func (d SQLFactoryDataset) validate() error {
	if d.ID == "" {
		return errors.New("sql dataset id is empty")
	}
	if d.SQL == "" {
		return fmt.Errorf("sql dataset %s has no SQL", d.ID)
	}
	return nil
}

// EventTypeDefinition is an event type as the platform returns it.
type EventTypeDefinition struct {
	ID            string                    `json:"id,omitempty"`
	Name          string                    `json:"name"`
	Namespace     string                    `json:"namespace,omitempty"`
	Description   string                    `json:"description"`
	Tags          []string                  `json:"tags"`
	Fields        []Field                   `json:"fields"`
	Relationships []RelationshipDeclaration `json:"relationships"`
	Categories    []Category                `json:"categories"`
	CreatedBy     map[string]any            `json:"createdBy,omitempty"`
	CreationDate  int64                     `json:"creationDate,omitempty"`
	ChangedBy     map[string]any            `json:"changedBy,omitempty"`
	ChangeDate    int64                     `json:"changeDate,omitempty"`
}

// EventTypeUpdate is the PUT body for an event type: the definition without
// server-managed fields.
type EventTypeUpdate struct {
	Name          string                    `json:"name"`
	Description   string                    `json:"description"`
	Tags          []string                  `json:"tags"`
	Fields        []Field                   `json:"fields"`
	Relationships []RelationshipDeclaration `json:"relationships"`
	Categories    []Category                `json:"categories"`
}

// Updatable strips id, namespace and creation metadata.
func (d EventTypeDefinition) Updatable() EventTypeUpdate {
	return EventTypeUpdate{
		Name:          d.Name,
		Description:   d.Description,
		Tags:          append([]string{}, d.Tags...),
		Fields:        append([]Field{}, d.Fields...),
		Relationships: append([]RelationshipDeclaration{}, d.Relationships...),
		Categories:    append([]Category{}, d.Categories...),
	}
}

// HasRelationship reports whether a relationship to the named target already
// exists.
func (u EventTypeUpdate) HasRelationship(target string) bool {
	for _, r := range u.Relationships {
		if r.Name == target || r.Target.ObjectRef.Name == target {
			return true
		}
	}
	return false
}

// Validate checks required fields.
func (u EventTypeUpdate) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("event type: %w", errEmptyName)
	}
	for _, r := range u.Relationships {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("event type %s: %w", u.Name, err)
		}
	}
	return nil
}

// EventTypePage is one page of the event type listing.
type EventTypePage struct {
	Content    []EventTypeDefinition `json:"content"`
	Number     int                   `json:"number"`
	Last       bool                  `json:"last"`
	TotalPages int                   `json:"totalPages"`
}
