// Package registry resolves Go model types to graph labels and property names.
//
// Ratatoskr never inspects struct tags on the query path. Every model type is
// registered exactly once at startup; registration reflects over the struct,
// reads its `graph` field tags, and produces an immutable TypeInfo that the
// rest of the library treats as a plain lookup table. Queries and writes only
// ever consult the resolved TypeInfo.
//
// Tag Syntax:
//
//	type Person struct {
//	    ID   string `graph:"id,identity"` // identity property (unique per database)
//	    Name string `graph:"name"`        // property "name"
//	    Age  int    // untagged: property name defaults to the field name ("Age")
//	    tmp  string `graph:"-"`           // ignored
//	}
//
//	type Knows struct {
//	    ID     string  `graph:"id,identity"`
//	    Start  string  `graph:",start"`  // identity of the source node
//	    End    string  `graph:",end"`    // identity of the target node
//	    Since  int     `graph:"since"`
//	    Weight float64 `graph:"weight,weight"` // used by weighted shortest path
//	}
//
// Example Usage:
//
//	reg := registry.New()
//	if _, err := registry.Register[Person](reg, registry.WithLabel("Person")); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := registry.RegisterRelationship[Knows, Person, Person](reg); err != nil {
//	    log.Fatal(err)
//	}
//
// A field named "ID" is the identity property by default when no field carries
// the identity flag. Registration fails fast on shapes the mapper cannot
// handle (unsupported field types, missing identity, duplicate labels), so
// model mistakes surface at startup rather than mid-query.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Common errors.
var (
	ErrNotRegistered  = errors.New("type not registered")
	ErrDuplicateLabel = errors.New("label already registered")
)

// Kind distinguishes node models from relationship models.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
)

// Field maps one Go struct field to one graph property.
type Field struct {
	Name  string // Go struct field name
	Prop  string // graph property name
	Index int    // reflect.StructField index
}

// TypeInfo is the resolved, immutable metadata for one registered model type.
//
// For relationship models, Start and End hold the declared endpoint model
// types; traversal uses them to infer direction. StartField/EndField name the
// struct fields carrying the endpoint node identities.
type TypeInfo struct {
	Kind    Kind
	Type    reflect.Type
	Label   string
	IDField string // Go field holding the identity
	IDProp  string // graph property holding the identity
	Fields  []Field // mapped non-identity properties, in declaration order

	Start      reflect.Type
	End        reflect.Type
	StartField string
	EndField   string
	WeightProp string
}

// Prop returns the graph property name for a Go field name, or an error
// naming the field when it is not mapped. The identity field resolves to the
// identity property.
func (ti *TypeInfo) Prop(field string) (string, error) {
	if field == ti.IDField {
		return ti.IDProp, nil
	}
	for _, f := range ti.Fields {
		if f.Name == field {
			return f.Prop, nil
		}
	}
	return "", fmt.Errorf("type %s has no mapped field %q", ti.Type.Name(), field)
}

// Registry is the lookup table of registered model types.
//
// Registration happens at startup; lookups afterwards are read-only, so a
// RWMutex keeps concurrent queries cheap.
type Registry struct {
	mu     sync.RWMutex
	types  map[reflect.Type]*TypeInfo
	labels map[string]*TypeInfo
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		types:  make(map[reflect.Type]*TypeInfo),
		labels: make(map[string]*TypeInfo),
	}
}

// Option customizes a registration.
type Option func(*TypeInfo)

// WithLabel overrides the label derived from the type name.
func WithLabel(label string) Option {
	return func(ti *TypeInfo) { ti.Label = label }
}

// Register registers T as a node model. The label defaults to the type name.
// Returns the resolved TypeInfo so callers can sanity-check the mapping.
func Register[T any](r *Registry, opts ...Option) (*TypeInfo, error) {
	ti, err := buildTypeInfo(reflect.TypeOf((*T)(nil)).Elem(), KindNode)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, r.add(ti)
}

// RegisterRelationship registers R as a relationship model with declared
// start node type S and end node type E. The relationship type label defaults
// to the upper-cased type name ("Knows" becomes "KNOWS"), matching the usual
// Cypher convention.
func RegisterRelationship[R, S, E any](r *Registry, opts ...Option) (*TypeInfo, error) {
	ti, err := buildTypeInfo(reflect.TypeOf((*R)(nil)).Elem(), KindRelationship)
	if err != nil {
		return nil, err
	}
	ti.Label = strings.ToUpper(ti.Label)
	ti.Start = reflect.TypeOf((*S)(nil)).Elem()
	ti.End = reflect.TypeOf((*E)(nil)).Elem()
	if ti.StartField == "" || ti.EndField == "" {
		return nil, fmt.Errorf("relationship type %s must tag one field with %q and one with %q", ti.Type.Name(), "start", "end")
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, r.add(ti)
}

// Lookup returns the TypeInfo for a reflect.Type.
func (r *Registry) Lookup(t reflect.Type) (*TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.types[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t.String())
	}
	return ti, nil
}

// LookupFor returns the TypeInfo for the model type T.
func LookupFor[T any](r *Registry) (*TypeInfo, error) {
	return r.Lookup(reflect.TypeOf((*T)(nil)).Elem())
}

// ByLabel returns the TypeInfo registered under a label, if any.
func (r *Registry) ByLabel(label string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.labels[label]
	return ti, ok
}

func (r *Registry) add(ti *TypeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[ti.Type]; ok {
		return fmt.Errorf("type %s already registered", ti.Type.String())
	}
	if _, ok := r.labels[ti.Label]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, ti.Label)
	}
	r.types[ti.Type] = ti
	r.labels[ti.Label] = ti
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

func buildTypeInfo(t reflect.Type, kind Kind) (*TypeInfo, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model type %s is not a struct", t.String())
	}
	ti := &TypeInfo{Kind: kind, Type: t, Label: t.Name()}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("graph")
		if tag == "-" {
			continue
		}
		prop, flags, _ := strings.Cut(tag, ",")
		if prop == "" {
			prop = sf.Name
		}

		switch {
		case hasFlag(flags, "identity"):
			if ti.IDField != "" {
				return nil, fmt.Errorf("type %s declares more than one identity field", t.Name())
			}
			if sf.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("identity field %s.%s must be a string", t.Name(), sf.Name)
			}
			ti.IDField, ti.IDProp = sf.Name, prop
			continue
		case hasFlag(flags, "start"):
			if kind != KindRelationship {
				return nil, fmt.Errorf("node type %s cannot declare a start field", t.Name())
			}
			ti.StartField = sf.Name
			continue
		case hasFlag(flags, "end"):
			if kind != KindRelationship {
				return nil, fmt.Errorf("node type %s cannot declare an end field", t.Name())
			}
			ti.EndField = sf.Name
			continue
		}

		if !supportedFieldType(sf.Type) {
			return nil, fmt.Errorf("field %s.%s has unsupported type %s", t.Name(), sf.Name, sf.Type.String())
		}
		if hasFlag(flags, "weight") {
			ti.WeightProp = prop
		}
		ti.Fields = append(ti.Fields, Field{Name: sf.Name, Prop: prop, Index: i})
	}

	if ti.IDField == "" {
		// Fall back to a conventional ID field.
		if sf, ok := t.FieldByName("ID"); ok && sf.Type.Kind() == reflect.String {
			ti.IDField, ti.IDProp = "ID", "id"
			ti.Fields = removeField(ti.Fields, "ID")
		} else {
			return nil, fmt.Errorf("type %s has no identity field (tag one with `graph:\"...,identity\"` or add a string ID field)", t.Name())
		}
	}
	return ti, nil
}

func hasFlag(flags, want string) bool {
	for flags != "" {
		var f string
		f, flags, _ = strings.Cut(flags, ",")
		if f == want {
			return true
		}
	}
	return false
}

func removeField(fields []Field, name string) []Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// supportedFieldType reports whether the mapper can round-trip a field type.
// Scalars and time.Time only; the lint-level shape rules live here as a
// registration-time check.
func supportedFieldType(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return supportedFieldType(t.Elem())
	default:
		return false
	}
}
