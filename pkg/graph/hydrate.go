package graph

// Row-to-entity mapping. Entity rows rehydrate through the registry's
// resolved field table; projection rows rehydrate by column name. A shape
// mismatch is a MappingError: fatal for that call and never retried, since it
// signals the stored data and the registered model have drifted apart.

import (
	"fmt"
	"reflect"
	"time"

	"github.com/orneryd/ratatoskr/pkg/registry"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

// MappingError reports a returned row whose shape does not match the
// expected model type.
type MappingError struct {
	Type   string
	Detail string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map result to %s: %s", e.Type, e.Detail)
}

// Row is one anonymous projection result, keyed by output column name.
type Row map[string]any

// hydrateEntity maps a single graph value onto a fresh *T.
func hydrateEntity[T any](info *registry.TypeInfo, value any) (*T, error) {
	out := new(T)
	v := reflect.ValueOf(out).Elem()

	var props map[string]any
	switch e := value.(type) {
	case transport.Node:
		if info.Kind != registry.KindNode {
			return nil, &MappingError{Type: info.Type.Name(), Detail: "row holds a node but the model is a relationship"}
		}
		props = e.Props
	case transport.Relationship:
		if info.Kind != registry.KindRelationship {
			return nil, &MappingError{Type: info.Type.Name(), Detail: "row holds a relationship but the model is a node"}
		}
		props = e.Props
		if info.StartField != "" {
			v.FieldByName(info.StartField).SetString(e.StartID)
		}
		if info.EndField != "" {
			v.FieldByName(info.EndField).SetString(e.EndID)
		}
	default:
		return nil, &MappingError{Type: info.Type.Name(), Detail: fmt.Sprintf("row holds %T, not a graph entity", value)}
	}

	if id, ok := props[info.IDProp].(string); ok {
		v.FieldByName(info.IDField).SetString(id)
	}
	for _, f := range info.Fields {
		raw, ok := props[f.Prop]
		if !ok || raw == nil {
			continue
		}
		if err := setField(v.Field(f.Index), raw); err != nil {
			return nil, &MappingError{Type: info.Type.Name(), Detail: fmt.Sprintf("property %q: %v", f.Prop, err)}
		}
	}
	return out, nil
}

// setField assigns a wire value onto a struct field, coercing the numeric
// widths the Bolt protocol collapses (all integers arrive as int64, all
// floats as float64).
func setField(f reflect.Value, raw any) error {
	if f.Type() == reflect.TypeOf(time.Time{}) {
		t, ok := raw.(time.Time)
		if !ok {
			return fmt.Errorf("expected time value, got %T", raw)
		}
		f.Set(reflect.ValueOf(t))
		return nil
	}

	switch f.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", raw)
		}
		f.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", raw)
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := raw.(type) {
		case int64:
			f.SetInt(n)
		case float64:
			f.SetInt(int64(n))
		default:
			return fmt.Errorf("expected integer, got %T", raw)
		}
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			f.SetFloat(n)
		case int64:
			f.SetFloat(float64(n))
		default:
			return fmt.Errorf("expected float, got %T", raw)
		}
	case reflect.Slice:
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", raw)
		}
		out := reflect.MakeSlice(f.Type(), len(list), len(list))
		for i, e := range list {
			if err := setField(out.Index(i), e); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		f.Set(out)
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// extractProps flattens an entity into graph properties keyed by property
// name, identity included. Zero-value time fields are written as-is; the
// engine stores whatever the model carries.
func extractProps(info *registry.TypeInfo, v reflect.Value) map[string]any {
	props := make(map[string]any, len(info.Fields)+1)
	props[info.IDProp] = v.FieldByName(info.IDField).String()
	for _, f := range info.Fields {
		props[f.Prop] = v.Field(f.Index).Interface()
	}
	return props
}

// rowFromColumns zips column names and values into a Row.
func rowFromColumns(cols []string, values []any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		if i < len(cols) {
			row[cols[i]] = v
		}
	}
	return row
}
