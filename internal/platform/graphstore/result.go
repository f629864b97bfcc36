package graphstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one named column value of a row.
type Field struct {
	Key   string
	Value any
}

// Row keeps column order as returned by the store.
type Row []Field

type Result struct {
	Keys []string
	Rows []Row
}

func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String renders the value for key; missing keys render as "".
func (r Row) String(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return Stringify(v)
}

func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, f := range r {
		out[f.Key] = f.Value
	}
	return out
}

// Len is 0 for a nil result.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// NewRow pairs positional values with column keys. Missing keys become colN.
func NewRow(keys []string, values []any) Row {
	row := make(Row, 0, len(values))
	for i, v := range values {
		key := fmt.Sprintf("col%d", i)
		if i < len(keys) && keys[i] != "" {
			key = keys[i]
		}
		row = append(row, Field{Key: key, Value: Normalize(v)})
	}
	return row
}

const (
	LabelsKey = "_labels"
	TypeKey   = "_type"
)

// Normalize turns JSON-encoded graph elements into property maps and leaves
// everything else alone. Transports that decode native node types do so
// before calling it.
func Normalize(v any) any {
	switch t := v.(type) {
	case string:
		if m, ok := DecodeJSONElement(t); ok {
			return m
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Normalize(t[i])
		}
		return out
	case map[string]any:
		if m, ok := elementMap(t); ok {
			return m
		}
		return t
	default:
		return v
	}
}

// DecodeJSONElement decodes node or relationship strings of the form
// {"identity":1,"label":"Disease","properties":{...}}.
func DecodeJSONElement(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.Contains(s, `"properties"`) {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	return elementMap(raw)
}

func elementMap(raw map[string]any) (map[string]any, bool) {
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	switch {
	case raw["label"] != nil:
		out[LabelsKey] = []string{Stringify(raw["label"])}
	case raw["labels"] != nil:
		if ls, ok := raw["labels"].([]any); ok {
			labels := make([]string, 0, len(ls))
			for _, l := range ls {
				labels = append(labels, Stringify(l))
			}
			out[LabelsKey] = labels
		}
	case raw["type"] != nil:
		out[TypeKey] = Stringify(raw["type"])
	}
	return out, true
}

// Stringify renders a value for prompts and tables. Element maps render as
// their name property.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if name, ok := t["name"]; ok {
			return Stringify(name)
		}
		b, _ := json.Marshal(t)
		return string(b)
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			parts = append(parts, Stringify(x))
		}
		return strings.Join(parts, "、")
	case []string:
		return strings.Join(t, "、")
	default:
		return fmt.Sprint(t)
	}
}

// Int64 reads an integer count out of a field decoded from any transport.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
