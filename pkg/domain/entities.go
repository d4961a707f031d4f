// Package domain defines the component records, snapshots, and persistence
// contracts shared across gridcore.
package domain

import "encoding/json"

// ComponentType identifies the network component family a record models.
type ComponentType string

// Component type identifiers used in records and persistence buckets.
const (
	// ComponentBus identifies an electrical bus record.
	ComponentBus ComponentType = "bus"
	// ComponentNode identifies a topological node record.
	ComponentNode ComponentType = "node"
	// ComponentLine identifies an AC line record.
	ComponentLine ComponentType = "line"
	// ComponentBranch identifies a generic branch record.
	ComponentBranch ComponentType = "branch"
	// ComponentTransformer identifies a two-winding transformer record.
	ComponentTransformer ComponentType = "transformer"
	// ComponentGenerator identifies a generating unit record.
	ComponentGenerator ComponentType = "generator"
	// ComponentLoad identifies a load record.
	ComponentLoad ComponentType = "load"
	// ComponentShunt identifies a shunt compensator record.
	ComponentShunt ComponentType = "shunt"
	// ComponentSwitch identifies a switching device record.
	ComponentSwitch ComponentType = "switch"
	// ComponentStorage identifies an energy storage record.
	ComponentStorage ComponentType = "storage"
)

// BaselineSchemaVersion is the schema version a freshly created store
// reports before any upgrade step has run against it.
const BaselineSchemaVersion = "v1.0.0"

// Record is a single component record expressed as a free-form field map.
// Translation rules and upgrade steps operate on records without knowing the
// concrete component schema behind them.
type Record struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

// NewRecord constructs a record of the given type with a copy of fields.
func NewRecord(componentType string, fields map[string]any) Record {
	return Record{Type: componentType, Fields: cloneFieldMap(fields)}
}

// Field returns the named field value and whether it is present.
func (r Record) Field(name string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Clone returns a deep copy of the record. Mutating the copy never affects
// the original.
func (r Record) Clone() Record {
	return Record{Type: r.Type, ID: r.ID, Fields: cloneFieldMap(r.Fields)}
}

// Snapshot is the full persisted state of a model store: every component
// bucket plus the schema version the payload conforms to.
type Snapshot struct {
	SchemaVersion string              `json:"schema_version"`
	Components    map[string][]Record `json:"components"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{SchemaVersion: s.SchemaVersion}
	if s.Components == nil {
		return out
	}
	out.Components = make(map[string][]Record, len(s.Components))
	for bucket, records := range s.Components {
		copied := make([]Record, len(records))
		for i, rec := range records {
			copied[i] = rec.Clone()
		}
		out.Components[bucket] = copied
	}
	return out
}

func cloneFieldMap(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values. Scalars pass through; anything
// exotic falls back to a JSON round trip.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case nil, bool, string, int, int64, float64:
		return tv
	case map[string]any:
		return cloneFieldMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = CloneValue(item)
		}
		return out
	default:
		raw, err := json.Marshal(tv)
		if err != nil {
			return tv
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return tv
		}
		return decoded
	}
}
