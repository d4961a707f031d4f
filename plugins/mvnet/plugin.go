// Package mvnet is the reference schema pack for medium-voltage distribution
// networks. It contributes bus→node and line→branch translation rules for the
// v1 and v2 schema generations, the upgrade steps that move a persisted store
// between them, and JSON schema fragments for the target component types.
package mvnet

import (
	"fmt"
	"math"

	"gridcore/internal/core"
	"gridcore/internal/translate"
	"gridcore/internal/upgrade"
)

// Plugin implements the mvnet reference schema pack.
type Plugin struct{}

// New constructs an mvnet plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "mvnet" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.2.0" }

// Register wires the mvnet rules, upgrade steps, and component schemas.
func (Plugin) Register(registry *core.PluginRegistry) error {
	registry.RegisterSchema("node", map[string]any{
		"$id":  "gridcore:mvnet:node",
		"type": "object",
		"properties": map[string]any{
			"name":       map[string]any{"type": "string"},
			"voltage_kv": map[string]any{"type": "number", "minimum": 0},
			"in_service": map[string]any{"type": "boolean"},
		},
	})
	registry.RegisterSchema("branch", map[string]any{
		"$id":  "gridcore:mvnet:branch",
		"type": "object",
		"properties": map[string]any{
			"from_node":    map[string]any{"type": "string"},
			"to_node":      map[string]any{"type": "string"},
			"impedance_pu": map[string]any{"type": "number", "minimum": 0},
			"status":       map[string]any{"type": "string"},
		},
	})

	rules, err := Rules()
	if err != nil {
		return err
	}
	for _, rule := range rules {
		registry.RegisterRule(rule)
	}

	steps, err := Steps()
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := registry.RegisterStep(step); err != nil {
			return err
		}
	}
	return nil
}

// Rules returns the mvnet translation rules.
func Rules() ([]translate.Rule, error) {
	busToNodeV1, err := translate.NewRule([]string{"bus"}, []string{"node"}, "v1.0.0", map[string]translate.FieldSpec{
		"name":       translate.Rename("id"),
		"voltage_kv": translate.Rename("base_kv"),
		"kind":       translate.Literal("node"),
	})
	if err != nil {
		return nil, err
	}

	busToNodeV2, err := translate.NewRule([]string{"bus"}, []string{"node"}, "v2.0.0", map[string]translate.FieldSpec{
		"name":       translate.Rename("id"),
		"voltage_kv": translate.Rename("base_kv"),
		"voltage_v":  translate.Derive(voltageVolts, "base_kv"),
		"kind":       translate.Literal("node"),
	}, translate.WithFilter(inService))
	if err != nil {
		return nil, err
	}

	lineToBranchV1, err := translate.NewRule([]string{"line"}, []string{"branch"}, "v1.0.0", map[string]translate.FieldSpec{
		"from_node":  translate.Rename("from_bus"),
		"to_node":    translate.Rename("to_bus"),
		"resistance": translate.Rename("r_ohm"),
		"reactance":  translate.Rename("x_ohm"),
		"kind":       translate.Literal("ac_line"),
	})
	if err != nil {
		return nil, err
	}

	lineToBranchV2, err := translate.NewRule([]string{"line"}, []string{"branch"}, "v2.0.0", map[string]translate.FieldSpec{
		"from_node":    translate.Rename("from_bus"),
		"to_node":      translate.Rename("to_bus"),
		"impedance_pu": translate.Derive(impedanceMagnitude, "r_ohm", "x_ohm"),
		"status":       translate.Rename("status"),
		"kind":         translate.Literal("ac_line"),
	}, translate.WithDefaults(map[string]any{"status": "closed"}))
	if err != nil {
		return nil, err
	}

	return []translate.Rule{busToNodeV1, busToNodeV2, lineToBranchV1, lineToBranchV2}, nil
}

// Steps returns the mvnet upgrade steps.
func Steps() ([]upgrade.Step, error) {
	relabel, err := upgrade.NewStep("mvnet-relabel-buckets", relabelBuckets, "v2.0.0", upgrade.TypeStore,
		upgrade.WithMinVersion("v1.0.0"), upgrade.WithMaxVersion("v1.9.9"))
	if err != nil {
		return nil, err
	}
	normalize, err := upgrade.NewContextStep("mvnet-normalize-service-flags", normalizeServiceFlag, "v2.1.0", upgrade.TypeComponent,
		upgrade.WithMinVersion("v1.0.0"))
	if err != nil {
		return nil, err
	}
	return []upgrade.Step{relabel, normalize}, nil
}

// inService keeps records whose in_service flag is absent or truthy. The v2
// node rule refuses to translate a de-energized bus.
var inService = translate.FilterFunc(func(record core.Record) (bool, error) {
	value, ok := record.Field("in_service")
	if !ok {
		return true, nil
	}
	flag, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("in_service: expected bool, got %T", value)
	}
	return flag, nil
})

func voltageVolts(record core.Record) (any, error) {
	kv, err := numericField(record, "base_kv")
	if err != nil {
		return nil, err
	}
	return kv * 1000, nil
}

func impedanceMagnitude(record core.Record) (any, error) {
	r, err := numericField(record, "r_ohm")
	if err != nil {
		return nil, err
	}
	x, err := numericField(record, "x_ohm")
	if err != nil {
		return nil, err
	}
	return math.Hypot(r, x), nil
}

func numericField(record core.Record, name string) (float64, error) {
	value, ok := record.Field(name)
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %q: expected number, got %T", name, value)
	}
}

// relabelBuckets moves v1 bus and line buckets under their v2 names. Records
// already stored under the v2 buckets are preserved.
func relabelBuckets(data any) (any, error) {
	snapshot, ok := data.(core.Snapshot)
	if !ok {
		return nil, fmt.Errorf("expected snapshot payload, got %T", data)
	}
	renames := map[string]string{"bus": "node", "line": "branch"}
	for old, next := range renames {
		records := snapshot.Components[old]
		if len(records) == 0 {
			delete(snapshot.Components, old)
			continue
		}
		for i := range records {
			records[i].Type = next
		}
		snapshot.Components[next] = append(snapshot.Components[next], records...)
		delete(snapshot.Components, old)
	}
	return snapshot, nil
}

// normalizeServiceFlag coerces the in_service flag onto every record,
// defaulting missing or malformed values to true.
func normalizeServiceFlag(data any, _ upgrade.Context) (any, error) {
	record, ok := data.(core.Record)
	if !ok {
		return nil, fmt.Errorf("expected record payload, got %T", data)
	}
	if record.Fields == nil {
		record.Fields = map[string]any{}
	}
	switch v := record.Fields["in_service"].(type) {
	case bool:
	case string:
		record.Fields["in_service"] = v == "true" || v == "1" || v == "yes"
	default:
		record.Fields["in_service"] = true
	}
	return record, nil
}
