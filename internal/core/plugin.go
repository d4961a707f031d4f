package core

import (
	"fmt"
	"sort"

	"gridcore/internal/translate"
	"gridcore/internal/upgrade"
)

// Plugin describes a schema pack that contributes translation rules, upgrade
// steps, and component schema fragments.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules     []translate.Rule
	steps     []upgrade.Step
	stepNames map[string]struct{}
	schemas   map[string]map[string]any
}

// NewPluginRegistry constructs an empty plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		stepNames: make(map[string]struct{}),
		schemas:   make(map[string]map[string]any),
	}
}

// RegisterRule adds a translation rule contributed by the plugin. Duplicate
// rule keys are detected when the service rebuilds its translation context,
// not here, so a single bad rule reports against the full installed set.
func (r *PluginRegistry) RegisterRule(rule translate.Rule) {
	r.rules = append(r.rules, rule)
}

// RegisterStep adds an upgrade step contributed by the plugin. Step names are
// unique across all installed plugins.
func (r *PluginRegistry) RegisterStep(step upgrade.Step) error {
	if step.Name() == "" {
		return fmt.Errorf("upgrade step requires a name")
	}
	if _, exists := r.stepNames[step.Name()]; exists {
		return fmt.Errorf("upgrade step %q already registered", step.Name())
	}
	r.stepNames[step.Name()] = struct{}{}
	r.steps = append(r.steps, step)
	return nil
}

// RegisterSchema stores a JSON Schema fragment for a component type.
func (r *PluginRegistry) RegisterSchema(componentType string, schema map[string]any) {
	if componentType == "" || schema == nil {
		return
	}
	cp := make(map[string]any, len(schema))
	for k, v := range schema {
		cp[k] = v
	}
	r.schemas[componentType] = cp
}

// Rules returns a copy of the registered translation rules.
func (r *PluginRegistry) Rules() []translate.Rule {
	out := make([]translate.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Steps returns a copy of the registered upgrade steps in registration order.
func (r *PluginRegistry) Steps() []upgrade.Step {
	out := make([]upgrade.Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Schemas returns a copy of registered schema fragments keyed by component type.
func (r *PluginRegistry) Schemas() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.schemas))
	for componentType, schema := range r.schemas {
		cp := make(map[string]any, len(schema))
		for k, v := range schema {
			cp[k] = v
		}
		out[componentType] = cp
	}
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Rules   []string
	Steps   []string
	Schemas []string
}

func metadataFor(plugin Plugin, registry *PluginRegistry) PluginMetadata {
	meta := PluginMetadata{
		Name:    plugin.Name(),
		Version: plugin.Version(),
	}
	for _, rule := range registry.rules {
		meta.Rules = append(meta.Rules, rule.Identity().String())
	}
	for _, step := range registry.steps {
		meta.Steps = append(meta.Steps, step.Name())
	}
	for componentType := range registry.schemas {
		meta.Schemas = append(meta.Schemas, componentType)
	}
	sort.Strings(meta.Schemas)
	return meta
}
