package translate

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML document form of a rule set: opaque system names, an
// optional config mapping passed through to the context, and the declarative
// rules.
type Manifest struct {
	SourceSystem string         `yaml:"source_system" json:"source_system"`
	TargetSystem string         `yaml:"target_system" json:"target_system"`
	Config       map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Rules        []RuleRecord   `yaml:"rules" json:"rules"`
}

// RuleRecord is the declarative form of a single rule. Exactly one of
// source_type/source_types and one of target_type/target_types must be set.
// Filters are CEL expressions over fields, component, and id.
type RuleRecord struct {
	SourceType  string                 `yaml:"source_type,omitempty" json:"source_type,omitempty"`
	SourceTypes []string               `yaml:"source_types,omitempty" json:"source_types,omitempty"`
	TargetType  string                 `yaml:"target_type,omitempty" json:"target_type,omitempty"`
	TargetTypes []string               `yaml:"target_types,omitempty" json:"target_types,omitempty"`
	Version     VersionValue           `yaml:"version" json:"version"`
	FieldMap    map[string]FieldRecord `yaml:"field_map" json:"field_map"`
	Defaults    map[string]any         `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Filter      string                 `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// VersionValue accepts both bare and quoted scalar versions, so
// `version: 2` and `version: "2.1.0"` parse alike.
type VersionValue string

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *VersionValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("version must be a scalar")
	}
	*v = VersionValue(node.Value)
	return nil
}

// FieldRecord is the declarative form of a field spec. A plain string names
// a source field to rename. A mapping with `value` binds a literal. A
// mapping with `expr` (plus optional `sources`) derives the field from a CEL
// expression. A bare list of source fields declares a derivation without a
// getter, which rule construction rejects.
type FieldRecord struct {
	rename     string
	literal    any
	hasLiteral bool
	expr       string
	sources    []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *FieldRecord) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		f.rename = node.Value
		return nil
	case yaml.SequenceNode:
		return node.Decode(&f.sources)
	case yaml.MappingNode:
		var body struct {
			Value   *any     `yaml:"value"`
			Expr    string   `yaml:"expr"`
			Sources []string `yaml:"sources"`
		}
		if err := node.Decode(&body); err != nil {
			return err
		}
		if body.Value != nil {
			f.literal = *body.Value
			f.hasLiteral = true
		}
		f.expr = body.Expr
		f.sources = body.Sources
		if f.hasLiteral && f.expr != "" {
			return fmt.Errorf("field spec cannot set both value and expr")
		}
		return nil
	default:
		return fmt.Errorf("field spec must be a string, list, or mapping")
	}
}

// Spec converts the declarative form into a FieldSpec. CEL expressions are
// compiled here, so malformed expressions fail at rule construction rather
// than first use.
func (f FieldRecord) Spec() (FieldSpec, error) {
	switch {
	case f.rename != "":
		return Rename(f.rename), nil
	case f.hasLiteral:
		return Literal(f.literal), nil
	case f.expr != "":
		getter, err := CompileGetter(f.expr)
		if err != nil {
			return FieldSpec{}, err
		}
		return Derive(getter, f.sources...), nil
	case len(f.sources) > 0:
		// Sources with no expression carry no getter; NewRule rejects this
		// with the missing-getter error.
		copied := make([]string, len(f.sources))
		copy(copied, f.sources)
		return FieldSpec{kind: specDerive, sources: copied}, nil
	default:
		return FieldSpec{}, ErrInvalidFieldSpec
	}
}

// Rule validates and converts the declarative record into a Rule.
func (rec RuleRecord) Rule() (Rule, error) {
	sources, err := oneOrMany("source_type", rec.SourceType, rec.SourceTypes)
	if err != nil {
		return Rule{}, err
	}
	targets, err := oneOrMany("target_type", rec.TargetType, rec.TargetTypes)
	if err != nil {
		return Rule{}, err
	}
	fieldMap := make(map[string]FieldSpec, len(rec.FieldMap))
	for field, fr := range rec.FieldMap {
		spec, err := fr.Spec()
		if err != nil {
			return Rule{}, fmt.Errorf("field %q: %w", field, err)
		}
		fieldMap[field] = spec
	}
	var opts []RuleOption
	if rec.Defaults != nil {
		opts = append(opts, WithDefaults(rec.Defaults))
	}
	if rec.Filter != "" {
		filter, err := CompileFilter(rec.Filter)
		if err != nil {
			return Rule{}, err
		}
		opts = append(opts, WithFilter(filter))
	}
	return NewRule(sources, targets, string(rec.Version), fieldMap, opts...)
}

func oneOrMany(key, single string, many []string) ([]string, error) {
	if single != "" && len(many) > 0 {
		return nil, fmt.Errorf("%s and %ss are mutually exclusive", key, key)
	}
	if single != "" {
		return []string{single}, nil
	}
	return many, nil
}

// RulesFromRecords converts declarative records into validated rules,
// preserving declaration order.
func RulesFromRecords(records []RuleRecord) ([]Rule, error) {
	rules := make([]Rule, 0, len(records))
	for i, rec := range records {
		rule, err := rec.Rule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadManifest parses a YAML manifest. Unknown top-level fields are
// rejected so typos surface during validation instead of silently dropping
// rules.
func LoadManifest(data []byte) (Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var manifest Manifest
	if err := dec.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, fmt.Errorf("manifest is empty")
		}
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return manifest, nil
}

// Context builds a translation context from the manifest, compiling every
// declarative rule and indexing the result.
func (m Manifest) Context(opts ...ContextOption) (*Context, error) {
	rules, err := RulesFromRecords(m.Rules)
	if err != nil {
		return nil, err
	}
	var config any
	if m.Config != nil {
		config = m.Config
	}
	return NewContext(m.SourceSystem, m.TargetSystem, config, rules, opts...)
}
