package translate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gridcore/pkg/domain"
)

// Rule construction and resolution failures.
var (
	// ErrFanInFanOut rejects rules declaring both multiple source types and
	// multiple target types.
	ErrFanInFanOut = errors.New("cannot have both multiple sources and multiple targets")
)

// Key is the expanded index key for one (source type, target type, version)
// combination. Versions in keys are canonical under the owning context's
// strategy.
type Key struct {
	Source  string
	Target  string
	Version string
}

func (k Key) String() string {
	return k.Source + "->" + k.Target + "@" + k.Version
}

// Identity is the comparable identity of a rule: declaration-ordered source
// and target type lists plus the version token. Equality and map-key hashing
// are defined solely over these three attributes, so two rules with equal
// identities but different field maps are duplicates, not distinct rules.
type Identity struct {
	Sources string
	Targets string
	Version string
}

func (id Identity) String() string {
	return id.Sources + "->" + id.Targets + "@" + id.Version
}

// Rule is an immutable declarative mapping from source record types to
// target record types for one schema version. A rule may fan in from
// multiple source types or fan out to multiple target types, never both.
type Rule struct {
	sources  []string
	targets  []string
	version  string
	fieldMap map[string]FieldSpec
	defaults map[string]any
	filter   Filter
}

// RuleOption customizes rule construction.
type RuleOption func(*Rule)

// WithDefaults sets fallback values, keyed by target field, applied when a
// renamed source field is absent from the record.
func WithDefaults(defaults map[string]any) RuleOption {
	return func(r *Rule) {
		r.defaults = defaults
	}
}

// WithFilter attaches an eligibility filter to the rule.
func WithFilter(filter Filter) RuleOption {
	return func(r *Rule) {
		r.filter = filter
	}
}

// NewRule validates and constructs a rule. Construction fails when no source
// or target type is given, when both sides declare multiple types, when the
// version token is empty, or when any field spec is invalid.
func NewRule(sources, targets []string, versionToken string, fieldMap map[string]FieldSpec, opts ...RuleOption) (Rule, error) {
	rule := Rule{
		sources:  normalizeTypes(sources),
		targets:  normalizeTypes(targets),
		version:  strings.TrimSpace(versionToken),
		fieldMap: make(map[string]FieldSpec, len(fieldMap)),
	}
	for _, opt := range opts {
		opt(&rule)
	}
	if len(rule.sources) == 0 {
		return Rule{}, fmt.Errorf("rule: at least one source type required")
	}
	if len(rule.targets) == 0 {
		return Rule{}, fmt.Errorf("rule: at least one target type required")
	}
	if len(rule.sources) > 1 && len(rule.targets) > 1 {
		return Rule{}, fmt.Errorf("rule %s->%s: %w", strings.Join(rule.sources, ","), strings.Join(rule.targets, ","), ErrFanInFanOut)
	}
	if rule.version == "" {
		return Rule{}, fmt.Errorf("rule %s->%s: version required", strings.Join(rule.sources, ","), strings.Join(rule.targets, ","))
	}
	for targetField, spec := range fieldMap {
		if err := spec.validate(targetField); err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", rule.Identity(), err)
		}
		rule.fieldMap[targetField] = spec
	}
	if rule.defaults != nil {
		copied := make(map[string]any, len(rule.defaults))
		for k, v := range rule.defaults {
			copied[k] = domain.CloneValue(v)
		}
		rule.defaults = copied
	}
	return rule, nil
}

func normalizeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Sources returns the declared source types in declaration order.
func (r Rule) Sources() []string {
	out := make([]string, len(r.sources))
	copy(out, r.sources)
	return out
}

// Targets returns the declared target types in declaration order.
func (r Rule) Targets() []string {
	out := make([]string, len(r.targets))
	copy(out, r.targets)
	return out
}

// Version returns the version token as declared.
func (r Rule) Version() string { return r.version }

// FieldMap returns a copy of the field specifications keyed by target field.
func (r Rule) FieldMap() map[string]FieldSpec {
	out := make(map[string]FieldSpec, len(r.fieldMap))
	for k, v := range r.fieldMap {
		out[k] = v
	}
	return out
}

// Defaults returns a copy of the default values keyed by target field.
func (r Rule) Defaults() map[string]any {
	if r.defaults == nil {
		return nil
	}
	out := make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		out[k] = domain.CloneValue(v)
	}
	return out
}

// Filter returns the rule's eligibility filter, or nil when unfiltered.
func (r Rule) Filter() Filter { return r.filter }

// Identity returns the comparable rule identity.
func (r Rule) Identity() Identity {
	return Identity{
		Sources: strings.Join(r.sources, ","),
		Targets: strings.Join(r.targets, ","),
		Version: r.version,
	}
}

// Eligible reports whether the record passes the rule's filter. Rules
// without a filter accept every record.
func (r Rule) Eligible(record domain.Record) (bool, error) {
	if r.filter == nil {
		return true, nil
	}
	ok, err := r.filter.Eligible(record)
	if err != nil {
		return false, fmt.Errorf("rule %s: filter: %w", r.Identity(), err)
	}
	return ok, nil
}

// Apply maps the source record onto target fields. Renames copy the source
// value when present and fall back to the rule default otherwise; a missing
// source with no default omits the field. Literals bind fixed values.
// Derivations invoke the getter with the full record and propagate its error
// tagged with the rule identity. Apply is a pure function of the rule and
// record; filter eligibility is checked by the resolution layer, not here.
func (r Rule) Apply(record domain.Record) (map[string]any, error) {
	targetFields := make([]string, 0, len(r.fieldMap))
	for field := range r.fieldMap {
		targetFields = append(targetFields, field)
	}
	sort.Strings(targetFields)

	out := make(map[string]any, len(targetFields))
	for _, targetField := range targetFields {
		spec := r.fieldMap[targetField]
		switch {
		case spec.kind == specRename:
			if value, ok := record.Field(spec.source); ok {
				out[targetField] = domain.CloneValue(value)
				continue
			}
			if fallback, ok := r.defaults[targetField]; ok {
				out[targetField] = domain.CloneValue(fallback)
			}
		case spec.kind == specLiteral:
			out[targetField] = domain.CloneValue(spec.literal)
		case spec.kind == specDerive:
			value, err := spec.getter(record)
			if err != nil {
				return nil, fmt.Errorf("rule %s: derive %q: %w", r.Identity(), targetField, err)
			}
			out[targetField] = value
		}
	}
	return out, nil
}
