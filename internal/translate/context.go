package translate

import (
	"errors"
	"fmt"

	"gridcore/internal/version"
	"gridcore/pkg/domain"
)

// Resolution failures. A lookup on an empty index reports ErrEmptyIndex; a
// lookup that misses on a populated index reports ErrRuleNotFound. Callers
// that need to tell the two apart branch with errors.Is.
var (
	// ErrDuplicateRule rejects context construction when two rules collide
	// on an expanded (source, target, version) key.
	ErrDuplicateRule = errors.New("duplicate rule key")
	// ErrRuleNotFound reports a miss against a populated index.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrEmptyIndex reports a lookup against an index with no rules at all.
	ErrEmptyIndex = errors.New("rule index is empty")
	// ErrNotEligible reports that a resolved rule's filter rejected the
	// record.
	ErrNotEligible = errors.New("record not eligible")
)

type pairKey struct {
	source string
	target string
}

// Context is an immutable aggregate of source system, target system, opaque
// configuration, and a duplicate-checked index of rules. Construction is the
// only mutation point; a built context is safe for concurrent readers, and
// derivations like WithConfig produce new values instead of mutating shared
// state.
type Context struct {
	sourceSystem any
	targetSystem any
	config       any
	strategy     version.Strategy
	rules        []Rule
	index        map[Key]int
	latest       map[pairKey]Key
}

// ContextOption customizes context construction.
type ContextOption func(*Context)

// WithStrategy overrides the versioning strategy used to canonicalize and
// order rule versions. The default is semantic versioning.
func WithStrategy(strategy version.Strategy) ContextOption {
	return func(c *Context) {
		c.strategy = strategy
	}
}

// NewContext indexes rules by their expanded (source type, target type,
// version) keys. Multi-type rules occupy one index slot per expanded
// combination, and any collision, whole-key or expanded, fails construction:
// silently shadowing a rule would surface as version-dependent data
// corruption invisible to the caller. Source system, target system, and
// config are opaque and passed through unchanged.
func NewContext(sourceSystem, targetSystem, config any, rules []Rule, opts ...ContextOption) (*Context, error) {
	ctx := &Context{
		sourceSystem: sourceSystem,
		targetSystem: targetSystem,
		config:       config,
		strategy:     version.Default(),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	ctx.rules = make([]Rule, len(rules))
	copy(ctx.rules, rules)
	ctx.index = make(map[Key]int)
	ctx.latest = make(map[pairKey]Key)

	for i, rule := range ctx.rules {
		canonical, err := ctx.strategy.Canonical(rule.Version())
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Identity(), err)
		}
		for _, source := range rule.Sources() {
			for _, target := range rule.Targets() {
				key := Key{Source: source, Target: target, Version: canonical}
				if _, exists := ctx.index[key]; exists {
					return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, key)
				}
				ctx.index[key] = i

				pair := pairKey{source: source, target: target}
				best, seen := ctx.latest[pair]
				if !seen {
					ctx.latest[pair] = key
					continue
				}
				cmp, err := ctx.strategy.Compare(canonical, best.Version)
				if err != nil {
					return nil, fmt.Errorf("rule %s: %w", rule.Identity(), err)
				}
				if cmp > 0 {
					ctx.latest[pair] = key
				}
			}
		}
	}
	return ctx, nil
}

// SourceSystem returns the opaque source system reference.
func (c *Context) SourceSystem() any { return c.sourceSystem }

// TargetSystem returns the opaque target system reference.
func (c *Context) TargetSystem() any { return c.targetSystem }

// Config returns the opaque configuration value.
func (c *Context) Config() any { return c.config }

// Strategy returns the versioning strategy the index was built with.
func (c *Context) Strategy() version.Strategy { return c.strategy }

// Rules enumerates the indexed rules in insertion order. The returned slice
// is a copy; the internal index is never exposed for mutation.
func (c *Context) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Rule resolves the rule for (source, target) with the highest version
// present in the index. Resolution is deterministic given the index.
func (c *Context) Rule(source, target string) (Rule, error) {
	if len(c.rules) == 0 {
		return Rule{}, ErrEmptyIndex
	}
	key, ok := c.latest[pairKey{source: source, target: target}]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s->%s", ErrRuleNotFound, source, target)
	}
	return c.rules[c.index[key]], nil
}

// RuleAt resolves the rule for (source, target) at exactly the given
// version. A version token the strategy cannot parse fails with the parse
// error; a parseable version absent from the index fails with
// ErrRuleNotFound.
func (c *Context) RuleAt(source, target, versionToken string) (Rule, error) {
	if len(c.rules) == 0 {
		return Rule{}, ErrEmptyIndex
	}
	canonical, err := c.strategy.Canonical(versionToken)
	if err != nil {
		return Rule{}, err
	}
	key := Key{Source: source, Target: target, Version: canonical}
	pos, ok := c.index[key]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, key)
	}
	return c.rules[pos], nil
}

// WithConfig derives a new context carrying config in place of the current
// value. The rule index is shared; it is immutable either way.
func (c *Context) WithConfig(config any) *Context {
	derived := *c
	derived.config = config
	return &derived
}

// WithSystems derives a new context carrying different system references.
func (c *Context) WithSystems(sourceSystem, targetSystem any) *Context {
	derived := *c
	derived.sourceSystem = sourceSystem
	derived.targetSystem = targetSystem
	return &derived
}

// WithRules derives a new context over a different rule set, rebuilding the
// index with the same systems, config, and strategy.
func (c *Context) WithRules(rules []Rule) (*Context, error) {
	return NewContext(c.sourceSystem, c.targetSystem, c.config, rules, WithStrategy(c.strategy))
}

// WithAdditionalRules derives a new context whose index also contains extra.
// Key collisions with existing rules fail like any other duplicate.
func (c *Context) WithAdditionalRules(extra ...Rule) (*Context, error) {
	combined := make([]Rule, 0, len(c.rules)+len(extra))
	combined = append(combined, c.rules...)
	combined = append(combined, extra...)
	return c.WithRules(combined)
}

// Translate resolves the latest rule from the record's type to targetType,
// checks eligibility, and applies the field mapping. The returned record
// carries the target type and the source record's ID.
func (c *Context) Translate(record domain.Record, targetType string) (domain.Record, error) {
	rule, err := c.Rule(record.Type, targetType)
	if err != nil {
		return domain.Record{}, err
	}
	return c.translateWith(rule, record, targetType)
}

// TranslateAt is Translate pinned to an exact rule version.
func (c *Context) TranslateAt(record domain.Record, targetType, versionToken string) (domain.Record, error) {
	rule, err := c.RuleAt(record.Type, targetType, versionToken)
	if err != nil {
		return domain.Record{}, err
	}
	return c.translateWith(rule, record, targetType)
}

func (c *Context) translateWith(rule Rule, record domain.Record, targetType string) (domain.Record, error) {
	eligible, err := rule.Eligible(record)
	if err != nil {
		return domain.Record{}, err
	}
	if !eligible {
		return domain.Record{}, fmt.Errorf("rule %s: %w", rule.Identity(), ErrNotEligible)
	}
	fields, err := rule.Apply(record)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{Type: targetType, ID: record.ID, Fields: fields}, nil
}
