// Package translate implements the rule-indexing and field-mapping engine
// that converts component records between schema versions. Rules are
// immutable declarative mappings; a Context indexes them by
// (source type, target type, version) and resolves the transformation to
// apply for a requested translation.
package translate

import (
	"errors"
	"fmt"

	"gridcore/pkg/domain"
)

// Getter derives a target field value from the whole source record. Getters
// run inside Rule.Apply; an error aborts the translation and is tagged with
// the rule identity.
type Getter func(record domain.Record) (any, error)

// Construction-time validation failures for rules and field specs.
var (
	// ErrMissingGetter is returned when a derived field spec names source
	// fields but carries no getter function.
	ErrMissingGetter = errors.New("requires a getter function")
	// ErrInvalidFieldSpec is returned for a field spec that is none of
	// rename, literal, or derive.
	ErrInvalidFieldSpec = errors.New("invalid field spec")
)

type specKind int

const (
	specRename specKind = iota + 1
	specLiteral
	specDerive
)

// FieldSpec describes how one target field is produced. It is a closed
// variant: a rename of a single source field, a literal value, or a
// derivation over multiple source fields through a getter. The zero value is
// invalid and rejected at rule construction.
type FieldSpec struct {
	kind    specKind
	source  string
	literal any
	getter  Getter
	sources []string
}

// Rename maps the target field from a single source field, copying the value
// when present and falling back to the rule's default otherwise.
func Rename(sourceField string) FieldSpec {
	return FieldSpec{kind: specRename, source: sourceField}
}

// Literal binds the target field to a fixed value.
func Literal(value any) FieldSpec {
	return FieldSpec{kind: specLiteral, literal: value}
}

// Derive computes the target field with getter. sourceFields documents the
// contributing source fields for introspection; the getter receives the full
// record regardless.
func Derive(getter Getter, sourceFields ...string) FieldSpec {
	copied := make([]string, len(sourceFields))
	copy(copied, sourceFields)
	return FieldSpec{kind: specDerive, getter: getter, sources: copied}
}

// IsRename reports whether the spec is a rename and, if so, of which source
// field.
func (s FieldSpec) IsRename() (string, bool) {
	return s.source, s.kind == specRename
}

// IsLiteral reports whether the spec binds a literal value.
func (s FieldSpec) IsLiteral() (any, bool) {
	return s.literal, s.kind == specLiteral
}

// IsDerive reports whether the spec derives its value, and the source fields
// it declares.
func (s FieldSpec) IsDerive() ([]string, bool) {
	if s.kind != specDerive {
		return nil, false
	}
	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out, true
}

func (s FieldSpec) validate(targetField string) error {
	switch s.kind {
	case specRename:
		if s.source == "" {
			return fmt.Errorf("field %q: rename needs a source field: %w", targetField, ErrInvalidFieldSpec)
		}
	case specLiteral:
	case specDerive:
		if s.getter == nil {
			return fmt.Errorf("field %q: %w", targetField, ErrMissingGetter)
		}
	default:
		return fmt.Errorf("field %q: %w", targetField, ErrInvalidFieldSpec)
	}
	return nil
}
