package translate

import "gridcore/pkg/domain"

// Filter decides whether a source record is eligible for a rule. Filters run
// at resolution time, before Apply, so ineligibility stays distinguishable
// from "no rule found".
type Filter interface {
	Eligible(record domain.Record) (bool, error)
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(record domain.Record) (bool, error)

// Eligible implements Filter.
func (f FilterFunc) Eligible(record domain.Record) (bool, error) { return f(record) }
