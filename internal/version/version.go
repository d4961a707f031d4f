// Package version defines the pluggable ordering strategy used to compare
// schema version tokens. Rule resolution and upgrade applicability both defer
// to a Strategy so the token grammar stays swappable.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Strategy parses and orders version tokens. Implementations must be
// deterministic and total over the tokens they accept. Comparing tokens
// canonicalized under different strategies is undefined.
type Strategy interface {
	// Name identifies the strategy in errors and logs.
	Name() string
	// Canonical parses raw and returns its canonical token. Tokens that
	// canonicalize equal are the same version.
	Canonical(raw string) (string, error)
	// Compare orders a against b: negative when a precedes b, zero when
	// equal, positive when a follows b.
	Compare(a, b string) (int, error)
}

// ParseError reports a token the strategy cannot interpret.
type ParseError struct {
	Strategy string
	Raw      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse version %q", e.Strategy, e.Raw)
}

// Semver orders tokens by semantic versioning rules. Tokens accept an
// optional leading "v" and omitted minor/patch components, so "2", "2.1",
// and "v2.1.0" are all valid with canonical forms "v2.0.0", "v2.1.0", and
// "v2.1.0".
type Semver struct{}

// Name implements Strategy.
func (Semver) Name() string { return "semver" }

// Canonical implements Strategy.
func (s Semver) Canonical(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	token = strings.TrimPrefix(strings.TrimPrefix(token, "v"), "V")
	if token == "" {
		return "", &ParseError{Strategy: s.Name(), Raw: raw}
	}
	token = "v" + token
	if !semver.IsValid(token) {
		return "", &ParseError{Strategy: s.Name(), Raw: raw}
	}
	return semver.Canonical(token), nil
}

// Compare implements Strategy.
func (s Semver) Compare(a, b string) (int, error) {
	ca, err := s.Canonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := s.Canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// Default returns the strategy used when a caller does not supply one.
func Default() Strategy { return Semver{} }

// Within reports whether v lies inside the inclusive [min, max] range under
// the strategy. An empty bound leaves that side unbounded.
func Within(s Strategy, v, min, max string) (bool, error) {
	if min != "" {
		cmp, err := s.Compare(v, min)
		if err != nil {
			return false, err
		}
		if cmp < 0 {
			return false, nil
		}
	}
	if max != "" {
		cmp, err := s.Compare(v, max)
		if err != nil {
			return false, err
		}
		if cmp > 0 {
			return false, nil
		}
	}
	return true, nil
}

// Latest returns the greatest token under the strategy. It fails on an empty
// slice or on any unparseable token.
func Latest(s Strategy, tokens []string) (string, error) {
	if len(tokens) == 0 {
		return "", fmt.Errorf("%s: no versions to compare", s.Name())
	}
	best := tokens[0]
	for _, candidate := range tokens[1:] {
		cmp, err := s.Compare(candidate, best)
		if err != nil {
			return "", err
		}
		if cmp > 0 {
			best = candidate
		}
	}
	return best, nil
}
