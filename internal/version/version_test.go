package version

import (
	"errors"
	"testing"
)

func TestSemverCanonical(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1", "v1.0.0"},
		{"2.1", "v2.1.0"},
		{"v2.1.0", "v2.1.0"},
		{"V3.0.1", "v3.0.1"},
		{" 1.4.0 ", "v1.4.0"},
		{"1.0.0-rc.1", "v1.0.0-rc.1"},
	}
	for _, tc := range cases {
		got, err := Semver{}.Canonical(tc.raw)
		if err != nil {
			t.Fatalf("Canonical(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("Canonical(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSemverCanonicalRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "abc", "1.x", "1.2.3.4", "v"} {
		_, err := Semver{}.Canonical(raw)
		if err == nil {
			t.Fatalf("Canonical(%q): expected error", raw)
		}
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("Canonical(%q): expected ParseError, got %T", raw, err)
		}
		if parseErr.Raw != raw {
			t.Fatalf("ParseError should carry the raw input, got %q", parseErr.Raw)
		}
	}
}

func TestSemverCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "2.0.0", -1},
		{"2", "2.0.0", 0},
		{"2.1.0", "2.0.9", 1},
		{"1.0.0-rc.1", "1.0.0", -1},
	}
	for _, tc := range cases {
		got, err := Semver{}.Compare(tc.a, tc.b)
		if err != nil {
			t.Fatalf("Compare(%q, %q): %v", tc.a, tc.b, err)
		}
		if got != tc.want {
			t.Fatalf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSemverCompareMalformed(t *testing.T) {
	if _, err := (Semver{}).Compare("nope", "1.0.0"); err == nil {
		t.Fatalf("expected parse error for left operand")
	}
	if _, err := (Semver{}).Compare("1.0.0", "nope"); err == nil {
		t.Fatalf("expected parse error for right operand")
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		name     string
		v        string
		min, max string
		want     bool
	}{
		{"inside", "1.5.0", "1.0.0", "2.0.0", true},
		{"at min", "1.0.0", "1.0.0", "2.0.0", true},
		{"at max", "2.0.0", "1.0.0", "2.0.0", true},
		{"below", "0.9.0", "1.0.0", "2.0.0", false},
		{"above", "2.0.1", "1.0.0", "2.0.0", false},
		{"unbounded below", "0.1.0", "", "2.0.0", true},
		{"unbounded above", "99.0.0", "1.0.0", "", true},
		{"unbounded both", "3.0.0", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Within(Default(), tc.v, tc.min, tc.max)
			if err != nil {
				t.Fatalf("Within: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Within(%q, %q, %q) = %v, want %v", tc.v, tc.min, tc.max, got, tc.want)
			}
		})
	}
}

func TestWithinParseErrorPropagates(t *testing.T) {
	if _, err := Within(Default(), "garbage", "1.0.0", ""); err == nil {
		t.Fatalf("expected parse error for version operand")
	}
	if _, err := Within(Default(), "1.0.0", "garbage", ""); err == nil {
		t.Fatalf("expected parse error for min bound")
	}
}

func TestLatest(t *testing.T) {
	got, err := Latest(Default(), []string{"1.0.0", "2.1.0", "2.0.9"})
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != "2.1.0" {
		t.Fatalf("Latest = %q, want %q", got, "2.1.0")
	}
	if _, err := Latest(Default(), nil); err == nil {
		t.Fatalf("expected error for empty slice")
	}
	if _, err := Latest(Default(), []string{"1.0.0", "bad"}); err == nil {
		t.Fatalf("expected parse error for malformed token")
	}
}
