// Command rules-check validates a YAML rule manifest: it parses the
// document, compiles every field spec and filter, and builds the rule index
// so duplicate keys and malformed specs fail before deployment.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gridcore/internal/translate"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rules-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var manifestPath string
	fs.StringVar(&manifestPath, "manifest", "rules.yaml", "path to rule manifest yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	summary, err := run(manifestPath)
	if err != nil {
		fmt.Fprintf(stderr, "Manifest validation failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, summary)
	return 0
}

// validatePath rejects absolute and path-traversing manifest references so
// the command only reads inside the working tree.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

func run(manifestPath string) (string, error) {
	clean, err := validatePath(manifestPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return "", err
	}
	manifest, err := translate.LoadManifest(data)
	if err != nil {
		return "", err
	}
	ctx, err := manifest.Context()
	if err != nil {
		return "", err
	}
	return summarize(clean, ctx), nil
}

func summarize(path string, ctx *translate.Context) string {
	rules := ctx.Rules()
	pairs := make(map[string]struct{})
	for _, rule := range rules {
		for _, source := range rule.Sources() {
			for _, target := range rule.Targets() {
				pairs[source+"->"+target] = struct{}{}
			}
		}
	}
	sorted := make([]string, 0, len(pairs))
	for pair := range pairs {
		sorted = append(sorted, pair)
	}
	sort.Strings(sorted)
	return fmt.Sprintf("Manifest %s OK: %d rules, %d pairs (%s)", path, len(rules), len(sorted), strings.Join(sorted, ", "))
}
