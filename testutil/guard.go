// Package testutil provides reusable testing helpers for enforcing layering
// rules between the engine, its host services and infrastructure adapters.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// AssertNoDirectImports scans all non-test .go files in dir (typically "." from
// within the package) and fails if any import path satisfies the forbidden
// predicate. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	imports, err := DirectImports(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var viols []string
	for path, files := range imports {
		if forbidden(path) {
			viols = append(viols, path+" (in "+strings.Join(files, ", ")+")")
		}
	}
	slices.Sort(viols)
	failIfViolations(t, reason, viols)
}

// DirectImports maps every import path used by non-test files in dir to the
// files importing it.
func DirectImports(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	out := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, "\"")
			out[path] = append(out[path], name)
		}
	}
	return out, nil
}

// InternalImportForbidden matches any import path containing /internal/ or
// rooted at the module's internal tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, "smartloan/internal")
}

// InfraImportForbidden matches infrastructure adapters that only factories may
// construct directly.
func InfraImportForbidden(path string) bool {
	return strings.HasPrefix(path, "smartloan/internal/infra/")
}

// IOImportForbidden matches packages that perform I/O. The rule engine is pure
// in-memory computation and must not reach for them.
func IOImportForbidden(path string) bool {
	switch path {
	case "os", "net", "net/http", "database/sql", "io/fs":
		return true
	}
	return false
}

// AnyOf combines predicates.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
