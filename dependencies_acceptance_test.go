package advocatedir_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

func TestModuleDependencies_StackPresent(t *testing.T) {
	for _, module := range []string{
		"github.com/gin-gonic/gin",
		"gorm.io/gorm",
		"github.com/knadh/koanf/v2",
		"github.com/simp-lee/logger",
		"github.com/simp-lee/pagination",
		"github.com/viccon/sturdyc",
		"github.com/redis/go-redis/v9",
		"github.com/prometheus/client_golang",
		"github.com/golang-jwt/jwt/v5",
		"github.com/cenkalti/backoff/v4",
		"golang.org/x/sync",
		"github.com/spf13/cobra",
	} {
		t.Run(module, func(t *testing.T) {
			testModulePresence(t, module)
		})
	}
}

func TestModuleDependencies_LegacyAbsent(t *testing.T) {
	goMod, err := os.ReadFile("go.mod")
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}
	for _, module := range []string{
		"github.com/simp-lee/jwt",
		"github.com/simp-lee/rbac",
		"github.com/simp-lee/cache",
		"github.com/simp-lee/ginx",
	} {
		if moduleRequired(string(goMod), module) {
			t.Errorf("module %q should no longer be required", module)
		}
	}
}

// Paginated results are built on the pagination library's result type; a
// second hand-rolled page envelope must not creep back into the server side.
func TestPaginationAPI_NoHandRolledPageResult(t *testing.T) {
	t.Run("happy_repo_has_no_hand_rolled_builder", func(t *testing.T) {
		matches, err := findHandRolledPageBuilders(".")
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected no hand-rolled page builders, found in: %v", matches)
		}
	})

	t.Run("error_fixture_with_builder_is_detected", func(t *testing.T) {
		fixture := `package domain
func NewPaginatedResponse[T any]() {}`
		if !hasHandRolledPageBuilder(fixture) {
			t.Fatal("expected hand-rolled builder to be detected in fixture")
		}
	})
}

var handRolledPageBuilder = regexp.MustCompile(`(?m)^\s*(func|type)\s+(NewPageResult|PageResult|NewPaginatedResponse|PaginatedResponse)\b`)

func hasHandRolledPageBuilder(src string) bool {
	return handRolledPageBuilder.MatchString(src)
}

func findHandRolledPageBuilders(root string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if hasHandRolledPageBuilder(string(src)) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

// The browsing side (client, table, criteria) must build without the HTTP
// server or ORM stacks.
func TestLayering_ClientPackagesStayServerFree(t *testing.T) {
	forbidden := []string{"github.com/gin-gonic/gin", "gorm.io/gorm", "gorm.io/driver/"}

	t.Run("happy_repo_packages", func(t *testing.T) {
		for _, dir := range []string{"internal/client", "internal/table", "internal/criteria"} {
			imports, err := packageImports(dir)
			if err != nil {
				t.Fatalf("scan %s: %v", dir, err)
			}
			for _, imp := range imports {
				if importsAny(imp, forbidden) {
					t.Errorf("%s imports %s", dir, imp)
				}
			}
		}
	})

	t.Run("error_fixture_is_detected", func(t *testing.T) {
		if !importsAny("gorm.io/driver/postgres", forbidden) {
			t.Fatal("expected driver import to be flagged")
		}
	})
}

func testModulePresence(t *testing.T, module string) {
	t.Helper()

	t.Run("happy_present_in_real_go_mod", func(t *testing.T) {
		goMod, err := os.ReadFile("go.mod")
		if err != nil {
			t.Fatalf("read go.mod: %v", err)
		}
		if !moduleRequired(string(goMod), module) {
			t.Fatalf("expected module %q to be present in go.mod", module)
		}
	})

	t.Run("error_missing_module_in_fixture", func(t *testing.T) {
		fixture := `module example.com/demo

go 1.25.0

require (
	github.com/google/go-cmp v0.7.0
)`
		if moduleRequired(fixture, module) {
			t.Fatalf("expected fixture to not contain module %q", module)
		}
	})
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

// packageImports returns the imports of the non-test files in dir.
func packageImports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, path)
		}
	}
	return out, nil
}

func importsAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
