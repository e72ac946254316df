// Command sqllint verifies that every inline SQL constant in the given
// packages opens with the `--sql <uuid>` audit marker that
// infra.SQLRunner requires at runtime. Run it over internal/sqlinline in
// CI so a missing marker fails the build instead of the first query.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlPattern    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}

	failed := false
	for _, target := range targets {
		if err := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			bad, err := lintFile(path)
			if err != nil {
				return err
			}
			for _, msg := range bad {
				failed = true
				fmt.Fprintln(os.Stderr, msg)
			}
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func lintFile(path string) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	var bad []string
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			var raw string
			if strings.HasPrefix(bl.Value, "`") {
				raw = strings.Trim(bl.Value, "`")
			} else if unquoted, err := strconv.Unquote(bl.Value); err == nil {
				raw = unquoted
			} else {
				continue
			}
			if !sqlPattern.MatchString(raw) {
				continue
			}
			first, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
			if !markerPattern.MatchString(strings.TrimSpace(first)) {
				pos := fset.Position(bl.Pos())
				name := ""
				if i < len(vs.Names) {
					name = vs.Names[i].Name
				}
				bad = append(bad, fmt.Sprintf("%s:%d: %s: missing or invalid --sql <uuid> marker", path, pos.Line, name))
			}
		}
		return true
	})
	return bad, nil
}
