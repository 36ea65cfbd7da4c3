package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const moduleName = "guildhall"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a layer of a context service may import besides the
// standard library. Paths are relative to the service root unless absolute.
type layerRule struct {
	allowed        []string
	allowedModules []string
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed: []string{"domain"},
	},
	"ports": {
		allowed:        []string{"domain"},
		allowedModules: []string{moduleName + "/contracts"},
	},
	"application": {
		allowed:        []string{"application", "domain", "ports"},
		allowedModules: []string{moduleName + "/contracts"},
	},
	"transport": {
		allowed: []string{"transport"},
	},
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}

		servicePrefix := fmt.Sprintf("%s/contexts/%s/%s", moduleName, parts[1], parts[2])
		violations = append(violations, validateFile(path, normalized, parts[3], servicePrefix)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, servicePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{
			File: normalizedPath,
			Line: 1,
			Rule: "file must parse",
		}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		report := func(rule string) {
			violations = append(violations, violation{
				File:   normalizedPath,
				Line:   line,
				Import: importPath,
				Rule:   rule,
			})
		}

		if strings.HasPrefix(importPath, moduleName+"/contexts/") && !hasPrefix(importPath, servicePrefix) {
			report("cross-service imports are forbidden")
		}

		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		if strings.Contains(importPath, "/adapters/") {
			report(layer + " must not import adapters")
			continue
		}
		if hasPrefix(importPath, moduleName+"/internal") {
			report(layer + " must not import runtime infrastructure")
			continue
		}
		if !isStdlib(importPath) && !rule.permits(importPath, servicePrefix) {
			report(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func (r layerRule) permits(importPath string, servicePrefix string) bool {
	for _, p := range r.allowed {
		if hasPrefix(importPath, servicePrefix+"/"+p) {
			return true
		}
	}
	for _, p := range r.allowedModules {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// isStdlib treats any import whose first element has no dot as standard
// library, except paths inside this module.
func isStdlib(importPath string) bool {
	if hasPrefix(importPath, moduleName) {
		return false
	}
	first := importPath
	if i := strings.Index(importPath, "/"); i >= 0 {
		first = importPath[:i]
	}
	return !strings.Contains(first, ".")
}
