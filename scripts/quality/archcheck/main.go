// Command archcheck fails when a package imports across a forbidden layer.
//
// Layers, innermost first: pkg/bot, internal/kernel, internal/driver,
// modules/<name>. cmd/ and scripts/ may import anything.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePath = "nanobot"

type layer int

const (
	layerExternal layer = iota
	layerBot
	layerKernel
	layerDriver
	layerModule
	layerEntrypoint
)

func (l layer) String() string {
	switch l {
	case layerBot:
		return "pkg/bot"
	case layerKernel:
		return "internal/kernel"
	case layerDriver:
		return "internal/driver"
	case layerModule:
		return "modules"
	case layerEntrypoint:
		return "entrypoint"
	default:
		return "external"
	}
}

// allowed lists the in-module layers each layer may import.
var allowed = map[layer][]layer{
	layerBot:    {layerBot},
	layerKernel: {layerBot, layerKernel},
	layerDriver: {layerBot, layerDriver},
	layerModule: {layerBot, layerModule},
}

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "archcheck: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		fmt.Println("archcheck: ok")
		return
	}

	fmt.Printf("archcheck: %d violation(s)\n", len(violations))
	for _, violation := range violations {
		fmt.Println("  " + violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	var stdout bytes.Buffer
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stdout, cmd.Stderr = &stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	var packages []listedPackage
	decoder := json.NewDecoder(&stdout)
	for {
		var pkg listedPackage
		err := decoder.Decode(&pkg)
		if errors.Is(err, io.EOF) {
			return packages, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})
	for _, pkg := range packages {
		for _, imports := range [][]string{pkg.Imports, pkg.TestImports, pkg.XTestImports} {
			for _, imported := range imports {
				if reason := violationReason(pkg.ImportPath, imported); reason != "" {
					found[fmt.Sprintf("%s -> %s: %s", pkg.ImportPath, imported, reason)] = struct{}{}
				}
			}
		}
	}

	return slices.Sorted(maps.Keys(found))
}

func violationReason(importer, imported string) string {
	from, fromModule := classify(importer)
	to, toModule := classify(imported)
	if to == layerExternal || from == layerEntrypoint || from == layerExternal {
		return ""
	}
	if !slices.Contains(allowed[from], to) {
		return fmt.Sprintf("%s may not import %s", from, to)
	}
	if from == layerModule && to == layerModule && fromModule != toModule {
		return "modules share services through pkg/bot, not imports"
	}

	return ""
}

// classify maps an import path, including go list test variants such as
// "p [p.test]" or "p_test", to its layer. For modules it also returns the
// module directory name.
func classify(importPath string) (layer, string) {
	path, _, _ := strings.Cut(importPath, " ")
	path = strings.TrimSuffix(strings.TrimSuffix(path, ".test"), "_test")

	rest, ok := strings.CutPrefix(path, modulePath+"/")
	if !ok {
		return layerExternal, ""
	}
	switch {
	case hasPathPrefix(rest, "pkg/bot"):
		return layerBot, ""
	case hasPathPrefix(rest, "internal/kernel"):
		return layerKernel, ""
	case hasPathPrefix(rest, "internal/driver"):
		return layerDriver, ""
	case hasPathPrefix(rest, "modules"):
		name, _, _ := strings.Cut(strings.TrimPrefix(rest, "modules/"), "/")
		return layerModule, name
	default:
		return layerEntrypoint, ""
	}
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
