package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/brightgraph/codegraph/internal/fqn"
	"github.com/brightgraph/codegraph/internal/lang"
	"github.com/brightgraph/codegraph/internal/parser"
)

// parseImports extracts the import map for a source file.
// Returns localName -> resolvedQN mapping.
func parseImports(
	root *tree_sitter.Node,
	source []byte,
	language lang.Language,
	projectName, relPath string,
) map[string]string {
	switch language {
	case lang.Go:
		return parseGoImports(root, source, projectName)
	case lang.Python:
		return parsePythonImports(root, source, projectName, relPath)
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		return parseJSImports(root, source, projectName, relPath)
	default:
		return nil
	}
}

// parseGoImports extracts Go import declarations.
// For each import spec: localName -> module QN (project-relative) or raw path.
//
// Go import AST structure:
//
//	import_declaration
//	  import_spec_list
//	    import_spec
//	      name: package_identifier (optional alias)
//	      path: interpreted_string_literal
func parseGoImports(
	root *tree_sitter.Node,
	source []byte,
	projectName string,
) map[string]string {
	imports := make(map[string]string)

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if node.Kind() != "import_declaration" {
			return true
		}

		// Process each import_spec inside this declaration
		processGoImportDecl(node, source, projectName, imports)
		return false // don't recurse further
	})

	return imports
}

func processGoImportDecl(node *tree_sitter.Node, source []byte, projectName string, imports map[string]string) {
	parser.Walk(node, func(child *tree_sitter.Node) bool {
		if child.Kind() != "import_spec" {
			return true
		}

		pathNode := child.ChildByFieldName("path")
		if pathNode == nil {
			return false
		}

		importPath := stripQuotes(parser.NodeText(pathNode, source))
		if importPath == "" {
			return false
		}

		// Determine the local name: alias if present, else last segment
		localName := lastPathSegment(importPath)
		nameNode := child.ChildByFieldName("name")
		if nameNode != nil {
			alias := parser.NodeText(nameNode, source)
			if alias != "" && alias != "." && alias != "_" {
				localName = alias
			}
		}

		// Resolve the import path to a project-internal QN if possible.
		// We check if any part of the import path matches the project name,
		// which indicates an internal package.
		resolvedQN := resolveGoImportPath(importPath, projectName)
		imports[localName] = resolvedQN

		return false
	})
}

// resolveGoImportPath converts a Go import path to a project-internal QN.
// For internal packages: "github.com/org/project/pkg/foo" -> "project.pkg.foo"
// For external packages: "fmt" -> "fmt", "net/http" -> "net.http"
func resolveGoImportPath(importPath, projectName string) string {
	parts := strings.Split(importPath, "/")

	// Check if this is a project-internal import by looking for the project
	// name in the path segments (common pattern: github.com/org/project/...)
	for i, part := range parts {
		if part == projectName {
			// Everything after the project name becomes the QN
			remaining := parts[i:]
			return strings.Join(remaining, ".")
		}
	}

	// External package: use the full path with dots
	return strings.Join(parts, ".")
}

// parsePythonImports extracts Python import statements.
//
// Python import AST structures:
//
//	import_statement:
//	  dotted_name children (e.g., "import foo.bar")
//	  aliased_import with alias (e.g., "import foo as f")
//
//	import_from_statement:
//	  module_name: dotted_name or relative_import
//	  name: dotted_name (what's being imported)
//	  Multiple names possible (e.g., "from foo import bar, baz")
func parsePythonImports(
	root *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
) map[string]string {
	imports := make(map[string]string)

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "import_statement":
			processPythonImport(node, source, projectName, imports)
			return false
		case "import_from_statement":
			processPythonFromImport(node, source, projectName, relPath, imports)
			return false
		}
		return true
	})

	return imports
}

// processPythonImport handles "import X" and "import X as Y" statements.
func processPythonImport(node *tree_sitter.Node, source []byte, projectName string, imports map[string]string) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Kind() {
		case "dotted_name":
			name := parser.NodeText(child, source)
			localName := lastDotSegment(name)
			imports[localName] = resolvePythonModule(name, projectName)

		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil {
				continue
			}
			name := parser.NodeText(nameNode, source)
			localName := lastDotSegment(name)
			if aliasNode != nil {
				localName = parser.NodeText(aliasNode, source)
			}
			imports[localName] = resolvePythonModule(name, projectName)
		}
	}
}

// processPythonFromImport handles "from X import Y" statements.
func processPythonFromImport(
	node *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
	imports map[string]string,
) {
	// Get the module being imported from
	moduleNode := node.ChildByFieldName("module_name")
	var modulePath string
	isRelative := false

	if moduleNode != nil {
		modulePath = parser.NodeText(moduleNode, source)
		isRelative = strings.HasPrefix(modulePath, ".")
	} else {
		// Check for bare relative import: "from . import X"
		text := parser.NodeText(node, source)
		if strings.HasPrefix(text, "from .") {
			isRelative = true
			modulePath = "."
		}
	}

	// Resolve the base module
	var baseModule string
	if isRelative {
		baseModule = resolveRelativePythonImport(modulePath, relPath, projectName)
	} else {
		baseModule = resolvePythonModule(modulePath, projectName)
	}

	// Extract each imported name
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Kind() {
		case "dotted_name":
			name := parser.NodeText(child, source)
			// Skip the module_name itself (first dotted_name is often the source)
			if name == modulePath {
				continue
			}
			localName := lastDotSegment(name)
			if baseModule != "" {
				imports[localName] = baseModule + "." + name
			} else {
				imports[localName] = name
			}

		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil {
				continue
			}
			name := parser.NodeText(nameNode, source)
			localName := lastDotSegment(name)
			if aliasNode != nil {
				localName = parser.NodeText(aliasNode, source)
			}
			if baseModule != "" {
				imports[localName] = baseModule + "." + name
			} else {
				imports[localName] = name
			}
		}
	}
}

// resolvePythonModule converts a Python module path to a project QN.
// "utils" -> "project.utils", "foo.bar" -> "project.foo.bar"
func resolvePythonModule(modulePath, projectName string) string {
	if modulePath == "" {
		return projectName
	}
	return projectName + "." + modulePath
}

// resolveRelativePythonImport resolves relative imports like "from . import X"
// or "from ..utils import X" based on the current file's location.
func resolveRelativePythonImport(modulePath, relPath, projectName string) string {
	// Count leading dots for relative depth
	dots := 0
	for _, ch := range modulePath {
		if ch == '.' {
			dots++
		} else {
			break
		}
	}
	remainder := strings.TrimLeft(modulePath, ".")

	// Navigate up from the current file's directory
	dir := filepath.Dir(relPath)
	for i := 1; i < dots; i++ {
		dir = filepath.Dir(dir)
	}

	baseQN := fqn.FolderQN(projectName, dir)
	if dir == "." || dir == "" {
		baseQN = projectName
	}

	if remainder != "" {
		return baseQN + "." + remainder
	}
	return baseQN
}

// parseJSImports extracts ES6 import/export-from statements and CommonJS
// require() bindings from a JavaScript/TypeScript/TSX module.
//
// Forms handled (spec §4.5):
//   - "import X from 'm'"                 -> X -> m
//   - "import * as X from 'm'"            -> X -> m
//   - "import { a, b as c } from 'm'"     -> a -> m.a, c -> m.b
//   - "export * from 'm'"                 -> wildcard source m (no local name)
//   - "export { a as b } from 'm'"        -> b -> m.a (alias maps to the
//     SOURCE name, not the alias -- a known bug class in the reference
//     implementation this is distilled from; fixed here).
//   - "const x = require('m')"            -> x -> m
//   - "const { a, b: c } = require('m')"  -> a -> m.a, c -> m.b, each an
//     independent mapping (destructured local-name list is iterated, never
//     zipped against a parallel source-module list).
func parseJSImports(
	root *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
) map[string]string {
	imports := make(map[string]string)
	wildcardN := 0

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "import_statement":
			processJSImportStatement(node, source, projectName, relPath, imports)
			return false
		case "export_statement":
			processJSExportStatement(node, source, projectName, relPath, imports, &wildcardN)
			return false
		case "variable_declarator":
			processJSRequireDeclarator(node, source, projectName, relPath, imports)
			return true
		}
		return true
	})

	return imports
}

// processJSImportStatement handles "import ... from 'source'".
func processJSImportStatement(
	node *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
	imports map[string]string,
) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	modulePath := stripQuotes(parser.NodeText(sourceNode, source))
	if modulePath == "" {
		return
	}
	targetModule := resolveJSModulePath(modulePath, relPath, projectName)

	var clause *tree_sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child != nil && child.Kind() == "import_clause" {
			clause = child
			break
		}
	}
	if clause == nil {
		// Side-effect-only import: "import './foo'" introduces no local
		// binding, so it has no entry in the local_name -> target mapping.
		return
	}

	for i := uint(0); i < clause.NamedChildCount(); i++ {
		part := clause.NamedChild(i)
		if part == nil {
			continue
		}
		switch part.Kind() {
		case "identifier":
			// Default import: bind the local name directly to the module.
			localName := parser.NodeText(part, source)
			imports[localName] = targetModule

		case "namespace_import":
			// "* as X" -- also binds the whole module to a local name.
			for j := uint(0); j < part.NamedChildCount(); j++ {
				nameNode := part.NamedChild(j)
				if nameNode != nil && nameNode.Kind() == "identifier" {
					imports[parser.NodeText(nameNode, source)] = targetModule
				}
			}

		case "named_imports":
			for j := uint(0); j < part.NamedChildCount(); j++ {
				spec := part.NamedChild(j)
				if spec == nil || spec.Kind() != "import_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				aliasNode := spec.ChildByFieldName("alias")
				if nameNode == nil {
					continue
				}
				importedName := parser.NodeText(nameNode, source)
				localName := importedName
				if aliasNode != nil {
					localName = parser.NodeText(aliasNode, source)
				}
				imports[localName] = targetModule + "." + importedName
			}
		}
	}
}

// processJSExportStatement handles "export ... from 'source'" re-exports.
func processJSExportStatement(
	node *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
	imports map[string]string,
	wildcardN *int,
) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		// Local export ("export function foo() {}", "export { foo }"
		// without a source) introduces no new import mapping.
		return
	}
	modulePath := stripQuotes(parser.NodeText(sourceNode, source))
	if modulePath == "" {
		return
	}
	targetModule := resolveJSModulePath(modulePath, relPath, projectName)

	var exportClause *tree_sitter.Node
	hasWildcard := false
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "export_clause":
			exportClause = child
		case "namespace_export":
			hasWildcard = true
		}
	}
	if !hasWildcard && exportClause == nil && strings.Contains(parser.NodeText(node, source), "export *") {
		// Grammar fallback: some tree-sitter-javascript versions emit the
		// "*" token directly rather than wrapping it in namespace_export.
		hasWildcard = true
	}

	if hasWildcard && exportClause == nil {
		// "export * from './other'" -- no local name; record as a
		// synthetic wildcard source the resolver can fall back to.
		imports["*wildcard"+strconv.Itoa(*wildcardN)] = targetModule
		*wildcardN++
		return
	}
	if exportClause == nil {
		return
	}

	for i := uint(0); i < exportClause.NamedChildCount(); i++ {
		spec := exportClause.NamedChild(i)
		if spec == nil || spec.Kind() != "export_specifier" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		aliasNode := spec.ChildByFieldName("alias")
		if nameNode == nil {
			continue
		}
		sourceName := parser.NodeText(nameNode, source)
		if aliasNode == nil {
			// Plain re-export: "export { add } from './math_utils'"
			imports[sourceName] = targetModule + "." + sourceName
			continue
		}
		alias := parser.NodeText(aliasNode, source)
		// Bug-fix rule (spec §4.5): alias maps to the SOURCE name, not to
		// itself -- "export { add as mathAdd }" must produce
		// mathAdd -> math_utils.add, never mathAdd -> math_utils.mathAdd.
		imports[alias] = targetModule + "." + sourceName
	}
}

// processJSRequireDeclarator handles "const x = require('m')" and
// "const { a, b: c } = require('m')".
func processJSRequireDeclarator(
	node *tree_sitter.Node,
	source []byte,
	projectName, relPath string,
	imports map[string]string,
) {
	valueNode := node.ChildByFieldName("value")
	if valueNode == nil || valueNode.Kind() != "call_expression" {
		return
	}
	fnNode := valueNode.ChildByFieldName("function")
	if fnNode == nil || fnNode.Kind() != "identifier" || parser.NodeText(fnNode, source) != "require" {
		return
	}
	argsNode := valueNode.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return
	}
	firstArg := argsNode.NamedChild(0)
	if firstArg == nil || firstArg.Kind() != "string" {
		return // dynamic argument (e.g. require(getModuleName())): unresolvable
	}
	modulePath := stripQuotes(parser.NodeText(firstArg, source))
	if modulePath == "" {
		return
	}
	targetModule := resolveJSModulePath(modulePath, relPath, projectName)

	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	switch nameNode.Kind() {
	case "identifier":
		imports[parser.NodeText(nameNode, source)] = targetModule

	case "object_pattern":
		// Destructuring iterates the *local-name list* independently for
		// each binding; it never indexes a parallel source-module list, so
		// an arbitrary number of bindings from one require() are each
		// mapped on their own (spec §4.5, regression-tested in the
		// reference implementation this is distilled from).
		for i := uint(0); i < nameNode.NamedChildCount(); i++ {
			prop := nameNode.NamedChild(i)
			if prop == nil {
				continue
			}
			switch prop.Kind() {
			case "shorthand_property_identifier_pattern":
				importedName := parser.NodeText(prop, source)
				imports[importedName] = targetModule + "." + importedName

			case "pair_pattern":
				keyNode := prop.ChildByFieldName("key")
				valNode := prop.ChildByFieldName("value")
				if keyNode == nil || valNode == nil {
					continue
				}
				importedName := parser.NodeText(keyNode, source)
				localName := parser.NodeText(valNode, source)
				imports[localName] = targetModule + "." + importedName
			}
		}
	}
}

// resolveJSModulePath resolves a JS/TS import source to a project QN.
// Relative paths ("./x", "../x") are resolved against the importing file's
// directory and collapsed the same way Node's module resolution would.
// Absolute package specifiers (including scoped "@org/pkg" and submodule
// paths like "lodash/debounce") are treated as external, dot-joined QNs.
func resolveJSModulePath(importPath, relPath, projectName string) string {
	if !strings.HasPrefix(importPath, ".") {
		return strings.ReplaceAll(importPath, "/", ".")
	}

	dir := filepath.Dir(relPath)
	joined := filepath.ToSlash(filepath.Join(dir, importPath))
	joined = strings.TrimSuffix(joined, filepath.Ext(joined))
	joined = strings.TrimSuffix(joined, "/index")
	for strings.HasPrefix(joined, "../") {
		joined = strings.TrimPrefix(joined, "../")
	}

	var segs []string
	for _, p := range strings.Split(joined, "/") {
		if p != "" && p != "." && p != ".." {
			segs = append(segs, p)
		}
	}
	return strings.Join(append([]string{projectName}, segs...), ".")
}

// stripQuotes removes surrounding quotes from a string literal.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
		// Handle backtick quotes (Go raw strings)
		if s[0] == '`' && s[len(s)-1] == '`' {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// lastPathSegment returns the last segment of a /-separated path.
func lastPathSegment(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// lastDotSegment returns the last segment of a .-separated name.
func lastDotSegment(name string) string {
	parts := strings.Split(name, ".")
	return parts[len(parts)-1]
}
