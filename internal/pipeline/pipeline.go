package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/brightgraph/codegraph/internal/discover"
	"github.com/brightgraph/codegraph/internal/fqn"
	"github.com/brightgraph/codegraph/internal/ingest"
	"github.com/brightgraph/codegraph/internal/lang"
	"github.com/brightgraph/codegraph/internal/parser"
	"github.com/brightgraph/codegraph/internal/store"
)

// Pipeline orchestrates the 3-pass indexing of a repository.
type Pipeline struct {
	ctx         context.Context
	Store       *store.Store
	RepoPath    string
	ProjectName string
	// astCache bounds the parsed-CST working set at astCacheSize entries
	// (spec.md §5's "per worker holds at most one CST" discipline, capped at
	// the orchestrator level): pass 2 populates one entry per successfully
	// parsed file, keyed by rel_path, and pass 3 (plus cross-file type
	// inference re-walking another file's body) reads it back. A file
	// evicted under memory pressure from a very large repo is simply
	// skipped by its consumer rather than re-parsed.
	astCache *lru.Cache[string, *cachedAST]
	// indexedFiles lists, in pass-2 discovery order, every rel_path added to
	// astCache — pass 3 walks this list rather than the cache itself, since
	// the cache does not expose its full key set.
	indexedFiles []string
	// registry indexes all Function/Method/Class nodes for call resolution
	registry *FunctionRegistry
	// importMaps stores per-module import maps: moduleQN -> localName -> resolvedQN
	importMaps map[string]map[string]string
	// Stats accumulates per-error-kind counts for this run's final summary.
	Stats *Stats
	// CallChainDepth bounds how many hops a chained method call (e.g.
	// a.b().c().d()) is followed through type inference before resolution
	// gives up, per spec.md §6's call_chain_depth knob.
	CallChainDepth int
	// WorkerCount bounds the parse pool size for passes 2 and 3 (spec.md §6's
	// worker_count knob). 0 means runtime.NumCPU().
	WorkerCount int
	// MaxFileBytes and IgnoreFile configure discovery (spec.md §6's
	// max_file_bytes / ignore file knobs). Zero/empty means no limit / none.
	MaxFileBytes int64
	IgnoreFile   string
	// LanguagesEnabled restricts discovery to this set of language tags
	// (spec.md §6's languages_enabled knob). A nil set means all supported
	// languages are enabled.
	LanguagesEnabled map[lang.Language]bool
}

// effectiveWorkerCount returns the bounded worker pool size for a pass over
// n items: p.WorkerCount if configured, else runtime.NumCPU(), never more
// than n.
func (p *Pipeline) effectiveWorkerCount(n int) int {
	workers := p.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

type cachedAST struct {
	Tree     *tree_sitter.Tree
	Source   []byte
	Language lang.Language
}

// astCacheSize bounds the number of parsed CSTs held in memory at once. Sized
// generously enough that real repos never evict in practice; it exists to cap
// memory on pathologically large ones.
const astCacheSize = 4096

// New creates a new Pipeline.
func New(ctx context.Context, s *store.Store, repoPath string) *Pipeline {
	projectName := ProjectNameFromPath(repoPath)
	astCache, _ := lru.NewWithEvict[string, *cachedAST](astCacheSize, func(_ string, cached *cachedAST) {
		cached.Tree.Close()
	})
	return &Pipeline{
		ctx:            ctx,
		Store:          s,
		RepoPath:       repoPath,
		ProjectName:    projectName,
		astCache:       astCache,
		registry:       NewFunctionRegistry(),
		importMaps:     make(map[string]map[string]string),
		Stats:          NewStats(),
		CallChainDepth: 6,
	}
}

// ProjectNameFromPath derives a unique project name from an absolute path
// by replacing path separators with dashes and trimming the leading dash.
func ProjectNameFromPath(absPath string) string {
	// Clean and convert to slash-separated
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	// Replace slashes with dashes
	name := strings.ReplaceAll(cleaned, "/", "-")
	// Trim leading dash (from leading /)
	name = strings.TrimLeft(name, "-")
	if name == "" {
		return "root"
	}
	return name
}

// checkCancel returns ctx.Err() if the pipeline's context has been cancelled.
func (p *Pipeline) checkCancel() error {
	return p.ctx.Err()
}

// Run executes the pipeline within a single transaction: discover files,
// then run the passes in runFullPasses. Incremental re-parse on file change
// is explicitly out of scope (spec non-goal) — every run is a full index.
func (p *Pipeline) Run() error {
	slog.Info("pipeline.start", "project", p.ProjectName, "path", p.RepoPath)

	if err := p.checkCancel(); err != nil {
		return err
	}

	// Discover source files (filesystem, no DB — runs outside transaction)
	files, err := discover.Discover(p.ctx, p.RepoPath, &discover.Options{
		IgnoreFile:   p.IgnoreFile,
		MaxFileBytes: p.MaxFileBytes,
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	files = p.filterEnabledLanguages(files)
	slog.Info("pipeline.discovered", "files", len(files))

	if err := p.Store.WithTransaction(func(txStore *store.Store) error {
		origStore := p.Store
		p.Store = txStore
		defer func() { p.Store = origStore }()
		if err := p.Store.UpsertProject(p.ProjectName, p.RepoPath); err != nil {
			return fmt.Errorf("upsert project: %w", err)
		}
		return p.runFullPasses(files)
	}); err != nil {
		return err
	}

	nc, _ := p.Store.CountNodes(p.ProjectName)
	ec, _ := p.Store.CountEdges(p.ProjectName)
	slog.Info("pipeline.done", "nodes", nc, "edges", ec)
	return nil
}

// filterEnabledLanguages drops discovered files whose language isn't in
// p.LanguagesEnabled (spec.md §6's languages_enabled knob). A nil set
// enables every supported language, so a bare Pipeline built without config
// wiring behaves exactly as before this knob existed.
func (p *Pipeline) filterEnabledLanguages(files []discover.FileInfo) []discover.FileInfo {
	if p.LanguagesEnabled == nil {
		return files
	}
	kept := files[:0]
	for _, f := range files {
		if p.LanguagesEnabled[f.Language] {
			kept = append(kept, f)
		}
	}
	return kept
}

// runFullPasses runs the complete indexing pipeline: structure → definitions
// → registry → link phase (inherits/implements) → imports → calls.
func (p *Pipeline) runFullPasses(files []discover.FileInfo) error {
	t := time.Now()
	if err := p.passStructure(files); err != nil {
		return fmt.Errorf("pass1 structure: %w", err)
	}
	slog.Info("pass.timing", "pass", "structure", "elapsed", time.Since(t))
	if err := p.checkCancel(); err != nil {
		return err
	}

	t = time.Now()
	if err := p.passDefinitions(files); err != nil {
		return fmt.Errorf("pass2 definitions: %w", err)
	}
	slog.Info("pass.timing", "pass", "definitions", "elapsed", time.Since(t))
	if err := p.checkCancel(); err != nil {
		return err
	}

	t = time.Now()
	p.buildRegistry()
	slog.Info("pass.timing", "pass", "registry", "elapsed", time.Since(t))
	if err := p.checkCancel(); err != nil {
		return err
	}

	p.flattenImportAliasChains()

	// Link phase: inheritance/implementation edges, resolved now that all
	// class nodes exist in the registry.
	t = time.Now()
	p.passInherits()
	slog.Info("pass.timing", "pass", "inherits", "elapsed", time.Since(t))

	t = time.Now()
	p.passImplements()
	slog.Info("pass.timing", "pass", "implements", "elapsed", time.Since(t))

	t = time.Now()
	if err := p.passImports(); err != nil {
		return fmt.Errorf("pass2b imports: %w", err)
	}
	slog.Info("pass.timing", "pass", "imports", "elapsed", time.Since(t))
	if err := p.checkCancel(); err != nil {
		return err
	}

	t = time.Now()
	if err := p.passCalls(); err != nil {
		return fmt.Errorf("pass3 calls: %w", err)
	}
	slog.Info("pass.timing", "pass", "calls", "elapsed", time.Since(t))
	if err := p.checkCancel(); err != nil {
		return err
	}

	p.cleanupASTCache()

	// Observability: per-edge-type counts
	p.logEdgeCounts()

	return nil
}

// logEdgeCounts logs the count of each edge type for observability.
func (p *Pipeline) logEdgeCounts() {
	edgeTypes := []string{
		"CALLS", "IMPORTS", "DEFINES", "DEFINES_METHOD",
		"INHERITS", "IMPLEMENTS",
		"CONTAINS_FILE", "CONTAINS_FOLDER", "CONTAINS_PACKAGE",
	}
	for _, edgeType := range edgeTypes {
		edges, err := p.Store.FindEdgesByType(p.ProjectName, edgeType)
		if err == nil && len(edges) > 0 {
			slog.Info("pipeline.edges", "type", edgeType, "count", len(edges))
		}
	}
}

func (p *Pipeline) cleanupASTCache() {
	p.astCache.Purge()
	p.indexedFiles = nil
}

// passStructure creates Project, Folder, Package, File nodes and containment edges.
// Collects all nodes/edges in memory first, then batch-writes to DB.
func (p *Pipeline) passStructure(files []discover.FileInfo) error {
	slog.Info("pass1.structure")

	dirSet, dirIsPackage := p.classifyDirectories(files)

	nodes := make([]*store.Node, 0, len(files)*2)
	edges := make([]pendingEdge, 0, len(files)*2)

	projectQN := p.ProjectName
	nodes = append(nodes, &store.Node{
		Project:       p.ProjectName,
		Label:         "Project",
		Name:          p.ProjectName,
		QualifiedName: projectQN,
	})

	dirNodes, dirEdges := p.buildDirNodesEdges(dirSet, dirIsPackage, projectQN)
	nodes = append(nodes, dirNodes...)
	edges = append(edges, dirEdges...)

	fileNodes, fileEdges := p.buildFileNodesEdges(files)
	nodes = append(nodes, fileNodes...)
	edges = append(edges, fileEdges...)

	return p.batchWriteStructure(nodes, edges)
}

// classifyDirectories collects all directories and determines which are packages.
func (p *Pipeline) classifyDirectories(files []discover.FileInfo) (allDirs, packageDirs map[string]bool) {
	packageIndicators := make(map[string]bool)
	for _, l := range lang.AllLanguages() {
		spec := lang.ForLanguage(l)
		if spec != nil {
			for _, pi := range spec.PackageIndicators {
				packageIndicators[pi] = true
			}
		}
	}

	allDirs = make(map[string]bool)
	for _, f := range files {
		dir := filepath.Dir(f.RelPath)
		for dir != "." && dir != "" && !allDirs[dir] {
			allDirs[dir] = true
			dir = filepath.Dir(dir)
		}
	}

	packageDirs = make(map[string]bool, len(allDirs))
	for dir := range allDirs {
		absDir := filepath.Join(p.RepoPath, dir)
		for indicator := range packageIndicators {
			if _, err := os.Stat(filepath.Join(absDir, indicator)); err == nil {
				packageDirs[dir] = true
				break
			}
		}
	}
	return
}

func (p *Pipeline) buildDirNodesEdges(dirSet, dirIsPackage map[string]bool, projectQN string) ([]*store.Node, []pendingEdge) {
	nodes := make([]*store.Node, 0, len(dirSet))
	edges := make([]pendingEdge, 0, len(dirSet))

	for dir := range dirSet {
		label := "Folder"
		edgeType := "CONTAINS_FOLDER"
		if dirIsPackage[dir] {
			label = "Package"
			edgeType = "CONTAINS_PACKAGE"
		}
		qn := fqn.FolderQN(p.ProjectName, dir)
		nodes = append(nodes, &store.Node{
			Project:       p.ProjectName,
			Label:         label,
			Name:          filepath.Base(dir),
			QualifiedName: qn,
			FilePath:      dir,
		})

		parent := filepath.Dir(dir)
		parentQN := projectQN
		if parent != "." && parent != "" {
			parentQN = fqn.FolderQN(p.ProjectName, parent)
		}
		edges = append(edges, pendingEdge{SourceQN: parentQN, TargetQN: qn, Type: edgeType})
	}
	return nodes, edges
}

func (p *Pipeline) buildFileNodesEdges(files []discover.FileInfo) ([]*store.Node, []pendingEdge) {
	nodes := make([]*store.Node, 0, len(files))
	edges := make([]pendingEdge, 0, len(files))

	for _, f := range files {
		fileQN := fqn.Compute(p.ProjectName, f.RelPath, "") + ".__file__"
		fileProps := map[string]any{
			"extension": filepath.Ext(f.RelPath),
			"is_test":   isTestFile(f.RelPath),
		}
		if f.Language != "" {
			fileProps["language"] = string(f.Language)
		}
		nodes = append(nodes, &store.Node{
			Project:       p.ProjectName,
			Label:         "File",
			Name:          filepath.Base(f.RelPath),
			QualifiedName: fileQN,
			FilePath:      f.RelPath,
			Properties:    fileProps,
		})

		parentQN := p.dirQN(filepath.Dir(f.RelPath))
		edges = append(edges, pendingEdge{SourceQN: parentQN, TargetQN: fileQN, Type: "CONTAINS_FILE"})
	}
	return nodes, edges
}

func (p *Pipeline) batchWriteStructure(nodes []*store.Node, edges []pendingEdge) error {
	var idMap map[string]int64
	err := ingest.Retry(p.ctx, ingest.Config{}, "pass1.batch_upsert", func() error {
		var err error
		idMap, err = p.Store.UpsertNodeBatch(nodes)
		return err
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass1 batch upsert: %w", err)
	}

	realEdges := make([]*store.Edge, 0, len(edges))
	for _, pe := range edges {
		srcID, srcOK := idMap[pe.SourceQN]
		tgtID, tgtOK := idMap[pe.TargetQN]
		if srcOK && tgtOK {
			realEdges = append(realEdges, &store.Edge{
				Project:    p.ProjectName,
				SourceID:   srcID,
				TargetID:   tgtID,
				Type:       pe.Type,
				Properties: pe.Properties,
			})
		}
	}

	err = ingest.Retry(p.ctx, ingest.Config{}, "pass1.batch_edges", func() error {
		return p.Store.InsertEdgeBatch(realEdges)
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass1 batch edges: %w", err)
	}
	return nil
}

func (p *Pipeline) dirQN(relDir string) string {
	if relDir == "." || relDir == "" {
		return p.ProjectName
	}
	return fqn.FolderQN(p.ProjectName, relDir)
}

// pendingEdge represents an edge to be created after batch node insertion,
// using qualified names that will be resolved to IDs.
type pendingEdge struct {
	SourceQN   string
	TargetQN   string
	Type       string
	Properties map[string]any
}

// parseResult holds the output of a pure file parse (no DB access).
type parseResult struct {
	File         discover.FileInfo
	Tree         *tree_sitter.Tree
	Source       []byte
	Nodes        []*store.Node
	PendingEdges []pendingEdge
	ImportMap    map[string]string
	Err          error
}

// passDefinitions parses each file and extracts function/class/method/module nodes.
// Uses parallel parsing (Stage 1) followed by sequential batch DB writes (Stage 2).
// Returns a non-nil error only when the batch write itself fails persistently
// after retry (spec.md §7's ingestor-transient → run-aborts escalation); a
// per-file parse error is local and only recorded in Stats.
func (p *Pipeline) passDefinitions(files []discover.FileInfo) error {
	slog.Info("pass2.definitions")

	if len(files) == 0 {
		return nil
	}

	// Stage 1: Parallel parse (CPU-bound, no DB, no shared state)
	results := make([]*parseResult, len(files))
	numWorkers := p.effectiveWorkerCount(len(files))

	g, gctx := errgroup.WithContext(p.ctx)
	g.SetLimit(numWorkers)
	for i, f := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = parseFileAST(p.ProjectName, f)
			return nil
		})
	}
	_ = g.Wait()

	// Stage 2: Sequential cache population + batch DB writes
	var allNodes []*store.Node
	var allPendingEdges []pendingEdge

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Err != nil {
			slog.Warn("pass2.file.err", "path", r.File.RelPath, "err", r.Err)
			p.Stats.Inc(ErrorParse)
			continue
		}
		// Populate AST cache (sequential, map writes)
		p.astCache.Add(r.File.RelPath, &cachedAST{
			Tree:     r.Tree,
			Source:   r.Source,
			Language: r.File.Language,
		})
		p.indexedFiles = append(p.indexedFiles, r.File.RelPath)
		// Store import map
		moduleQN := fqn.ModuleQN(p.ProjectName, r.File.RelPath)
		if len(r.ImportMap) > 0 {
			p.importMaps[moduleQN] = r.ImportMap
		}
		allNodes = append(allNodes, r.Nodes...)
		allPendingEdges = append(allPendingEdges, r.PendingEdges...)
	}

	// Batch insert all nodes, retrying transient write failures with backoff.
	var idMap map[string]int64
	err := ingest.Retry(p.ctx, ingest.Config{}, "pass2.batch_upsert", func() error {
		var err error
		idMap, err = p.Store.UpsertNodeBatch(allNodes)
		return err
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass2 batch upsert: %w", err)
	}

	// Resolve pending edges to real edges using the ID map
	edges := make([]*store.Edge, 0, len(allPendingEdges))
	for _, pe := range allPendingEdges {
		srcID, srcOK := idMap[pe.SourceQN]
		tgtID, tgtOK := idMap[pe.TargetQN]
		if srcOK && tgtOK {
			edges = append(edges, &store.Edge{
				Project:    p.ProjectName,
				SourceID:   srcID,
				TargetID:   tgtID,
				Type:       pe.Type,
				Properties: pe.Properties,
			})
		}
	}

	err = ingest.Retry(p.ctx, ingest.Config{}, "pass2.batch_edges", func() error {
		return p.Store.InsertEdgeBatch(edges)
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass2 batch edges: %w", err)
	}
	return nil
}

// parseFileAST is a pure function that reads a file, parses its AST,
// and extracts all nodes and edges as data. No DB access, no shared state mutation.
func parseFileAST(projectName string, f discover.FileInfo) *parseResult {
	result := &parseResult{File: f}

	source, err := os.ReadFile(f.Path)
	if err != nil {
		result.Err = err
		return result
	}

	// Strip UTF-8 BOM if present (common in C#/Windows-generated files)
	source = stripBOM(source)

	tree, err := parser.Parse(f.Language, source)
	if err != nil {
		slog.Warn("parse.file.err", "path", f.RelPath, "lang", f.Language, "err", err)
		result.Err = err
		return result
	}

	result.Tree = tree
	result.Source = source

	moduleQN := fqn.ModuleQN(projectName, f.RelPath)
	spec := lang.ForLanguage(f.Language)
	if spec == nil {
		return result
	}

	// Module node
	moduleNode := &store.Node{
		Project:       projectName,
		Label:         "Module",
		Name:          filepath.Base(f.RelPath),
		QualifiedName: moduleQN,
		FilePath:      f.RelPath,
	}
	result.Nodes = append(result.Nodes, moduleNode)

	// Extract definitions by walking the AST
	root := tree.RootNode()
	funcTypes := toSet(spec.FunctionNodeTypes)
	classTypes := toSet(spec.ClassNodeTypes)

	var constants []string

	// C/C++ macro tracking: extract macro definitions
	isCPP := f.Language == lang.CPP || f.Language == lang.C
	macroNames := make(map[string]bool) // track macro names for call site resolution

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		kind := node.Kind()

		if funcTypes[kind] {
			extractFunctionDef(node, source, f, projectName, moduleQN, spec, result)
			return false
		}

		// Rust impl blocks: extract methods and record trait implementation
		if kind == "impl_item" {
			extractRustImplBlock(node, source, f, projectName, moduleQN, spec, result)
			return false
		}

		if classTypes[kind] {
			extractClassDef(node, source, f, projectName, moduleQN, spec, result)
			return false
		}

		// Macro definitions (C/C++ only)
		if isCPP && kind == "preproc_function_def" {
			extractMacroDef(node, source, f, projectName, moduleQN, macroNames, result)
			return false
		}

		if isConstantNode(node, f.Language) {
			c := extractConstant(node, source)
			if c != "" && len(c) > 1 {
				constants = append(constants, c)
			}
		}

		return true
	})

	enrichModuleNode(moduleNode, macroNames, constants, root, source, f, projectName, moduleQN, spec, result)

	return result
}

// enrichModuleNode populates module node properties: macros, constants, is_test, exports.
func enrichModuleNode(
	moduleNode *store.Node, macroNames map[string]bool, constants []string,
	root *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, moduleQN string, spec *lang.LanguageSpec, result *parseResult,
) {
	if moduleNode.Properties == nil {
		moduleNode.Properties = make(map[string]any)
	}

	// Store macro names for call resolution
	if len(macroNames) > 0 {
		macroList := make([]string, 0, len(macroNames))
		for name := range macroNames {
			macroList = append(macroList, name)
		}
		moduleNode.Properties["macros"] = macroList
	}

	if len(constants) > 0 {
		moduleNode.Properties["constants"] = constants
	}

	moduleNode.Properties["is_test"] = isTestFile(f.RelPath)

	// exports: collect exported symbol names
	var exports []string
	for _, n := range result.Nodes {
		if n.QualifiedName == moduleQN {
			continue
		}
		if exp, ok := n.Properties["is_exported"].(bool); ok && exp {
			exports = append(exports, n.Name)
		}
	}
	if len(exports) > 0 {
		moduleNode.Properties["exports"] = exports
	}

	result.ImportMap = parseImports(root, source, f.Language, projectName, f.RelPath)
}

// isTestFile reports whether a source file's path/name follows one of the
// common per-ecosystem test-file naming conventions (Go, Python/pytest,
// JS/TS jest/mocha, Java/JUnit-by-Maven-convention).
func isTestFile(relPath string) bool {
	base := filepath.Base(relPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case strings.HasSuffix(name, "_test"), strings.HasPrefix(name, "test_"):
		return true
	case strings.HasSuffix(name, ".test"), strings.HasSuffix(name, ".spec"):
		return true
	case strings.Contains(filepath.ToSlash(relPath), "/test/"),
		strings.Contains(filepath.ToSlash(relPath), "/tests/"):
		return true
	}
	return false
}

// resolveFuncNameNode resolves the name node for a function, handling
// language-specific quirks (Lua anonymous assigns, JS/TS arrow assigns, etc).
func resolveFuncNameNode(node *tree_sitter.Node, language lang.Language) *tree_sitter.Node {
	nameNode := funcNameNode(node)
	if nameNode != nil {
		return nameNode
	}

	// Lua: anonymous function assignment
	if language == lang.Lua && node.Kind() == "function_definition" {
		return luaFuncAssignName(node)
	}

	// JS/TS/TSX: const X = () => {} — name lives on parent variable_declarator
	if node.Kind() == "arrow_function" {
		if p := node.Parent(); p != nil && p.Kind() == "variable_declarator" {
			return p.ChildByFieldName("name")
		}
	}

	return nil
}

// extractFunctionDef extracts a function/method node and DEFINES edge as data (no DB).
func extractFunctionDef(
	node *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, moduleQN string, spec *lang.LanguageSpec, result *parseResult,
) {
	nameNode := resolveFuncNameNode(node, f.Language)
	if nameNode == nil {
		return
	}
	name := parser.NodeText(nameNode, source)
	if name == "" || name == "function" {
		return
	}

	funcQN := fqn.Compute(projectName, f.RelPath, name)

	label := "Function"
	props := map[string]any{}

	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode != nil {
		props["signature"] = parser.NodeText(paramsNode, source)
		if paramTypes := extractParamTypes(paramsNode, source, f.Language); len(paramTypes) > 0 {
			props["param_types"] = paramTypes
		}
	}

	for _, field := range []string{"result", "return_type", "type"} {
		rtNode := node.ChildByFieldName(field)
		if rtNode != nil {
			rtText := parser.NodeText(rtNode, source)
			props["return_type"] = rtText
			if returnTypes := extractReturnTypes(rtNode, source, f.Language); len(returnTypes) > 0 {
				props["return_types"] = returnTypes
			}
			break
		}
	}

	recvNode := node.ChildByFieldName("receiver")
	if recvNode != nil {
		props["receiver"] = parser.NodeText(recvNode, source)
		label = "Method"
	}

	props["is_exported"] = isExported(name, f.Language)

	// JS/TS: detect actual `export` keyword — mark as entry point
	// export function foo() {} → parent is export_statement
	// export const x = () => {} → ancestor chain: variable_declarator → lexical_declaration → export_statement
	// module.exports = { foo } → handled separately via module.exports detection
	if f.Language == lang.JavaScript || f.Language == lang.TypeScript || f.Language == lang.TSX {
		if hasAncestorKind(node, "export_statement", 4) {
			props["is_entry_point"] = true
		}
	}

	// Decorator extraction (Python, Java, TS/JS)
	decorators := extractAllDecorators(node, source, f.Language)
	if len(decorators) > 0 {
		props["decorators"] = decorators
		if hasFrameworkDecorator(decorators) {
			props["is_entry_point"] = true
		}
	}

	if name == "main" {
		props["is_entry_point"] = true
	}

	startLine := safeRowToLine(node.StartPosition().Row)
	endLine := safeRowToLine(node.EndPosition().Row)

	// Enrichment: function body line count
	lines := endLine - startLine + 1
	if lines > 0 {
		props["lines"] = lines
	}

	result.Nodes = append(result.Nodes, &store.Node{
		Project:       projectName,
		Label:         label,
		Name:          name,
		QualifiedName: funcQN,
		FilePath:      f.RelPath,
		StartLine:     startLine,
		EndLine:       endLine,
		Properties:    props,
	})

	edgeType := "DEFINES"
	if label == "Method" {
		edgeType = "DEFINES_METHOD"
	}
	result.PendingEdges = append(result.PendingEdges, pendingEdge{
		SourceQN: moduleQN,
		TargetQN: funcQN,
		Type:     edgeType,
	})
}

// extractRustImplBlock handles Rust `impl Trait for Type` and `impl Type` blocks.
// It extracts methods inside the impl block and associates them with the implementing type.
// For `impl Trait for Type`, it records a pending IMPLEMENTS edge.
func extractRustImplBlock(
	node *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, _ string, spec *lang.LanguageSpec, result *parseResult,
) {
	// Get the implementing type name
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	typeName := parser.NodeText(typeNode, source)
	if typeName == "" {
		return
	}

	typeQN := fqn.Compute(projectName, f.RelPath, typeName)

	// Extract methods inside the impl block and attach to the type
	extractClassMethodDefs(node, source, f, projectName, typeQN, spec, result)

	// If this is `impl Trait for Type`, record IMPLEMENTS edge
	traitNode := node.ChildByFieldName("trait")
	if traitNode != nil {
		traitName := parser.NodeText(traitNode, source)
		if traitName != "" {
			traitQN := fqn.Compute(projectName, f.RelPath, traitName)
			result.PendingEdges = append(result.PendingEdges, pendingEdge{
				SourceQN: typeQN,
				TargetQN: traitQN,
				Type:     "IMPLEMENTS",
			})
		}
	}
}

// extractClassDef extracts a class/type node and its methods as data (no DB).
func extractClassDef(
	node *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, moduleQN string, spec *lang.LanguageSpec, result *parseResult,
) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := parser.NodeText(nameNode, source)
	if name == "" {
		return
	}

	classQN := fqn.Compute(projectName, f.RelPath, name)
	label := classLabelForKind(node.Kind())

	if node.Kind() == "type_spec" {
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			switch typeNode.Kind() {
			case "interface_type":
				label = "Interface"
			case "struct_type":
				label = "Class"
			}
		}
	}

	startLine := safeRowToLine(node.StartPosition().Row)
	endLine := safeRowToLine(node.EndPosition().Row)

	classProps := map[string]any{"is_exported": isExported(name, f.Language)}

	// Enrichment: base classes (for INHERITS edges in Phase 2)
	if baseClasses := extractBaseClasses(node, source, f.Language); len(baseClasses) > 0 {
		classProps["base_classes"] = baseClasses
	}

	// Enrichment: decorators/annotations for class-level (Java annotations, TS decorators)
	if decorators := extractAllDecorators(node, source, f.Language); len(decorators) > 0 {
		classProps["decorators"] = decorators
	}

	result.Nodes = append(result.Nodes, &store.Node{
		Project:       projectName,
		Label:         label,
		Name:          name,
		QualifiedName: classQN,
		FilePath:      f.RelPath,
		StartLine:     startLine,
		EndLine:       endLine,
		Properties:    classProps,
	})

	result.PendingEdges = append(result.PendingEdges, pendingEdge{
		SourceQN: moduleQN,
		TargetQN: classQN,
		Type:     "DEFINES",
	})

	// Extract methods inside the class
	extractClassMethodDefs(node, source, f, projectName, classQN, spec, result)

	// Extract fields inside the class/struct
	extractClassFieldDefs(node, source, f, projectName, classQN, spec, result)

	// Enrichment: method_count and field_count (count from extracted nodes)
	var methodCount, fieldCount int
	for _, pe := range result.PendingEdges {
		if pe.SourceQN == classQN {
			switch pe.Type {
			case "DEFINES_METHOD":
				methodCount++
			case "DEFINES_FIELD":
				fieldCount++
			}
		}
	}
	if methodCount > 0 {
		classProps["method_count"] = methodCount
	}
	if fieldCount > 0 {
		classProps["field_count"] = fieldCount
	}
}

// resolveMethodName resolves the name node for a method, including arrow function
// class properties where the name lives on the parent field_definition.
// Returns the name node and the field definition node (nil for regular methods).
func resolveMethodName(child *tree_sitter.Node) (nameNode, fieldDef *tree_sitter.Node) {
	if mn := funcNameNode(child); mn != nil {
		return mn, nil
	}
	// Arrow functions as class properties: the name lives on the parent
	// field_definition (JS) or public_field_definition (TS/TSX).
	if child.Kind() != "arrow_function" {
		return nil, nil
	}
	p := child.Parent()
	if p == nil {
		return nil, nil
	}
	switch p.Kind() {
	case "field_definition":
		nameNode = p.ChildByFieldName("property")
	case "public_field_definition":
		nameNode = p.ChildByFieldName("name")
	default:
		return nil, nil
	}
	return nameNode, p
}

// buildMethodProps builds the properties map for a class method node.
func buildMethodProps(
	child *tree_sitter.Node, fieldDefNode *tree_sitter.Node,
	source []byte, f discover.FileInfo, spec *lang.LanguageSpec,
) map[string]any {
	props := map[string]any{}

	paramsNode := child.ChildByFieldName("parameters")
	if paramsNode != nil {
		props["signature"] = parser.NodeText(paramsNode, source)
	}

	extractMethodReturnType(child, fieldDefNode, source, props)

	// Decorator extraction for class methods
	{
		decorators := extractAllDecorators(child, source, f.Language)
		if len(decorators) > 0 {
			props["decorators"] = decorators
			if hasFrameworkDecorator(decorators) {
				props["is_entry_point"] = true
			}
		}
	}

	if paramsNode != nil {
		if paramTypes := extractParamTypes(paramsNode, source, f.Language); len(paramTypes) > 0 {
			props["param_types"] = paramTypes
		}
	}

	return props
}

// extractMethodReturnType extracts the return type from a method or arrow function field.
func extractMethodReturnType(
	child *tree_sitter.Node, fieldDefNode *tree_sitter.Node,
	source []byte, props map[string]any,
) {
	// For arrow function properties, extract the type annotation from the field
	if fieldDefNode != nil {
		if typeNode := fieldDefNode.ChildByFieldName("type"); typeNode != nil {
			txt := parser.NodeText(typeNode, source)
			txt = strings.TrimPrefix(txt, ": ")
			txt = strings.TrimPrefix(txt, ":")
			txt = strings.TrimSpace(txt)
			if txt != "" {
				props["return_type"] = txt
			}
		}
	}
	for _, field := range []string{"result", "return_type", "type"} {
		if rtNode := child.ChildByFieldName(field); rtNode != nil {
			props["return_type"] = parser.NodeText(rtNode, source)
			break
		}
	}
}

// extractClassMethodDefs walks a class AST node and extracts Method nodes (no DB).
func extractClassMethodDefs(
	classNode *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, classQN string, spec *lang.LanguageSpec, result *parseResult,
) {
	funcTypes := toSet(spec.FunctionNodeTypes)
	parser.Walk(classNode, func(child *tree_sitter.Node) bool {
		if child.Id() == classNode.Id() {
			return true
		}
		if !funcTypes[child.Kind()] {
			return true
		}

		mn, fieldDefNode := resolveMethodName(child)
		if mn == nil {
			return false
		}
		methodName := parser.NodeText(mn, source)
		if methodName == "" {
			return false
		}

		props := buildMethodProps(child, fieldDefNode, source, f, spec)
		props["is_exported"] = isExported(methodName, f.Language)

		// Use field definition span when available (covers name + type + body)
		spanNode := child
		if fieldDefNode != nil {
			spanNode = fieldDefNode
		}

		result.Nodes = append(result.Nodes, &store.Node{
			Project:       projectName,
			Label:         "Method",
			Name:          methodName,
			QualifiedName: classQN + "." + methodName,
			FilePath:      f.RelPath,
			StartLine:     safeRowToLine(spanNode.StartPosition().Row),
			EndLine:       safeRowToLine(spanNode.EndPosition().Row),
			Properties:    props,
		})
		result.PendingEdges = append(result.PendingEdges, pendingEdge{
			SourceQN: classQN,
			TargetQN: classQN + "." + methodName,
			Type:     "DEFINES_METHOD",
		})
		return false
	})
}

// extractClassFieldDefs walks a class/struct AST node and extracts Field nodes (no DB).
func extractClassFieldDefs(
	classNode *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, classQN string, spec *lang.LanguageSpec, result *parseResult,
) {
	if len(spec.FieldNodeTypes) == 0 {
		return
	}
	fieldTypes := toSet(spec.FieldNodeTypes)
	funcTypes := toSet(spec.FunctionNodeTypes)

	parser.Walk(classNode, func(child *tree_sitter.Node) bool {
		if child.Id() == classNode.Id() {
			return true
		}
		// Skip nested class/method definitions — they have their own extraction
		if funcTypes[child.Kind()] {
			return false
		}
		if !fieldTypes[child.Kind()] {
			return true
		}

		fieldName := extractFieldName(child, source, f.Language)
		if fieldName == "" {
			return false
		}

		fieldQN := classQN + "." + fieldName
		props := map[string]any{}

		// Extract type annotation if present
		fieldType := extractFieldType(child, source, f.Language)
		if fieldType != "" {
			props["type"] = fieldType
		}

		startLine := safeRowToLine(child.StartPosition().Row)
		endLine := safeRowToLine(child.EndPosition().Row)

		result.Nodes = append(result.Nodes, &store.Node{
			Project:       projectName,
			Label:         "Field",
			Name:          fieldName,
			QualifiedName: fieldQN,
			FilePath:      f.RelPath,
			StartLine:     startLine,
			EndLine:       endLine,
			Properties:    props,
		})
		result.PendingEdges = append(result.PendingEdges, pendingEdge{
			SourceQN: classQN,
			TargetQN: fieldQN,
			Type:     "DEFINES_FIELD",
		})
		return false
	})
}

// extractFieldName extracts the name from a field declaration node.
func extractFieldName(node *tree_sitter.Node, source []byte, l lang.Language) string {
	// Go: field_declaration has named children, first identifier is the name
	// C++/Java: field_declaration has a "declarator" field
	// Rust: field_declaration has a "name" field

	// Try "name" field first (Rust, some others)
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return parser.NodeText(nameNode, source)
	}

	// Try "declarator" field (C++, Java)
	if declNode := node.ChildByFieldName("declarator"); declNode != nil {
		// The declarator might be a pointer_declarator, array_declarator, etc.
		// Walk to find the identifier
		name := extractIdentifierFromDeclarator(declNode, source)
		if name != "" {
			return name
		}
	}

	// Go struct fields: first child that is an identifier (field_identifier)
	if l == lang.Go {
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child != nil && (child.Kind() == "field_identifier" || child.Kind() == "identifier") {
				return parser.NodeText(child, source)
			}
		}
	}

	return ""
}

// extractIdentifierFromDeclarator walks a declarator subtree to find the identifier name.
func extractIdentifierFromDeclarator(node *tree_sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "identifier", "field_identifier":
		return parser.NodeText(node, source)
	case "pointer_declarator", "reference_declarator", "array_declarator":
		if declNode := node.ChildByFieldName("declarator"); declNode != nil {
			return extractIdentifierFromDeclarator(declNode, source)
		}
		// Fall through to child walk
	}
	// Walk children
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && (child.Kind() == "identifier" || child.Kind() == "field_identifier") {
			return parser.NodeText(child, source)
		}
	}
	return ""
}

// extractFieldType extracts the type annotation from a field declaration.
func extractFieldType(node *tree_sitter.Node, source []byte, _ lang.Language) string {
	// Try "type" field (Go, Rust, Java)
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		return parser.NodeText(typeNode, source)
	}
	return ""
}

// extractMacroDef extracts a Macro node from a C/C++ preprocessor definition.
func extractMacroDef(
	node *tree_sitter.Node, source []byte, f discover.FileInfo,
	projectName, moduleQN string, macroNames map[string]bool, result *parseResult,
) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := parser.NodeText(nameNode, source)
	if name == "" {
		return
	}

	macroNames[name] = true

	isFunctionLike := node.Kind() == "preproc_function_def"
	macroQN := moduleQN + "::macro::" + name

	props := map[string]any{
		"is_function_like": isFunctionLike,
	}

	if isFunctionLike {
		if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
			props["parameter_count"] = paramsNode.ChildCount()
		}
	}

	startLine := safeRowToLine(node.StartPosition().Row)
	endLine := safeRowToLine(node.EndPosition().Row)

	result.Nodes = append(result.Nodes, &store.Node{
		Project:       projectName,
		Label:         "Macro",
		Name:          name,
		QualifiedName: macroQN,
		FilePath:      f.RelPath,
		StartLine:     startLine,
		EndLine:       endLine,
		Properties:    props,
	})

	result.PendingEdges = append(result.PendingEdges, pendingEdge{
		SourceQN: moduleQN,
		TargetQN: macroQN,
		Type:     "DEFINES",
	})
}

// buildRegistry populates the FunctionRegistry from all Function, Method,
// Class, Type, Interface, Enum, Macro and Variable nodes in the store.
func (p *Pipeline) buildRegistry() {
	labels := []string{"Function", "Method", "Class", "Type", "Interface", "Enum", "Macro", "Variable"}
	for _, label := range labels {
		nodes, err := p.Store.FindNodesByLabel(p.ProjectName, label)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			p.registry.Register(n.Name, n.QualifiedName, n.Label)
		}
	}
	slog.Info("registry.built", "entries", p.registry.Size())
}

// resolvedEdge represents an edge resolved during parallel call/usage resolution,
// stored as QN pairs to be converted to ID-based edges in the batch write stage.
type resolvedEdge struct {
	CallerQN   string
	TargetQN   string
	Type       string // "CALLS" or "USAGE"
	Properties map[string]any
}

// passCalls resolves call targets and creates CALLS edges.
// Uses parallel per-file resolution (Stage 1) followed by batch DB writes (Stage 2).
// Returns a non-nil error only when the final batch write fails persistently
// after retry; unresolved/ambiguous calls are local and only recorded in Stats.
func (p *Pipeline) passCalls() error {
	slog.Info("pass3.calls")

	// Collect files to process
	type fileEntry struct {
		relPath string
		cached  *cachedAST
	}
	var files []fileEntry
	for _, relPath := range p.indexedFiles {
		cached, ok := p.astCache.Get(relPath)
		if !ok {
			continue // evicted from the bounded CST cache
		}
		if lang.ForLanguage(cached.Language) != nil {
			files = append(files, fileEntry{relPath, cached})
		}
	}

	if len(files) == 0 {
		return nil
	}

	// Stage 1: Parallel per-file call resolution
	results := make([][]resolvedEdge, len(files))
	numWorkers := p.effectiveWorkerCount(len(files))

	g, gctx := errgroup.WithContext(p.ctx)
	g.SetLimit(numWorkers)
	for i, fe := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = p.resolveFileCalls(fe.relPath, fe.cached)
			return nil
		})
	}
	_ = g.Wait()

	// Stage 2: Batch QN→ID resolution + batch edge insert
	return p.flushResolvedEdges(results)
}

// resolveFileCalls resolves all call targets in a single file. Returns resolved edges as QN pairs.
// Thread-safe: reads from registry (RLock), importMaps (read-only), and AST cache (read-only).
func (p *Pipeline) resolveFileCalls(relPath string, cached *cachedAST) []resolvedEdge {
	spec := lang.ForLanguage(cached.Language)
	if spec == nil {
		return nil
	}

	callTypes := toSet(spec.CallNodeTypes)
	newTypes := toSet(spec.NewExpressionTypes)
	moduleQN := fqn.ModuleQN(p.ProjectName, relPath)
	root := cached.Tree.RootNode()
	importMap := p.importMaps[moduleQN]

	// Infer variable types for method dispatch
	typeMap := p.inferTypes(root, cached.Source, cached.Language, moduleQN, importMap)

	var edges []resolvedEdge

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if newTypes[node.Kind()] && cached.Language != lang.Go {
			callerQN := findEnclosingFunction(node, cached.Source, p.ProjectName, relPath, spec)
			if callerQN == "" {
				callerQN = moduleQN
			}
			if edge, ok := p.resolveConstructorCall(node, cached.Source, spec, moduleQN, importMap, callerQN); ok {
				edges = append(edges, edge)
			}
			return false
		}

		if !callTypes[node.Kind()] {
			return true
		}

		calleeName := extractCalleeName(node, cached.Source, cached.Language)
		if calleeName == "" {
			return false
		}

		callerQN := findEnclosingFunction(node, cached.Source, p.ProjectName, relPath, spec)
		if callerQN == "" {
			callerQN = moduleQN
		}

		// Python self.method() resolution
		if cached.Language == lang.Python && strings.HasPrefix(calleeName, "self.") {
			classQN := findEnclosingClassQN(node, cached.Source, p.ProjectName, relPath)
			if classQN != "" {
				candidate := classQN + "." + calleeName[5:]
				if p.registry.Exists(candidate) {
					edges = append(edges, resolvedEdge{CallerQN: callerQN, TargetQN: candidate, Type: "CALLS"})
					return false
				}
			}
		}

		// Go receiver scoping
		localTypeMap := p.extendTypeMapWithReceiver(node, cached, typeMap, spec, moduleQN, importMap)

		targetQN := p.resolveCallWithTypes(calleeName, moduleQN, importMap, localTypeMap)
		if targetQN == "" {
			if fuzzyQN, ok := p.registry.FuzzyResolve(calleeName, moduleQN); ok {
				if p.registry.CandidateCount(calleeName) > 1 {
					p.Stats.Inc(ErrorAmbiguity)
				}
				edges = append(edges, resolvedEdge{
					CallerQN:   callerQN,
					TargetQN:   fuzzyQN,
					Type:       "CALLS",
					Properties: map[string]any{"resolution_mode": "fuzzy"},
				})
			} else {
				p.Stats.Inc(ErrorResolutionMiss)
			}
			return false
		}

		edges = append(edges, resolvedEdge{CallerQN: callerQN, TargetQN: targetQN, Type: "CALLS"})
		return false
	})

	return edges
}

// flushResolvedEdges converts QN-based resolved edges to ID-based edges and batch-inserts them.
func (p *Pipeline) flushResolvedEdges(results [][]resolvedEdge) error {
	// Collect all unique QNs
	qnSet := make(map[string]struct{})
	totalEdges := 0
	for _, fileEdges := range results {
		for _, re := range fileEdges {
			qnSet[re.CallerQN] = struct{}{}
			qnSet[re.TargetQN] = struct{}{}
			totalEdges++
		}
	}

	if totalEdges == 0 {
		return nil
	}

	// Batch resolve all QNs to IDs
	qns := make([]string, 0, len(qnSet))
	for qn := range qnSet {
		qns = append(qns, qn)
	}
	var qnToID map[string]int64
	err := ingest.Retry(p.ctx, ingest.Config{}, "pass3.resolve_ids", func() error {
		var err error
		qnToID, err = p.Store.FindNodeIDsByQNs(p.ProjectName, qns)
		return err
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass3 resolve ids: %w", err)
	}

	// Build edges
	edges := make([]*store.Edge, 0, totalEdges)
	for _, fileEdges := range results {
		for _, re := range fileEdges {
			srcID, srcOK := qnToID[re.CallerQN]
			tgtID, tgtOK := qnToID[re.TargetQN]
			if srcOK && tgtOK {
				edges = append(edges, &store.Edge{
					Project:    p.ProjectName,
					SourceID:   srcID,
					TargetID:   tgtID,
					Type:       re.Type,
					Properties: re.Properties,
				})
			}
		}
	}

	err = ingest.Retry(p.ctx, ingest.Config{}, "pass3.batch_edges", func() error {
		return p.Store.InsertEdgeBatch(edges)
	})
	if err != nil {
		p.Stats.Inc(ErrorIngestorTransient)
		return fmt.Errorf("pass3 batch edges: %w", err)
	}
	return nil
}

// extendTypeMapWithReceiver augments the type map with the Go receiver variable
// from the enclosing method declaration, if applicable.
func (p *Pipeline) extendTypeMapWithReceiver(
	node *tree_sitter.Node, cached *cachedAST, typeMap TypeMap,
	spec *lang.LanguageSpec, moduleQN string, importMap map[string]string,
) TypeMap {
	if cached.Language != lang.Go {
		return typeMap
	}
	funcTypes := toSet(spec.FunctionNodeTypes)
	enclosing := findEnclosingFuncNode(node, funcTypes)
	if enclosing == nil {
		return typeMap
	}
	varName, typeName := parseGoReceiverType(enclosing, cached.Source)
	if varName == "" || typeName == "" {
		return typeMap
	}
	classQN := resolveAsClass(typeName, p.registry, moduleQN, importMap)
	if classQN == "" {
		return typeMap
	}
	localTypeMap := make(TypeMap, len(typeMap)+1)
	for k, v := range typeMap {
		localTypeMap[k] = v
	}
	localTypeMap[varName] = classQN
	return localTypeMap
}

// resolveCallWithTypes resolves a callee name using the registry, import maps,
// and type inference for method dispatch.
func (p *Pipeline) resolveCallWithTypes(
	calleeName, moduleQN string,
	importMap map[string]string,
	typeMap TypeMap,
) string {
	// First, try type-based method dispatch for qualified calls like obj.method()
	if strings.Contains(calleeName, ".") {
		parts := strings.SplitN(calleeName, ".", 2)
		objName := parts[0]
		methodName := parts[1]

		// Check if the object has a known type from type inference
		if classQN, ok := typeMap[objName]; ok {
			candidate := classQN + "." + methodName
			if p.registry.Exists(candidate) {
				return candidate
			}
		}
	}

	// Delegate to the registry's resolution strategy
	return p.registry.Resolve(calleeName, moduleQN, importMap)
}

// constructorMethodNames returns the conventional constructor-method simple
// names for a language whose "new Ctor(args)" doesn't already map to one of
// spec.ConstructorNames (Go/Python/Ruby/Rust's factory/dunder conventions) —
// JS/TS/TSX name the method literally "constructor"; Java, C#, and C++ reuse
// the class's own name (spec.md:127's "same-as-class-name").
func constructorMethodNames(language lang.Language, className string) []string {
	switch language {
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		return []string{"constructor"}
	case lang.Java, lang.CSharp, lang.CPP:
		return []string{className}
	case lang.PHP:
		return []string{"__construct"}
	default:
		return nil
	}
}

// resolveConstructorCall implements spec.md §4.7 item 4: resolve a
// `new Ctor(args)`-shaped node's constructed type name to a Class FQN, then
// emit CALLS to that class's constructor Method if the registry has one,
// otherwise to the Class node itself.
func (p *Pipeline) resolveConstructorCall(
	node *tree_sitter.Node, source []byte, spec *lang.LanguageSpec,
	moduleQN string, importMap map[string]string, callerQN string,
) (resolvedEdge, bool) {
	typeName := extractConstructedTypeName(node, source)
	if typeName == "" {
		return resolvedEdge{}, false
	}

	classQN := resolveAsClass(typeName, p.registry, moduleQN, importMap)
	if classQN == "" {
		p.Stats.Inc(ErrorResolutionMiss)
		return resolvedEdge{}, false
	}

	className := typeName
	if idx := strings.LastIndex(classQN, "."); idx >= 0 {
		className = classQN[idx+1:]
	}
	for _, ctorName := range constructorMethodNames(spec.Language, className) {
		candidate := classQN + "." + ctorName
		if p.registry.Exists(candidate) {
			return resolvedEdge{CallerQN: callerQN, TargetQN: candidate, Type: "CALLS"}, true
		}
	}

	// No explicit constructor Method found; fall back to the Class node
	// itself, per spec.md §4.7 item 4, so object instantiation is still
	// represented.
	return resolvedEdge{CallerQN: callerQN, TargetQN: classQN, Type: "CALLS"}, true
}

// extractConstructedTypeName extracts the type name being instantiated from a
// NewExpressionTypes node, trying each grammar's field convention in turn:
// "constructor" (JS/TS/TSX new_expression), "type" (Java/C#/C++
// object_creation_expression / new_expression), "class" (PHP
// object_creation_expression). Falls back to the first named child for
// grammars (Scala's instance_expression) whose field name varies.
func extractConstructedTypeName(node *tree_sitter.Node, source []byte) string {
	for _, field := range []string{"constructor", "type", "class"} {
		if typeNode := node.ChildByFieldName(field); typeNode != nil {
			if name := stripTypeArgs(parser.NodeText(typeNode, source)); name != "" {
				return name
			}
		}
	}
	if node.NamedChildCount() > 0 {
		if child := node.NamedChild(0); child != nil {
			return stripTypeArgs(parser.NodeText(child, source))
		}
	}
	return ""
}

// === Helper functions ===

func extractCalleeName(node *tree_sitter.Node, source []byte, language lang.Language) string {
	// Try function field (most languages)
	if name := extractCalleeFromFunctionField(node, source); name != "" {
		return name
	}

	// Try name field (Java method_invocation)
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return parser.NodeText(nameNode, source)
	}

	// Ruby: call node has "method" field
	if name := extractCalleeFromMethodField(node, source); name != "" {
		return name
	}

	// Language-specific extraction
	return extractCalleeLanguageSpecific(node, source, language)
}

// extractCalleeFromFunctionField extracts the callee name from a "function" field.
func extractCalleeFromFunctionField(node *tree_sitter.Node, source []byte) string {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return ""
	}
	switch funcNode.Kind() {
	case "identifier", "simple_identifier",
		"selector_expression", "attribute", "member_expression",
		"field_expression", "dot", "function":
		return parser.NodeText(funcNode, source)
	}
	return ""
}

// extractCalleeFromMethodField extracts the callee from Ruby-style method+receiver fields.
func extractCalleeFromMethodField(node *tree_sitter.Node, source []byte) string {
	methodNode := node.ChildByFieldName("method")
	if methodNode == nil {
		return ""
	}
	if receiver := node.ChildByFieldName("receiver"); receiver != nil {
		return parser.NodeText(receiver, source) + "." + parser.NodeText(methodNode, source)
	}
	return parser.NodeText(methodNode, source)
}

// extractCalleeLanguageSpecific handles Kotlin call_expression / navigation_expression,
// which don't use the "function" field convention the general-purpose path expects.
func extractCalleeLanguageSpecific(node *tree_sitter.Node, source []byte, language lang.Language) string {
	if language != lang.Kotlin {
		return ""
	}
	if node.Kind() == "call_expression" || node.Kind() == "navigation_expression" {
		if first := node.NamedChild(0); first != nil {
			switch first.Kind() {
			case "identifier", "navigation_expression", "simple_identifier":
				return parser.NodeText(first, source)
			}
		}
	}
	return ""
}

// funcNameNode returns the name node for a function/method node.
// Handles C++ where the name is inside function_declarator.
func funcNameNode(node *tree_sitter.Node) *tree_sitter.Node {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		// C++: name is inside function_declarator
		if declNode := node.ChildByFieldName("declarator"); declNode != nil {
			nameNode = declNode.ChildByFieldName("declarator")
			if nameNode == nil {
				nameNode = findChildByKind(declNode, "identifier")
			}
		}
	}
	return nameNode
}

// findChildByKind returns the first direct child whose node kind matches.
func findChildByKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// hasAncestorKind walks up to maxDepth parents and returns true if any has the given kind.
func hasAncestorKind(node *tree_sitter.Node, kind string, maxDepth int) bool {
	p := node.Parent()
	for i := 0; i < maxDepth && p != nil; i++ {
		if p.Kind() == kind {
			return true
		}
		p = p.Parent()
	}
	return false
}

// luaFuncAssignName extracts the identifier node for a Lua function_definition
// from its parent assignment context. Handles:
//
//	local name = function(...) end   → variable_declaration > assignment_statement > expression_list > function_definition
//	name = function(...)             → assignment_statement > expression_list > function_definition
func luaFuncAssignName(node *tree_sitter.Node) *tree_sitter.Node {
	// function_definition sits inside expression_list; walk up to assignment_statement
	parent := node.Parent()
	if parent == nil {
		return nil
	}
	// parent is expression_list; go one more level up to assignment_statement
	if parent.Kind() == "expression_list" {
		parent = parent.Parent()
	}
	if parent == nil {
		return nil
	}
	if parent.Kind() != "assignment_statement" {
		return nil
	}
	// assignment_statement: first named child is variable_list with the target identifier(s)
	for i := uint(0); i < parent.NamedChildCount(); i++ {
		child := parent.NamedChild(i)
		if child.Kind() == "variable_list" {
			return findLastIdentifier(child)
		}
	}
	return nil
}

// findLastIdentifier returns the deepest identifier in a node tree.
// For dot_index_expression (a.b.c) returns the last field identifier.
func findLastIdentifier(node *tree_sitter.Node) *tree_sitter.Node {
	if node.Kind() == "identifier" {
		return node
	}
	if node.Kind() == "dot_index_expression" {
		// field is the rightmost identifier
		if field := node.ChildByFieldName("field"); field != nil {
			return field
		}
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == "identifier" {
			return child
		}
	}
	return nil
}

func findEnclosingFunction(node *tree_sitter.Node, source []byte, project, relPath string, spec *lang.LanguageSpec) string {
	funcTypes := toSet(spec.FunctionNodeTypes)
	classTypes := toSet(spec.ClassNodeTypes)
	current := node.Parent()
	for current != nil {
		if funcTypes[current.Kind()] {
			if qn, ok := computeFuncQN(current, source, project, relPath, classTypes); ok {
				return qn
			}
		}
		current = current.Parent()
	}
	return ""
}

// computeFuncQN computes the qualified name of a function/method node the
// same way extractFunctionDef/extractClassMethodDefs do: a method nested
// under a class gets <classQN>.<name>, everything else gets
// fqn.Compute(project, relPath, name). Used to resolve the caller side of a
// CALLS edge from an arbitrary point inside a function body.
func computeFuncQN(node *tree_sitter.Node, source []byte, project, relPath string, classTypes map[string]bool) (string, bool) {
	nameNode, fieldDef := resolveMethodName(node)
	if nameNode == nil {
		return "", false
	}
	name := parser.NodeText(nameNode, source)
	if name == "" {
		return "", false
	}
	_ = fieldDef

	for ancestor := node.Parent(); ancestor != nil; ancestor = ancestor.Parent() {
		if !classTypes[ancestor.Kind()] {
			continue
		}
		classNameNode := ancestor.ChildByFieldName("name")
		if classNameNode == nil {
			continue
		}
		className := parser.NodeText(classNameNode, source)
		if className == "" {
			continue
		}
		classQN := fqn.Compute(project, relPath, className)
		return classQN + "." + name, true
	}

	return fqn.Compute(project, relPath, name), true
}

func isConstantNode(node *tree_sitter.Node, language lang.Language) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	return isConstantForLanguage(node.Kind(), parent, language)
}

// constantPattern defines which node kinds at which parent kinds are constants.
type constantPattern struct {
	parentKinds []string
	nodeKinds   []string
}

// constantPatterns maps languages to their constant-detection patterns.
// Languages with complex logic (JS/TS) are handled separately.
var constantPatterns = map[lang.Language]constantPattern{
	lang.Go:     {parentKinds: []string{"source_file"}, nodeKinds: []string{"const_declaration", "var_declaration"}},
	lang.Python: {parentKinds: []string{"module"}, nodeKinds: []string{"expression_statement"}},
	lang.Rust:   {parentKinds: []string{"source_file"}, nodeKinds: []string{"const_item", "let_declaration"}},
	lang.PHP:    {parentKinds: []string{"program"}, nodeKinds: []string{"expression_statement"}},
	lang.Scala:  {parentKinds: []string{"compilation_unit", "template_body"}, nodeKinds: []string{"val_definition"}},
	lang.CPP:    {parentKinds: []string{"translation_unit"}, nodeKinds: []string{"preproc_def", "declaration"}},
	lang.Lua:    {parentKinds: []string{"chunk"}, nodeKinds: []string{"variable_declaration"}},
}

func isConstantForLanguage(kind string, parent *tree_sitter.Node, language lang.Language) bool {
	// JS/TS/TSX have complex grandparent logic
	if language == lang.JavaScript || language == lang.TypeScript || language == lang.TSX {
		return isJSConstantNode(kind, parent.Kind(), parent)
	}

	pat, ok := constantPatterns[language]
	if !ok {
		return false
	}

	parentKind := parent.Kind()
	parentMatch := false
	for _, pk := range pat.parentKinds {
		if parentKind == pk {
			parentMatch = true
			break
		}
	}
	if !parentMatch {
		return false
	}
	for _, nk := range pat.nodeKinds {
		if kind == nk {
			return true
		}
	}
	return false
}

func isJSConstantNode(kind, parentKind string, parent *tree_sitter.Node) bool {
	if kind != "lexical_declaration" {
		return false
	}
	if parentKind == "program" {
		return true
	}
	// export const X = ... → program → export_statement → lexical_declaration
	if parentKind == "export_statement" {
		gp := parent.Parent()
		return gp != nil && gp.Kind() == "program"
	}
	return false
}

func extractConstant(node *tree_sitter.Node, source []byte) string {
	text := parser.NodeText(node, source)
	// Take just the first line (name = value)
	if idx := strings.Index(text, "\n"); idx > 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// extractAllDecorators collects decorator/annotation text attached to a
// definition node, dispatching on language-specific AST shapes: Python wraps
// the definition in a decorated_definition, Java/Kotlin attach annotations
// inside a "modifiers" child, and JS/TS/TSX emit "decorator" nodes as
// preceding siblings of the class/method they annotate.
func extractAllDecorators(node *tree_sitter.Node, source []byte, language lang.Language) []string {
	switch language {
	case lang.Python:
		return extractDecorators(node, source)
	case lang.Java, lang.Kotlin:
		return extractAnnotationsFromModifiers(node, source)
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		return extractPrecedingSiblingDecorators(node, source)
	}
	return nil
}

// extractAnnotationsFromModifiers reads Java/Kotlin annotations off a
// "modifiers" child (e.g. "@Override public void foo()").
func extractAnnotationsFromModifiers(node *tree_sitter.Node, source []byte) []string {
	modifiers := node.ChildByFieldName("modifiers")
	if modifiers == nil {
		modifiers = findChildByKind(node, "modifiers")
	}
	if modifiers == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < modifiers.NamedChildCount(); i++ {
		child := modifiers.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "annotation", "marker_annotation":
			out = append(out, parser.NodeText(child, source))
		}
	}
	return out
}

// extractPrecedingSiblingDecorators collects contiguous "decorator" nodes
// that appear immediately before node among its parent's children. JS/TS
// decorators aren't wrapped the way Python's decorated_definition is —
// they're plain siblings ahead of the class_declaration/method_definition.
func extractPrecedingSiblingDecorators(node *tree_sitter.Node, source []byte) []string {
	parent := node.Parent()
	if parent == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child == nil {
			continue
		}
		if child.StartByte() == node.StartByte() && child.EndByte() == node.EndByte() {
			break
		}
		switch child.Kind() {
		case "decorator":
			out = append(out, parser.NodeText(child, source))
		case "comment":
			// ignore, doesn't break contiguity
		default:
			out = nil
		}
	}
	return out
}

func extractDecorators(node *tree_sitter.Node, source []byte) []string {
	// In Python, decorators are siblings before the function_definition.
	// They show up as decorator children of a decorated_definition parent.
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}
	var decorators []string
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child != nil && child.Kind() == "decorator" {
			decorators = append(decorators, parser.NodeText(child, source))
		}
	}
	return decorators
}

// frameworkDecoratorPrefixes are decorator prefixes that indicate a function
// is registered as an entry point by a framework (not dead code).
var frameworkDecoratorPrefixes = []string{
	// Python web frameworks (route handlers)
	"@app.get", "@app.post", "@app.put", "@app.delete", "@app.patch",
	"@app.route", "@app.websocket",
	"@router.get", "@router.post", "@router.put", "@router.delete", "@router.patch",
	"@router.route", "@router.websocket",
	"@blueprint.", "@api.", "@ns.",
	// Python middleware and exception handlers (framework-registered)
	"@app.middleware", "@app.exception_handler", "@app.on_event",
	// Testing frameworks
	"@pytest.fixture", "@pytest.mark",
	// CLI frameworks
	"@click.command", "@click.group",
	// Task/worker frameworks
	"@celery.task", "@shared_task", "@task",
	// Signal handlers
	"@receiver",
	// Rust Actix/Axum/Rocket route macros (#[get("/path")] → extracted as get("/path"))
	"get(", "post(", "put(", "delete(", "patch(", "head(", "options(",
	"route(", "connect(", "trace(",
}

// hasFrameworkDecorator returns true if any decorator matches a framework pattern.
func hasFrameworkDecorator(decorators []string) bool {
	for _, dec := range decorators {
		for _, prefix := range frameworkDecoratorPrefixes {
			if strings.HasPrefix(dec, prefix) {
				return true
			}
		}
	}
	return false
}

func isExported(name string, language lang.Language) bool {
	if name == "" {
		return false
	}
	switch language {
	case lang.Go:
		return name[0] >= 'A' && name[0] <= 'Z'
	case lang.Python:
		return !strings.HasPrefix(name, "_")
	case lang.Java, lang.CSharp, lang.Kotlin:
		return name[0] >= 'A' && name[0] <= 'Z' // heuristic
	default:
		return true // assume exported
	}
}

func classLabelForKind(kind string) string {
	switch kind {
	case "interface_declaration", "trait_item", "trait_definition", "trait_declaration":
		return "Interface"
	case "enum_declaration", "enum_item", "enum_specifier":
		return "Enum"
	case "type_declaration", "type_alias_declaration", "type_item", "type_spec", "type_alias":
		return "Type"
	case "union_specifier", "union_item":
		return "Union"
	default:
		return "Class"
	}
}

// extractBaseClasses returns the declared parent type names for a class-like
// node: both "extends" (superclass) and "implements" (interface) clauses,
// undistinguished. Pass 2 resolves each name and decides INHERITS vs
// IMPLEMENTS from the resolved target's own kind (spec §3: IMPLEMENTS targets
// an Interface, INHERITS targets anything else). Go structs and Rust items
// have no such nominal syntax — Go interface satisfaction is structural
// (handled by passImplements) and Rust trait impls are recorded directly by
// extractRustImplBlock — so both return nil here.
// extractParamTypes builds a name->type map for a function's declared
// parameters, covering the name/pattern + type field convention shared
// across most of the supported grammars (Go parameter_declaration, TS
// required_parameter, Python typed_parameter, Java formal_parameter, ...).
func extractParamTypes(paramsNode *tree_sitter.Node, source []byte, language lang.Language) map[string]string {
	out := make(map[string]string)
	for i := uint(0); i < paramsNode.NamedChildCount(); i++ {
		param := paramsNode.NamedChild(i)
		if param == nil {
			continue
		}
		nameNode := param.ChildByFieldName("name")
		if nameNode == nil {
			nameNode = param.ChildByFieldName("pattern")
		}
		typeNode := param.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		name := parser.NodeText(nameNode, source)
		if name == "" {
			continue
		}
		out[name] = parser.NodeText(typeNode, source)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// extractReturnTypes splits a return-type node into one entry per returned
// type. Go's multi-value returns wrap a parameter_list of (possibly
// unnamed) types; every other language returns a single type node.
func extractReturnTypes(rtNode *tree_sitter.Node, source []byte, language lang.Language) []string {
	if language == lang.Go && rtNode.Kind() == "parameter_list" {
		var out []string
		for i := uint(0); i < rtNode.NamedChildCount(); i++ {
			child := rtNode.NamedChild(i)
			if child == nil {
				continue
			}
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				out = append(out, parser.NodeText(typeNode, source))
			} else {
				out = append(out, parser.NodeText(child, source))
			}
		}
		return out
	}
	text := parser.NodeText(rtNode, source)
	if text == "" {
		return nil
	}
	return []string{text}
}

func extractBaseClasses(node *tree_sitter.Node, source []byte, language lang.Language) []string {
	switch language {
	case lang.Python:
		return pythonBaseClasses(node, source)
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		return jsBaseClasses(node, source)
	case lang.Java:
		return javaBaseClasses(node, source)
	case lang.CPP:
		return cppBaseClasses(node, source)
	case lang.CSharp:
		return csharpBaseClasses(node, source)
	case lang.PHP:
		return phpBaseClasses(node, source)
	case lang.Ruby:
		return rubyBaseClasses(node, source)
	case lang.Scala, lang.Kotlin:
		return genericExtendsClauseBaseClasses(node, source)
	}
	return nil
}

// stripTypeArgs removes generic/template argument lists and call-style
// parens from a type reference, e.g. "List<Foo>" -> "List".
func stripTypeArgs(s string) string {
	if i := strings.IndexAny(s, "<("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// pythonBaseClasses reads the "superclasses" argument_list of a
// class_definition, skipping keyword arguments like "metaclass=ABCMeta".
func pythonBaseClasses(node *tree_sitter.Node, source []byte) []string {
	args := node.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < args.NamedChildCount(); i++ {
		child := args.NamedChild(i)
		if child == nil || child.Kind() == "keyword_argument" {
			continue
		}
		if text := parser.NodeText(child, source); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// jsBaseClasses reads the class_heritage child of a class_declaration:
// extends_clause (JS/TS) and implements_clause (TS only).
func jsBaseClasses(node *tree_sitter.Node, source []byte) []string {
	heritage := findChildByKind(node, "class_heritage")
	if heritage == nil {
		return nil
	}
	var out []string
	if ext := findChildByKind(heritage, "extends_clause"); ext != nil {
		if value := ext.ChildByFieldName("value"); value != nil {
			out = append(out, stripTypeArgs(parser.NodeText(value, source)))
		}
	}
	if impl := findChildByKind(heritage, "implements_clause"); impl != nil {
		for i := uint(0); i < impl.NamedChildCount(); i++ {
			if child := impl.NamedChild(i); child != nil {
				out = append(out, stripTypeArgs(parser.NodeText(child, source)))
			}
		}
	}
	return out
}

// javaBaseClasses reads the "superclass" and "interfaces" fields of a
// class_declaration (extends X implements Y, Z).
func javaBaseClasses(node *tree_sitter.Node, source []byte) []string {
	var out []string
	if super := node.ChildByFieldName("superclass"); super != nil {
		if typeNode := super.NamedChild(0); typeNode != nil {
			out = append(out, stripTypeArgs(parser.NodeText(typeNode, source)))
		}
	}
	ifaces := node.ChildByFieldName("interfaces")
	if ifaces == nil {
		ifaces = findChildByKind(node, "super_interfaces")
	}
	if ifaces != nil {
		if typeList := findChildByKind(ifaces, "type_list"); typeList != nil {
			for i := uint(0); i < typeList.NamedChildCount(); i++ {
				if child := typeList.NamedChild(i); child != nil {
					out = append(out, stripTypeArgs(parser.NodeText(child, source)))
				}
			}
		}
	}
	return out
}

// cppBaseClasses reads the base_class_clause field of a class/struct_specifier.
func cppBaseClasses(node *tree_sitter.Node, source []byte) []string {
	clause := node.ChildByFieldName("base_class_clause")
	if clause == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		child := clause.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "type_identifier", "qualified_identifier", "template_type":
			out = append(out, stripTypeArgs(parser.NodeText(child, source)))
		}
	}
	return out
}

// csharpBaseClasses reads the "bases" base_list field (base class and
// interfaces are not distinguished syntactically in C#).
func csharpBaseClasses(node *tree_sitter.Node, source []byte) []string {
	baseList := node.ChildByFieldName("bases")
	if baseList == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < baseList.NamedChildCount(); i++ {
		if child := baseList.NamedChild(i); child != nil {
			out = append(out, stripTypeArgs(parser.NodeText(child, source)))
		}
	}
	return out
}

// phpBaseClasses reads base_clause ("extends") and class_interface_clause
// ("implements") children of a class_declaration.
func phpBaseClasses(node *tree_sitter.Node, source []byte) []string {
	var out []string
	if base := findChildByKind(node, "base_clause"); base != nil {
		for i := uint(0); i < base.NamedChildCount(); i++ {
			if child := base.NamedChild(i); child != nil {
				out = append(out, parser.NodeText(child, source))
			}
		}
	}
	if iface := findChildByKind(node, "class_interface_clause"); iface != nil {
		for i := uint(0); i < iface.NamedChildCount(); i++ {
			if child := iface.NamedChild(i); child != nil {
				out = append(out, parser.NodeText(child, source))
			}
		}
	}
	return out
}

// rubyBaseClasses reads the "superclass" field of a class node
// ("class Dog < Animal").
func rubyBaseClasses(node *tree_sitter.Node, source []byte) []string {
	super := node.ChildByFieldName("superclass")
	if super == nil {
		return nil
	}
	if named := super.NamedChild(0); named != nil {
		return []string{stripTypeArgs(parser.NodeText(named, source))}
	}
	return nil
}

// genericExtendsClauseBaseClasses is a best-effort fallback for languages
// (Scala, Kotlin) whose parent-type clause node kind varies by grammar
// version: it scans direct children for any extends/delegation-like clause
// and collects its named children's type text.
func genericExtendsClauseBaseClasses(node *tree_sitter.Node, source []byte) []string {
	var out []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		kind := child.Kind()
		if !strings.Contains(kind, "extends") && !strings.Contains(kind, "delegation") {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			if typeNode := child.NamedChild(j); typeNode != nil {
				out = append(out, stripTypeArgs(parser.NodeText(typeNode, source)))
			}
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// flattenImportAliasChains resolves indirect re-export chains (spec.md §8
// property 6, "aliased re-export round-trip") by following each import map
// entry through other modules' import maps until it reaches a target the
// registry already knows about, or the chain runs out. Needed because a
// module that re-exports an import under a new name (e.g. "export { add as
// plus } from './math'") only records plus -> math.add in ITS OWN import
// map; a third module importing "plus" from the re-exporting module would
// otherwise resolve to the re-exporting module's own unregistered alias.
func (p *Pipeline) flattenImportAliasChains() {
	const maxHops = 8
	for moduleQN, importMap := range p.importMaps {
		for localName, targetQN := range importMap {
			seen := map[string]bool{moduleQN + "." + localName: true}
			current := targetQN
			for hop := 0; hop < maxHops; hop++ {
				if p.registry.Exists(current) {
					break
				}
				dot := strings.LastIndex(current, ".")
				if dot < 0 {
					break
				}
				otherModule, otherLocal := current[:dot], current[dot+1:]
				otherMap, ok := p.importMaps[otherModule]
				if !ok {
					break
				}
				next, ok := otherMap[otherLocal]
				key := otherModule + "." + otherLocal
				if !ok || seen[key] {
					break
				}
				seen[key] = true
				current = next
			}
			importMap[localName] = current
		}
	}
}

// passImports creates IMPORTS edges from the import maps built during pass 2.
// An import target that isn't a Module already registered in this project —
// true of every external/stdlib/npm package and every relative import that
// didn't resolve to a project file — gets a synthetic Module node created on
// the spot, FQN equal to the literal import path, per spec.md:63/§4.5's
// "externals stored as synthetic Module nodes with only a name."
func (p *Pipeline) passImports() error {
	slog.Info("pass2b.imports")
	count := 0
	for moduleQN, importMap := range p.importMaps {
		moduleNode, _ := p.Store.FindNodeByQN(p.ProjectName, moduleQN)
		if moduleNode == nil {
			continue
		}
		for localName, targetQN := range importMap {
			targetNode, _ := p.Store.FindNodeByQN(p.ProjectName, targetQN)
			if targetNode == nil {
				// UpsertNode dedups by (project, qualified_name), so a
				// second import of the same external path elsewhere just
				// resolves via the FindNodeByQN lookup above.
				var targetID int64
				err := ingest.Retry(p.ctx, ingest.Config{}, "pass2b.synthetic_module", func() error {
					var upsertErr error
					targetID, upsertErr = p.Store.UpsertNode(&store.Node{
						Project:       p.ProjectName,
						Label:         "Module",
						Name:          lastDotSegment(targetQN),
						QualifiedName: targetQN,
						Properties:    map[string]any{"external": true},
					})
					return upsertErr
				})
				if err != nil {
					p.Stats.Inc(ErrorIngestorTransient)
					return fmt.Errorf("pass2b synthetic module %s: %w", targetQN, err)
				}
				targetNode = &store.Node{ID: targetID}
			}
			if err := ingest.Retry(p.ctx, ingest.Config{}, "pass2b.imports_edge", func() error {
				_, insertErr := p.Store.InsertEdge(&store.Edge{
					Project:  p.ProjectName,
					SourceID: moduleNode.ID,
					TargetID: targetNode.ID,
					Type:     "IMPORTS",
					Properties: map[string]any{
						"alias": localName,
					},
				})
				return insertErr
			}); err != nil {
				p.Stats.Inc(ErrorIngestorTransient)
				return fmt.Errorf("pass2b imports edge: %w", err)
			}
			count++
		}
	}
	slog.Info("pass2b.imports.done", "edges", count)
	return nil
}

// safeRowToLine converts a tree-sitter row (uint) to a 1-based line number (int).
// Returns math.MaxInt if the value would overflow.
// stripBOM removes a UTF-8 BOM (0xEF 0xBB 0xBF) from the start of source.
// Common in C# and Windows-generated files; tree-sitter may choke on BOM bytes.
func stripBOM(source []byte) []byte {
	if len(source) >= 3 && source[0] == 0xEF && source[1] == 0xBB && source[2] == 0xBF {
		return source[3:]
	}
	return source
}

func safeRowToLine(row uint) int {
	const maxInt = int(^uint(0) >> 1) // math.MaxInt equivalent without importing math
	if row > uint(maxInt-1) {
		return maxInt
	}
	return int(row) + 1
}
