// Command codegraph runs the ingestion pipeline over a source repository:
// traversal, parsing, symbol resolution, call-graph construction, and an
// optional embedding pass, writing the result into a local SQLite-backed
// graph store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightgraph/codegraph/internal/config"
	"github.com/brightgraph/codegraph/internal/embed"
	"github.com/brightgraph/codegraph/internal/pipeline"
	"github.com/brightgraph/codegraph/internal/store"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("codegraph", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to a YAML config file")
	repoRoot := fs.String("repo", "", "Repository root to ingest (overrides config)")
	dbPath := fs.String("db", "", "Path to the SQLite graph database (overrides config)")
	batchSize := fs.Int("batch-size", 0, "Ingestor flush threshold (overrides config)")
	workerCount := fs.Int("workers", 0, "Parse pool size (overrides config, 0 = runtime.NumCPU())")
	maxFileBytes := fs.Int64("max-file-bytes", 0, "Skip files larger than this many bytes (overrides config)")
	languages := fs.String("languages", "", "Comma-separated list of enabled language tags (overrides config)")
	callChainDepth := fs.Int("call-chain-depth", 0, "Max depth for chained-call resolution (overrides config)")
	embeddingsEnabled := fs.Bool("embeddings", false, "Run the optional embedding pass after ingestion")
	embeddingDimension := fs.Int("embedding-dimension", 384, "Vector dimension for the mock embedding provider")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	noColor := fs.Bool("no-color", false, "Disable colorized output")
	quiet := fs.Bool("quiet", false, "Suppress the progress spinner")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	showVersion := fs.Bool("version", false, "Print the version and exit")
	showStats := fs.Bool("stats", false, "Print graph schema statistics for the project's existing database and exit (no ingestion)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph [options]

Ingests a source repository into a local code graph.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Println("codegraph", version)
		return 0
	}

	initColors(*noColor)

	cfg, err := config.Load(*configPath)
	if err != nil {
		printError("config: %v", err)
		return 1
	}
	applyFlagOverrides(cfg, fs, flagOverrides{
		repoRoot: *repoRoot, dbPath: *dbPath, languages: *languages, logLevel: *logLevel,
		batchSize: *batchSize, workerCount: *workerCount, maxFileBytes: *maxFileBytes, callChainDepth: *callChainDepth,
	})
	if *embeddingsEnabled {
		cfg.EmbeddingsEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		printError("config: %v", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	s, err := store.OpenPath(cfg.DBPath)
	if err != nil {
		printError("opening graph store at %s: %v", cfg.DBPath, err)
		return 1
	}
	defer s.Close()

	if *showStats {
		return printStats(s, pipeline.ProjectNameFromPath(cfg.RepoRoot))
	}

	p := pipeline.New(ctx, s, cfg.RepoRoot)
	p.WorkerCount = cfg.WorkerCount
	p.MaxFileBytes = cfg.MaxFileBytes
	p.IgnoreFile = cfg.IgnoreFile
	p.CallChainDepth = cfg.CallChainDepth
	p.LanguagesEnabled = cfg.LanguagesEnabledSet()

	start := time.Now()
	bar := newRunSpinner(*quiet, *noColor, "indexing "+cfg.RepoRoot)
	stop := make(chan struct{})
	go animateSpinner(bar, stop)
	runErr := p.Run()
	close(stop)
	elapsed := time.Since(start)

	if runErr == nil && cfg.EmbeddingsEnabled {
		embedder := embed.New(s, cfg.RepoRoot, p.ProjectName, embed.NewMockProvider(*embeddingDimension))
		embedder.BatchSize = cfg.BatchSize
		if err := embedder.Run(ctx); err != nil {
			printWarn("embedding pass failed: %v", err)
		}
	}

	printSummary(p, cfg, elapsed, runErr)

	if runErr != nil {
		return 1
	}
	return 0
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	slog.Info("metrics.http.start", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("metrics.http.error", "err", err)
	}
}

// flagOverrides holds the subset of CLI flags that can override config file
// values, so applyFlagOverrides only has to check fs.Changed once per knob.
type flagOverrides struct {
	repoRoot, dbPath, languages, logLevel  string
	batchSize, workerCount, callChainDepth int
	maxFileBytes                           int64
}

// applyFlagOverrides layers explicitly-set CLI flags on top of the loaded
// config, the highest-priority layer per SPEC_FULL.md §4.10's
// file-then-env-then-flag precedence.
func applyFlagOverrides(cfg *config.Config, fs *flag.FlagSet, o flagOverrides) {
	if fs.Changed("repo") {
		cfg.RepoRoot = o.repoRoot
	}
	if fs.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if fs.Changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if fs.Changed("workers") {
		cfg.WorkerCount = o.workerCount
	}
	if fs.Changed("max-file-bytes") {
		cfg.MaxFileBytes = o.maxFileBytes
	}
	if fs.Changed("languages") {
		cfg.LanguagesEnabled = strings.Split(o.languages, ",")
	}
	if fs.Changed("call-chain-depth") {
		cfg.CallChainDepth = o.callChainDepth
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
}

// printStats prints graph schema statistics for an already-ingested
// project, without running the pipeline, for the "-stats" flag.
func printStats(s *store.Store, projectName string) int {
	info, err := s.GetSchema(projectName)
	if err != nil {
		printError("reading schema: %v", err)
		return 1
	}

	printHeader("Schema: " + projectName)
	colorBold.Println("Node labels:")
	for _, lc := range info.NodeLabels {
		fmt.Printf("  %-20s %d\n", lc.Label, lc.Count)
	}
	colorBold.Println("Relationship types:")
	for _, tc := range info.RelationshipTypes {
		fmt.Printf("  %-20s %d\n", tc.Type, tc.Count)
	}
	if len(info.RelationshipPatterns) > 0 {
		colorBold.Println("Relationship patterns:")
		for _, p := range info.RelationshipPatterns {
			fmt.Println("  " + p)
		}
	}
	if len(info.SampleFunctionNames) > 0 {
		colorDim.Println("sample functions:", strings.Join(info.SampleFunctionNames, ", "))
	}
	if len(info.SampleClassNames) > 0 {
		colorDim.Println("sample classes:", strings.Join(info.SampleClassNames, ", "))
	}
	return 0
}

// printSummary prints the colorized run summary spec.md §7 requires: node
// and edge counts, elapsed time, and counts per error kind.
func printSummary(p *pipeline.Pipeline, cfg *config.Config, elapsed time.Duration, runErr error) {
	nodeCount, _ := p.Store.CountNodes(p.ProjectName)
	edgeCount, _ := p.Store.CountEdges(p.ProjectName)

	fmt.Println()
	if runErr != nil {
		printHeader("Ingestion failed: " + p.ProjectName)
		printError("%v", runErr)
	} else {
		printHeader("Ingestion complete: " + p.ProjectName)
		printSuccess("%d nodes, %d edges in %s", nodeCount, edgeCount, elapsed.Round(time.Millisecond))
	}
	colorDim.Println("db:", cfg.DBPath)

	snapshot := p.Stats.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	fmt.Println()
	colorBold.Println("Errors by kind:")
	for _, entry := range snapshot {
		line := "  " + string(entry.Kind) + ": " + strconv.FormatInt(entry.Count, 10)
		if entry.Kind.IsLocal() {
			colorYellow.Println(line)
		} else {
			colorRed.Println(line)
		}
	}
}
