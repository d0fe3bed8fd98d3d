package pipeline

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorKind is one of the run-time error categories a pipeline run tracks
// (not Go error types — several distinct Go errors can share a kind).
type ErrorKind string

const (
	// ErrorParse: CST has an error node at file top (or the file could not be
	// parsed at all). The file is skipped; a warning is logged with its path.
	ErrorParse ErrorKind = "parse-error"
	// ErrorResolutionMiss: a call target could not be resolved. The CALLS
	// edge is omitted.
	ErrorResolutionMiss ErrorKind = "resolution-miss"
	// ErrorAmbiguity: multiple candidates existed for one call target; the
	// resolver picked one (first-declared/closest-by-import-distance wins).
	ErrorAmbiguity ErrorKind = "ambiguity"
	// ErrorIngestorTransient: a store write failed. The caller may retry;
	// after repeated failures the run aborts.
	ErrorIngestorTransient ErrorKind = "ingestor-transient"
	// ErrorIngestorFatal: schema mismatch or similar unrecoverable store
	// error. The run aborts immediately with a non-zero exit.
	ErrorIngestorFatal ErrorKind = "ingestor-fatal"
	// ErrorOverLimit: a file exceeded the configured byte limit or its parse
	// timed out. The file is skipped.
	ErrorOverLimit ErrorKind = "over-limit"
	// ErrorInternalInvariant: the registry/trie saw a state it can't explain
	// (e.g. a duplicate insert with a conflicting kind). The first insert is
	// kept; the conflict is logged at warning.
	ErrorInternalInvariant ErrorKind = "internal-invariant"
)

// localErrorKinds are errors that affect only the one file or call site they
// were raised for — the pipeline continues past them. ingestor-transient (once
// its retries are exhausted), ingestor-fatal and any unhandled internal error
// abort a run.
var localErrorKinds = map[ErrorKind]bool{
	ErrorParse:             true,
	ErrorResolutionMiss:    true,
	ErrorAmbiguity:         true,
	ErrorOverLimit:         true,
	ErrorInternalInvariant: true,
}

// IsLocal reports whether k is a per-file/per-call-site error that the
// pipeline continues past, as opposed to one that aborts the run.
func (k ErrorKind) IsLocal() bool { return localErrorKinds[k] }

// Stats accumulates per-run counts by ErrorKind, for the final summary spec
// §7 requires ("non-zero exit status, with a final summary ... listing
// counts per error kind"). Safe for concurrent use — passDefinitions and
// passCalls both record into the same Stats from worker goroutines.
type Stats struct {
	mu     sync.Mutex
	counts map[ErrorKind]int64
}

// NewStats creates an empty Stats counter set.
func NewStats() *Stats {
	return &Stats{counts: make(map[ErrorKind]int64)}
}

// Inc records one occurrence of kind, both locally and on the Prometheus
// gauge exported for this process.
func (s *Stats) Inc(kind ErrorKind) {
	s.mu.Lock()
	s.counts[kind]++
	s.mu.Unlock()
	pipelineMetrics.init()
	pipelineMetrics.errorsByKind.WithLabelValues(string(kind)).Inc()
}

// Total returns the accumulated count for kind.
func (s *Stats) Total(kind ErrorKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

// Any reports whether any error was recorded at all, across every kind.
func (s *Stats) Any() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.counts {
		if n > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns a sorted copy of (kind, count) pairs with count > 0, for
// printing the run's final summary (spec §7).
func (s *Stats) Snapshot() []struct {
	Kind  ErrorKind
	Count int64
} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]struct {
		Kind  ErrorKind
		Count int64
	}, 0, len(s.counts))
	for k, n := range s.counts {
		if n > 0 {
			out = append(out, struct {
				Kind  ErrorKind
				Count int64
			}{k, n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// metricsPipeline holds the Prometheus export of Stats, so a long-lived
// ingestion service can scrape the same counts the CLI prints at exit.
type metricsPipeline struct {
	once         sync.Once
	errorsByKind *prometheus.GaugeVec
}

var pipelineMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.errorsByKind = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codegraph_pipeline_errors_total",
			Help: "Count of pipeline errors by kind for the current run.",
		}, []string{"kind"})
		prometheus.MustRegister(m.errorsByKind)
	})
}
