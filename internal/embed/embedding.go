// Package embed implements the optional embedding pipeline of spec.md §4.9:
// for every Function and Method node, extract its source text, embed it in
// mini-batches, and upsert (node_id, vector, qualified_name) into the vector
// index. A failure here never touches the graph — embedding is strictly
// additive.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brightgraph/codegraph/internal/store"
)

// Provider generates an embedding vector for one piece of code text.
// Modeled on kraklabs-cie/pkg/ingestion's EmbeddingProvider interface; the
// concrete embedding model is explicitly out of scope (spec.md §1), so
// MockProvider is the only implementation this core ships.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MockProvider generates a deterministic, unit-normalized vector from a
// hash of the input text. Grounded on
// kraklabs-cie/pkg/ingestion/embedding.go's MockEmbeddingProvider — not
// semantically meaningful, but stable across runs and sufficient to
// exercise the batching/retry/storage machinery end to end.
type MockProvider struct {
	Dimension int
}

// NewMockProvider creates a MockProvider with the given vector dimension.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{Dimension: dimension}
}

// Embed implements Provider.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	hash := fnv1a(text)
	vec := make([]float32, m.Dimension)
	for i := range vec {
		v := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = v*2.0 - 1.0
	}
	return normalize(vec), nil
}

func fnv1a(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// RetryConfig configures the backoff applied to a failed Embed call, per
// spec.md §4.9: "Batches that fail the embedding call are retried with
// backoff." Grounded on kraklabs-cie/pkg/ingestion's RetryConfig.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches the teacher pack's embedding retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0}
}

// maxCodeChars truncates oversized function bodies before they reach the
// provider, the same conservative limit kraklabs-cie uses for embedding
// models with small token windows.
const maxCodeChars = 2000

// Pipeline runs the optional embedding pass over a single project's Function
// and Method nodes.
type Pipeline struct {
	Store       *store.Store
	RepoPath    string
	ProjectName string
	Provider    Provider
	BatchSize   int
	Workers     int
	Retry       RetryConfig
}

// New creates an embedding Pipeline with the teacher's worker-pool defaults:
// a fixed batch size of 32 and 4 workers (spec.md §5 "bounded worker pool"),
// independent of the call resolver's NumCPU-sized pool.
func New(s *store.Store, repoPath, projectName string, provider Provider) *Pipeline {
	return &Pipeline{
		Store:       s,
		RepoPath:    repoPath,
		ProjectName: projectName,
		Provider:    provider,
		BatchSize:   32,
		Workers:     4,
		Retry:       DefaultRetryConfig(),
	}
}

// Run embeds every Function and Method node in the project and stores the
// resulting vectors. It never returns an error for individual embedding
// failures — those are logged and skipped, keeping the pipeline strictly
// additive to the graph per spec.md §4.9. A non-nil error here means the
// node listing itself failed or ctx was cancelled between batches; those
// are the only ways this pass can affect the surrounding run.
func (p *Pipeline) Run(ctx context.Context) error {
	nodes, err := p.collectTargets()
	if err != nil {
		return fmt.Errorf("embed: collect targets: %w", err)
	}
	if len(nodes) == 0 {
		slog.Info("embed.skip", "reason", "no_functions_or_methods")
		return nil
	}
	slog.Info("embed.start", "nodes", len(nodes))

	var embedded, failed int64
	var mu sync.Mutex

	for start := 0; start < len(nodes); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]

		if err := ctx.Err(); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Workers)
		for _, n := range batch {
			n := n
			g.Go(func() error {
				vec, err := p.embedWithRetry(gctx, n)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					slog.Warn("embed.node.failed", "qn", n.QualifiedName, "err", err)
					return nil
				}
				if err := p.Store.UpsertEmbedding(p.ProjectName, n.ID, n.QualifiedName, vec); err != nil {
					failed++
					slog.Warn("embed.store.failed", "qn", n.QualifiedName, "err", err)
					return nil
				}
				embedded++
				return nil
			})
		}
		_ = g.Wait()
	}

	slog.Info("embed.done", "embedded", embedded, "failed", failed)
	return nil
}

// collectTargets returns every Function and Method node in the project.
func (p *Pipeline) collectTargets() ([]*store.Node, error) {
	var targets []*store.Node
	for _, label := range []string{"Function", "Method"} {
		nodes, err := p.Store.FindNodesByLabel(p.ProjectName, label)
		if err != nil {
			return nil, err
		}
		targets = append(targets, nodes...)
	}
	return targets, nil
}

// embedWithRetry extracts node's source text and submits it to the
// provider, retrying transient failures with exponential backoff.
func (p *Pipeline) embedWithRetry(ctx context.Context, n *store.Node) ([]float32, error) {
	text, err := p.extractSource(n)
	if err != nil {
		return nil, err
	}
	if len(text) > maxCodeChars {
		text = text[:maxCodeChars]
	}

	var vec []float32
	backoff := p.Retry.InitialBackoff
	for attempt := 0; attempt <= p.Retry.MaxRetries; attempt++ {
		vec, err = p.Provider.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if attempt == p.Retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * p.Retry.Multiplier)
		if backoff > p.Retry.MaxBackoff {
			backoff = p.Retry.MaxBackoff
		}
	}
	return nil, err
}

// extractSource reads node's defining file and slices out [StartLine,
// EndLine] (1-indexed, inclusive), per spec.md §4.9 step 1.
func (p *Pipeline) extractSource(n *store.Node) (string, error) {
	if n.FilePath == "" || n.StartLine <= 0 || n.EndLine < n.StartLine {
		return "", fmt.Errorf("node %q has no extractable source span", n.QualifiedName)
	}

	data, err := os.ReadFile(filepath.Join(p.RepoPath, n.FilePath))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", n.FilePath, err)
	}

	lines := strings.Split(string(data), "\n")
	start := n.StartLine - 1
	end := n.EndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", fmt.Errorf("node %q has an empty source span", n.QualifiedName)
	}
	return strings.Join(lines[start:end], "\n"), nil
}
