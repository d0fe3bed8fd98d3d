// Package ingest implements the graph ingestor contract: buffered,
// idempotent batch writes of nodes and relationships, with retry on
// transient flush failures.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightgraph/codegraph/internal/store"
)

// Descriptor identifies a node by a unique key, typically (label,
// "qualified_name", qn). Used to reference relationship endpoints that may
// not yet have a database ID.
type Descriptor struct {
	Label        string
	KeyAttribute string
	KeyValue     string
}

// NodeRecord is one node submitted to EnsureNodeBatch.
type NodeRecord struct {
	Label         string
	QualifiedName string
	Name          string
	FilePath      string
	StartLine     int
	EndLine       int
	Properties    map[string]any
}

// RelationshipRecord is one edge submitted to EnsureRelationshipBatch.
type RelationshipRecord struct {
	Source     Descriptor
	Target     Descriptor
	Type       string
	Properties map[string]any
}

// GraphStore is the contract the core pipeline consumes from its storage
// collaborator: ensure_node_batch / ensure_relationship_batch / flush / close.
type GraphStore interface {
	EnsureNodeBatch(ctx context.Context, nodes []NodeRecord) error
	EnsureRelationshipBatch(ctx context.Context, rels []RelationshipRecord) error
	Flush(ctx context.Context) error
	Close() error
}

// Config tunes the ingestor's buffering and retry behavior.
type Config struct {
	BatchSize     int // buffer threshold before an automatic flush; default 1000.
	MaxAttempts   int // retry attempts on flush failure; default 5.
	BackoffBase   time.Duration
	BackoffFactor float64
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	return c
}

// BatchIngestor buffers node and relationship records and writes them to a
// project-scoped Store, resolving relationship endpoints by qualified name.
//
// Nodes are flushed before relationships within a flush cycle so that edges
// referencing nodes submitted in the same batch resolve correctly.
type BatchIngestor struct {
	project string
	store   *store.Store
	cfg     Config

	pendingNodes []NodeRecord
	pendingRels  []RelationshipRecord
}

// New creates a BatchIngestor backed by the given store for the given
// project. The caller owns the store's lifecycle beyond Close.
func New(project string, s *store.Store, cfg Config) *BatchIngestor {
	return &BatchIngestor{
		project: project,
		store:   s,
		cfg:     cfg.withDefaults(),
	}
}

// EnsureNodeBatch buffers nodes for later flush, flushing immediately if the
// buffer threshold is exceeded.
func (b *BatchIngestor) EnsureNodeBatch(ctx context.Context, nodes []NodeRecord) error {
	b.pendingNodes = append(b.pendingNodes, nodes...)
	if len(b.pendingNodes) >= b.cfg.BatchSize {
		return b.Flush(ctx)
	}
	return nil
}

// EnsureRelationshipBatch buffers relationships for later flush, flushing
// immediately if the buffer threshold is exceeded.
func (b *BatchIngestor) EnsureRelationshipBatch(ctx context.Context, rels []RelationshipRecord) error {
	b.pendingRels = append(b.pendingRels, rels...)
	if len(b.pendingRels) >= b.cfg.BatchSize {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered nodes then all buffered relationships, retrying
// transient failures with exponential backoff. A relationship whose endpoint
// cannot be resolved to a node ID (dangling reference) is skipped with a
// warning rather than failing the whole flush.
func (b *BatchIngestor) Flush(ctx context.Context) error {
	if len(b.pendingNodes) == 0 && len(b.pendingRels) == 0 {
		return nil
	}

	if err := b.retry(ctx, "flush.nodes", func() error { return b.flushNodes() }); err != nil {
		return err
	}
	if err := b.retry(ctx, "flush.relationships", func() error { return b.flushRelationships() }); err != nil {
		return err
	}
	return nil
}

func (b *BatchIngestor) flushNodes() error {
	if len(b.pendingNodes) == 0 {
		return nil
	}
	nodes := make([]*store.Node, len(b.pendingNodes))
	for i, n := range b.pendingNodes {
		nodes[i] = &store.Node{
			Project:       b.project,
			Label:         n.Label,
			Name:          n.Name,
			QualifiedName: n.QualifiedName,
			FilePath:      n.FilePath,
			StartLine:     n.StartLine,
			EndLine:       n.EndLine,
			Properties:    n.Properties,
		}
	}
	if _, err := b.store.UpsertNodeBatch(nodes); err != nil {
		return fmt.Errorf("ensure node batch: %w", err)
	}
	b.pendingNodes = b.pendingNodes[:0]
	return nil
}

func (b *BatchIngestor) flushRelationships() error {
	if len(b.pendingRels) == 0 {
		return nil
	}

	qnSet := make(map[string]struct{})
	for _, r := range b.pendingRels {
		qnSet[r.Source.KeyValue] = struct{}{}
		qnSet[r.Target.KeyValue] = struct{}{}
	}
	qns := make([]string, 0, len(qnSet))
	for qn := range qnSet {
		qns = append(qns, qn)
	}
	idMap, err := b.store.FindNodeIDsByQNs(b.project, qns)
	if err != nil {
		return fmt.Errorf("resolve relationship endpoints: %w", err)
	}

	edges := make([]*store.Edge, 0, len(b.pendingRels))
	for _, r := range b.pendingRels {
		srcID, srcOK := idMap[r.Source.KeyValue]
		tgtID, tgtOK := idMap[r.Target.KeyValue]
		if !srcOK || !tgtOK {
			slog.Warn("ingest.relationship.dangling", "type", r.Type,
				"source", r.Source.KeyValue, "target", r.Target.KeyValue)
			continue
		}
		edges = append(edges, &store.Edge{
			Project:    b.project,
			SourceID:   srcID,
			TargetID:   tgtID,
			Type:       r.Type,
			Properties: r.Properties,
		})
	}

	if err := b.store.InsertEdgeBatch(edges); err != nil {
		return fmt.Errorf("ensure relationship batch: %w", err)
	}
	b.pendingRels = b.pendingRels[:0]
	return nil
}

// retry runs fn with exponential backoff, aborting the run on persistent
// failure per spec (fatal: ingestor write failure).
func (b *BatchIngestor) retry(ctx context.Context, op string, fn func() error) error {
	return Retry(ctx, b.cfg, op, fn)
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff between
// attempts, per spec.md §7's ingestor-transient error kind ("write failed.
// Retry with backoff. After N failures, run aborts"). Exported so any writer
// into the graph store — not just BatchIngestor — can share the same
// retry/backoff policy instead of hand-rolling one.
func Retry(ctx context.Context, cfg Config, op string, fn func() error) error {
	cfg = cfg.withDefaults()
	var lastErr error
	wait := cfg.BackoffBase
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		slog.Warn("ingest.flush.retry", "op", op, "attempt", attempt, "err", lastErr)
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * cfg.BackoffFactor)
	}
	return fmt.Errorf("%s: persistent failure after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

// Close performs a final best-effort flush and closes the underlying store.
func (b *BatchIngestor) Close() error {
	flushErr := b.Flush(context.Background())
	closeErr := b.store.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

var _ GraphStore = (*BatchIngestor)(nil)
