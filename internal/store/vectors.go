package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// EmbeddingMatch is one hit from a top-k cosine search: the node it was
// computed for, its similarity score, and enough identity to resolve it
// back to a graph node without a second round trip.
type EmbeddingMatch struct {
	NodeID        int64
	QualifiedName string
	Score         float64
}

// UpsertEmbedding stores (node_id, vector, qualified_name) for one node, per
// spec.md §4.9 step 3. vector is encoded as a flat little-endian float32
// blob — this core owns the table, not a general-purpose vector database, so
// there is no reason to round-trip through JSON or a third-party codec.
func (s *Store) UpsertEmbedding(project string, nodeID int64, qualifiedName string, vector []float32) error {
	_, err := s.q.Exec(`
		INSERT INTO embeddings (node_id, project, qualified_name, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET qualified_name=excluded.qualified_name, vector=excluded.vector`,
		nodeID, project, qualifiedName, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// TopKByCosine returns the k nodes in project whose stored embedding has the
// highest cosine similarity to query, per spec.md §6's "upsert-by-integer-id
// with a fixed vector dimension, and top-k cosine search" external
// interface. Scores a full linear scan in Go rather than in SQL — this
// core's vector index is meant to exercise the embedding pipeline end to
// end, not to scale past a single project's worth of functions.
func (s *Store) TopKByCosine(project string, query []float32, k int) ([]EmbeddingMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := s.q.Query(`SELECT node_id, qualified_name, vector FROM embeddings WHERE project=?`, project)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var nodeID int64
		var qn string
		var blob []byte
		if err := rows.Scan(&nodeID, &qn, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec := decodeVector(blob)
		score := cosineSimilarity(query, vec)
		matches = append(matches, EmbeddingMatch{NodeID: nodeID, QualifiedName: qn, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CountEmbeddings returns how many nodes in project have a stored embedding.
func (s *Store) CountEmbeddings(project string) (int, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM embeddings WHERE project=?`, project).Scan(&n)
	return n, err
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
