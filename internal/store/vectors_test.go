package store

import "testing"

func TestUpsertEmbeddingAndTopKByCosine(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	if err := s.UpsertProject("proj", "/tmp/proj"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	idA, err := s.UpsertNode(&Node{Project: "proj", Label: "Function", Name: "A", QualifiedName: "proj.A"})
	if err != nil {
		t.Fatalf("UpsertNode A: %v", err)
	}
	idB, err := s.UpsertNode(&Node{Project: "proj", Label: "Function", Name: "B", QualifiedName: "proj.B"})
	if err != nil {
		t.Fatalf("UpsertNode B: %v", err)
	}

	if err := s.UpsertEmbedding("proj", idA, "proj.A", []float32{1, 0, 0}); err != nil {
		t.Fatalf("UpsertEmbedding A: %v", err)
	}
	if err := s.UpsertEmbedding("proj", idB, "proj.B", []float32{0, 1, 0}); err != nil {
		t.Fatalf("UpsertEmbedding B: %v", err)
	}

	count, err := s.CountEmbeddings("proj")
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 embeddings, got %d", count)
	}

	matches, err := s.TopKByCosine("proj", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("TopKByCosine: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].QualifiedName != "proj.A" {
		t.Fatalf("expected proj.A as top match, got %s", matches[0].QualifiedName)
	}
	if matches[0].Score < 0.99 {
		t.Fatalf("expected near-1.0 cosine score, got %f", matches[0].Score)
	}
}

func TestUpsertEmbeddingOverwritesExisting(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	if err := s.UpsertProject("proj", "/tmp/proj"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	id, err := s.UpsertNode(&Node{Project: "proj", Label: "Function", Name: "A", QualifiedName: "proj.A"})
	if err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	if err := s.UpsertEmbedding("proj", id, "proj.A", []float32{1, 0}); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}
	if err := s.UpsertEmbedding("proj", id, "proj.A", []float32{0, 1}); err != nil {
		t.Fatalf("UpsertEmbedding overwrite: %v", err)
	}

	count, err := s.CountEmbeddings("proj")
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 embedding after overwrite, got %d", count)
	}
}

func TestTopKByCosineEmptyQuery(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	matches, err := s.TopKByCosine("proj", nil, 5)
	if err != nil {
		t.Fatalf("TopKByCosine: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches for empty query, got %v", matches)
	}
}
