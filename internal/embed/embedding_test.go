package embed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgraph/codegraph/internal/store"
)

func TestMockProviderDeterministicAndNormalized(t *testing.T) {
	p := NewMockProvider(16)
	a, err := p.Embed(context.Background(), "func Foo() {}")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "func Foo() {}")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.01)
}

func TestMockProviderDiffersByText(t *testing.T) {
	p := NewMockProvider(16)
	a, _ := p.Embed(context.Background(), "func Foo() {}")
	b, _ := p.Embed(context.Background(), "func Bar() {}")
	assert.NotEqual(t, a, b)
}

func setupProjectWithFunction(t *testing.T) (*store.Store, string) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"), 0o644))

	require.NoError(t, s.UpsertProject("proj", dir))
	_, err = s.UpsertNode(&store.Node{
		Project:       "proj",
		Label:         "Function",
		Name:          "Hello",
		QualifiedName: "proj.main.Hello",
		FilePath:      "main.go",
		StartLine:     3,
		EndLine:       5,
	})
	require.NoError(t, err)
	return s, dir
}

func TestPipelineRunEmbedsAndStores(t *testing.T) {
	s, dir := setupProjectWithFunction(t)
	defer s.Close()

	pl := New(s, dir, "proj", NewMockProvider(8))
	require.NoError(t, pl.Run(context.Background()))

	n, err := s.CountEmbeddings("proj")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipelineRunNoTargetsIsNoop(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.UpsertProject("empty", t.TempDir()))

	pl := New(s, t.TempDir(), "empty", NewMockProvider(8))
	require.NoError(t, pl.Run(context.Background()))

	n, err := s.CountEmbeddings("empty")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type failingProvider struct{ calls int }

func (f *failingProvider) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, assertErr
}

var assertErr = errAlwaysFails{}

type errAlwaysFails struct{}

func (errAlwaysFails) Error() string { return "embedding provider unavailable" }

func TestPipelineRunSurvivesProviderFailure(t *testing.T) {
	s, dir := setupProjectWithFunction(t)
	defer s.Close()

	pl := New(s, dir, "proj", &failingProvider{})
	pl.Retry.MaxRetries = 0
	pl.Retry.InitialBackoff = 0

	require.NoError(t, pl.Run(context.Background()))

	n, err := s.CountEmbeddings("proj")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
