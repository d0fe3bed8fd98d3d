package pipeline

import (
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/brightgraph/codegraph/internal/lang"
	"github.com/brightgraph/codegraph/internal/parser"
)

// findFirstKind parses source and returns the first node of the given kind,
// along with the tree it belongs to (the caller must Close it once done —
// the returned node is only valid while the tree is open).
func findFirstKind(t *testing.T, language lang.Language, source, kind string) (*tree_sitter.Tree, *tree_sitter.Node, []byte) {
	t.Helper()
	tree, err := parser.Parse(language, []byte(source))
	if err != nil {
		t.Fatal(err)
	}

	var found *tree_sitter.Node
	parser.Walk(tree.RootNode(), func(n *tree_sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind() == kind {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		tree.Close()
		t.Fatalf("no %s node found in source", kind)
	}
	return tree, found, []byte(source)
}

func TestExtractConstructedTypeNameJS(t *testing.T) {
	tree, node, src := findFirstKind(t, lang.JavaScript, `const x = new Foo(1, 2);`, "new_expression")
	defer tree.Close()
	got := extractConstructedTypeName(node, src)
	if got != "Foo" {
		t.Errorf("got %q, want %q", got, "Foo")
	}
}

func TestExtractConstructedTypeNameJava(t *testing.T) {
	src := `class A { void m() { Foo f = new Foo(1, 2); } }`
	tree, node, srcBytes := findFirstKind(t, lang.Java, src, "object_creation_expression")
	defer tree.Close()
	got := extractConstructedTypeName(node, srcBytes)
	if got != "Foo" {
		t.Errorf("got %q, want %q", got, "Foo")
	}
}

func TestExtractConstructedTypeNameCSharp(t *testing.T) {
	src := `class A { void M() { var f = new Foo(1, 2); } }`
	tree, node, srcBytes := findFirstKind(t, lang.CSharp, src, "object_creation_expression")
	defer tree.Close()
	got := extractConstructedTypeName(node, srcBytes)
	if got != "Foo" {
		t.Errorf("got %q, want %q", got, "Foo")
	}
}

func TestConstructorMethodNames(t *testing.T) {
	cases := []struct {
		language lang.Language
		class    string
		want     []string
	}{
		{lang.JavaScript, "S", []string{"constructor"}},
		{lang.TypeScript, "S", []string{"constructor"}},
		{lang.TSX, "S", []string{"constructor"}},
		{lang.Java, "Foo", []string{"Foo"}},
		{lang.CSharp, "Foo", []string{"Foo"}},
		{lang.CPP, "Foo", []string{"Foo"}},
		{lang.PHP, "Foo", []string{"__construct"}},
	}
	for _, c := range cases {
		got := constructorMethodNames(c.language, c.class)
		if len(got) != len(c.want) {
			t.Errorf("%v: got %v, want %v", c.language, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%v: got %v, want %v", c.language, got, c.want)
			}
		}
	}
}

func TestResolveAsClassOnlyMatchesClassLikeKinds(t *testing.T) {
	registry := NewFunctionRegistry()
	registry.Register("S", "proj.s.S", "Class")
	registry.Register("foo", "proj.s.S.foo", "Method")

	if qn := resolveAsClass("S", registry, "proj.s", nil); qn != "proj.s.S" {
		t.Errorf("expected class resolution, got %q", qn)
	}
	if qn := resolveAsClass("foo", registry, "proj.s", nil); qn != "" {
		t.Errorf("expected no class resolution for a Method, got %q", qn)
	}
}
