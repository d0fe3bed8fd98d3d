package pipeline

import (
	"log/slog"

	"github.com/brightgraph/codegraph/internal/store"
)

// passInherits creates INHERITS and IMPLEMENTS edges from Class nodes to
// their declared parents. Reads the base_classes side table (parent name
// strings recorded against each class during extractClassDef, one entry per
// declared parent, extends and implements undistinguished — see
// extractBaseClasses) and resolves each name nominally via the registry. The
// edge type is decided by the resolved target's own label: an Interface
// target yields IMPLEMENTS, anything else (Class/Type/Enum) yields INHERITS,
// matching spec's "IMPLEMENTS: Class -> Class-that-is-an-interface" rule.
//
// Go has no nominal parent syntax for interface satisfaction; that case is
// handled separately by the Go-structural pass in implements.go.
func (p *Pipeline) passInherits() {
	slog.Info("pass.inherits")

	inheritsCount, implementsCount := 0, 0
	for _, label := range []string{"Class", "Type", "Interface", "Enum"} {
		nodes, err := p.Store.FindNodesByLabel(p.ProjectName, label)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			bases, ok := n.Properties["base_classes"]
			if !ok {
				continue
			}
			baseList, ok := bases.([]any)
			if !ok {
				continue
			}

			moduleQN := qualifiedNamePrefix(n.QualifiedName)
			importMap := p.importMaps[moduleQN]

			for _, b := range baseList {
				baseName, ok := b.(string)
				if !ok || baseName == "" {
					continue
				}

				// Resolve base class to a registered Class/Type/Interface
				targetQN := resolveAsClass(baseName, p.registry, moduleQN, importMap)
				if targetQN == "" {
					continue
				}

				targetNode, _ := p.Store.FindNodeByQN(p.ProjectName, targetQN)
				if targetNode == nil {
					continue
				}

				edgeType := "INHERITS"
				if targetNode.Label == "Interface" {
					edgeType = "IMPLEMENTS"
				}

				_, _ = p.Store.InsertEdge(&store.Edge{
					Project:  p.ProjectName,
					SourceID: n.ID,
					TargetID: targetNode.ID,
					Type:     edgeType,
				})
				if edgeType == "IMPLEMENTS" {
					implementsCount++
				} else {
					inheritsCount++
				}
			}
		}
	}

	slog.Info("pass.inherits.done", "inherits", inheritsCount, "implements", implementsCount)
}

// qualifiedNamePrefix returns the module QN portion of a fully qualified name.
// e.g., "project.path.module.ClassName" â†’ "project.path.module"
func qualifiedNamePrefix(qn string) string {
	for i := len(qn) - 1; i >= 0; i-- {
		if qn[i] == '.' {
			return qn[:i]
		}
	}
	return qn
}
