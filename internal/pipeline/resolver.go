package pipeline

import (
	"strings"
	"sync"

	"github.com/brightgraph/codegraph/internal/fqn"
)

// FunctionRegistry indexes all Function, Method, and Class nodes by qualified
// name and simple name for fast call resolution. The qualified-name index is
// backed by a prefix trie (spec §4.3): exact lookup and "everything defined
// inside module M" prefix scans are both O(key length)/O(results) instead of
// the O(n) linear scan a flat map would need for the latter.
type FunctionRegistry struct {
	mu sync.RWMutex
	// trie maps qualifiedName -> kind (Function/Method/Class/...)
	trie *fqn.Trie
	// byName maps simpleName -> []qualifiedName for reverse lookup
	byName map[string][]string
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		trie:   fqn.NewTrie(),
		byName: make(map[string][]string),
	}
}

// Register adds a node to the registry.
func (r *FunctionRegistry) Register(name, qualifiedName, nodeLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trie.Insert(qualifiedName, fqn.Kind(nodeLabel))

	// Index by simple name (last segment after the final dot)
	simple := simpleName(qualifiedName)
	// Avoid duplicates in the slice
	for _, existing := range r.byName[simple] {
		if existing == qualifiedName {
			return
		}
	}
	r.byName[simple] = append(r.byName[simple], qualifiedName)
}

// Resolve attempts to find the qualified name of a callee using a prioritized
// resolution strategy:
//  1. Import map lookup
//  2. Same-module match
//  3. Project-wide single match by simple name
//  4. Suffix match with import distance scoring
func (r *FunctionRegistry) Resolve(calleeName, moduleQN string, importMap map[string]string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Split calleeName for qualified calls like "pkg.Func" or "obj.method"
	parts := strings.SplitN(calleeName, ".", 2)
	prefix := parts[0]
	var suffix string
	if len(parts) > 1 {
		suffix = parts[1]
	}

	// Strategy 1: Import map lookup
	var importFallback string
	if importMap != nil {
		if resolved, ok := importMap[prefix]; ok {
			var candidate string
			if suffix != "" {
				// Qualified call: pkg.Func -> resolved + "." + Func
				candidate = resolved + "." + suffix
			} else {
				// Direct import: from X import func -> resolved is the full QN
				candidate = resolved
			}
			if r.trie.Contains(candidate) {
				return candidate
			}
			// If the resolved path is a module, try appending the calleeName
			if suffix != "" {
				// Prefix-scan everything defined under the resolved module and
				// match on the trailing suffix segment.
				for _, entry := range r.trie.PrefixScan(resolved) {
					if strings.HasSuffix(entry.FQN, "."+suffix) {
						return entry.FQN
					}
				}
			}
			// The import is explicit but targets something the registry
			// never saw (an external/stdlib package, spec.md §4.5's
			// synthetic Module case): remember it as a last resort so an
			// unresolvable same-named local candidate doesn't win instead.
			importFallback = candidate
		}
	}

	// Strategy 2: Same-module match
	sameModule := moduleQN + "." + calleeName
	if r.trie.Contains(sameModule) {
		return sameModule
	}
	// For qualified calls in the same module, try the full calleeName
	if suffix != "" {
		sameModuleQualified := moduleQN + "." + suffix
		if r.trie.Contains(sameModuleQualified) {
			return sameModuleQualified
		}
	}

	// Strategy 3: Project-wide single match by simple name
	lookupName := calleeName
	if suffix != "" {
		lookupName = suffix
	}
	simple := simpleName(lookupName)
	candidates := r.byName[simple]
	if len(candidates) == 1 {
		return candidates[0]
	}

	// Strategy 4: Suffix match with import distance scoring
	if suffix != "" {
		var matches []string
		for _, qn := range candidates {
			if strings.HasSuffix(qn, "."+calleeName) {
				return qn // exact suffix match
			}
			if strings.HasSuffix(qn, "."+suffix) {
				matches = append(matches, qn)
			}
		}
		if len(matches) == 1 {
			return matches[0]
		}
		if len(matches) > 1 {
			return bestByImportDistance(matches, moduleQN)
		}
	}

	// For non-qualified calls with multiple candidates, use import distance
	if len(candidates) > 1 {
		return bestByImportDistance(candidates, moduleQN)
	}

	return importFallback
}

// Exists reports whether qualifiedName is registered.
func (r *FunctionRegistry) Exists(qualifiedName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trie.Contains(qualifiedName)
}

// FuzzyResolve is the call resolver's fallback when Resolve's import-map and
// same-module strategies (1-2) find nothing: it matches purely on simple
// name (spec §4.7 strategy 3-4), disregarding any import map. A single
// project-wide candidate resolves directly; multiple candidates are scored
// by import distance to the caller's module.
func (r *FunctionRegistry) FuzzyResolve(calleeName, moduleQN string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	simple := simpleName(calleeName)
	candidates := r.byName[simple]

	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0], true
	default:
		return bestByImportDistance(candidates, moduleQN), true
	}
}

// CandidateCount returns how many qualified names share calleeName's simple
// name — used by the caller to tell a clean single-candidate resolution
// apart from an ambiguous one that fell back to import-distance scoring.
func (r *FunctionRegistry) CandidateCount(calleeName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName[simpleName(calleeName)])
}

// FindByName returns all qualified names with the given simple name.
func (r *FunctionRegistry) FindByName(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.byName[name]))
	copy(result, r.byName[name])
	return result
}

// FindEndingWith returns all qualified names ending with ".suffix". This is a
// suffix query, which the trie (keyed left-to-right) can't accelerate; it
// scans every registered entry same as the flat-map version did.
func (r *FunctionRegistry) FindEndingWith(suffix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target := "." + suffix
	var result []string
	for _, entry := range r.trie.PrefixScan("") {
		if strings.HasSuffix(entry.FQN, target) {
			result = append(result, entry.FQN)
		}
	}
	return result
}

// Size returns the number of entries in the registry.
func (r *FunctionRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trie.Len()
}

// simpleName extracts the last dot-separated segment.
func simpleName(qn string) string {
	if idx := strings.LastIndex(qn, "."); idx >= 0 {
		return qn[idx+1:]
	}
	return qn
}

// bestByImportDistance picks the candidate whose QN shares the longest common
// prefix with the caller's module QN. This approximates "closest in the
// project structure".
func bestByImportDistance(candidates []string, callerModuleQN string) string {
	best := ""
	bestLen := -1

	for _, c := range candidates {
		prefixLen := commonPrefixLen(c, callerModuleQN)
		if prefixLen > bestLen {
			bestLen = prefixLen
			best = c
		}
	}
	return best
}

// commonPrefixLen returns the length of the common dot-segment prefix.
func commonPrefixLen(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	count := 0
	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		if aParts[i] != bParts[i] {
			break
		}
		count++
	}
	return count
}
