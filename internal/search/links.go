package search

import (
	"path"
	"slices"
	"strings"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// LinkGraph is the adjacency map from a document to the documents its
// wikilinks resolve to.
type LinkGraph struct {
	edges map[string][]string
}

// NewLinkGraph resolves every document's links against the set of indexed
// documents. A link name matches, case-insensitively, the document's path
// without extension, its base name without extension, or its title. Path
// matches win over base names, which win over titles; unresolved links are
// dropped.
func NewLinkGraph(docs []*store.DocumentRecord) *LinkGraph {
	docs = slices.Clone(docs)
	slices.SortFunc(docs, func(a, b *store.DocumentRecord) int { return strings.Compare(a.ID, b.ID) })

	byPath := make(map[string]string, len(docs))
	byBase := make(map[string]string, len(docs))
	byTitle := make(map[string]string, len(docs))
	for _, d := range docs {
		stem := strings.TrimSuffix(d.ID, path.Ext(d.ID))
		setFirst(byPath, strings.ToLower(stem), d.ID)
		setFirst(byBase, strings.ToLower(path.Base(stem)), d.ID)
		if d.Title != "" {
			setFirst(byTitle, strings.ToLower(d.Title), d.ID)
		}
	}

	resolve := func(name string) (string, bool) {
		key := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), ".md"))
		for _, m := range []map[string]string{byPath, byBase, byTitle} {
			if id, ok := m[key]; ok {
				return id, true
			}
		}
		return "", false
	}

	g := &LinkGraph{edges: make(map[string][]string, len(docs))}
	for _, d := range docs {
		seen := map[string]bool{d.ID: true}
		for _, link := range d.Links {
			id, ok := resolve(link)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			g.edges[d.ID] = append(g.edges[d.ID], id)
		}
	}
	return g
}

// setFirst keeps the lowest document ID for a key.
func setFirst(m map[string]string, key, id string) {
	if _, ok := m[key]; !ok {
		m[key] = id
	}
}

// Neighbors returns the documents doc links to, in link order.
func (g *LinkGraph) Neighbors(doc string) []string {
	return g.edges[doc]
}

// Reachable returns documents reachable from the seeds within hops links,
// excluding the seeds, in breadth-first order. Cycles are safe.
func (g *LinkGraph) Reachable(seeds []string, hops int) []string {
	visited := make(map[string]bool, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			frontier = append(frontier, s)
		}
	}

	var out []string
	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []string
		for _, doc := range frontier {
			for _, n := range g.edges[doc] {
				if visited[n] {
					continue
				}
				visited[n] = true
				out = append(out, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return out
}
