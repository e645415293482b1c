package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/notebrain/internal/store"
)

func linkDocs() []*store.DocumentRecord {
	return []*store.DocumentRecord{
		{ID: "projects/garden.md", Title: "Garden Plan", Links: []string{"Seeds", "garden", "Nowhere"}},
		{ID: "seeds.md", Title: "Seeds", Links: []string{"projects/Garden", "Compost Notes"}},
		{ID: "archive/seeds.md", Title: "Old seeds"},
		{ID: "compost.md", Title: "Compost Notes", Links: []string{"Seeds", "GARDEN"}},
	}
}

func TestLinkGraph_Resolution(t *testing.T) {
	g := NewLinkGraph(linkDocs())

	tests := []struct {
		doc  string
		want []string
	}{
		// self-links and unresolved names are dropped
		{"projects/garden.md", []string{"seeds.md"}},
		// full path, then title
		{"seeds.md", []string{"projects/garden.md", "compost.md"}},
		// root path beats a deeper base name; base name is case-insensitive
		{"compost.md", []string{"seeds.md", "projects/garden.md"}},
		{"archive/seeds.md", nil},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Neighbors(tt.doc))
		})
	}
}

func TestLinkGraph_Reachable(t *testing.T) {
	g := NewLinkGraph([]*store.DocumentRecord{
		{ID: "a.md", Links: []string{"b"}},
		{ID: "b.md", Links: []string{"c", "a"}},
		{ID: "c.md", Links: []string{"a"}},
		{ID: "d.md"},
	})

	tests := []struct {
		name  string
		seeds []string
		hops  int
		want  []string
	}{
		{"zero hops", []string{"a.md"}, 0, nil},
		{"one hop", []string{"a.md"}, 1, []string{"b.md"}},
		{"two hops", []string{"a.md"}, 2, []string{"b.md", "c.md"}},
		{"cycles terminate", []string{"a.md"}, 10, []string{"b.md", "c.md"}},
		{"seeds excluded", []string{"a.md", "b.md"}, 1, []string{"c.md"}},
		{"isolated", []string{"d.md"}, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Reachable(tt.seeds, tt.hops))
		})
	}
}
