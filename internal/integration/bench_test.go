package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Aman-CERP/notebrain/internal/chunk"
	"github.com/Aman-CERP/notebrain/internal/embed"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/scanner"
	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// benchVault writes n notes with a few shared and a few unique words.
func benchVault(b *testing.B, n int) string {
	b.Helper()
	vault := b.TempDir()
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("# Note %d\n\n## Garden\n\nCompost batch %d needs turning.\n\n## Work\n\nRoadmap item %d for the quarterly review.\n\n- [ ] Follow up %d\n", i, i, i, i)
		path := filepath.Join(vault, fmt.Sprintf("folder%d", i%10), fmt.Sprintf("note-%d.md", i))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return vault
}

func benchRunner(b *testing.B, vault string) (*index.Runner, store.MetadataStore, store.LexicalIndex, store.VectorIndex) {
	b.Helper()
	metadata := store.NewMemoryStore()
	lexical := store.NewMemoryLexicalIndex()
	vector, err := store.NewMemoryVectorIndex("", testDims)
	if err != nil {
		b.Fatal(err)
	}
	s, err := scanner.New(scanner.Options{Root: vault, Extensions: []string{".md"}})
	if err != nil {
		b.Fatal(err)
	}
	runner, err := index.NewRunner(index.RunnerConfig{Workers: 4}, index.RunnerDependencies{
		Scanner:  s,
		Embedder: embed.NewStaticEmbedder(testDims),
		Metadata: metadata,
		Lexical:  lexical,
		Vector:   vector,
		Chunker:  chunk.New(chunk.Options{}),
	})
	if err != nil {
		b.Fatal(err)
	}
	return runner, metadata, lexical, vector
}

func BenchmarkIndex_FullRun(b *testing.B) {
	vault := benchVault(b, 200)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		runner, _, _, _ := benchRunner(b, vault)
		if _, err := runner.Run(ctx, index.RunOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIndex_NoChanges(b *testing.B) {
	vault := benchVault(b, 200)
	ctx := context.Background()
	runner, _, _, _ := benchRunner(b, vault)
	if _, err := runner.Run(ctx, index.RunOptions{}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := runner.Run(ctx, index.RunOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRetrieve(b *testing.B) {
	vault := benchVault(b, 200)
	ctx := context.Background()
	runner, metadata, lexical, vector := benchRunner(b, vault)
	if _, err := runner.Run(ctx, index.RunOptions{}); err != nil {
		b.Fatal(err)
	}
	r, err := search.NewRetriever(search.DefaultConfig(), search.Dependencies{
		Embedder: embed.NewStaticEmbedder(testDims),
		Lexical:  lexical,
		Vector:   vector,
		Metadata: metadata,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Retrieve(ctx, search.Query{Text: "compost roadmap review", K: 10}); err != nil {
			b.Fatal(err)
		}
	}
}
