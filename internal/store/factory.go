package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/notebrain/internal/config"
)

// Backend names accepted in the index section of the configuration.
const (
	BackendMemory = "memory"
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
	BackendHNSW   = "hnsw"
	BackendQdrant = "qdrant"
)

// File names inside the data directory.
const (
	MetadataFile     = "metadata.db"
	LexicalBleveDir  = "lexical.bleve"
	LexicalSQLite    = "lexical.db"
	VectorHNSWFile   = "vectors.hnsw"
	VectorMemoryFile = "vectors.gob"
)

// NewLexicalIndex creates the lexical backend. An empty dataDir keeps
// persistent backends in memory.
func NewLexicalIndex(backend, dataDir string) (LexicalIndex, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryLexicalIndex(), nil
	case BackendBleve:
		return NewBleveIndex(dataPath(dataDir, LexicalBleveDir))
	case BackendSQLite:
		return NewSQLiteFTSIndex(dataPath(dataDir, LexicalSQLite))
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: memory, bleve, sqlite)", backend)
	}
}

// NewVectorIndex creates the vector backend. dims may be 0 when the
// embedding dimension is not yet known; it is then fixed by the first write.
func NewVectorIndex(ctx context.Context, cfg config.IndexConfig, dataDir string, dims int) (VectorIndex, error) {
	switch cfg.VectorBackend {
	case BackendMemory:
		return NewMemoryVectorIndex(dataPath(dataDir, VectorMemoryFile), dims)
	case BackendHNSW, "":
		return NewHNSWIndex(HNSWConfig{Path: dataPath(dataDir, VectorHNSWFile), Dimensions: dims})
	case BackendQdrant:
		return NewQdrantIndex(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Dimensions: dims,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: memory, hnsw, qdrant)", cfg.VectorBackend)
	}
}

// NewMetadataStore creates the metadata backend.
func NewMetadataStore(backend, dataDir string) (MetadataStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(dataPath(dataDir, MetadataFile))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s (valid options: sqlite, memory)", backend)
	}
}

func dataPath(dataDir, name string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, name)
}
