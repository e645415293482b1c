package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/notebrain/internal/chunk"
	"github.com/Aman-CERP/notebrain/internal/config"
	"github.com/Aman-CERP/notebrain/internal/contextbuilder"
	"github.com/Aman-CERP/notebrain/internal/embed"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/logging"
	"github.com/Aman-CERP/notebrain/internal/scanner"
	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
	"github.com/Aman-CERP/notebrain/internal/ui"
)

// vault bundles the configuration and open stores of one vault. Close
// releases everything in reverse order of opening.
type vault struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder *embed.Resilient
	metadata store.MetadataStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex

	closers []func()
}

type openOptions struct {
	// mcp routes logs to the log file only.
	mcp bool
}

// openVault loads the configuration for dir and opens the embedder and the
// three stores. Logging follows server.log_level unless --debug already
// installed a debug logger.
func openVault(ctx context.Context, dir string, opts openOptions) (*vault, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Vault.Path); err != nil {
		return nil, fmt.Errorf("vault not found: %w", err)
	}

	v := &vault{cfg: cfg}
	if debugMode && !opts.mcp {
		v.logger = slog.Default()
	} else {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		if opts.mcp {
			logCfg = logging.MCPConfig(cfg.Server.LogLevel)
			if debugMode {
				logCfg.Level = "debug"
			}
		}
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to setup logging: %w", err)
		}
		v.logger = logger
		v.closers = append(v.closers, cleanup)
	}

	if err := v.open(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *vault) open(ctx context.Context) error {
	dataDir := v.cfg.DataPath()

	embedder, err := embed.NewEmbedder(v.cfg.Embeddings, v.logger)
	if err != nil {
		return err
	}
	v.embedder = embedder
	v.closers = append(v.closers, func() { _ = embedder.Close() })

	metadata, err := store.NewMetadataStore(v.cfg.Index.MetadataBackend, dataDir)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	v.metadata = metadata
	v.closers = append(v.closers, func() { _ = metadata.Close() })

	lexical, err := store.NewLexicalIndex(v.cfg.Index.LexicalBackend, dataDir)
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	v.lexical = lexical
	v.closers = append(v.closers, func() { _ = lexical.Close() })

	// The stored graph fixes the dimension; a model change is handled by
	// the next indexing cycle.
	vector, err := store.NewVectorIndex(ctx, v.cfg.Index, dataDir, 0)
	if err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}
	v.vector = vector
	v.closers = append(v.closers, func() { _ = vector.Close() })

	v.logger.Debug("vault_opened",
		slog.String("vault", v.cfg.Vault.Path),
		slog.String("data_dir", dataDir),
		slog.String("lexical_backend", v.cfg.Index.LexicalBackend),
		slog.String("vector_backend", v.cfg.Index.VectorBackend),
		slog.String("metadata_backend", v.cfg.Index.MetadataBackend))
	return nil
}

// Close releases the stores, the embedder and the log file.
func (v *vault) Close() {
	for i := len(v.closers) - 1; i >= 0; i-- {
		v.closers[i]()
	}
	v.closers = nil
}

func (v *vault) scanner() (*scanner.Scanner, error) {
	return scanner.New(scanner.Options{
		Root:           v.cfg.Vault.Path,
		Extensions:     v.cfg.Vault.Extensions,
		IgnorePatterns: v.cfg.Vault.IgnorePatterns,
		DataDir:        v.cfg.Index.DataDir,
		MaxFileSize:    int64(v.cfg.Vault.MaxFileSizeMB) * 1024 * 1024,
	})
}

func (v *vault) runner(renderer ui.Renderer, observer index.Observer) (*index.Runner, error) {
	s, err := v.scanner()
	if err != nil {
		return nil, err
	}
	return index.NewRunner(index.RunnerConfig{Workers: v.cfg.Index.Workers}, index.RunnerDependencies{
		Scanner:  s,
		Embedder: v.embedder,
		Metadata: v.metadata,
		Lexical:  v.lexical,
		Vector:   v.vector,
		Chunker: chunk.New(chunk.Options{
			MaxSize: v.cfg.Chunking.MaxChunkSize,
			Overlap: v.cfg.Chunking.Overlap,
		}),
		Renderer: renderer,
		Observer: observer,
		Logger:   v.logger,
	})
}

// retriever warms a lexical index that keeps nothing on disk, then builds
// the hybrid retriever over the vault's stores.
func (v *vault) retriever(ctx context.Context, observer search.Observer) (*search.Retriever, error) {
	if n, err := index.RebuildLexical(ctx, v.metadata, v.lexical); err != nil {
		return nil, err
	} else if n > 0 {
		v.logger.Info("lexical_index_rebuilt", slog.Int("chunks", n))
	}
	return search.NewRetriever(search.ConfigFrom(v.cfg.Retrieval), search.Dependencies{
		Embedder: v.embedder,
		Lexical:  v.lexical,
		Vector:   v.vector,
		Metadata: v.metadata,
		Observer: observer,
		Logger:   v.logger,
	})
}

func (v *vault) builder() *contextbuilder.Builder {
	return contextbuilder.NewBuilder(v.cfg.Context.CharsPerToken, v.logger)
}

func (v *vault) status(ctx context.Context) (*index.Status, error) {
	return index.ReadStatus(ctx, v.metadata, v.lexical, v.vector)
}
