package cmd

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/store"
	"github.com/Aman-CERP/notebrain/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the vault index including:
  - Number of indexed notes and chunks
  - Entry counts of the lexical and vector indexes
  - Outcome of the last indexing cycle
  - Storage sizes and backends
  - Embedder model and dimensions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	info, err := collectStatus(ctx, v)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, v *vault) (ui.StatusInfo, error) {
	cfg := v.cfg
	if cfg.Index.LexicalBackend == store.BackendMemory {
		if _, err := index.RebuildLexical(ctx, v.metadata, v.lexical); err != nil {
			return ui.StatusInfo{}, err
		}
	}

	st, err := v.status(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	info := ui.StatusInfo{
		VaultName:          filepath.Base(cfg.Vault.Path),
		Documents:          st.Documents,
		Chunks:             st.Chunks,
		LexicalEntries:     st.LexicalEntries,
		VectorEntries:      st.VectorEntries,
		Consistent:         st.Consistent,
		LastIndexed:        st.LastIndexed,
		LexicalBackend:     cfg.Index.LexicalBackend,
		VectorBackend:      cfg.Index.VectorBackend,
		MetadataBackend:    cfg.Index.MetadataBackend,
		EmbedderProvider:   cfg.Embeddings.Provider,
		EmbedderModel:      st.EmbeddingModel,
		EmbedderDimensions: st.EmbeddingDimensions,
		BreakerState:       v.embedder.BreakerState().String(),
		WatcherStatus:      indexerStatus(cfg.DataPath()),
	}
	if info.EmbedderModel == "" {
		info.EmbedderModel = v.embedder.ModelName()
	}
	if r := st.LastReport; r != nil {
		info.LastAdded = r.Added
		info.LastUpdated = r.Updated
		info.LastRemoved = r.Removed
		info.LastFailed = r.Failed
	}

	dataDir := cfg.DataPath()
	info.MetadataSize = pathSize(filepath.Join(dataDir, store.MetadataFile))
	switch cfg.Index.LexicalBackend {
	case store.BackendBleve:
		info.LexicalSize = pathSize(filepath.Join(dataDir, store.LexicalBleveDir))
	case store.BackendSQLite:
		info.LexicalSize = pathSize(filepath.Join(dataDir, store.LexicalSQLite))
	}
	switch cfg.Index.VectorBackend {
	case store.BackendHNSW:
		hnswPath := filepath.Join(dataDir, store.VectorHNSWFile)
		info.VectorSize = pathSize(hnswPath) + pathSize(hnswPath+".meta")
	case store.BackendMemory:
		info.VectorSize = pathSize(filepath.Join(dataDir, store.VectorMemoryFile))
	}
	info.TotalSize = info.MetadataSize + info.LexicalSize + info.VectorSize
	return info, nil
}

// indexerStatus reports "running" while an index or watch process holds the
// data directory lock.
func indexerStatus(dataDir string) string {
	lock := index.NewFileLock(dataDir)
	err := lock.TryLock()
	if err == nil {
		_ = lock.Unlock()
		return "stopped"
	}
	if brainerrors.GetCode(err) == brainerrors.ErrCodeIndexLocked {
		return "running"
	}
	return "n/a"
}

// pathSize returns the size of a file, or the total size of a directory tree.
func pathSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
