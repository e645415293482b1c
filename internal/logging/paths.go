package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.notebrain/logs, or a temp directory when the
// home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".notebrain", "logs")
	}
	return filepath.Join(home, ".notebrain", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "notebrain.log")
}
