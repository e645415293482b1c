package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records when the checks last passed inside the data directory.
const MarkerFile = ".preflight-passed"

// MarkerMaxAge is how long a pass is trusted before checks run again.
const MarkerMaxAge = 7 * 24 * time.Hour

// Fingerprint identifies the setup a pass was recorded for. A new binary
// version or embedding model invalidates the marker.
type Fingerprint struct {
	Version string `json:"version"`
	Model   string `json:"model"`
}

type marker struct {
	PassedAt time.Time `json:"passed_at"`
	Fingerprint
}

func readMarker(dataDir string) (marker, bool) {
	var m marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(data, &m); err != nil || m.PassedAt.IsZero() {
		return m, false
	}
	return m, true
}

// NeedsCheck reports whether the checks should run: no readable marker,
// a marker older than MarkerMaxAge, or one recorded for a different fp.
func NeedsCheck(dataDir string, fp Fingerprint) bool {
	m, ok := readMarker(dataDir)
	if !ok {
		return true
	}
	if time.Since(m.PassedAt) > MarkerMaxAge {
		return true
	}
	return m.Fingerprint != fp
}

// MarkPassed records a pass for fp.
func MarkPassed(dataDir string, fp Fingerprint) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(marker{PassedAt: time.Now().UTC(), Fingerprint: fp})
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0644)
}

// ClearMarker removes the marker file, forcing a re-check on next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, or zero without a
// readable marker.
func MarkerAge(dataDir string) time.Duration {
	m, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(m.PassedAt)
}
