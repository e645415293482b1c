// Package scanner enumerates the notes in a vault: the document source for
// the indexing pipeline.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/notebrain/internal/ignore"
)

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// File is one document in the vault.
type File struct {
	// ID is the vault-relative path with forward slashes.
	ID      string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Skipped is a file left out of the scan with the reason.
type Skipped struct {
	ID     string
	Reason string
}

// Result is the outcome of one scan.
type Result struct {
	Files   []File
	Skipped []Skipped
}

// Options configures the scanner.
type Options struct {
	// Root is the vault directory.
	Root string
	// Extensions lists accepted file extensions (".md"); empty accepts all.
	Extensions []string
	// IgnorePatterns are gitignore-style exclusions.
	IgnorePatterns []string
	// DataDir is excluded from scanning; relative to Root unless absolute.
	DataDir string
	// MaxFileSize in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64
}

// Scanner discovers documents in a vault.
type Scanner struct {
	root        string
	extensions  map[string]bool
	matcher     *ignore.Matcher
	maxFileSize int64
}

// New builds a scanner; the vault's .notebrainignore file is merged into
// the configured patterns.
func New(opts Options) (*Scanner, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", root)
	}

	matcher := ignore.New(opts.IgnorePatterns...)
	if opts.DataDir != "" {
		dataDir := opts.DataDir
		if filepath.IsAbs(dataDir) {
			if rel, err := filepath.Rel(root, dataDir); err == nil && !strings.HasPrefix(rel, "..") {
				dataDir = rel
			} else {
				dataDir = ""
			}
		}
		if dataDir != "" {
			matcher.Add("/" + filepath.ToSlash(dataDir) + "/**")
		}
	}
	if err := matcher.AddFromFile(filepath.Join(root, ignore.FileName)); err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Scanner{root: root, extensions: exts, matcher: matcher, maxFileSize: maxSize}, nil
}

// Root returns the absolute vault path.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the vault and returns accepted files sorted by ID.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	res := &Result{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		id := filepath.ToSlash(rel)

		if d.IsDir() {
			if s.matcher.Match(id, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if !s.Accepts(id) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > s.maxFileSize {
			res.Skipped = append(res.Skipped, Skipped{
				ID:     id,
				Reason: fmt.Sprintf("file too large (%d bytes > %d)", info.Size(), s.maxFileSize),
			})
			return nil
		}

		res.Files = append(res.Files, File{
			ID:      id,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].ID < res.Files[j].ID })
	return res, nil
}

// Accepts reports whether a vault-relative file path passes the extension
// filter and ignore patterns.
func (s *Scanner) Accepts(id string) bool {
	if len(s.extensions) > 0 && !s.extensions[strings.ToLower(filepath.Ext(id))] {
		return false
	}
	return !s.matcher.Match(id, false)
}

// IgnoredDir reports whether a vault-relative directory is excluded.
func (s *Scanner) IgnoredDir(id string) bool {
	return s.matcher.Match(id, true)
}

// RelativeID converts an absolute path inside the vault to its ID.
func (s *Scanner) RelativeID(absPath string) (string, bool) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Read returns the raw bytes of a scanned file.
func (s *Scanner) Read(f File) ([]byte, error) {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.ID, err)
	}
	return data, nil
}
