// Package ignore matches vault-relative paths against glob-style exclusion
// patterns, using gitignore syntax:
//
//	*.excalidraw.md   any file with that suffix, at any depth
//	.obsidian/**      the directory and everything below it
//	/inbox/           the top-level inbox directory only
//	!keep.md          re-include a previously excluded path
//
// Patterns come from configuration and from an optional .notebrainignore
// file at the vault root.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// FileName is the per-vault ignore file.
const FileName = ".notebrainignore"

// Matcher holds compiled patterns; safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool // trailing "/"
	subtree  bool // trailing "/**"
	anchored bool // leading "/" or an inner "/"
}

// New creates a matcher from patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add compiles one pattern. Blank lines and # comments are skipped.
func (m *Matcher) Add(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{pattern: pattern}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	} else if strings.HasPrefix(pattern, `\!`) || strings.HasPrefix(pattern, `\#`) {
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/**") {
		r.subtree = true
		pattern = strings.TrimSuffix(pattern, "/**")
	} else if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}
	if pattern == "" {
		return
	}

	r.regex = regexp.MustCompile("^" + globToRegex(pattern) + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads one pattern per line. A missing file is not an error.
func (m *Matcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ignore file: %w", err)
	}
	return nil
}

// Match reports whether the vault-relative path is excluded. The last
// matching rule wins, so negations can re-include paths.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.match(path, isDir) {
			ignored = !r.negation
		}
	}
	return ignored
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

func (r rule) match(path string, isDir bool) bool {
	parts := strings.Split(path, "/")

	// Candidate subjects: for anchored rules only prefixes of the full path,
	// otherwise every suffix starting at a component boundary.
	for start := 0; start < len(parts); start++ {
		if r.anchored && start > 0 {
			break
		}
		for end := len(parts); end > start; end-- {
			subject := strings.Join(parts[start:end], "/")
			if !r.regex.MatchString(subject) {
				continue
			}
			if end == len(parts) && r.dirOnly {
				return isDir
			}
			// Either the whole path matched or an ancestor directory did.
			return true
		}
	}
	return false
}

// globToRegex converts a gitignore glob to a regex body.
func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := strings.IndexByte(pattern[i:], ']')
			if j > 0 {
				b.WriteString(pattern[i : i+j+1])
				i += j
			} else {
				b.WriteString(`\[`)
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i++
			}
		default:
			if c >= utf8.RuneSelf {
				b.WriteByte(c)
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
		}
	}
	return b.String()
}
