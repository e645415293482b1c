// Package document parses Markdown notes into structured documents:
// frontmatter metadata, header breadcrumbs, body segments, inline tags,
// wikilinks and checkbox tasks.
package document

import (
	"fmt"
	"time"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// Kind classifies a body segment.
type Kind string

const (
	KindHeader     Kind = "header"
	KindParagraph  Kind = "paragraph"
	KindList       Kind = "list"
	KindCode       Kind = "code"
	KindBlockquote Kind = "blockquote"
)

// Document is a parsed note.
type Document struct {
	// ID is the vault-relative path with forward slashes.
	ID          string
	Title       string
	Tags        []string
	Links       []string
	Created     *time.Time
	Frontmatter map[string]any
	ContentHash string
	ModTime     time.Time
	Tasks       []Task
	Segments    []Segment

	// Warnings are recovered parse problems; the document is still usable.
	Warnings []*brainerrors.BrainError
}

// Segment is one ordered block of body text.
type Segment struct {
	Text       string
	Breadcrumb []string
	Kind       Kind
	// Start and End are byte offsets into the raw document.
	Start int
	End   int
}

// Task is a checkbox line.
type Task struct {
	Text   string
	Done   bool
	Due    *time.Time
	DueRaw string
	Line   int
}

// SkipError reports input that is not a text note.
type SkipError struct {
	ID     string
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip %s: %s", e.ID, e.Reason)
}

// Code maps skips onto the error taxonomy.
func (e *SkipError) Code() string {
	return brainerrors.ErrCodeNotText
}
