// Package chunk splits parsed documents into retrievable passages.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Aman-CERP/notebrain/internal/document"
)

// Chunk size defaults, in characters (runes).
const (
	DefaultMaxSize = 512
	DefaultOverlap = 50
)

// Chunk is a retrievable unit of a document.
type Chunk struct {
	ID         string // "<docID>#<seq>"
	DocID      string
	Seq        int
	Text       string
	Breadcrumb []string
	Kind       document.Kind
	Start      int // byte offset of the first contributing segment
	End        int // byte offset past the last contributing segment
	Hash       string
}

// ID builds a chunk identifier.
func ID(docID string, seq int) string {
	return fmt.Sprintf("%s#%d", docID, seq)
}

// Hash returns the 16-char content hash used for change detection.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
