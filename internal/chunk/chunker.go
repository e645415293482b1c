package chunk

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/notebrain/internal/document"
)

const segmentSeparator = "\n\n"

// Options configures the chunker.
type Options struct {
	MaxSize int // Maximum runes per chunk (default: DefaultMaxSize)
	Overlap int // Runes carried into the next chunk under the same breadcrumb (0 disables)
}

// Chunker packs document segments into chunks. Output depends only on
// the input document and options.
type Chunker struct {
	options Options
}

// New creates a chunker. A zero MaxSize takes DefaultMaxSize; an overlap
// that does not fit is clamped to a tenth of MaxSize.
func New(opts Options) *Chunker {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.MaxSize {
		opts.Overlap = opts.MaxSize / 10
	}
	return &Chunker{options: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.options
}

// pending is the chunk being assembled.
type pending struct {
	text       string
	runes      int
	breadcrumb []string
	kind       document.Kind
	start, end int
}

// Chunk splits a document. Consecutive segments sharing a breadcrumb are
// packed greedily; a new breadcrumb always starts a new chunk.
func (c *Chunker) Chunk(doc *document.Document) []Chunk {
	e := &emitter{docID: doc.ID}
	var cur *pending

	flush := func() string {
		if cur == nil {
			return ""
		}
		text := cur.text
		e.emit(text, cur.breadcrumb, cur.kind, cur.start, cur.end)
		cur = nil
		return text
	}

	for _, seg := range doc.Segments {
		segRunes := utf8.RuneCountInString(seg.Text)

		if cur != nil && !slices.Equal(cur.breadcrumb, seg.Breadcrumb) {
			flush()
		}

		if segRunes > c.options.MaxSize {
			flush()
			c.splitLong(e, seg)
			continue
		}

		switch {
		case cur == nil:
			cur = newPending(seg, segRunes)
		case cur.runes+len(segmentSeparator)+segRunes <= c.options.MaxSize:
			cur.append(seg, segRunes)
		default:
			closed := flush()
			cur = newPending(seg, segRunes)
			if tail := overlapTail(closed, c.options.Overlap); tail != "" {
				tailRunes := utf8.RuneCountInString(tail)
				if tailRunes+len(segmentSeparator)+segRunes <= c.options.MaxSize {
					cur.text = tail + segmentSeparator + seg.Text
					cur.runes = tailRunes + len(segmentSeparator) + segRunes
				}
			}
		}
	}
	flush()

	return e.chunks
}

func newPending(seg document.Segment, runes int) *pending {
	return &pending{
		text:       seg.Text,
		runes:      runes,
		breadcrumb: seg.Breadcrumb,
		kind:       seg.Kind,
		start:      seg.Start,
		end:        seg.End,
	}
}

func (p *pending) append(seg document.Segment, runes int) {
	p.text += segmentSeparator + seg.Text
	p.runes += len(segmentSeparator) + runes
	if p.kind == document.KindHeader {
		p.kind = seg.Kind
	}
	p.end = seg.End
}

// splitLong hard-splits a segment longer than MaxSize at whitespace. The
// pieces carry no overlap.
func (c *Chunker) splitLong(e *emitter, seg document.Segment) {
	runes := []rune(seg.Text)
	limit := c.options.MaxSize
	pos, bytePos := 0, 0
	advance := func(n int) {
		for i := pos; i < pos+n; i++ {
			bytePos += utf8.RuneLen(runes[i])
		}
		pos += n
	}

	for {
		for pos < len(runes) && unicode.IsSpace(runes[pos]) {
			advance(1)
		}
		if pos >= len(runes) {
			return
		}

		n := len(runes) - pos
		if n > limit {
			n = limit
			for i := pos + limit; i > pos; i-- {
				if unicode.IsSpace(runes[i]) {
					n = i - pos
					break
				}
			}
		}

		piece := strings.TrimRightFunc(string(runes[pos:pos+n]), unicode.IsSpace)
		start := seg.Start + bytePos
		advance(n)
		e.emit(piece, seg.Breadcrumb, seg.Kind, start, start+len(piece))
	}
}

// overlapTail returns up to n trailing runes of text, starting at a word
// boundary.
func overlapTail(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return ""
	}
	start := len(runes) - n
	if !unicode.IsSpace(runes[start-1]) {
		for start < len(runes) && !unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}

type emitter struct {
	docID  string
	chunks []Chunk
}

func (e *emitter) emit(text string, breadcrumb []string, kind document.Kind, start, end int) {
	seq := len(e.chunks)
	e.chunks = append(e.chunks, Chunk{
		ID:         ID(e.docID, seq),
		DocID:      e.docID,
		Seq:        seq,
		Text:       text,
		Breadcrumb: breadcrumb,
		Kind:       kind,
		Start:      start,
		End:        end,
		Hash:       Hash(text),
	})
}
