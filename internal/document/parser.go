package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// binarySniffLen is how many leading bytes are checked for NUL.
const binarySniffLen = 8000

var (
	headerPattern = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)[ \t]*$`)
	listPattern   = regexp.MustCompile(`^([-*+]|\d+[.)])[ \t]`)
	taskPattern   = regexp.MustCompile(`^[ \t]*[-*+][ \t]+\[([ xX])\](?:[ \t]+(.*))?$`)
	duePattern    = regexp.MustCompile(`@due\(([^)]*)\)`)
	tagPattern    = regexp.MustCompile(`(?:^|\s)#(\pL[\pL\pN_/-]*)`)
	linkPattern   = regexp.MustCompile(`\[\[([^\]|#]*)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)
	codeSpan      = regexp.MustCompile("`[^`\n]*`")
	mappingKey    = regexp.MustCompile(`^["']?[\pL\pN_][\pL\pN_ .-]*["']?[ \t]*:([ \t]|$)`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// Parser turns raw note bytes into a Document. It holds no state and is
// safe for concurrent use.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses one note. Non-text input returns *SkipError; every other
// problem is recorded in Document.Warnings.
func (p *Parser) Parse(id string, raw []byte, modTime time.Time) (*Document, error) {
	sniff := raw
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, &SkipError{ID: id, Reason: "binary content"}
	}
	if !utf8.Valid(raw) {
		return nil, &SkipError{ID: id, Reason: "invalid UTF-8"}
	}

	sum := sha256.Sum256(raw)
	doc := &Document{
		ID:          id,
		ContentHash: hex.EncodeToString(sum[:]),
		ModTime:     modTime,
	}

	text := string(raw)
	bodyStart := 0
	if strings.HasPrefix(text, "\ufeff") {
		bodyStart = len("\ufeff")
	}

	fmText, fmEnd, ok := splitFrontmatter(text, bodyStart)
	if ok {
		fm := map[string]any{}
		switch err := yaml.Unmarshal([]byte(fmText), &fm); {
		case err == nil:
			doc.Frontmatter = fm
			bodyStart = fmEnd
		case looksLikeMapping(fmText):
			doc.Warnings = append(doc.Warnings, brainerrors.ParseError(
				brainerrors.ErrCodeFrontmatterInvalid, id, "malformed frontmatter", err))
			bodyStart = fmEnd
		default:
			// Two horizontal rules around prose, not frontmatter.
		}
	}

	doc.Title = frontmatterString(doc.Frontmatter, "title")
	if doc.Title == "" {
		base := path.Base(id)
		doc.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	doc.Created = frontmatterTime(doc.Frontmatter, "created")

	b := &bodyParser{doc: doc, text: text}
	b.run(bodyStart)

	tags := newOrderedSet()
	for _, t := range frontmatterTags(doc.Frontmatter) {
		tags.add(t)
	}
	links := newOrderedSet()
	for _, seg := range doc.Segments {
		if seg.Kind == KindCode {
			continue
		}
		plain := codeSpan.ReplaceAllString(seg.Text, " ")
		for _, m := range tagPattern.FindAllStringSubmatch(plain, -1) {
			tags.add(strings.TrimRight(m[1], "/-"))
		}
		for _, m := range linkPattern.FindAllStringSubmatch(plain, -1) {
			links.add(strings.TrimSpace(m[1]))
		}
	}
	doc.Tags = tags.items
	doc.Links = links.items

	return doc, nil
}

// splitFrontmatter returns the YAML between leading "---" fences and the
// byte offset where the body begins.
func splitFrontmatter(text string, start int) (string, int, bool) {
	first, next := lineAt(text, start)
	if strings.TrimRight(first, " \t\r") != "---" {
		return "", 0, false
	}
	pos := next
	for pos < len(text) {
		line, after := lineAt(text, pos)
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "---" || trimmed == "..." {
			return text[next:pos], after, true
		}
		pos = after
	}
	return "", 0, false
}

// looksLikeMapping reports whether the first content line of a fenced
// block is a "key:" entry, i.e. the author meant it as frontmatter.
func looksLikeMapping(block string) bool {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return mappingKey.MatchString(line)
	}
	return false
}

// isRule matches a thematic break such as "---", "***" or "_ _ _".
func isRule(trimmed string) bool {
	compact := strings.ReplaceAll(trimmed, " ", "")
	if len(compact) < 3 {
		return false
	}
	c := compact[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	return strings.Count(compact, string(c)) == len(compact)
}

// lineAt returns the line starting at pos without its newline and the
// offset of the following line.
func lineAt(text string, pos int) (string, int) {
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		return text[pos : pos+i], pos + i + 1
	}
	return text[pos:], len(text)
}

type crumb struct {
	level int
	title string
}

type bodyParser struct {
	doc  *Document
	text string

	stack []crumb

	blockStart int
	blockEnd   int
	inBlock    bool
}

func (b *bodyParser) run(pos int) {
	lineNo := strings.Count(b.text[:pos], "\n") + 1

	var (
		fenceChar  byte
		fenceLen   int
		fenceStart int
	)

	for pos < len(b.text) {
		line, next := lineAt(b.text, pos)
		line = strings.TrimSuffix(line, "\r")
		end := pos + len(line)
		trimmed := strings.TrimSpace(line)

		if fenceLen > 0 {
			if c, n := fenceMarker(trimmed); n >= fenceLen && c == fenceChar && strings.TrimLeft(trimmed, string(c)) == "" {
				b.emit(KindCode, fenceStart, end)
				fenceLen = 0
			}
			pos, lineNo = next, lineNo+1
			continue
		}

		if c, n := fenceMarker(trimmed); n >= 3 {
			b.flush()
			fenceChar, fenceLen, fenceStart = c, n, pos
			pos, lineNo = next, lineNo+1
			continue
		}

		switch {
		case trimmed == "" || isRule(trimmed):
			b.flush()
		case headerPattern.MatchString(line):
			b.flush()
			m := headerPattern.FindStringSubmatch(line)
			b.pushHeader(len(m[1]), strings.TrimSpace(strings.TrimRight(m[2], "#")))
			b.emit(KindHeader, pos, end)
		default:
			if !b.inBlock {
				b.blockStart = pos
				b.inBlock = true
			}
			b.blockEnd = end
			b.task(line, lineNo)
		}
		pos, lineNo = next, lineNo+1
	}

	if fenceLen > 0 {
		// Unterminated fence runs to end of document.
		b.emit(KindCode, fenceStart, len(b.text))
	}
	b.flush()
}

func fenceMarker(trimmed string) (byte, int) {
	if trimmed == "" || (trimmed[0] != '`' && trimmed[0] != '~') {
		return 0, 0
	}
	c := trimmed[0]
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	return c, n
}

func (b *bodyParser) pushHeader(level int, title string) {
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.stack = append(b.stack, crumb{level: level, title: title})
}

func (b *bodyParser) breadcrumb() []string {
	if len(b.stack) == 0 {
		return nil
	}
	out := make([]string, len(b.stack))
	for i, c := range b.stack {
		out[i] = c.title
	}
	return out
}

func (b *bodyParser) flush() {
	if !b.inBlock {
		return
	}
	b.inBlock = false
	text := b.text[b.blockStart:b.blockEnd]
	b.emit(blockKind(text), b.blockStart, b.blockEnd)
}

func (b *bodyParser) emit(kind Kind, start, end int) {
	text := strings.TrimRight(b.text[start:end], " \t\r\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	b.doc.Segments = append(b.doc.Segments, Segment{
		Text:       text,
		Breadcrumb: b.breadcrumb(),
		Kind:       kind,
		Start:      start,
		End:        start + len(text),
	})
}

func blockKind(text string) Kind {
	first := strings.TrimLeft(text, " \t")
	switch {
	case strings.HasPrefix(first, ">"):
		return KindBlockquote
	case listPattern.MatchString(first):
		return KindList
	default:
		return KindParagraph
	}
}

func (b *bodyParser) task(line string, lineNo int) {
	m := taskPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	t := Task{
		Text: strings.TrimSpace(m[2]),
		Done: m[1] != " ",
		Line: lineNo,
	}
	if dm := duePattern.FindStringSubmatch(t.Text); dm != nil {
		t.DueRaw = strings.TrimSpace(dm[1])
		if due, ok := parseDate(t.DueRaw); ok {
			t.Due = &due
		} else {
			b.doc.Warnings = append(b.doc.Warnings, brainerrors.ParseError(
				brainerrors.ErrCodeDueDateInvalid, b.doc.ID,
				fmt.Sprintf("unrecognized due date %q on line %d", t.DueRaw, lineNo), nil))
		}
	}
	b.doc.Tasks = append(b.doc.Tasks, t)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func frontmatterString(fm map[string]any, key string) string {
	if v, ok := fm[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func frontmatterTime(fm map[string]any, key string) *time.Time {
	switch v := fm[key].(type) {
	case time.Time:
		return &v
	case string:
		if t, ok := parseDate(strings.TrimSpace(v)); ok {
			return &t
		}
	}
	return nil
}

func frontmatterTags(fm map[string]any) []string {
	var raw []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			} else if item != nil {
				raw = append(raw, fmt.Sprint(item))
			}
		}
	case string:
		raw = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	}

	var out []string
	for _, t := range raw {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
