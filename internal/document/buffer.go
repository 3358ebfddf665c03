package document

import (
	"sort"
	"strings"
)

// Buffer is a plain-text Accessor backed by a piece list. Each piece is a
// run of characters sharing the same annotation tags and inline mark, so
// annotations follow their text through edits without any offset
// bookkeeping by callers.
type Buffer struct {
	pieces []piece
}

type piece struct {
	text string
	mark Mark
	tags map[string]struct{}
}

func (p piece) clone() piece {
	tags := make(map[string]struct{}, len(p.tags))
	for t := range p.tags {
		tags[t] = struct{}{}
	}
	return piece{text: p.text, mark: p.mark, tags: tags}
}

func (p piece) sameAttrs(q piece) bool {
	if p.mark != q.mark || len(p.tags) != len(q.tags) {
		return false
	}
	for t := range p.tags {
		if _, ok := q.tags[t]; !ok {
			return false
		}
	}
	return true
}

// NewBuffer creates a buffer holding the given text with no annotations.
func NewBuffer(text string) *Buffer {
	b := &Buffer{}
	if text != "" {
		b.pieces = []piece{{text: text, tags: map[string]struct{}{}}}
	}
	return b
}

// Len returns the document length in characters.
func (b *Buffer) Len() int {
	n := 0
	for _, p := range b.pieces {
		n += len(p.text)
	}
	return n
}

// PlainText returns the full document text.
func (b *Buffer) PlainText() string {
	var sb strings.Builder
	for _, p := range b.pieces {
		sb.WriteString(p.text)
	}
	return sb.String()
}

// Snapshot returns the payload representation sent to the model. For the
// plain-text buffer this is the document text itself.
func (b *Buffer) Snapshot() string {
	return b.PlainText()
}

// ForEachTextNode walks pieces in document order.
func (b *Buffer) ForEachTextNode(visit func(node Node, pos int) bool) {
	pos := 0
	for _, p := range b.pieces {
		if !visit(Node{Text: p.text, Mark: p.mark, Tags: tagList(p.tags)}, pos) {
			return
		}
		pos += len(p.text)
	}
}

func tagList(tags map[string]struct{}) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// splitAt ensures a piece boundary exists at the given offset and returns
// the index of the first piece starting at or after it.
func (b *Buffer) splitAt(offset int) int {
	pos := 0
	for i := range b.pieces {
		n := len(b.pieces[i].text)
		if pos == offset {
			return i
		}
		if offset < pos+n {
			left := b.pieces[i].clone()
			right := b.pieces[i].clone()
			left.text = b.pieces[i].text[:offset-pos]
			right.text = b.pieces[i].text[offset-pos:]
			b.pieces = append(b.pieces[:i], append([]piece{left, right}, b.pieces[i+1:]...)...)
			return i + 1
		}
		pos += n
	}
	return len(b.pieces)
}

// Annotate tags [from, to) with tag. Tagging an already-tagged range is a
// no-op, which makes anchor application idempotent.
func (b *Buffer) Annotate(from, to int, tag string) error {
	if from < 0 || to < from || to > b.Len() {
		return ErrOutOfBounds{From: from, To: to, Len: b.Len()}
	}
	if from == to {
		return nil
	}
	start := b.splitAt(from)
	end := b.splitAt(to)
	for i := start; i < end; i++ {
		b.pieces[i].tags[tag] = struct{}{}
	}
	b.coalesce()
	return nil
}

// RemoveAnnotation strips tag from every piece carrying it.
func (b *Buffer) RemoveAnnotation(tag string) {
	for i := range b.pieces {
		delete(b.pieces[i].tags, tag)
	}
	b.coalesce()
}

// AnnotationsAt returns the tags present at the given offset.
func (b *Buffer) AnnotationsAt(pos int) []string {
	off := 0
	for _, p := range b.pieces {
		if pos < off+len(p.text) {
			return tagList(p.tags)
		}
		off += len(p.text)
	}
	return nil
}

// ReplaceRange splices spans into the document in place of [from, to).
// Inserted spans carry no annotations.
func (b *Buffer) ReplaceRange(from, to int, spans ...Span) error {
	if from < 0 || to < from || to > b.Len() {
		return ErrOutOfBounds{From: from, To: to, Len: b.Len()}
	}
	start := b.splitAt(from)
	end := b.splitAt(to)

	inserted := make([]piece, 0, len(spans))
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		inserted = append(inserted, piece{text: s.Text, mark: s.Mark, tags: map[string]struct{}{}})
	}

	rest := append(inserted, b.pieces[end:]...)
	b.pieces = append(b.pieces[:start], rest...)
	b.coalesce()
	return nil
}

// Insert is shorthand for splicing unmarked text at a position.
func (b *Buffer) Insert(pos int, text string) error {
	return b.ReplaceRange(pos, pos, Span{Text: text})
}

// Delete removes [from, to).
func (b *Buffer) Delete(from, to int) error {
	return b.ReplaceRange(from, to)
}

// coalesce merges adjacent pieces with identical attributes and drops empty
// pieces so repeated edits don't fragment the list.
func (b *Buffer) coalesce() {
	out := b.pieces[:0]
	for _, p := range b.pieces {
		if p.text == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1].sameAttrs(p) {
			out[len(out)-1].text += p.text
			continue
		}
		out = append(out, p)
	}
	b.pieces = out
}
