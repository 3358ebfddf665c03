// Package document defines the engine's seam to the rich-text editor and
// provides an in-memory implementation of it.
//
// The real editor primitive lives in the desktop shell; everything in this
// module talks to it through the Accessor interface so the engine can be
// exercised against the plain-text Buffer in tests and in the CLI.
package document

import "fmt"

// Mark is an inline rendering mark used for diff previews.
type Mark string

const (
	MarkNone     Mark = ""
	MarkDeleted  Mark = "deleted"
	MarkInserted Mark = "inserted"
)

// Span is a run of text with an optional inline mark. ReplaceRange takes
// spans so callers can splice marked preview content into the document.
type Span struct {
	Text string
	Mark Mark
}

// Node is one text-bearing node reported by document traversal.
type Node struct {
	Text string
	Mark Mark
	Tags []string
}

// HasTag reports whether the node carries the given annotation tag.
func (n Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Accessor is the consumed capability contract of the rich-text engine.
//
// Annotations are range-following: once applied they ride with the text they
// cover through arbitrary edits elsewhere in the document. Positions handed
// to callers are only valid until the next mutation.
type Accessor interface {
	// ForEachTextNode walks text nodes in document order. pos is the
	// character offset of the node's first character. Returning false from
	// the visitor stops the walk.
	ForEachTextNode(visit func(node Node, pos int) bool)

	// Annotate tags the half-open range [from, to) with tag.
	Annotate(from, to int, tag string) error

	// RemoveAnnotation strips tag from every node carrying it.
	RemoveAnnotation(tag string)

	// AnnotationsAt returns the tags present at the given offset.
	AnnotationsAt(pos int) []string

	// ReplaceRange splices spans into the document in place of [from, to).
	// Inserted content carries no annotations; callers re-annotate
	// explicitly when an anchor should cover the new text.
	ReplaceRange(from, to int, spans ...Span) error

	// PlainText returns the full document text.
	PlainText() string

	// Snapshot returns the serialized document payload sent to the model.
	Snapshot() string

	// Len returns the document length in characters.
	Len() int
}

// ErrOutOfBounds is returned for ranges outside the current document.
type ErrOutOfBounds struct {
	From, To, Len int
}

func (e ErrOutOfBounds) Error() string {
	return fmt.Sprintf("range [%d, %d) outside document of length %d", e.From, e.To, e.Len)
}
