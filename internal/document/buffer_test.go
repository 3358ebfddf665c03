package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPlainText(t *testing.T) {
	b := NewBuffer("The quick brown fox")
	assert.Equal(t, "The quick brown fox", b.PlainText())
	assert.Equal(t, 19, b.Len())
	assert.Equal(t, b.PlainText(), b.Snapshot())
}

func TestAnnotateAndQuery(t *testing.T) {
	b := NewBuffer("The quick brown fox")
	require.NoError(t, b.Annotate(4, 9, "tag-a"))

	assert.Empty(t, b.AnnotationsAt(3))
	assert.Equal(t, []string{"tag-a"}, b.AnnotationsAt(4))
	assert.Equal(t, []string{"tag-a"}, b.AnnotationsAt(8))
	assert.Empty(t, b.AnnotationsAt(9))
}

func TestAnnotateOutOfBounds(t *testing.T) {
	b := NewBuffer("short")
	err := b.Annotate(2, 99, "tag")
	require.Error(t, err)
	assert.ErrorContains(t, err, "outside document")
}

func TestAnnotationFollowsInsertionBefore(t *testing.T) {
	b := NewBuffer("The quick brown fox")
	require.NoError(t, b.Annotate(10, 15, "tag")) // "brown"

	require.NoError(t, b.Insert(0, ">>> "))

	var from, to int
	from = -1
	b.ForEachTextNode(func(n Node, pos int) bool {
		if n.HasTag("tag") {
			if from < 0 {
				from = pos
			}
			to = pos + len(n.Text)
		}
		return true
	})
	require.GreaterOrEqual(t, from, 0)
	assert.Equal(t, 14, from)
	assert.Equal(t, "brown", b.PlainText()[from:to])
}

func TestAnnotationSurvivesEditElsewhere(t *testing.T) {
	b := NewBuffer("alpha beta gamma")
	require.NoError(t, b.Annotate(6, 10, "tag")) // "beta"

	// Delete "alpha " entirely.
	require.NoError(t, b.Delete(0, 6))

	text := b.PlainText()
	var got string
	b.ForEachTextNode(func(n Node, pos int) bool {
		if n.HasTag("tag") {
			got = text[pos : pos+len(n.Text)]
			return false
		}
		return true
	})
	assert.Equal(t, "beta", got)
}

func TestRemoveAnnotation(t *testing.T) {
	b := NewBuffer("hello world")
	require.NoError(t, b.Annotate(0, 5, "tag"))
	b.RemoveAnnotation("tag")
	assert.Empty(t, b.AnnotationsAt(0))
}

func TestReplaceRangeDropsAnnotations(t *testing.T) {
	b := NewBuffer("hello world")
	require.NoError(t, b.Annotate(0, 5, "tag"))
	require.NoError(t, b.ReplaceRange(0, 5, Span{Text: "goodbye"}))

	assert.Equal(t, "goodbye world", b.PlainText())
	assert.Empty(t, b.AnnotationsAt(0))
}

func TestReplaceRangeWithMarks(t *testing.T) {
	b := NewBuffer("one two three")
	require.NoError(t, b.ReplaceRange(4, 7,
		Span{Text: "two", Mark: MarkDeleted},
		Span{Text: "2", Mark: MarkInserted},
	))

	assert.Equal(t, "one two2 three", b.PlainText())

	var marks []Mark
	b.ForEachTextNode(func(n Node, pos int) bool {
		marks = append(marks, n.Mark)
		return true
	})
	assert.Equal(t, []Mark{MarkNone, MarkDeleted, MarkInserted, MarkNone}, marks)
}

func TestOverlappingAnnotations(t *testing.T) {
	b := NewBuffer("abcdefghij")
	require.NoError(t, b.Annotate(0, 6, "a"))
	require.NoError(t, b.Annotate(4, 10, "b"))

	assert.Equal(t, []string{"a"}, b.AnnotationsAt(2))
	assert.Equal(t, []string{"a", "b"}, b.AnnotationsAt(5))
	assert.Equal(t, []string{"b"}, b.AnnotationsAt(8))
}

func TestCoalesceKeepsNodeCountStable(t *testing.T) {
	b := NewBuffer("abcdefghij")
	require.NoError(t, b.Annotate(2, 5, "t"))
	b.RemoveAnnotation("t")

	count := 0
	b.ForEachTextNode(func(n Node, pos int) bool {
		count++
		return true
	})
	assert.Equal(t, 1, count)
}

func TestEmptyBuffer(t *testing.T) {
	b := NewBuffer("")
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "", b.PlainText())
	require.NoError(t, b.Insert(0, "hi"))
	assert.Equal(t, "hi", b.PlainText())
}
