package worddiff

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDiffSingleWordFix(t *testing.T) {
	got := Diff("Please recieve the package", "Please receive the package")

	want := []Segment{
		{Type: Unchanged, Text: "Please"},
		{Type: Deleted, Text: "recieve"},
		{Type: Added, Text: "receive"},
		{Type: Unchanged, Text: "the package"},
	}
	if diff := cmp.Diff(want, got.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.4, got.ChangeRatio, 1e-9)
	assert.True(t, got.UseGranular)
}

func TestDiffIdenticalInputs(t *testing.T) {
	got := Diff("nothing changed here", "nothing changed here")

	assert.Equal(t, []Segment{{Type: Unchanged, Text: "nothing changed here"}}, got.Segments)
	assert.Zero(t, got.ChangeRatio)
	assert.True(t, got.UseGranular)
}

func TestDiffFullRewriteFallsBack(t *testing.T) {
	got := Diff("The quick brown fox", "Something entirely different here now")

	assert.Equal(t, []Segment{
		{Type: Deleted, Text: "The quick brown fox"},
		{Type: Added, Text: "Something entirely different here now"},
	}, got.Segments)
	assert.InDelta(t, 1.0, got.ChangeRatio, 1e-9)
	assert.False(t, got.UseGranular)
}

func TestDiffChoppyChangeFallsBack(t *testing.T) {
	// Every other word replaced: too many segments and no unchanged run long
	// enough to anchor the eye.
	got := Diff(
		"one X two X three X four X five",
		"one Y two Y three Y four Y five",
	)

	assert.Greater(t, len(got.Segments), maxGranularSegments)
	assert.False(t, got.UseGranular)
}

func TestDiffNeedsUnchangedContext(t *testing.T) {
	// A single one-token unchanged segment is not enough context even though
	// the segment count is small.
	got := Diff("a X c", "a Y c")
	assert.LessOrEqual(t, got.ChangeRatio, maxGranularRatio)
	assert.LessOrEqual(t, len(got.Segments), maxGranularSegments)
	assert.False(t, got.UseGranular)
}

func TestDiffEmptyInputs(t *testing.T) {
	both := Diff("", "")
	assert.Empty(t, both.Segments)
	assert.True(t, both.UseGranular)

	added := Diff("", "brand new text")
	assert.Equal(t, []Segment{{Type: Added, Text: "brand new text"}}, added.Segments)
	assert.InDelta(t, 1.0, added.ChangeRatio, 1e-9)

	deleted := Diff("soon gone", "")
	assert.Equal(t, []Segment{{Type: Deleted, Text: "soon gone"}}, deleted.Segments)
	assert.InDelta(t, 1.0, deleted.ChangeRatio, 1e-9)
}

// Both sides of the alignment must reconstruct exactly, so accepting a
// granular suggestion reproduces the suggested text verbatim.
func TestReconstructRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		original  string
		suggested string
	}{
		{"typo fix", "Their going to the store", "They're going to the store"},
		{"insertion", "the fox jumps", "the quick brown fox jumps"},
		{"deletion", "a very very long sentence", "a long sentence"},
		{"rewrite", "completely different input", "nothing shared at all"},
		{"identical", "same on both sides", "same on both sides"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Diff(tc.original, tc.suggested)
			assert.Equal(t, normalize(tc.original), Reconstruct(got.Segments, Deleted))
			assert.Equal(t, normalize(tc.suggested), Reconstruct(got.Segments, Added))
		})
	}
}

func TestDiffIsDeterministic(t *testing.T) {
	a := "The quick brown fox jumps over the lazy dog"
	b := "A quick red fox leaps over the lazy dog"

	first := Diff(a, b)
	second := Diff(a, b)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("diff not deterministic (-first +second):\n%s", diff)
	}
}

func TestDiffDeleteBeforeAdd(t *testing.T) {
	got := Diff("the old word stays here", "the new word stays here")

	var order []SegmentType
	for _, s := range got.Segments {
		if s.Type != Unchanged {
			order = append(order, s.Type)
		}
	}
	assert.Equal(t, []SegmentType{Deleted, Added}, order)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
