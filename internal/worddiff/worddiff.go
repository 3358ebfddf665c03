// Package worddiff computes a word-level alignment between an original text
// span and an AI-suggested replacement, and decides whether the change is
// readable as a granular token diff or better shown as a full-span
// before/after block.
package worddiff

import "strings"

// SegmentType classifies a run of tokens in the alignment.
type SegmentType string

const (
	Unchanged SegmentType = "unchanged"
	Deleted   SegmentType = "deleted"
	Added     SegmentType = "added"
)

// Segment is a maximal run of same-typed tokens, re-joined with single
// spaces.
type Segment struct {
	Type SegmentType `json:"type"`
	Text string      `json:"text"`
}

// Tokens returns the segment's token count.
func (s Segment) Tokens() int {
	return len(strings.Fields(s.Text))
}

// Result is the outcome of a diff.
type Result struct {
	Segments []Segment `json:"segments"`
	// ChangeRatio is the fraction of tokens touched by the change, in [0, 1].
	ChangeRatio float64 `json:"change_ratio"`
	// UseGranular reports whether token-level highlighting is more readable
	// than a full-span replacement block for this change.
	UseGranular bool `json:"use_granular"`
}

const (
	maxGranularRatio    = 0.7
	maxGranularSegments = 8
	minContextTokens    = 2
)

// Diff aligns original and suggested token sequences with a classic LCS and
// emits merged unchanged/deleted/added segments.
func Diff(original, suggested string) Result {
	a := strings.Fields(original)
	b := strings.Fields(suggested)

	switch {
	case len(a) == 0 && len(b) == 0:
		return Result{UseGranular: true}
	case len(a) == 0:
		return Result{
			Segments:    []Segment{{Type: Added, Text: strings.Join(b, " ")}},
			ChangeRatio: 1,
			UseGranular: true,
		}
	case len(b) == 0:
		return Result{
			Segments:    []Segment{{Type: Deleted, Text: strings.Join(a, " ")}},
			ChangeRatio: 1,
			UseGranular: true,
		}
	}

	segments := merge(backtrack(a, b, lcsTable(a, b)))

	total, changed := 0, 0
	hasContext := false
	for _, s := range segments {
		n := s.Tokens()
		total += n
		if s.Type != Unchanged {
			changed += n
		} else if n >= minContextTokens {
			hasContext = true
		}
	}
	denom := total
	if len(a) > denom {
		denom = len(a)
	}
	ratio := 0.0
	if denom > 0 {
		ratio = float64(changed) / float64(denom)
	}

	granular := changed == 0 ||
		(ratio <= maxGranularRatio && len(segments) <= maxGranularSegments && hasContext)

	return Result{Segments: segments, ChangeRatio: ratio, UseGranular: granular}
}

// lcsTable fills the O(m*n) dynamic programming table where table[i][j] is
// the LCS length of a[i:] and b[j:].
func lcsTable(a, b []string) [][]int {
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}
	return table
}

type op struct {
	typ   SegmentType
	token string
}

// backtrack walks the DP table emitting one op per token. Deletions are
// emitted before additions at each divergence point so merged segments come
// out as original-then-replacement.
func backtrack(a, b []string, table [][]int) []op {
	ops := make([]op, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			ops = append(ops, op{Unchanged, a[i]})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, op{Deleted, a[i]})
			i++
		default:
			ops = append(ops, op{Added, b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		ops = append(ops, op{Deleted, a[i]})
	}
	for ; j < len(b); j++ {
		ops = append(ops, op{Added, b[j]})
	}
	return ops
}

// merge collapses adjacent same-type ops into space-joined segments.
func merge(ops []op) []Segment {
	var segments []Segment
	for _, o := range ops {
		if n := len(segments); n > 0 && segments[n-1].Type == o.typ {
			segments[n-1].Text += " " + o.token
			continue
		}
		segments = append(segments, Segment{Type: o.typ, Text: o.token})
	}
	return segments
}

// Reconstruct rebuilds one side of the diff from its segments: the original
// from unchanged+deleted, the suggestion from unchanged+added.
func Reconstruct(segments []Segment, side SegmentType) string {
	var parts []string
	for _, s := range segments {
		if s.Type == Unchanged || s.Type == side {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
