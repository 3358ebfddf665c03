// Package anchor maps conversation ids to live character ranges in the
// document by querying range-following annotations.
//
// Positions are re-derived from the document on every call. Nothing in this
// package caches an offset across mutations: stored ranges on conversations
// are display fallbacks only.
package anchor

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coedit/internal/document"
	"github.com/coedit/pkg/models"
)

// ErrNotFound is returned when a conversation's annotation cannot be
// located in the live document and could not be repaired.
var ErrNotFound = errors.New("anchor not found in document")

// tagPrefix namespaces conversation annotations so host-editor annotations
// never count as ours during validation.
const tagPrefix = "aiconv:"

// Tag returns the document annotation tag for a conversation id.
func Tag(conversationID string) string {
	return tagPrefix + conversationID
}

// Tracker resolves conversation anchors against a live document.
type Tracker struct {
	doc document.Accessor
	log zerolog.Logger
}

// New creates a tracker bound to the given document.
func New(doc document.Accessor, log zerolog.Logger) *Tracker {
	return &Tracker{doc: doc, log: log.With().Str("component", "anchor").Logger()}
}

// Resolve returns the minimal range spanning every node annotated with the
// conversation's tag, re-derived from the live document.
func (t *Tracker) Resolve(conversationID string) (models.Range, bool) {
	tag := Tag(conversationID)
	first, last := -1, -1
	t.doc.ForEachTextNode(func(node document.Node, pos int) bool {
		if node.HasTag(tag) {
			if first < 0 {
				first = pos
			}
			last = pos + len(node.Text)
		}
		return true
	})
	if first < 0 {
		return models.Range{}, false
	}
	return models.Range{From: first, To: last}, true
}

// Text slices the live document text covered by a range.
func (t *Tracker) Text(r models.Range) string {
	text := t.doc.PlainText()
	if r.From < 0 || r.To > len(text) || r.From > r.To {
		return ""
	}
	return text[r.From:r.To]
}

// Apply idempotently tags the given range with the conversation's
// annotation. If the annotation already covers exactly this range it is a
// no-op; if it exists elsewhere it is moved.
func (t *Tracker) Apply(conversationID string, r models.Range) error {
	if cur, ok := t.Resolve(conversationID); ok {
		if cur == r {
			return nil
		}
		t.doc.RemoveAnnotation(Tag(conversationID))
	}
	return t.doc.Annotate(r.From, r.To, Tag(conversationID))
}

// Remove strips the conversation's annotation from every node carrying it.
func (t *Tracker) Remove(conversationID string) {
	t.doc.RemoveAnnotation(Tag(conversationID))
}

// ReconcileAll re-resolves every conversation's anchor and refreshes the
// cached AnchorRange/SelectedText fields from the live document. Returns the
// ids whose cached fields changed and the ids whose annotation could not be
// located (logged, not auto-deleted).
func (t *Tracker) ReconcileAll(convs []*models.Conversation) (changed, orphaned []string) {
	for _, c := range convs {
		r, ok := t.Resolve(c.ID)
		if !ok {
			if c.AnchorRange != nil {
				t.log.Warn().Str("conversation", c.ID).Msg("anchor not found in live document")
				orphaned = append(orphaned, c.ID)
			}
			continue
		}
		if c.InlineVisible {
			// While a diff preview is spliced in, the annotation covers
			// preview content, not the original text; refresh the range only.
			if c.AnchorRange == nil || *c.AnchorRange != r {
				c.AnchorRange = &models.Range{From: r.From, To: r.To}
				changed = append(changed, c.ID)
			}
			continue
		}
		text := t.Text(r)
		if c.AnchorRange == nil || *c.AnchorRange != r || c.SelectedText != text {
			c.AnchorRange = &models.Range{From: r.From, To: r.To}
			c.SelectedText = text
			changed = append(changed, c.ID)
		}
	}
	return changed, orphaned
}

// Report is the outcome of a Validate pass.
type Report struct {
	// OrphanedAnchors are document annotations with no matching
	// conversation; they are removed from the document.
	OrphanedAnchors []string
	// MissingAnchors are conversations whose stored range could not be
	// re-applied; they are flagged as errors on the conversation.
	MissingAnchors []string
	// Repaired are conversations whose annotation was re-applied from the
	// stored range.
	Repaired []string
}

// Validate cross-checks document annotations against the conversation set.
// Annotations without a conversation are removed; conversations with a
// stored range but no live annotation are re-annotated opportunistically
// when the stored range still fits the document, and flagged as errors
// otherwise so a second pass reports nothing.
func (t *Tracker) Validate(convs []*models.Conversation) Report {
	var report Report

	known := make(map[string]*models.Conversation, len(convs))
	for _, c := range convs {
		known[c.ID] = c
	}

	seen := map[string]struct{}{}
	t.doc.ForEachTextNode(func(node document.Node, pos int) bool {
		for _, tag := range node.Tags {
			id, ok := strings.CutPrefix(tag, tagPrefix)
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if _, exists := known[id]; !exists {
				report.OrphanedAnchors = append(report.OrphanedAnchors, id)
			}
		}
		return true
	})
	for _, id := range report.OrphanedAnchors {
		t.log.Info().Str("conversation", id).Msg("removing orphaned annotation")
		t.doc.RemoveAnnotation(Tag(id))
	}

	for _, c := range convs {
		if _, live := seen[c.ID]; live || c.AnchorRange == nil {
			continue
		}
		r := *c.AnchorRange
		if r.From >= 0 && r.To <= t.doc.Len() && r.From <= r.To {
			if err := t.doc.Annotate(r.From, r.To, Tag(c.ID)); err == nil {
				c.SelectedText = t.Text(r)
				report.Repaired = append(report.Repaired, c.ID)
				t.log.Info().Str("conversation", c.ID).Int("from", r.From).Int("to", r.To).
					Msg("re-applied annotation from stored range")
				continue
			}
		}
		report.MissingAnchors = append(report.MissingAnchors, c.ID)
		c.AnchorRange = nil
		c.Status = models.StatusError
		c.ErrorMessage = "anchor lost: the commented text no longer exists in the document"
		t.log.Warn().Str("conversation", c.ID).Msg("anchor unrecoverable, flagged on conversation")
	}

	return report
}
