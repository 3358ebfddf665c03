// Package editor mutates the document when the user previews, accepts or
// discards an AI suggestion, and keeps every other conversation's anchor
// bookkeeping in step with the edit.
package editor

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coedit/internal/anchor"
	"github.com/coedit/internal/document"
	"github.com/coedit/internal/store"
	"github.com/coedit/internal/worddiff"
	"github.com/coedit/pkg/models"
)

// Applier applies accepted and rejected suggestions to the document.
type Applier struct {
	store   *store.Store
	anchors *anchor.Tracker
	doc     document.Accessor
	log     zerolog.Logger
}

// New creates an applier.
func New(s *store.Store, anchors *anchor.Tracker, doc document.Accessor, log zerolog.Logger) *Applier {
	return &Applier{
		store:   s,
		anchors: anchors,
		doc:     doc,
		log:     log.With().Str("component", "editor").Logger(),
	}
}

// resolve re-derives the conversation's live anchor, attempting the stored
// range repair path before giving up.
func (a *Applier) resolve(c *models.Conversation) (models.Range, error) {
	if r, ok := a.anchors.Resolve(c.ID); ok {
		return r, nil
	}
	a.anchors.Validate([]*models.Conversation{c})
	if r, ok := a.anchors.Resolve(c.ID); ok {
		return r, nil
	}
	return models.Range{}, fmt.Errorf("conversation %s: %w", c.ID, anchor.ErrNotFound)
}

// TogglePreview renders or clears an inline diff preview in place of the
// conversation's anchored text.
func (a *Applier) TogglePreview(id string) error {
	c, ok := a.store.Get(id)
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != models.StatusSuggestionReady {
		return &store.TransitionError{ConversationID: id, From: c.Status, Op: "toggle preview"}
	}
	if c.InlineVisible {
		if err := a.clearPreview(c); err != nil {
			return err
		}
	} else {
		if err := a.renderPreview(c); err != nil {
			return err
		}
	}
	a.resync()
	return nil
}

// renderPreview splices the diff into the document over the anchor range
// and re-annotates the spliced region so the anchor keeps following it.
func (a *Applier) renderPreview(c *models.Conversation) error {
	r, err := a.resolve(c)
	if err != nil {
		return err
	}
	original := a.anchors.Text(r)
	spans := previewSpans(original, c.AISuggestion)

	if err := a.doc.ReplaceRange(r.From, r.To, spans...); err != nil {
		return fmt.Errorf("splice preview: %w", err)
	}
	total := 0
	for _, s := range spans {
		total += len(s.Text)
	}
	if err := a.anchors.Apply(c.ID, models.Range{From: r.From, To: r.From + total}); err != nil {
		return fmt.Errorf("re-annotate preview: %w", err)
	}
	return a.store.SetInlineVisible(c.ID, true)
}

// clearPreview puts the plain original text back in place of the preview.
func (a *Applier) clearPreview(c *models.Conversation) error {
	r, err := a.resolve(c)
	if err != nil {
		return err
	}
	if err := a.doc.ReplaceRange(r.From, r.To, document.Span{Text: c.SelectedText}); err != nil {
		return fmt.Errorf("revert preview: %w", err)
	}
	if err := a.anchors.Apply(c.ID, models.Range{From: r.From, To: r.From + len(c.SelectedText)}); err != nil {
		return fmt.Errorf("re-annotate original: %w", err)
	}
	return a.store.SetInlineVisible(c.ID, false)
}

// previewSpans renders the diff as marked spans: token-level runs when the
// change is readable granularly, otherwise a deletion-marked original
// followed by an insertion-marked suggestion.
func previewSpans(original, suggestion string) []document.Span {
	res := worddiff.Diff(original, suggestion)
	if !res.UseGranular {
		return []document.Span{
			{Text: original, Mark: document.MarkDeleted},
			{Text: suggestion, Mark: document.MarkInserted},
		}
	}
	var spans []document.Span
	for i, seg := range res.Segments {
		if i > 0 {
			spans = append(spans, document.Span{Text: " "})
		}
		switch seg.Type {
		case worddiff.Deleted:
			spans = append(spans, document.Span{Text: seg.Text, Mark: document.MarkDeleted})
		case worddiff.Added:
			spans = append(spans, document.Span{Text: seg.Text, Mark: document.MarkInserted})
		default:
			spans = append(spans, document.Span{Text: seg.Text})
		}
	}
	return spans
}

// Accept replaces the anchored text with the suggestion, moves the
// conversation to applied, and resynchronizes every other conversation's
// cached anchor fields.
func (a *Applier) Accept(id string) error {
	c, ok := a.store.Get(id)
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != models.StatusSuggestionReady {
		return &store.TransitionError{ConversationID: id, From: c.Status, Op: "accept"}
	}
	if c.InlineVisible {
		// Collapse the preview back to the plain original before replacing,
		// so the replacement covers a single unmarked span.
		if err := a.clearPreview(c); err != nil {
			return err
		}
	}
	r, err := a.resolve(c)
	if err != nil {
		return err
	}
	if err := a.doc.ReplaceRange(r.From, r.To, document.Span{Text: c.AISuggestion}); err != nil {
		return fmt.Errorf("apply suggestion: %w", err)
	}
	applied := models.Range{From: r.From, To: r.From + len(c.AISuggestion)}
	if err := a.anchors.Apply(c.ID, applied); err != nil {
		return fmt.Errorf("re-annotate applied text: %w", err)
	}
	if err := a.store.MarkApplied(c.ID, applied, c.AISuggestion); err != nil {
		return err
	}
	a.log.Info().Str("conversation", id).Int("from", applied.From).Int("to", applied.To).
		Msg("applied suggestion")
	a.resync()
	return nil
}

// Close reverts any visible preview, strips the annotation and removes the
// conversation.
func (a *Applier) Close(id string) error {
	c, ok := a.store.Get(id)
	if !ok {
		return store.ErrNotFound
	}
	if c.InlineVisible {
		if err := a.clearPreview(c); err != nil {
			return err
		}
	}
	a.anchors.Remove(id)
	a.store.Remove(id)
	a.resync()
	return nil
}

// resync runs the full anchor reconciliation pass. Must happen after every
// document mutation and before the next render: annotation-based anchors
// self-correct in the document, but the cached range and text fields in the
// store need an explicit refresh to stay display-accurate.
func (a *Applier) resync() {
	changed, orphaned := a.anchors.ReconcileAll(a.store.All())
	if len(changed) > 0 || len(orphaned) > 0 {
		a.log.Debug().Strs("changed", changed).Strs("orphaned", orphaned).Msg("anchor resync")
	}
}
