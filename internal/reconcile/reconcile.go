// Package reconcile parses streamed model output and applies the resulting
// state transitions to the conversation store.
//
// Model output is hostile territory: prose wrapped around JSON, dropped
// routing metadata, suggestions for conversations the user already closed,
// and edits the model initiated on its own. Everything here degrades to a
// per-conversation error or a logged drop, never a crash.
package reconcile

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coedit/internal/anchor"
	"github.com/coedit/internal/document"
	"github.com/coedit/internal/llm"
	"github.com/coedit/internal/store"
	"github.com/coedit/internal/transport"
	"github.com/coedit/pkg/models"
)

// errorExcerptLen bounds the raw-text excerpt attached to conversations
// when a response cannot be parsed.
const errorExcerptLen = 200

// minConversationalLen is the shortest text the metadata-loss heuristic
// will treat as a conversational reply.
const minConversationalLen = 40

// Reconciler correlates model completions back to conversations.
type Reconciler struct {
	store   *store.Store
	anchors *anchor.Tracker
	doc     document.Accessor
	log     zerolog.Logger

	// onAnswer receives free-form ask_goose answers; the session routes
	// them to its scratch thread.
	onAnswer func(text string)
}

// New creates a reconciler over the given store, anchor tracker and
// document.
func New(s *store.Store, anchors *anchor.Tracker, doc document.Accessor, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:   s,
		anchors: anchors,
		doc:     doc,
		log:     log.With().Str("component", "reconcile").Logger(),
	}
}

// OnAnswer registers the sink for free-form query answers.
func (r *Reconciler) OnAnswer(fn func(text string)) { r.onAnswer = fn }

// Reconcile processes one transport completion end to end: route by
// request kind, fall back to the ambiguity heuristic when metadata was
// lost, parse the structured payload, apply per-suggestion transitions,
// then sweep unanswered conversations into error.
func (r *Reconciler) Reconcile(c transport.Completion) {
	md := c.Metadata

	if c.Err != nil {
		r.failBatch(md, c.Err.Error())
		return
	}

	switch md.RequestType {
	case models.RequestThreadReply:
		r.appendAssistantReply(md.ConversationIDs, c.Text)
		return
	case models.RequestAskGoose:
		if r.onAnswer != nil {
			r.onAnswer(c.Text)
		}
		return
	case "":
		// Metadata did not survive the round trip. If the text reads like
		// prose, attribute it to a conversation by the documented
		// disambiguation ladder; otherwise try a structured parse below.
		if looksConversational(c.Text) {
			if target := r.disambiguate(); target != "" {
				r.appendAssistantReply([]string{target}, c.Text)
			} else {
				r.log.Warn().Str("excerpt", llm.Excerpt(c.Text, 80)).
					Msg("dropping unattributable conversational response")
			}
			return
		}
	}

	var parsed models.BatchResponse
	if err := llm.ParseInto(c.Text, &parsed); err != nil {
		r.log.Error().Err(err).Msg("response parse failure")
		r.failBatch(md, "AI response was not valid JSON: "+llm.Excerpt(c.Text, errorExcerptLen))
		return
	}

	mentioned := make(map[string]bool, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		mentioned[s.PromptID] = true
		r.applySuggestion(s)
	}
	r.sweep(md, mentioned)
}

// applySuggestion applies one suggestion: a status transition on the
// matching processing conversation, or the synthesis of a brand-new
// AI-initiated conversation anchored at the quoted original text.
func (r *Reconciler) applySuggestion(s models.SuggestionResult) {
	if conv, ok := r.store.Get(s.PromptID); ok {
		var err error
		if s.Success() {
			err = r.store.ApplySuggestion(conv.ID, s.RevisedText, s.Explanation)
		} else {
			msg := s.ErrorMessage
			if msg == "" {
				msg = "the AI could not produce a revision"
			}
			err = r.store.MarkResponseError(conv.ID, msg)
		}
		var te *store.TransitionError
		if errors.As(err, &te) {
			// Duplicate or out-of-order completion; drop it.
			r.log.Warn().Str("conversation", conv.ID).Str("status", string(te.From)).
				Msg("ignoring suggestion for conversation not in processing")
		}
		return
	}

	if !s.Success() {
		r.log.Warn().Str("prompt", s.PromptID).Msg("ignoring errored suggestion for unknown conversation")
		return
	}
	if s.OriginalText == "" || s.RevisedText == "" {
		r.log.Warn().Str("prompt", s.PromptID).
			Msg("ignoring AI-initiated suggestion without locatable original text")
		return
	}
	r.synthesize(s)
}

// synthesize creates a conversation for an AI-initiated suggestion, anchored
// at the first document-order occurrence of the quoted original text.
func (r *Reconciler) synthesize(s models.SuggestionResult) {
	text := r.doc.PlainText()
	idx := strings.Index(text, s.OriginalText)
	if idx < 0 {
		// Likely the document changed since the model read it.
		r.log.Warn().Str("prompt", s.PromptID).Str("original", llm.Excerpt(s.OriginalText, 60)).
			Msg("discarding AI-initiated suggestion: original text not found in document")
		return
	}
	rng := models.Range{From: idx, To: idx + len(s.OriginalText)}
	conv := r.store.Synthesize(s.PromptID, s.OriginalText, rng, s.RevisedText, s.Explanation)
	if err := r.anchors.Apply(conv.ID, rng); err != nil {
		r.log.Error().Err(err).Str("conversation", conv.ID).Msg("failed to annotate synthesized conversation")
		r.store.Remove(conv.ID)
		return
	}
	r.log.Info().Str("conversation", conv.ID).Int("from", rng.From).Int("to", rng.To).
		Msg("synthesized conversation from AI-initiated suggestion")
}

// sweep errors out every conversation of this batch still waiting on a
// suggestion the model never returned.
func (r *Reconciler) sweep(md models.RequestMetadata, mentioned map[string]bool) {
	for _, conv := range r.batchConversations(md) {
		if conv.Status == models.StatusProcessing && !mentioned[conv.ID] {
			_ = r.store.MarkResponseError(conv.ID, "not present in AI's suggestions list")
		}
	}
}

// failBatch errors out every processing conversation addressed by the
// request. Used for transport failures and unparseable responses. Failures
// stay scoped to the conversations they affect.
func (r *Reconciler) failBatch(md models.RequestMetadata, message string) {
	if md.RequestType == models.RequestThreadReply {
		for _, id := range md.ConversationIDs {
			r.store.FailPendingReply(id)
		}
		return
	}
	for _, conv := range r.batchConversations(md) {
		if conv.Status == models.StatusProcessing {
			_ = r.store.MarkResponseError(conv.ID, message)
		}
	}
}

// batchConversations returns the conversations addressed by a request: the
// ones named in its metadata, none for a collaboration pass (which targets
// no existing conversation), or every processing conversation when the
// metadata was lost in transit.
func (r *Reconciler) batchConversations(md models.RequestMetadata) []*models.Conversation {
	if md.RequestType == models.RequestCollaboration {
		return nil
	}
	if len(md.ConversationIDs) > 0 {
		out := make([]*models.Conversation, 0, len(md.ConversationIDs))
		for _, id := range md.ConversationIDs {
			if conv, ok := r.store.Get(id); ok {
				out = append(out, conv)
			}
		}
		return out
	}
	return r.store.Processing()
}

// disambiguate picks the conversation an unattributed prose reply most
// plausibly belongs to: the unique conversation with a pending reply, then
// the most recently active one with a pending reply, then the most recently
// active one with any reply, then the only conversation if exactly one
// exists. Returns "" when attribution is impossible.
//
// Known limitation: with several pending replies in flight the
// latest-activity rule can misattribute; the store's All() ordering makes
// the choice deterministic but not certain.
func (r *Reconciler) disambiguate() string {
	all := r.store.All() // most recent activity first

	var withPending, withReplies []*models.Conversation
	for _, c := range all {
		if c.PendingReply() != nil {
			withPending = append(withPending, c)
		}
		if len(c.Replies) > 0 {
			withReplies = append(withReplies, c)
		}
	}

	switch {
	case len(withPending) == 1:
		return withPending[0].ID
	case len(withPending) > 1:
		r.log.Warn().Int("candidates", len(withPending)).
			Msg("multiple pending replies, attributing by latest activity")
		return withPending[0].ID
	case len(withReplies) > 0:
		return withReplies[0].ID
	case len(all) == 1:
		return all[0].ID
	}
	return ""
}

// appendAssistantReply appends prose as an assistant reply on the addressed
// conversation and settles its pending user reply.
func (r *Reconciler) appendAssistantReply(ids []string, text string) {
	if len(ids) == 0 {
		r.log.Warn().Msg("thread reply completion without a conversation id")
		return
	}
	id := ids[0]
	if _, ok := r.store.Get(id); !ok {
		r.log.Warn().Str("conversation", id).Msg("thread reply for closed conversation, dropping")
		return
	}
	r.store.ResolvePendingReply(id)
	_ = r.store.AppendReply(id, models.Reply{
		ID:        models.NewID(),
		Role:      models.RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// looksConversational decides whether text that lost its routing metadata
// reads like a prose reply: it must not open a JSON value, must have some
// length, and must not contain suggestion-shaped keys.
func looksConversational(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return false
	}
	if len(trimmed) < minConversationalLen {
		return false
	}
	for _, key := range []string{`"suggestions"`, `"promptId"`, `"revisedText"`} {
		if strings.Contains(trimmed, key) {
			return false
		}
	}
	return true
}
