// Package store is the authoritative conversation map, mutated only through
// state-machine transitions so the reconciliation logic stays testable in
// isolation from rendering.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/coedit/pkg/models"
)

var (
	// ErrNotFound is returned when no conversation has the given id.
	ErrNotFound = errors.New("conversation not found")
	// ErrEmptyInstruction is returned when sending a conversation whose
	// instruction is blank.
	ErrEmptyInstruction = errors.New("instruction is empty")
)

// TransitionError reports an operation applied to a conversation in a state
// that does not permit it.
type TransitionError struct {
	ConversationID string
	From           models.ConversationStatus
	Op             string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("conversation %s: cannot %s from status %s", e.ConversationID, e.Op, e.From)
}

// Store holds every live conversation for one editor session.
//
// The engine runs on a single logical thread (UI events and transport
// continuations interleave through the session lock), so the store itself
// does no locking.
type Store struct {
	convs map[string]*models.Conversation
	log   zerolog.Logger
	now   func() time.Time
}

// New creates an empty store.
func New(log zerolog.Logger) *Store {
	return &Store{
		convs: make(map[string]*models.Conversation),
		log:   log.With().Str("component", "store").Logger(),
		now:   time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Create adds a new pending conversation over the selected text.
func (s *Store) Create(selectedText string, r models.Range) *models.Conversation {
	c := &models.Conversation{
		ID:           models.NewID(),
		AnchorRange:  &models.Range{From: r.From, To: r.To},
		SelectedText: selectedText,
		Status:       models.StatusPending,
		LastActivity: s.now(),
	}
	s.convs[c.ID] = c
	s.log.Debug().Str("conversation", c.ID).Int("from", r.From).Int("to", r.To).Msg("created conversation")
	return c
}

// Synthesize adds a conversation directly in suggestion_ready. This is how
// whole-document collaboration passes introduce suggestions the user never
// explicitly requested.
func (s *Store) Synthesize(id, selectedText string, r models.Range, suggestion, explanation string) *models.Conversation {
	if id == "" {
		id = models.NewID()
	}
	c := &models.Conversation{
		ID:           id,
		AnchorRange:  &models.Range{From: r.From, To: r.To},
		SelectedText: selectedText,
		Status:       models.StatusSuggestionReady,
		AISuggestion: suggestion,
		Explanation:  explanation,
		LastActivity: s.now(),
	}
	s.convs[c.ID] = c
	s.log.Info().Str("conversation", c.ID).Msg("synthesized AI-initiated conversation")
	return c
}

// Get returns the conversation with the given id.
func (s *Store) Get(id string) (*models.Conversation, bool) {
	c, ok := s.convs[id]
	return c, ok
}

// All returns every conversation, most recent activity first.
func (s *Store) All() []*models.Conversation {
	out := make([]*models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Processing returns the conversations currently awaiting a model response.
func (s *Store) Processing() []*models.Conversation {
	var out []*models.Conversation
	for _, c := range s.All() {
		if c.Status == models.StatusProcessing {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of live conversations.
func (s *Store) Len() int { return len(s.convs) }

// SaveInstruction replaces the instruction text. Allowed in pending and
// error (returning the conversation to pending) and, rarely, in applied to
// refine after apply without a status change.
func (s *Store) SaveInstruction(id, instruction string) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	switch c.Status {
	case models.StatusPending:
	case models.StatusError:
		c.Status = models.StatusPending
		c.ErrorMessage = ""
	case models.StatusApplied:
	default:
		return &TransitionError{ConversationID: id, From: c.Status, Op: "save instruction"}
	}
	c.Instruction = instruction
	c.LastActivity = s.now()
	return nil
}

// MarkProcessing moves a pending conversation with a non-empty instruction
// into processing.
func (s *Store) MarkProcessing(id string) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.StatusPending {
		return &TransitionError{ConversationID: id, From: c.Status, Op: "send"}
	}
	if c.Instruction == "" {
		return ErrEmptyInstruction
	}
	c.Status = models.StatusProcessing
	c.LastActivity = s.now()
	return nil
}

// ApplySuggestion records a model success on a processing conversation.
// Responses referencing a conversation in any other state are rejected so
// duplicate or out-of-order completions cannot corrupt it.
func (s *Store) ApplySuggestion(id, suggestion, explanation string) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.StatusProcessing {
		return &TransitionError{ConversationID: id, From: c.Status, Op: "apply suggestion"}
	}
	c.Status = models.StatusSuggestionReady
	c.AISuggestion = suggestion
	c.Explanation = explanation
	c.ErrorMessage = ""
	c.LastActivity = s.now()
	return nil
}

// MarkResponseError records a model failure on a processing conversation.
func (s *Store) MarkResponseError(id, message string) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.StatusProcessing {
		return &TransitionError{ConversationID: id, From: c.Status, Op: "mark error"}
	}
	c.Status = models.StatusError
	c.ErrorMessage = message
	c.LastActivity = s.now()
	return nil
}

// SetInlineVisible flips the diff-preview flag on a suggestion_ready
// conversation.
func (s *Store) SetInlineVisible(id string, visible bool) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.StatusSuggestionReady {
		return &TransitionError{ConversationID: id, From: c.Status, Op: "toggle preview"}
	}
	c.InlineVisible = visible
	c.LastActivity = s.now()
	return nil
}

// MarkApplied moves an accepted suggestion to the terminal applied state,
// updating the cached anchor fields to the newly inserted text.
func (s *Store) MarkApplied(id string, newRange models.Range, newText string) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.StatusSuggestionReady {
		return &TransitionError{ConversationID: id, From: c.Status, Op: "accept"}
	}
	c.Status = models.StatusApplied
	c.InlineVisible = false
	c.AnchorRange = &models.Range{From: newRange.From, To: newRange.To}
	c.SelectedText = newText
	c.LastActivity = s.now()
	return nil
}

// Remove deletes a conversation. Allowed from any state.
func (s *Store) Remove(id string) {
	delete(s.convs, id)
}

// AppendReply appends a thread reply and bumps activity.
func (s *Store) AppendReply(id string, reply models.Reply) error {
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.Replies = append(c.Replies, reply)
	c.LastActivity = s.now()
	return nil
}

// ResolvePendingReply marks the conversation's newest pending user reply as
// sent, called once a correlated assistant reply arrives.
func (s *Store) ResolvePendingReply(id string) {
	c, ok := s.convs[id]
	if !ok {
		return
	}
	if r := c.PendingReply(); r != nil {
		r.Status = models.ReplySent
	}
}

// FailPendingReply marks the newest pending user reply as errored, used on
// transport failure of a thread-reply request.
func (s *Store) FailPendingReply(id string) {
	c, ok := s.convs[id]
	if !ok {
		return
	}
	if r := c.PendingReply(); r != nil {
		r.Status = models.ReplyError
	}
}
