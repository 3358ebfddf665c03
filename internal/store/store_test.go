package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coedit/pkg/models"
)

func newStore() *Store {
	return New(zerolog.Nop())
}

func TestCreateStartsPending(t *testing.T) {
	s := newStore()
	c := s.Create("quick brown", models.Range{From: 4, To: 15})

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, "quick brown", c.SelectedText)
	require.NotNil(t, c.AnchorRange)
	assert.Equal(t, models.Range{From: 4, To: 15}, *c.AnchorRange)

	got, ok := s.Get(c.ID)
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestHappyPathLifecycle(t *testing.T) {
	s := newStore()
	c := s.Create("teh word", models.Range{From: 0, To: 8})

	require.NoError(t, s.SaveInstruction(c.ID, "fix the typo"))
	require.NoError(t, s.MarkProcessing(c.ID))
	assert.Equal(t, models.StatusProcessing, c.Status)

	require.NoError(t, s.ApplySuggestion(c.ID, "the word", "Fixed transposition."))
	assert.Equal(t, models.StatusSuggestionReady, c.Status)
	assert.Equal(t, "the word", c.AISuggestion)
	assert.Equal(t, "Fixed transposition.", c.Explanation)

	require.NoError(t, s.SetInlineVisible(c.ID, true))
	assert.True(t, c.InlineVisible)

	require.NoError(t, s.MarkApplied(c.ID, models.Range{From: 0, To: 8}, "the word"))
	assert.Equal(t, models.StatusApplied, c.Status)
	assert.False(t, c.InlineVisible)
	assert.Equal(t, "the word", c.SelectedText)
}

// There is no shortcut from pending to a model outcome: a response for a
// conversation that was never sent is rejected.
func TestNoSkipFromPending(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})

	var te *TransitionError
	err := s.ApplySuggestion(c.ID, "better text", "")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.StatusPending, te.From)

	err = s.MarkResponseError(c.ID, "boom")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.StatusPending, c.Status)

	err = s.SetInlineVisible(c.ID, true)
	require.ErrorAs(t, err, &te)

	err = s.MarkApplied(c.ID, models.Range{From: 0, To: 4}, "x")
	require.ErrorAs(t, err, &te)
}

// A second completion for the same conversation is a no-op failure: once a
// suggestion landed, the conversation is out of processing.
func TestDuplicateResponseRejected(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})
	require.NoError(t, s.SaveInstruction(c.ID, "improve"))
	require.NoError(t, s.MarkProcessing(c.ID))
	require.NoError(t, s.ApplySuggestion(c.ID, "first", ""))

	var te *TransitionError
	err := s.ApplySuggestion(c.ID, "second", "")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "first", c.AISuggestion)

	err = s.MarkResponseError(c.ID, "late failure")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.StatusSuggestionReady, c.Status)
}

func TestMarkProcessingRequiresInstruction(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})

	err := s.MarkProcessing(c.ID)
	assert.ErrorIs(t, err, ErrEmptyInstruction)
	assert.Equal(t, models.StatusPending, c.Status)
}

func TestSaveInstructionRecoversFromError(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})
	require.NoError(t, s.SaveInstruction(c.ID, "improve"))
	require.NoError(t, s.MarkProcessing(c.ID))
	require.NoError(t, s.MarkResponseError(c.ID, "model unavailable"))
	assert.Equal(t, models.StatusError, c.Status)
	assert.Equal(t, "model unavailable", c.ErrorMessage)

	require.NoError(t, s.SaveInstruction(c.ID, "try again"))
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Empty(t, c.ErrorMessage)
	assert.Equal(t, "try again", c.Instruction)

	// And the retry can be sent.
	require.NoError(t, s.MarkProcessing(c.ID))
}

func TestSaveInstructionRejectedWhileProcessing(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})
	require.NoError(t, s.SaveInstruction(c.ID, "improve"))
	require.NoError(t, s.MarkProcessing(c.ID))

	var te *TransitionError
	err := s.SaveInstruction(c.ID, "changed my mind")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "improve", c.Instruction)
}

func TestAppliedIsTerminal(t *testing.T) {
	s := newStore()
	c := s.Create("text", models.Range{From: 0, To: 4})
	require.NoError(t, s.SaveInstruction(c.ID, "improve"))
	require.NoError(t, s.MarkProcessing(c.ID))
	require.NoError(t, s.ApplySuggestion(c.ID, "better", ""))
	require.NoError(t, s.MarkApplied(c.ID, models.Range{From: 0, To: 6}, "better"))

	var te *TransitionError
	assert.ErrorAs(t, s.MarkProcessing(c.ID), &te)
	assert.ErrorAs(t, s.ApplySuggestion(c.ID, "x", ""), &te)
	assert.ErrorAs(t, s.SetInlineVisible(c.ID, true), &te)
	assert.ErrorAs(t, s.MarkApplied(c.ID, models.Range{}, ""), &te)
}

func TestSynthesizeStartsSuggestionReady(t *testing.T) {
	s := newStore()
	c := s.Synthesize("", "Their going", models.Range{From: 0, To: 11},
		"They're going", "Corrected homophone.")

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.StatusSuggestionReady, c.Status)
	assert.Equal(t, "They're going", c.AISuggestion)

	// A caller-provided id (from the model's promptId) is kept as-is.
	c2 := s.Synthesize("ai-1", "x", models.Range{From: 0, To: 1}, "y", "")
	assert.Equal(t, "ai-1", c2.ID)
}

func TestUnknownConversation(t *testing.T) {
	s := newStore()
	assert.ErrorIs(t, s.SaveInstruction("nope", "x"), ErrNotFound)
	assert.ErrorIs(t, s.MarkProcessing("nope"), ErrNotFound)
	assert.ErrorIs(t, s.ApplySuggestion("nope", "x", ""), ErrNotFound)
	assert.ErrorIs(t, s.MarkResponseError("nope", "x"), ErrNotFound)
	assert.ErrorIs(t, s.MarkApplied("nope", models.Range{}, ""), ErrNotFound)

	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestAllOrdersByActivity(t *testing.T) {
	s := newStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	first := s.Create("a", models.Range{From: 0, To: 1})
	clock = clock.Add(time.Minute)
	second := s.Create("b", models.Range{From: 1, To: 2})
	clock = clock.Add(time.Minute)
	require.NoError(t, s.SaveInstruction(first.ID, "touched again"))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestProcessingFilter(t *testing.T) {
	s := newStore()
	a := s.Create("a", models.Range{From: 0, To: 1})
	s.Create("b", models.Range{From: 1, To: 2})
	require.NoError(t, s.SaveInstruction(a.ID, "go"))
	require.NoError(t, s.MarkProcessing(a.ID))

	got := s.Processing()
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestRemove(t *testing.T) {
	s := newStore()
	c := s.Create("a", models.Range{From: 0, To: 1})
	s.Remove(c.ID)
	assert.Zero(t, s.Len())
	s.Remove("already gone")
}

func TestThreadReplies(t *testing.T) {
	s := newStore()
	c := s.Create("span", models.Range{From: 0, To: 4})

	require.NoError(t, s.AppendReply(c.ID, models.Reply{
		ID:     models.NewID(),
		Role:   models.RoleUser,
		Text:   "can you expand on this?",
		Status: models.ReplyPending,
	}))
	require.NotNil(t, c.PendingReply())

	s.ResolvePendingReply(c.ID)
	assert.Nil(t, c.PendingReply())
	assert.Equal(t, models.ReplySent, c.Replies[0].Status)

	require.NoError(t, s.AppendReply(c.ID, models.Reply{
		ID:     models.NewID(),
		Role:   models.RoleUser,
		Text:   "second question",
		Status: models.ReplyPending,
	}))
	s.FailPendingReply(c.ID)
	assert.Equal(t, models.ReplyError, c.Replies[1].Status)

	assert.ErrorIs(t, s.AppendReply("nope", models.Reply{}), ErrNotFound)
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{ConversationID: "c1", From: models.StatusApplied, Op: "send"}
	assert.Equal(t, "conversation c1: cannot send from status applied", err.Error())
	assert.True(t, errors.As(error(err), new(*TransitionError)))
}
