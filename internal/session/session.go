// Package session wires the conversation store, anchor tracker, request
// builder, reconciler and edit applier into the single engine object the
// desktop shell embeds.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coedit/internal/anchor"
	"github.com/coedit/internal/document"
	"github.com/coedit/internal/editor"
	"github.com/coedit/internal/reconcile"
	"github.com/coedit/internal/request"
	"github.com/coedit/internal/store"
	"github.com/coedit/internal/transport"
	"github.com/coedit/pkg/models"
)

// Session is one editor session's AI collaboration engine.
//
// The design is event-driven: UI handlers and transport continuations
// interleave on one logical thread. Go transports complete on their own
// goroutine, so a mutex serializes them against UI entry points; there is
// never concurrent mutation inside the lock.
type Session struct {
	id        string
	doc       document.Accessor
	transport transport.Transport
	log       zerolog.Logger

	mu        sync.Mutex
	store     *store.Store
	anchors   *anchor.Tracker
	builder   *request.Builder
	reconcile *reconcile.Reconciler
	applier   *editor.Applier
	askThread []models.Reply
	onUpdate  func()
}

// New creates a session over the given document and transport.
func New(doc document.Accessor, t transport.Transport, log zerolog.Logger) *Session {
	id := models.NewID()
	log = log.With().Str("session", id).Logger()

	st := store.New(log)
	anchors := anchor.New(doc, log)
	s := &Session{
		id:        id,
		doc:       doc,
		transport: t,
		log:       log,
		store:     st,
		anchors:   anchors,
		builder:   request.NewBuilder(id, anchors, log),
		reconcile: reconcile.New(st, anchors, doc, log),
		applier:   editor.New(st, anchors, doc, log),
	}
	s.reconcile.OnAnswer(s.appendAskAnswer)
	return s
}

// ID returns the editor session id sent with every request.
func (s *Session) ID() string { return s.id }

// Document returns the underlying document accessor.
func (s *Session) Document() document.Accessor { return s.doc }

// CreateConversation anchors a new pending conversation over [from, to).
func (s *Session) CreateConversation(from, to int) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.doc.PlainText()
	if from < 0 || to > len(text) || from >= to {
		return nil, document.ErrOutOfBounds{From: from, To: to, Len: len(text)}
	}
	r := models.Range{From: from, To: to}
	c := s.store.Create(text[from:to], r)
	if err := s.anchors.Apply(c.ID, r); err != nil {
		s.store.Remove(c.ID)
		return nil, fmt.Errorf("annotate selection: %w", err)
	}
	return c, nil
}

// SaveInstruction updates a conversation's instruction text.
func (s *Session) SaveInstruction(id, instruction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SaveInstruction(id, instruction)
}

// Send submits a single conversation's instruction to the model.
func (s *Session) Send(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	if err := s.store.MarkProcessing(id); err != nil {
		s.mu.Unlock()
		return err
	}
	req, err := s.builder.BuildEdits([]*models.Conversation{c}, s.doc.Snapshot())
	if err != nil {
		_ = s.store.MarkResponseError(id, err.Error())
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.dispatch(ctx, req, nil)
}

// SendAll submits every pending conversation with a non-empty instruction
// as one batch.
func (s *Session) SendAll(ctx context.Context) error {
	s.mu.Lock()
	var ready []*models.Conversation
	for _, c := range s.store.All() {
		if c.Status == models.StatusPending && c.Instruction != "" {
			ready = append(ready, c)
		}
	}
	if len(ready) == 0 {
		s.mu.Unlock()
		return request.ErrNothingToSend
	}
	req, err := s.builder.BuildEdits(ready, s.doc.Snapshot())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	sent := make(map[string]bool, len(req.Prompts))
	for _, p := range req.Prompts {
		sent[p.PromptID] = true
	}
	for _, c := range ready {
		if sent[c.ID] {
			_ = s.store.MarkProcessing(c.ID)
		}
	}
	s.mu.Unlock()
	return s.dispatch(ctx, req, nil)
}

// RunCollaborationPass asks the model to scan the whole document and
// propose edits of its own.
func (s *Session) RunCollaborationPass(ctx context.Context) error {
	s.mu.Lock()
	req := s.builder.BuildCollaboration(s.doc.Snapshot())
	s.mu.Unlock()
	return s.dispatch(ctx, req, nil)
}

// ReplyInThread appends a user reply to a conversation's thread and sends
// it as a conversational follow-up.
func (s *Session) ReplyInThread(ctx context.Context, id, text string) error {
	s.mu.Lock()
	c, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	_ = s.store.AppendReply(id, models.Reply{
		ID:        models.NewID(),
		Role:      models.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
		Status:    models.ReplyPending,
	})
	req := s.builder.BuildThreadReply(c, text, s.doc.Snapshot())
	thread := append([]models.Reply(nil), c.Replies...)
	s.mu.Unlock()
	return s.dispatch(ctx, req, thread)
}

// Ask sends a free-form question about the document. The answer lands on
// the session's ask thread.
func (s *Session) Ask(ctx context.Context, question string) error {
	s.mu.Lock()
	s.askThread = append(s.askThread, models.Reply{
		ID:        models.NewID(),
		Role:      models.RoleUser,
		Text:      question,
		Timestamp: time.Now(),
	})
	req := s.builder.BuildQuery(question, s.doc.Snapshot())
	s.mu.Unlock()
	return s.dispatch(ctx, req, nil)
}

// dispatch renders the prompt and hands the request to the transport. Runs
// outside the session lock; the completion callback re-acquires it.
func (s *Session) dispatch(ctx context.Context, req *models.BatchRequest, thread []models.Reply) error {
	prompt, err := request.Render(req, thread)
	if err != nil {
		return err
	}
	s.log.Debug().Str("request", req.RequestID).Str("type", string(req.RequestType)).
		Int("prompts", len(req.Prompts)).Int("prompt_chars", len(prompt)).Msg("dispatching request")
	s.transport.Send(ctx, transport.Request{
		ID:       req.RequestID,
		Role:     "user",
		Content:  prompt,
		Metadata: request.Metadata(req),
	}, s.handleCompletion)
	return nil
}

// handleCompletion is the single entry point for transport continuations.
// Reconciliation and the anchor resync both run before the lock is
// released, so the store and the document never disagree across a render.
func (s *Session) handleCompletion(c transport.Completion) {
	s.mu.Lock()
	s.log.Debug().Str("request", c.Metadata.RequestID).Err(c.Err).
		Int("chars", len(c.Text)).Msg("completion received")
	s.reconcile.Reconcile(c)
	s.anchors.ReconcileAll(s.store.All())
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// OnUpdate registers a callback invoked after each completion has been
// reconciled, outside the session lock. The shell uses it to trigger a
// render; the CLI uses it to wait for a pass to finish.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

func (s *Session) appendAskAnswer(text string) {
	// Called from the reconciler inside the session lock.
	s.askThread = append(s.askThread, models.Reply{
		ID:        models.NewID(),
		Role:      models.RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// TogglePreview flips the inline diff preview for a suggestion.
func (s *Session) TogglePreview(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applier.TogglePreview(id)
}

// Accept applies a suggestion to the document.
func (s *Session) Accept(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applier.Accept(id)
}

// Close discards a conversation, reverting any visible preview.
func (s *Session) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applier.Close(id)
}

// Conversations returns all live conversations, most recent first.
func (s *Session) Conversations() []*models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.All()
}

// Conversation returns one conversation by id.
func (s *Session) Conversation(id string) (*models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// AskThread returns the free-form question/answer thread.
func (s *Session) AskThread() []models.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reply(nil), s.askThread...)
}

// Validate cross-checks document annotations against the conversation set
// and repairs what it can.
func (s *Session) Validate() anchor.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchors.Validate(s.store.All())
}
