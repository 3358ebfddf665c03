// Package request assembles pending conversations plus a full-document
// snapshot into the structured payloads sent to the model.
package request

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coedit/pkg/models"
)

// ErrNothingToSend is returned when no conversation survives filtering.
var ErrNothingToSend = errors.New("no conversation with a non-empty instruction and a resolvable anchor")

// Resolver re-derives a conversation's live anchor at build time.
type Resolver interface {
	Resolve(conversationID string) (models.Range, bool)
	Text(r models.Range) string
}

// Builder creates batch requests for one editor session.
type Builder struct {
	sessionID string
	resolver  Resolver
	log       zerolog.Logger
}

// NewBuilder creates a builder bound to an editor session and an anchor
// resolver.
func NewBuilder(sessionID string, resolver Resolver, log zerolog.Logger) *Builder {
	return &Builder{
		sessionID: sessionID,
		resolver:  resolver,
		log:       log.With().Str("component", "request").Logger(),
	}
}

// BuildEdits assembles a single_comment or batch_comments request from the
// given conversations. Conversations with an empty instruction or an
// unresolvable anchor are skipped; original text is re-sliced from the live
// anchor, never from the cached field.
func (b *Builder) BuildEdits(convs []*models.Conversation, snapshot string) (*models.BatchRequest, error) {
	var prompts []models.PromptItem
	for _, c := range convs {
		if c.Instruction == "" {
			continue
		}
		r, ok := b.resolver.Resolve(c.ID)
		if !ok {
			b.log.Warn().Str("conversation", c.ID).Msg("skipping conversation with unresolvable anchor")
			continue
		}
		prompts = append(prompts, models.PromptItem{
			PromptID:     c.ID,
			Instruction:  c.Instruction,
			OriginalText: b.resolver.Text(r),
		})
	}
	if len(prompts) == 0 {
		return nil, ErrNothingToSend
	}
	reqType := models.RequestBatchComments
	if len(prompts) == 1 {
		reqType = models.RequestSingleComment
	}
	return b.newRequest(reqType, snapshot, prompts), nil
}

// BuildCollaboration assembles a whole-document pass: a single synthetic
// prompt asking the model to scan the snapshot and mint zero or more new
// suggestions.
func (b *Builder) BuildCollaboration(snapshot string) *models.BatchRequest {
	return b.newRequest(models.RequestCollaboration, snapshot, nil)
}

// BuildThreadReply assembles a conversational follow-up within one
// conversation's thread. The response is prose, not structured.
func (b *Builder) BuildThreadReply(c *models.Conversation, replyText, snapshot string) *models.BatchRequest {
	return b.newRequest(models.RequestThreadReply, snapshot, []models.PromptItem{{
		PromptID:     c.ID,
		Instruction:  replyText,
		OriginalText: c.SelectedText,
	}})
}

// BuildQuery assembles a free-form question about the document.
func (b *Builder) BuildQuery(question, snapshot string) *models.BatchRequest {
	return b.newRequest(models.RequestAskGoose, snapshot, []models.PromptItem{{
		PromptID:    models.NewID(),
		Instruction: question,
	}})
}

func (b *Builder) newRequest(reqType models.RequestType, snapshot string, prompts []models.PromptItem) *models.BatchRequest {
	return &models.BatchRequest{
		EditorSessionID: b.sessionID,
		RequestID:       models.NewID(),
		DocumentText:    snapshot,
		Prompts:         prompts,
		RequestType:     reqType,
	}
}

// Metadata derives the transport metadata echoed back with the completion.
func Metadata(req *models.BatchRequest) models.RequestMetadata {
	md := models.RequestMetadata{
		EditorSessionID: req.EditorSessionID,
		RequestID:       req.RequestID,
		RequestType:     req.RequestType,
	}
	if req.RequestType == models.RequestAskGoose {
		return md
	}
	for _, p := range req.Prompts {
		md.ConversationIDs = append(md.ConversationIDs, p.PromptID)
	}
	return md
}

// Render produces the full prompt text for a request: the instruction
// template for its type followed by the JSON payload. thread is only
// consulted for thread_reply requests.
func Render(req *models.BatchRequest, thread []models.Reply) (string, error) {
	switch req.RequestType {
	case models.RequestSingleComment, models.RequestBatchComments:
		return renderWithPayload(editTemplate, req)
	case models.RequestCollaboration:
		return renderWithPayload(collaborationTemplate, req)
	case models.RequestThreadReply:
		if len(req.Prompts) != 1 {
			return "", fmt.Errorf("thread_reply request needs exactly one prompt, got %d", len(req.Prompts))
		}
		return renderThreadReply(req, thread), nil
	case models.RequestAskGoose:
		if len(req.Prompts) != 1 {
			return "", fmt.Errorf("ask_goose request needs exactly one prompt, got %d", len(req.Prompts))
		}
		return fmt.Sprintf(askTemplate, req.DocumentText, req.Prompts[0].Instruction), nil
	default:
		return "", fmt.Errorf("unknown request type %q", req.RequestType)
	}
}

func renderWithPayload(template string, req *models.BatchRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal request payload: %w", err)
	}
	return fmt.Sprintf(template, string(payload)), nil
}
