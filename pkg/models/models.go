package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusPending         ConversationStatus = "pending"
	StatusProcessing      ConversationStatus = "processing"
	StatusSuggestionReady ConversationStatus = "suggestion_ready"
	StatusApplied         ConversationStatus = "applied"
	StatusError           ConversationStatus = "error"
)

// ReplyStatus tracks delivery of a user reply within a thread.
type ReplyStatus string

const (
	ReplyPending ReplyStatus = "pending"
	ReplySent    ReplyStatus = "sent"
	ReplyError   ReplyStatus = "error"
)

// ReplyRole identifies the author of a thread reply.
type ReplyRole string

const (
	RoleUser      ReplyRole = "user"
	RoleAssistant ReplyRole = "assistant"
)

// RequestType selects both the instruction template sent to the model and
// the response-parsing strategy on the way back.
type RequestType string

const (
	RequestSingleComment RequestType = "single_comment"
	RequestBatchComments RequestType = "batch_comments"
	RequestCollaboration RequestType = "collaboration"
	RequestThreadReply   RequestType = "thread_reply"
	RequestAskGoose      RequestType = "ask_goose"
)

// Range is a half-open character range [From, To) in the document.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Len returns the number of characters covered by the range.
func (r Range) Len() int { return r.To - r.From }

// Reply is a single message in a conversation thread.
type Reply struct {
	ID        string      `json:"id"`
	Role      ReplyRole   `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
	Status    ReplyStatus `json:"status,omitempty"`
}

// Conversation is the unit of an AI interaction scoped to a text span.
// The UI layer calls these "comments".
//
// AnchorRange is a fallback only: the authoritative position is always
// re-derived from the live document annotation at the moment an operation
// needs it. Stale cached offsets are the bug class this design eliminates.
type Conversation struct {
	ID            string             `json:"id"`
	AnchorRange   *Range             `json:"anchor_range,omitempty"`
	SelectedText  string             `json:"selected_text"`
	Instruction   string             `json:"instruction"`
	Status        ConversationStatus `json:"status"`
	AISuggestion  string             `json:"ai_suggestion,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	InlineVisible bool               `json:"inline_visible"`
	Replies       []Reply            `json:"replies,omitempty"`
	LastActivity  time.Time          `json:"last_activity"`
}

// PendingReply returns the most recent user reply still awaiting an
// assistant response, or nil.
func (c *Conversation) PendingReply() *Reply {
	for i := len(c.Replies) - 1; i >= 0; i-- {
		if c.Replies[i].Role == RoleUser && c.Replies[i].Status == ReplyPending {
			return &c.Replies[i]
		}
	}
	return nil
}

// PromptItem is one conversation's contribution to a batch request.
type PromptItem struct {
	PromptID     string `json:"promptId"`
	Instruction  string `json:"instruction"`
	OriginalText string `json:"originalText"`
}

// BatchRequest bundles one or more conversations' instructions plus a
// full-document snapshot into a single transport call.
type BatchRequest struct {
	EditorSessionID string       `json:"editorSessionId"`
	RequestID       string       `json:"requestId"`
	DocumentText    string       `json:"documentText"`
	Prompts         []PromptItem `json:"prompts"`
	RequestType     RequestType  `json:"requestType"`
}

// SuggestionResult is one suggestion in a parsed model response, either
// correlated to an existing conversation by PromptID or AI-initiated with a
// freshly minted id plus a verbatim OriginalText locator.
type SuggestionResult struct {
	PromptID     string `json:"promptId"`
	OriginalText string `json:"originalText,omitempty"`
	RevisedText  string `json:"revisedText,omitempty"`
	Explanation  string `json:"explanation,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Success reports whether the model marked this suggestion usable. An empty
// status is treated as success since several models omit the field.
func (s SuggestionResult) Success() bool {
	return s.Status == "" || s.Status == "success"
}

// BatchResponse is the single JSON object the model is instructed to return.
type BatchResponse struct {
	Suggestions []SuggestionResult `json:"suggestions"`
}

// RequestMetadata travels with a transport request and is echoed back
// verbatim on completion so responses can be correlated without heuristics.
type RequestMetadata struct {
	EditorSessionID string      `json:"editor_session_id"`
	RequestID       string      `json:"request_id"`
	RequestType     RequestType `json:"request_type"`
	ConversationIDs []string    `json:"conversation_ids,omitempty"`
}

// NewID mints an opaque unique identifier for conversations, replies and
// requests. Also used as the correlation key sent to the model.
func NewID() string {
	return uuid.NewString()
}
