package request

import (
	"fmt"
	"strings"

	"github.com/coedit/pkg/models"
)

// The output contract repeated in every structured template. The model must
// return one JSON object and nothing else, correlate each suggestion via
// promptId, include verbatim originalText for suggestions it initiates, and
// leave escaping to the JSON encoder.
const outputContract = `Respond with a single JSON object and NOTHING else: no prose before or after it, no markdown fences.

The object must have this shape:
{
  "suggestions": [
    {
      "promptId": "<id>",
      "originalText": "<exact text being revised>",
      "revisedText": "<your replacement text>",
      "explanation": "<one short sentence on why>",
      "status": "success"
    }
  ]
}

Rules:
1. For each prompt in the input, emit exactly one suggestion reusing that prompt's promptId. If you cannot produce a revision, set status to "error" and put the reason in errorMessage.
2. If you propose an edit to text not covered by any input prompt, mint a fresh unique promptId for it.
3. For any suggestion you initiate, originalText MUST be the exact snippet copied verbatim from the document, character for character, so it can be located.
4. revisedText must be natural unescaped text. Do not escape quotes or newlines yourself; the JSON encoder handles escaping.`

const editTemplate = `You are an editing assistant embedded in a document editor. The user has marked one or more spans of the document and attached a revision instruction to each. Revise each span according to its instruction, using the full document for context only.

` + outputContract + `

Input:
%s`

const collaborationTemplate = `You are collaborating on the document below. Read the whole document and propose improvements: fix spelling and grammar, tighten awkward phrasing, correct factual slips. Propose zero or more targeted edits; do not rewrite the document wholesale.

` + outputContract + `

Input:
%s`

const askTemplate = `You are an assistant embedded in a document editor. Answer the user's question about the document below. Respond conversationally in plain text; do NOT return JSON.

Document:
%s

Question: %s`

// renderThreadReply lays out the conversation context and thread history so
// the model can continue the discussion in prose.
func renderThreadReply(req *models.BatchRequest, thread []models.Reply) string {
	p := req.Prompts[0]

	var sb strings.Builder
	sb.WriteString("You are an editing assistant discussing a proposed revision with the user. Continue the conversation; respond in plain text, do NOT return JSON.\n\n")
	fmt.Fprintf(&sb, "Document:\n%s\n\n", req.DocumentText)
	fmt.Fprintf(&sb, "The discussion concerns this span of the document:\n%q\n\n", p.OriginalText)
	if len(thread) > 0 {
		sb.WriteString("Thread so far:\n")
		for _, r := range thread {
			fmt.Fprintf(&sb, "[%s] %s\n", r.Role, r.Text)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "The user's new message: %s", p.Instruction)
	return sb.String()
}
