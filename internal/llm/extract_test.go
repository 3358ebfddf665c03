package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type suggestionPayload struct {
	Suggestions []struct {
		PromptID    string `json:"promptId"`
		RevisedText string `json:"revisedText"`
	} `json:"suggestions"`
}

func TestExtractBareObject(t *testing.T) {
	got, err := ExtractJSON(`  {"suggestions": []}  `)
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions": []}`, got)
}

func TestExtractFencedObject(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"suggestions\": [{\"promptId\": \"p1\"}]}\n```\nLet me know if you need anything else."
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions": [{"promptId": "p1"}]}`, got)
}

func TestExtractFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"a\": 1}\n```"
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestExtractObjectBuriedInProse(t *testing.T) {
	raw := `Sure! I made one change. {"suggestions": [{"promptId": "p1", "revisedText": "fixed"}]} Hope that helps.`
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions": [{"promptId": "p1", "revisedText": "fixed"}]}`, got)
}

// Braces inside string values must not confuse the balanced scan.
func TestExtractIgnoresBracesInStrings(t *testing.T) {
	raw := `preamble {"revisedText": "use {braces} and a quote \" here"} trailing`
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"revisedText": "use {braces} and a quote \" here"}`, got)
}

func TestExtractNoObject(t *testing.T) {
	_, err := ExtractJSON("Sorry, I can't help with that.")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no JSON object found")
}

func TestParseIntoValidJSON(t *testing.T) {
	var p suggestionPayload
	raw := "```json\n{\"suggestions\": [{\"promptId\": \"p1\", \"revisedText\": \"better\"}]}\n```"
	require.NoError(t, ParseInto(raw, &p))
	require.Len(t, p.Suggestions, 1)
	assert.Equal(t, "p1", p.Suggestions[0].PromptID)
	assert.Equal(t, "better", p.Suggestions[0].RevisedText)
}

// Trailing commas and single quotes are the common almost-JSON failure
// modes; repair should recover both.
func TestParseIntoRepairsAlmostJSON(t *testing.T) {
	var p suggestionPayload
	raw := `{"suggestions": [{"promptId": "p1", "revisedText": "better",},]}`
	require.NoError(t, ParseInto(raw, &p))
	require.Len(t, p.Suggestions, 1)
	assert.Equal(t, "p1", p.Suggestions[0].PromptID)

	var q suggestionPayload
	raw = `{'suggestions': [{'promptId': 'p2', 'revisedText': 'ok'}]}`
	require.NoError(t, ParseInto(raw, &q))
	require.Len(t, q.Suggestions, 1)
	assert.Equal(t, "p2", q.Suggestions[0].PromptID)
}

func TestParseIntoPlainRefusal(t *testing.T) {
	var p suggestionPayload
	err := ParseInto("I'm sorry, I cannot make that edit.", &p)
	require.Error(t, err)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("  short  ", 200))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got := Excerpt(string(long), 200)
	assert.Len(t, got, 203)
	assert.Equal(t, "...", got[200:])
}
