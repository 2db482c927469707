package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	response := "Here is my analysis:\n```json\n{\"diagnosis\": \"spike in refunds\"}\n```\nLet me know if you need more."

	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnosis": "spike in refunds"}`, got)
}

func TestExtractJSON_FenceWithoutLanguageTag(t *testing.T) {
	response := "```\n{\"confidence\": 0.8}\n```"

	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence": 0.8}`, got)
}

func TestExtractJSON_BareObjectInProse(t *testing.T) {
	response := `Sure. {"diagnosis": "ok", "nested": {"a": 1}} Hope that helps.`

	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnosis": "ok", "nested": {"a": 1}}`, got)
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	response := `{"note": "uses {curly} braces and a \" quote", "n": 1}`

	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, response, got)
}

func TestExtractJSON_WholeResponseIsJSON(t *testing.T) {
	got, err := ExtractJSON(`{"a": [1, 2, 3]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": [1, 2, 3]}`, got)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I could not produce a structured answer.")
	assert.Error(t, err)
}

func TestExtractJSON_UnbalancedObject(t *testing.T) {
	_, err := ExtractJSON(`{"diagnosis": "truncated`)
	assert.Error(t, err)
}
