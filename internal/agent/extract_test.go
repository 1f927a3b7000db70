package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBalancedJSONSimple(t *testing.T) {
	out, ok := ExtractBalancedJSON(`{"a": 1}`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestExtractBalancedJSONSurroundedByProse(t *testing.T) {
	out, ok := ExtractBalancedJSON("Sure, here is the data:\n```json\n{\"a\": {\"b\": 2}}\n```\nHope that helps.")
	assert.True(t, ok)
	assert.Equal(t, `{"a": {"b": 2}}`, out)
}

func TestExtractBalancedJSONIgnoresBracesInStrings(t *testing.T) {
	out, ok := ExtractBalancedJSON(`{"note": "use { and } carefully"}`)
	assert.True(t, ok)
	assert.Equal(t, `{"note": "use { and } carefully"}`, out)
}

func TestExtractBalancedJSONHandlesEscapedQuotes(t *testing.T) {
	out, ok := ExtractBalancedJSON(`{"note": "she said \"hi\" to {me}"}`)
	assert.True(t, ok)
	assert.Equal(t, `{"note": "she said \"hi\" to {me}"}`, out)
}

func TestExtractBalancedJSONNoObject(t *testing.T) {
	_, ok := ExtractBalancedJSON("no json here at all")
	assert.False(t, ok)
}

func TestExtractBalancedJSONUnbalanced(t *testing.T) {
	_, ok := ExtractBalancedJSON(`{"a": {"b": 1}`)
	assert.False(t, ok)
}

func TestExtractBalancedJSONNested(t *testing.T) {
	input := `{"a": {"b": {"c": [1,2,3]}}, "d": "x"}`
	out, ok := ExtractBalancedJSON(input)
	assert.True(t, ok)
	assert.Equal(t, input, out)
}
