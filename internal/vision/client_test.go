package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFactsJSON(t *testing.T) {
	facts, err := parseFactsJSON(`{"hobby": ["climbing", "pottery"], "brand": ["patagonia"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"climbing", "pottery"}, facts["hobby"])
	assert.Equal(t, []string{"patagonia"}, facts["brand"])
}

func TestParseFactsJSONStripsCodeFence(t *testing.T) {
	facts, err := parseFactsJSON("```json\n{\"hobby\": [\"surfing\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"surfing"}, facts["hobby"])
}

func TestParseFactsJSONSingleStringValue(t *testing.T) {
	facts, err := parseFactsJSON(`{"location": "berlin"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin"}, facts["location"])
}

func TestParseFactsJSONDropsNonStringItems(t *testing.T) {
	facts, err := parseFactsJSON(`{"hobby": ["climbing", 42, null]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"climbing"}, facts["hobby"])
}

func TestParseFactsJSONRejectsProse(t *testing.T) {
	_, err := parseFactsJSON("Sure! Their main interests are climbing and pottery.")
	assert.Error(t, err)
}

func TestCapSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, capSlice([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{"a"}, capSlice([]string{"a"}, 2))
}
