package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonWalker(t *testing.T) {
	input := `
{
  "fills": [
    {"type": "SOLID", "color": {"r": 1, "g": 0, "b": 0, "a": 1}},
    {"type": "IMAGE"}
  ],
  "reactions": [
    {"trigger": {"type": "ON_CLICK"}, "action": {"destinationId": "4:2"}},
    {"trigger": {"type": "ON_HOVER"}, "action": {"type": "BACK"}}
  ]
}
`
	var data any
	require.NoError(t, json.Unmarshal([]byte(input), &data))

	w := NewJsonWalker()

	t.Run("select objects", func(t *testing.T) {
		colors, err := w.Objects(data, "$.fills[*].color")
		require.NoError(t, err)
		require.Len(t, colors, 1)
		assert.Equal(t, map[string]any{"r": 1.0, "g": 0.0, "b": 0.0, "a": 1.0}, colors[0])
	})

	t.Run("select strings skips missing", func(t *testing.T) {
		ids, err := w.Strings(data, "$..destinationId")
		require.NoError(t, err)
		assert.Equal(t, []string{"4:2"}, ids)
	})

	t.Run("nil root", func(t *testing.T) {
		vals, err := w.Query(nil, "$.fills")
		require.NoError(t, err)
		assert.Empty(t, vals)
	})

	t.Run("invalid selector", func(t *testing.T) {
		_, err := w.Query(data, "$.fills[")
		assert.Error(t, err)
	})
}
