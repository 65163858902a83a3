package webhook

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeData(t *testing.T) {
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
	desc := "widget"

	got := sanitizeData(map[string]any{
		"count":    42,
		"ratio":    0.5,
		"name":     "abc",
		"active":   true,
		"missing":  nil,
		"when":     when,
		"when_ptr": &when,
		"desc":     &desc,
		"nested":   map[string]any{"inner": when},
		"list":     []any{1, when, "x"},
		"tags":     []string{"a", "b"},
		"err":      errors.New("boom"),
		"weird":    struct{ X int }{X: 1},
	})

	assert.Equal(t, 42, got["count"])
	assert.Equal(t, 0.5, got["ratio"])
	assert.Equal(t, "abc", got["name"])
	assert.Equal(t, true, got["active"])
	assert.Nil(t, got["missing"])
	assert.Equal(t, "2026-03-14T08:26:53Z", got["when"])
	assert.Equal(t, "2026-03-14T08:26:53Z", got["when_ptr"])
	assert.Equal(t, "widget", got["desc"])
	assert.Equal(t, map[string]any{"inner": "2026-03-14T08:26:53Z"}, got["nested"])
	assert.Equal(t, []any{1, "2026-03-14T08:26:53Z", "x"}, got["list"])
	assert.Equal(t, []string{"a", "b"}, got["tags"])
	assert.Equal(t, "boom", got["err"])
	assert.Equal(t, "{1}", got["weird"])

	_, err := json.Marshal(got)
	require.NoError(t, err, "sanitized data must always marshal")
}

func TestSanitizeData_NilPointers(t *testing.T) {
	got := sanitizeData(map[string]any{
		"when": (*time.Time)(nil),
		"desc": (*string)(nil),
	})
	assert.Nil(t, got["when"])
	assert.Nil(t, got["desc"])
}

func TestSanitizeData_Nil(t *testing.T) {
	assert.Nil(t, sanitizeData(nil))
}
