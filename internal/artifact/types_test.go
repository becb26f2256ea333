package artifact

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), "category %q should be valid", c)
	}
	assert.False(t, Category("real-estate").Valid())
	assert.False(t, Category("").Valid())
}

func TestCategoryExt(t *testing.T) {
	assert.Equal(t, ".log", CategoryLogs.Ext())
	assert.Equal(t, ".log", CategoryCredentials.Ext())
	assert.Equal(t, ".json", CategoryScraping.Ext())
	assert.Equal(t, ".json", CategoryAIInsights.Ext())
}

func TestPayloadCanonical(t *testing.T) {
	t.Run("object keys are sorted", func(t *testing.T) {
		a := Payload{Fields: map[string]any{"b": 1.0, "a": 2.0}}
		b := Payload{Fields: map[string]any{"a": 2.0, "b": 1.0}}
		assert.Equal(t, a.Canonical(), b.Canonical())
	})

	t.Run("text passes through verbatim", func(t *testing.T) {
		p := Payload{Text: "not json at all {{"}
		assert.Equal(t, []byte("not json at all {{"), p.Canonical())
	})

	t.Run("list serializes in order", func(t *testing.T) {
		p := Payload{List: []any{"x", "y"}}
		require.JSONEq(t, `["x","y"]`, string(p.Canonical()))
	})
}

func TestPayloadEmpty(t *testing.T) {
	assert.True(t, Payload{}.Empty())
	assert.True(t, Payload{Fields: map[string]any{}}.Empty())
	assert.False(t, Payload{Text: "x"}.Empty())
	assert.False(t, Payload{List: []any{1}}.Empty())
}

func TestBucket(t *testing.T) {
	cases := map[int]int{0: 0, 20: 0, 21: 1, 40: 1, 41: 2, 60: 2, 61: 3, 80: 3, 81: 4, 100: 4}
	for score, want := range cases {
		assert.Equal(t, want, Bucket(score), "score %d", score)
	}
}

func TestTransientIOError(t *testing.T) {
	inner := os.ErrPermission
	err := &TransientIOError{Path: "/tmp/x.json", Err: inner}

	assert.True(t, IsTransient(err))
	assert.True(t, IsTransient(fmt.Errorf("reading artifact: %w", err)))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.False(t, IsTransient(ErrPersistConflict))
}
