package evaluators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUnknownKind(t *testing.T) {
	r := DefaultRegistry(nil)

	_, err := r.Create("bogus", "x", nil)
	require.Error(t, err)

	var unknownErr *UnknownKindError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "bogus", unknownErr.Kind)
}

func TestDefaultRegistryKinds(t *testing.T) {
	r := DefaultRegistry(nil)
	assert.ElementsMatch(t, []string{KindDiff, KindExpected, KindJudge}, r.Kinds())
}

func TestRegistryCreateDiff(t *testing.T) {
	r := DefaultRegistry(nil)

	ev, err := r.Create(KindDiff, "change-scope", map[string]any{"max_files_changed": 3})
	require.NoError(t, err)
	assert.Equal(t, "change-scope", ev.Name())
	assert.False(t, ev.RequiresExpected())
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("custom", func(name string, params map[string]any) (Evaluator, error) {
		called = true
		return NewDiffEvaluator(name, params)
	})

	_, err := r.Create("custom", "c", nil)
	require.NoError(t, err)
	assert.True(t, called)
}
