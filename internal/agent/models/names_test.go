package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameSet_Basics(t *testing.T) {
	s := NewNameSet("b", "a", "", "a")

	assert.Len(t, s, 2)
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.Sorted())
}

func TestNameSet_JSON(t *testing.T) {
	b, err := json.Marshal(NewNameSet("Archive2023", "case-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `["Archive2023","case-1"]`, string(b))

	var s NameSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &s))
	assert.Equal(t, []string{"x", "y"}, s.Sorted())

	var empty NameSet
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
}
