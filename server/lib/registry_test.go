package jgrep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMerge(t *testing.T) {
	one := func(args []interface{}) (interface{}, error) { return int64(1), nil }
	two := func(args []interface{}) (interface{}, error) { return int64(2), nil }

	base := FunctionRegistry{"a": one, "b": one}
	merged := base.Merge(FunctionRegistry{"b": two, "c": two})

	assert.Len(t, base, 2)
	assert.Len(t, merged, 3)

	v, err := merged["b"](nil)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), v)

	program, err := Parse(`a() and b() and d(c())`)
	require.Nil(t, err)
	assert.Equal(t, []string{"d"}, merged.Missing(program))
	assert.Equal(t, []string{"c", "d"}, base.Missing(program))
}
