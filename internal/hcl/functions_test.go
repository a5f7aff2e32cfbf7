package hcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestEnvFunc(t *testing.T) {
	t.Setenv("BUNDLESPLIT_TEST_SET", "yes")

	v, err := envFunc.Call([]cty.Value{cty.StringVal("BUNDLESPLIT_TEST_SET")})
	require.NoError(t, err)
	assert.Equal(t, "yes", v.AsString())

	v, err = envFunc.Call([]cty.Value{cty.StringVal("BUNDLESPLIT_TEST_UNSET"), cty.StringVal("fallback")})
	require.NoError(t, err)
	assert.Equal(t, "fallback", v.AsString())

	v, err = envFunc.Call([]cty.Value{cty.StringVal("BUNDLESPLIT_TEST_UNSET")})
	require.NoError(t, err)
	assert.Equal(t, "", v.AsString())
}

func TestCoalesceFunc(t *testing.T) {
	v, err := coalesceFunc.Call([]cty.Value{cty.NullVal(cty.String), cty.StringVal(""), cty.StringVal("b"), cty.StringVal("c")})
	require.NoError(t, err)
	assert.Equal(t, "b", v.AsString())

	v, err = coalesceFunc.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, "", v.AsString())
}
