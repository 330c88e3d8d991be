package paramutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

func TestGetRequiredString(t *testing.T) {
	s, err := paramutil.GetRequiredString(task.Params{"fold": "test"}, "fold")
	require.NoError(t, err)
	assert.Equal(t, "test", s)

	_, err = paramutil.GetRequiredString(task.Params{}, "fold")
	assert.ErrorContains(t, err, "missing required parameter 'fold'")

	_, err = paramutil.GetRequiredString(task.Params{"fold": 3}, "fold")
	assert.ErrorContains(t, err, "must be a string")
}

func TestGetOptionalString(t *testing.T) {
	_, found, err := paramutil.GetOptionalString(task.Params{}, "fold")
	require.NoError(t, err)
	assert.False(t, found)

	s, found, err := paramutil.GetOptionalString(task.Params{"fold": "dev"}, "fold")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dev", s)
}

func TestGetRequiredInt(t *testing.T) {
	for _, v := range []interface{}{16, int64(16), 16.0, "16", " 16 "} {
		n, err := paramutil.GetRequiredInt(task.Params{"weight": v}, "weight")
		require.NoError(t, err, "value %#v", v)
		assert.Equal(t, 16, n)
	}
	for _, v := range []interface{}{16.5, "sixteen", true} {
		_, err := paramutil.GetRequiredInt(task.Params{"weight": v}, "weight")
		assert.Error(t, err, "value %#v", v)
	}

	n, err := paramutil.GetOptionalInt(task.Params{}, "weight", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestCheckAllowed(t *testing.T) {
	assert.NoError(t, paramutil.CheckAllowed(task.Params{"fold": "x"}, "fold", "weight"))
	err := paramutil.CheckAllowed(task.Params{"fold": "x", "wieght": 1, "alpha": 2}, "fold", "weight")
	assert.ErrorContains(t, err, "unknown parameter(s): alpha, wieght")
}

func TestParseKeyValues(t *testing.T) {
	params, err := paramutil.ParseKeyValues([]string{"fold=test", "weight=16", "expr=a=b"})
	require.NoError(t, err)
	assert.Equal(t, task.Params{"fold": "test", "weight": "16", "expr": "a=b"}, params)

	_, err = paramutil.ParseKeyValues([]string{"fold"})
	assert.Error(t, err)
	_, err = paramutil.ParseKeyValues([]string{"fold=a", "fold=b"})
	assert.ErrorContains(t, err, "more than once")
}
