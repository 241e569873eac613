package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() map[string]any {
	return map[string]any{
		"provider": "adgem",
		"status":   "completed",
		"reward":   int64(3800),
	}
}

func TestCompileAndEval(t *testing.T) {
	env, err := BuildEnv(sample())
	require.NoError(t, err)

	p, err := Compile(env, `status != "chargeback" && reward > 0`)
	require.NoError(t, err)

	ok, err := p.Eval(sample())
	require.NoError(t, err)
	require.True(t, ok)

	attrs := sample()
	attrs["status"] = "chargeback"
	ok, err = p.Eval(attrs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompileRejectsNonBool(t *testing.T) {
	env, err := BuildEnv(sample())
	require.NoError(t, err)

	_, err = Compile(env, `reward + 1`)
	require.Error(t, err)

	_, err = Compile(env, `unknown_var == 1`)
	require.Error(t, err)
}
