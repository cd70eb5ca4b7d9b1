package env

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenSerializesObjects(t *testing.T) {
	var in map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"FOO":{"a":1},"BAR":"plain","N":3,"B":true,"L":[1,"x"],"Z":null}`), &in))

	out, err := Flatten(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out["FOO"])
	assert.Equal(t, "plain", out["BAR"])
	assert.Equal(t, "3", out["N"])
	assert.Equal(t, "true", out["B"])
	assert.Equal(t, `[1,"x"]`, out["L"])
	assert.Equal(t, "", out["Z"])
}

func TestFlattenRejectsBadNames(t *testing.T) {
	_, err := Flatten(map[string]any{"A=B": "x"})
	require.Error(t, err)
	_, err = Flatten(map[string]any{"": "x"})
	require.Error(t, err)
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.FromList([]string{"PATH=/bin", "PORT=1", "=broken", "noequals"})
	e.Set("PORT", "3000")
	e.Set("ONU_PATH", "/stage/src")

	out := e.Merge(Var{"PORT": "4000", "FOO": `{"a":1}`})
	assert.Equal(t, []string{
		`FOO={"a":1}`,
		"ONU_PATH=/stage/src",
		"PATH=/bin",
		"PORT=4000",
	}, out)
}

func TestMergeKeepsDollarValuesVerbatim(t *testing.T) {
	e := New()
	e.FromList(nil)
	e.Set("A", "1")
	out := e.Merge(Var{"B": "${A}"})
	assert.Contains(t, out, "B=${A}")
}

func TestUnset(t *testing.T) {
	e := New()
	e.FromList(nil)
	e.Set("A", "1")
	e.Unset("A")
	assert.Empty(t, e.Merge(nil))
}
