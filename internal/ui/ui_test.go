package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func console(in string) (*Console, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Console{Out: out, In: strings.NewReader(in)}, out
}

func TestConfirm(t *testing.T) {
	c, _ := console("\ny\nno\n")
	ok, err := c.Confirm("create?", true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Confirm("again?", false)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Confirm("third?", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirm_EOF(t *testing.T) {
	c, _ := console("")
	_, err := c.Confirm("create?", true)
	require.Error(t, err)
}

func TestAsk_NoTrailingNewline(t *testing.T) {
	c, _ := console("src/tasks")
	ans, err := c.Ask("path?", "onu")
	require.NoError(t, err)
	assert.Equal(t, "src/tasks", ans)
}

func TestMessages(t *testing.T) {
	c, out := console("")
	c.Success("done %d", 1)
	c.Notice("note")
	c.Warn("careful")
	c.Error("boom")
	s := out.String()
	for _, want := range []string{"done 1", "note", "careful", "boom"} {
		assert.Contains(t, s, want)
	}
	assert.False(t, c.Interactive())
}
