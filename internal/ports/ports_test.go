package ports

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	busy := ln.Addr().(*net.TCPAddr).Port

	assert.False(t, Available(busy))
	assert.False(t, Available(0))
	assert.False(t, Available(70000))
}

func TestNextAvailable_SkipsBusy(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	busy := ln.Addr().(*net.TCPAddr).Port

	p, err := NextAvailable(busy, 20)
	require.NoError(t, err)
	assert.NotEqual(t, busy, p)
	assert.Greater(t, p, busy)
}

func TestNextAvailable_Exhausted(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	busy := ln.Addr().(*net.TCPAddr).Port

	_, err = NextAvailable(busy, 1)
	require.ErrorIs(t, err, ErrNoFreePort)
}
