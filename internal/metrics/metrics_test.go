package metrics

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// second call is a no-op
	require.NoError(t, Register(reg))

	IncReload(nil)
	IncReload(errors.New("boom"))
	IncProjection("copy", "reload", nil)
	IncReconfigure(nil)
	IncBundleRefresh(nil)
	ObserveReady(1.5)
	SetChildState("ready", "not_ready", "ready", "exited")

	assert.Equal(t, 1.0, testutil.ToFloat64(reloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reloads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(projections.WithLabelValues("copy", "reload", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(childState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(childState.WithLabelValues("exited")))
}

func TestSampleSelf(t *testing.T) {
	u, err := Sample(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.NotZero(t, u.RSS)
}
