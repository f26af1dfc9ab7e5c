package ajaerr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNilErrReturnsNil(t *testing.T) {
	assert.NoError(t, New(TransferFailed, nil))
}

func TestKindOfRecoversKindThroughWrapping(t *testing.T) {
	base := New(RoutingFailed, errors.New("crosspoint busy"))
	wrapped := errors.Wrap(base, "apply routing")

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, RoutingFailed, kind)
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("unrelated failure"))
	assert.False(t, ok)
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(UnsupportedMode, "channel %d: no signal", 3)
	assert.Contains(t, err.Error(), "channel 3: no signal")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, UnsupportedMode, kind)
}

func TestFatalClassification(t *testing.T) {
	assert.True(t, FatalConfig.Fatal())
	assert.True(t, DeviceUnavailable.Fatal())
	assert.True(t, UnsupportedMode.Fatal())
	assert.True(t, RoutingFailed.Fatal())

	assert.False(t, ModeDrift.Fatal())
	assert.False(t, QoSOverrun.Fatal())
	assert.False(t, QoSDropped.Fatal())
	assert.False(t, AllocatorExhausted.Fatal())
	assert.False(t, TransferFailed.Fatal())
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(999).String())
	assert.Equal(t, "FatalConfig", FatalConfig.String())
}
