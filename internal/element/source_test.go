package element

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

func registerFakeDevice(t *testing.T, id string) *device.Fake {
	t.Helper()
	fake := device.NewFake(id)
	device.RegisterFake(id, fake)
	return fake
}

func TestSourceLifecycleNullToPlayingAndBack(t *testing.T) {
	id := "fake-source-lifecycle"
	fake := registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)
	fake.SetSignal(0, true, mode, videoformat.VPID{})
	fake.SetAvailableOutputFrames(0, 100) // harmless for a source; keeps status polling simple

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	src := NewSource(id, cfg)

	ctx := context.Background()
	require.NoError(t, src.SetState(ctx, StatePlaying))
	assert.Equal(t, StatePlaying, src.State())
	assert.NotNil(t, src.Out())

	require.Eventually(t, func() bool {
		return src.Signal()
	}, time.Second, time.Millisecond)

	require.NoError(t, src.SetState(ctx, StateNull))
	assert.Equal(t, StateNull, src.State())
	assert.Nil(t, src.Out())
}

func TestSourceSetStateIsIdempotent(t *testing.T) {
	id := "fake-source-idempotent"
	registerFakeDevice(t, id)
	cfg := config.Default(0)
	src := NewSource(id, cfg)

	ctx := context.Background()
	require.NoError(t, src.SetState(ctx, StateNull))
	assert.Equal(t, StateNull, src.State())
}

func TestSourceSharesDeviceResourcesAcrossChannels(t *testing.T) {
	id := "fake-source-shared"
	fake := registerFakeDevice(t, id)
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)
	fake.SetSignal(0, true, mode, videoformat.VPID{})
	fake.SetSignal(1, true, mode, videoformat.VPID{})

	cfg0 := config.Default(0)
	cfg0.CCPolicy = config.CCNone
	cfg1 := config.Default(1)
	cfg1.CCPolicy = config.CCNone

	src0 := NewSource(id, cfg0)
	src1 := NewSource(id, cfg1)

	ctx := context.Background()
	require.NoError(t, src0.SetState(ctx, StatePaused))
	require.NoError(t, src1.SetState(ctx, StatePaused))

	sharedMu.Lock()
	res, ok := sharedRes[id]
	sharedMu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 2, res.refs)

	require.NoError(t, src0.SetState(ctx, StateNull))
	require.NoError(t, src1.SetState(ctx, StateNull))

	sharedMu.Lock()
	_, ok = sharedRes[id]
	sharedMu.Unlock()
	assert.False(t, ok)
}
