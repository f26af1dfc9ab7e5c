package playout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/planner"
	"github.com/lanikai/gstreamer-aja/internal/queue"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

func newFakeHandle(t *testing.T, id string) (device.Handle, *device.Fake) {
	t.Helper()
	fake := device.NewFake(id)
	device.RegisterFake(id, fake)
	h, err := device.Open(id)
	require.NoError(t, err)
	t.Cleanup(h.Release)
	return h, fake
}

func TestConfigureBringsUpDisplayChannel(t *testing.T) {
	h, _ := newFakeHandle(t, "fake-playout-configure")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)

	require.NoError(t, e.Configure(context.Background(), mode))
	assert.Equal(t, StateRunning, e.State())
}

func TestConfigureRejectsUnsupportedMode(t *testing.T) {
	h, _ := newFakeHandle(t, "fake-playout-unsupported")
	mode := videoformat.Mode{Name: "bogus", Width: 1920, Height: 1080, RateNum: 30, RateDen: 1, SingleLinkID: 0xFFFF}

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)

	err := e.Configure(context.Background(), mode)
	require.Error(t, err)
	kind, ok := ajaerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ajaerr.UnsupportedMode, kind)
	assert.Equal(t, StateStopped, e.State())
}

func TestConfigureRejectsInvalidChannelConfig(t *testing.T) {
	h, _ := newFakeHandle(t, "fake-playout-badcfg")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.Channel = 99 // out of [0,7]
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)

	err := e.Configure(context.Background(), mode)
	require.Error(t, err)
	kind, ok := ajaerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ajaerr.FatalConfig, kind)
}

// TestConfigureQuadLinkTSIRouting is the playout-side mirror of capture's
// scenario #3 test: a display-mode quad-link-tsi configuration must call
// SetTsiFrameEnable and wire the output-direction TSI MUX + FrameBuffer
// edges of §4.6.1, not the single-edge-per-channel routing a non-quad
// configuration gets.
func TestConfigureQuadLinkTSIRouting(t *testing.T) {
	h, fake := newFakeHandle(t, "fake-playout-quad-tsi")
	mode, ok := videoformat.ByName("2160p_2398")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.SDIMode = config.SDIQuadLinkTSI
	cfg.CCPolicy = config.CCNone
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)

	require.NoError(t, e.Configure(context.Background(), mode))
	assert.Equal(t, StateRunning, e.State())
	assert.True(t, fake.TsiFrameEnabled(0))

	edges := fake.Routing()
	want := []device.CrossPointEdge{
		{Output: "fb_out_0", Input: "mux_in_0"},
		{Output: "mux_out_0", Input: "sdi_out_0"},
		{Output: "mux_out_0", Input: "sdi_out_1"},
		{Output: "mux_out_0", Input: "sdi_out_2"},
		{Output: "mux_out_0", Input: "sdi_out_3"},
	}
	assert.ElementsMatch(t, want, edges)
}

func TestRenderThenRunTransfersFrame(t *testing.T) {
	h, fake := newFakeHandle(t, "fake-playout-render")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	cfg.QueueSize = 2 // half == 1, matching the single frame rendered below
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)

	require.NoError(t, e.Configure(context.Background(), mode))
	fake.SetAvailableOutputFrames(cfg.Channel, 100)

	alloc := dma.NewAllocator("upstream")
	defer alloc.Close()
	vPool, err := dma.NewPool(alloc, e.handle.GetVideoActiveSize(mode, false), 2)
	require.NoError(t, err)
	vPool.Activate()

	video, err := vPool.Acquire()
	require.NoError(t, err)
	for i := range video.Bytes() {
		video.Bytes()[i] = byte(i)
	}
	in := queue.NewFrame(vPool, nil, nil)
	in.Video = video

	require.NoError(t, e.Render(in))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.SetPlaying(true)

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(fake.OutputLog(cfg.Channel)) >= 1
	}, time.Second, time.Millisecond)

	e.Shutdown()
	cancel()
	<-done
}

func TestRenderReusesExactSizeVideoBuffer(t *testing.T) {
	h, _ := newFakeHandle(t, "fake-playout-reuse")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)
	require.NoError(t, e.Configure(context.Background(), mode))

	alloc := dma.NewAllocator("upstream-reuse")
	defer alloc.Close()
	vPool, err := dma.NewPool(alloc, e.handle.GetVideoActiveSize(mode, false), 2)
	require.NoError(t, err)
	vPool.Activate()

	video, err := vPool.Acquire()
	require.NoError(t, err)
	in := queue.NewFrame(vPool, nil, nil)
	in.Video = video

	require.NoError(t, e.Render(in))

	it, ok := e.In.PopHead(context.Background())
	require.True(t, ok)
	require.Equal(t, queue.KindFrame, it.Kind)
	assert.Same(t, video, it.Frame.Video)
	it.Drop()
}

func TestRenderCopiesUndersizedVideoBuffer(t *testing.T) {
	h, _ := newFakeHandle(t, "fake-playout-copy")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)
	require.NoError(t, e.Configure(context.Background(), mode))

	alloc := dma.NewAllocator("upstream-copy")
	defer alloc.Close()
	vPool, err := dma.NewPool(alloc, 16, 2) // far smaller than the display's exact size
	require.NoError(t, err)
	vPool.Activate()

	video, err := vPool.Acquire()
	require.NoError(t, err)
	in := queue.NewFrame(vPool, nil, nil)
	in.Video = video

	require.NoError(t, e.Render(in))

	it, ok := e.In.PopHead(context.Background())
	require.True(t, ok)
	assert.NotSame(t, video, it.Frame.Video)
	it.Drop()
}

func TestRequestDrainUnblocksWhenQueueEmpties(t *testing.T) {
	h, fake := newFakeHandle(t, "fake-playout-drain")
	mode, ok := videoformat.ByName("720p_5994")
	require.True(t, ok)

	cfg := config.Default(0)
	cfg.CCPolicy = config.CCNone
	cfg.QueueSize = 4
	setupMu := mustOpenMutex(t)
	e := New(cfg, h, setupMu, planner.NewRegistry(), 64, 0, 0)
	require.NoError(t, e.Configure(context.Background(), mode))
	fake.SetAvailableOutputFrames(cfg.Channel, 100)
	e.SetPlaying(true)
	e.SetEOS() // bypass the half-ring priming wait; the queue starts empty

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	drainDone := make(chan bool, 1)
	go func() { drainDone <- e.RequestDrain() }()

	select {
	case ok := <-drainDone:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("RequestDrain did not return")
	}

	e.Shutdown()
	cancel()
	<-done
}

func mustOpenMutex(t *testing.T) *device.GlobalSetupMutex {
	t.Helper()
	m, err := device.OpenGlobalSetupMutex(device.SemaphoreName)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}
