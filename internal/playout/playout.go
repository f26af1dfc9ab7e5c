// Package playout implements C7, the playout engine: the state machine,
// configuration protocol, render-side buffer assembly, and dedicated
// output-thread transfer loop that turn a stream of queue.Item values into
// AutoCirculate output DMA transfers (§4.6).
//
// Grounded on an ALSA-style audio-sink idiom: a synchronous render/write
// call from the streaming thread that hands a buffer to a dedicated output
// path, plus a priming threshold before that path starts draining the
// buffered backlog. There's no AutoCirculate-output analogue to ALSA
// (snd_pcm_writei blocks; AutoCirculate polls status then transfers), so
// the steady-state
// loop body is original to this package, built from §4.6.2/§4.6.3's prose
// protocol, mirroring internal/capture's structure one direction in
// reverse.
package playout

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
	"github.com/lanikai/gstreamer-aja/internal/anc"
	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/dma"
	"github.com/lanikai/gstreamer-aja/internal/logging"
	"github.com/lanikai/gstreamer-aja/internal/planner"
	"github.com/lanikai/gstreamer-aja/internal/queue"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

var log = logging.DefaultLogger.WithTag("playout")

// State is C7's lifecycle state, the display-side mirror of capture.State
// (§4.6, §3 Lifecycle).
type State int

const (
	StateStopped State = iota
	StateIdle
	StateConfiguring
	StateRunning
	StateDraining
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// audioPoolBlockSize is the fixed per-buffer size of the lazily-created
// audio pool (§4.6.2 step 2: "lazily creating a 1 MiB pool, queue_size
// deep").
const audioPoolBlockSize = 1 << 20

// Engine is C7.
type Engine struct {
	cfg         config.ChannelConfig
	handle      device.Handle
	setupMu     *device.GlobalSetupMutex
	ranges      *planner.Registry
	totalFrames int

	cea708Line, cea608Line int

	stateMu sync.Mutex
	state   State

	alloc     *dma.Allocator
	videoPool *dma.Pool
	audioPool *dma.Pool
	ancPool   *dma.Pool

	mode     videoformat.Mode
	vancTall bool

	// In is the render-side producer's output and the output thread's
	// input: the bounded queue of composite Frames awaiting transfer
	// (§4.6.3).
	In *queue.Queue

	// log is this channel's own tagged logger (e.g. "playout.ch0"); see
	// internal/capture's Engine.log for why.
	log *logging.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	playing  bool
	shutdown bool
	draining bool
	eos      bool

	driverDropsSeen int
	startTime       time.Time
	framesRendered  int
}

// New constructs an Engine for cfg, bound to handle and sharing setupMu/
// ranges/totalFrames with every other channel on the same device.
// cea708Line/cea608Line are the configured VANC line numbers for caption
// packet construction (0 selects the §4.6.2 defaults).
func New(cfg config.ChannelConfig, handle device.Handle, setupMu *device.GlobalSetupMutex, ranges *planner.Registry, totalFrames int, cea708Line, cea608Line int) *Engine {
	e := &Engine{
		cfg:         cfg,
		handle:      handle,
		setupMu:     setupMu,
		ranges:      ranges,
		totalFrames: totalFrames,
		cea708Line:  cea708Line,
		cea608Line:  cea608Line,
		state:       StateStopped,
		In:          queue.New(cfg.QueueSize),
		log:         log.WithChannel(cfg.Channel),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
	e.log.Debug("state -> %s", s)
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// SetPlaying toggles the playing flag and wakes any waiter blocked in the
// output thread's priming wait or the render thread's drain wait (§4.6.3
// step 2, §5 "Suspension points").
func (e *Engine) SetPlaying(playing bool) {
	e.mu.Lock()
	e.playing = playing
	e.mu.Unlock()
	e.cond.Broadcast()
}

// SetEOS marks end-of-stream, letting the output thread drain without
// waiting for the priming threshold to be reached again (§4.6.3 step 2:
// "... or eos").
func (e *Engine) SetEOS() {
	e.mu.Lock()
	e.eos = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Configure runs the display-mode configuration protocol of §4.6.1, given
// the negotiated mode (display mode comes from upstream, not from
// on-device detection the way capture's does).
func (e *Engine) Configure(ctx context.Context, mode videoformat.Mode) error {
	if err := e.cfg.Validate(); err != nil {
		return ajaerr.New(ajaerr.FatalConfig, err)
	}
	e.setState(StateConfiguring)
	e.mode = mode

	var configured bool
	err := e.setupMu.WithLock(func() error {
		if err := e.handle.AutoCirculateStop(e.cfg.Channel); err != nil {
			e.log.Warn("stop prior AutoCirculate: %v", err)
		}

		needsQuad := e.cfg.NeedsQuad()

		id := mode.SingleLinkID
		if needsQuad {
			id = mode.QuadLinkID
		}
		if id == 0 || !e.handle.CanDoVideoFormat(id) {
			return ajaerr.Newf(ajaerr.UnsupportedMode, "channel %d: device cannot display %s (quad=%v)", e.cfg.Channel, mode, needsQuad)
		}

		if err := e.handle.EnableChannel(e.cfg.Channel, true); err != nil {
			return ajaerr.New(ajaerr.DeviceUnavailable, err)
		}
		if err := e.handle.SetMode(e.cfg.Channel, device.ModeDisplay); err != nil {
			return ajaerr.New(ajaerr.DeviceUnavailable, err)
		}
		if err := e.handle.SetVideoFormat(e.cfg.Channel, mode); err != nil {
			return ajaerr.New(ajaerr.UnsupportedMode, err)
		}

		e.vancTall = e.cfg.CCPolicy != config.CCNone && !e.handle.CanDoCustomAnc()
		fbFmt := device.FrameBufferFormat{TenBitYUV422: true, VANCTall: e.vancTall}
		if err := e.handle.SetFrameBufferFormat(e.cfg.Channel, fbFmt); err != nil {
			return ajaerr.New(ajaerr.UnsupportedMode, err)
		}

		channels := quadChannelSet(e.cfg.Channel, needsQuad, e.handle.Is8K())
		if err := e.handle.SetQuadEnables(needsQuad, e.handle.Is8K() && needsQuad, true, e.cfg.SDIMode.IsQuadLinkTSI(), channels); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		if err := e.handle.SetSDITransmitDirection(e.cfg.Channel, true); err != nil {
			e.log.Warn("set transmit direction: %v", err)
		}

		tier := classifyTier(e.cfg, mode, e.handle.Is8K())
		if needsQuad && usesTSI(e.cfg) {
			if err := e.handle.SetTsiFrameEnable(e.cfg.Channel, true); err != nil {
				return ajaerr.New(ajaerr.RoutingFailed, err)
			}
		}

		tx := buildOutputRouting(e.cfg, channels, tier)
		if err := e.handle.ApplyRouting(tx); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		ref := e.cfg.ReferenceSource
		if ref == config.RefAuto {
			ref = config.RefFreerun // §4.6.1: "Reference source defaults map to FREERUN when AUTO"
		}
		if err := e.handle.SetReferenceSource(ref); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		mult := e.cfg.QuadMultiplier(e.handle.Is8K())
		start, end, err := e.planFrameRange(mult)
		if err != nil {
			return err
		}

		if err := e.handle.AutoCirculateInitForOutput(e.cfg.Channel, start, end, e.cfg.RP188, e.cfg.CCPolicy != config.CCNone); err != nil {
			return ajaerr.New(ajaerr.AllocatorExhausted, err)
		}

		if err := e.createPools(mode, e.vancTall); err != nil {
			return err
		}

		if err := e.handle.AutoCirculateStart(e.cfg.Channel); err != nil {
			return ajaerr.New(ajaerr.DeviceUnavailable, err)
		}

		configured = true
		return nil
	})
	if err != nil {
		e.setState(StateStopped)
		return err
	}
	if !configured {
		e.setState(StateStopped)
		return errors.New("playout: configuration did not complete")
	}

	e.setState(StateRunning)
	return nil
}

// planFrameRange implements §4.6.1's "if start_frame == end_frame, the
// planner allocates queue_size/2 frames".
func (e *Engine) planFrameRange(mult int) (start, end int, err error) {
	if !e.cfg.AutoAssign() {
		return e.cfg.StartFrame, e.cfg.EndFrame, nil
	}
	half := e.cfg.QueueSize / 2
	if half < 1 {
		half = 1
	}
	res, ok := e.ranges.Plan(planner.Request{
		Channel:      e.cfg.Channel,
		DesiredCount: half,
		Multiplier:   mult,
		TotalFrames:  e.totalFrames,
	})
	if !ok {
		return 0, 0, ajaerr.Newf(ajaerr.AllocatorExhausted, "channel %d: no free frame range for %d frames", e.cfg.Channel, half)
	}
	return res.Start, res.End, nil
}

func (e *Engine) createPools(m videoformat.Mode, vancTall bool) error {
	e.alloc = dma.NewAllocator(e.handle.Identifier())

	videoSize := e.handle.GetVideoActiveSize(m, vancTall)
	count := 2 * e.cfg.QueueSize

	vp, err := dma.NewPool(e.alloc, videoSize, count)
	if err != nil {
		return ajaerr.New(ajaerr.AllocatorExhausted, err)
	}
	e.videoPool = vp
	e.videoPool.Activate()

	if e.cfg.CCPolicy != config.CCNone && e.handle.CanDoCustomAnc() {
		const ancBufSize = 8 << 10 // §4.5.2 step 11 / §4.6.2 step 5: 8 KiB ancillary buffers
		mult := 1
		if m.IsInterlaced() {
			mult = 2
		}
		anp, err := dma.NewPool(e.alloc, ancBufSize, mult*e.cfg.QueueSize)
		if err != nil {
			return ajaerr.New(ajaerr.AllocatorExhausted, err)
		}
		e.ancPool = anp
		e.ancPool.Activate()
	}
	return nil
}

// ensureAudioPool lazily creates the 1 MiB, queue_size-deep audio pool the
// first time Render needs one (§4.6.2 step 2).
func (e *Engine) ensureAudioPool() error {
	if e.audioPool != nil {
		return nil
	}
	ap, err := dma.NewPool(e.alloc, audioPoolBlockSize, e.cfg.QueueSize)
	if err != nil {
		return ajaerr.New(ajaerr.AllocatorExhausted, err)
	}
	ap.Activate()
	e.audioPool = ap
	return nil
}

// Render is the producer-side call (§4.6.2), invoked synchronously from
// the streaming thread for every incoming composite frame. It assembles
// the transfer-ready Frame (video buffer, audio buffer, serialized
// ancillary packets) and pushes it onto the output thread's queue,
// applying the overrun policy of step 6 when the queue is already full.
//
// Render takes ownership of in: whatever it doesn't reuse directly (the
// audio buffer is always copied; the video buffer only when acquireVideo
// can't reuse it in place) is released back to in's own pools before
// Render returns.
func (e *Engine) Render(in *queue.Frame) error {
	video, err := e.acquireVideo(in)
	if err != nil {
		return err
	}

	var audio *dma.Block
	if in.Audio != nil {
		if err := e.ensureAudioPool(); err != nil {
			if video != in.Video {
				e.videoPool.Release(video)
			}
			return err
		}
		audio, err = e.audioPool.Acquire()
		if err != nil {
			if video != in.Video {
				e.videoPool.Release(video)
			}
			return err
		}
		copy(audio.Bytes(), in.Audio.Bytes())
	}

	tc := anc.Encode(in.StructuredTC)

	sdWorkaround := isSDFormat(e.mode)
	pkts := anc.BuildPackets(in.Captions, e.cea708Line, e.cea608Line)

	var ancF1, ancF2 *dma.Block
	if e.ancPool != nil && len(pkts) > 0 {
		ancF1, err = e.ancPool.Acquire()
		if err == nil {
			payload := anc.SerializeAll(pkts, false)
			n := copy(ancF1.Bytes(), payload)
			ancF1.Resize(n)
		}
		if e.mode.IsInterlaced() {
			ancF2, _ = e.ancPool.Acquire()
			if ancF2 != nil {
				ancF2.Resize(0)
			}
		}
	} else if e.vancTall && len(pkts) > 0 {
		// Tall-VANC path: serialize into the VANC region the video buffer
		// already reserves (§4.6.2 step 5). The region starts past the
		// active raster; this core treats it as the tail of the buffer.
		payload := anc.SerializeAll(pkts, sdWorkaround)
		vb := video.Bytes()
		active := e.handle.GetVideoActiveSize(e.mode, false)
		if active < len(vb) {
			copy(vb[active:], payload)
		}
	}

	f := queue.NewFrame(e.videoPool, e.audioPool, e.ancPool)
	f.Video = video
	f.Audio = audio
	f.ANCF1 = ancF1
	f.ANCF2 = ancF2
	f.Timecode = tc
	f.PTS = in.PTS
	f.Duration = in.Duration
	f.DetectedFormat = e.mode
	f.Discont = in.Discont

	if e.In.FrameCount() >= e.cfg.QueueSize {
		e.log.Warn("output queue overrun, dropping oldest frame (QoS)")
	}
	e.In.PushTail(queue.FrameItem(f))

	if video == in.Video {
		// Ownership of the reused block moved to f; prevent in.Release from
		// handing it back to a pool while f still holds it.
		in.Video = nil
	}
	in.Release()
	return nil
}

// acquireVideo implements §4.6.2 step 1: reuse the incoming video buffer
// directly when it is already sized for the exact VANC-off active region
// with no trailing slack (i.e. it came from this engine's own pool via a
// zero-copy upstream path), otherwise acquire a fresh buffer from the
// video pool and copy the active raster into it, leaving the VANC region
// (if tall) blacked out at its freshly-allocated zero value.
func (e *Engine) acquireVideo(in *queue.Frame) (*dma.Block, error) {
	// The zero-copy reuse path assumes upstream (the egress combiner) only
	// ever hands this engine a buffer it itself acquired from this same
	// engine's video pool -- true for the in-process wiring this module
	// builds, since there is exactly one producer of exact-size video
	// buffers per channel.
	exactSize := e.handle.GetVideoActiveSize(e.mode, false)
	if in.Video != nil && in.Video.Len() == exactSize && !e.vancTall {
		return in.Video, nil
	}

	video, err := e.videoPool.Acquire()
	if err != nil {
		return nil, ajaerr.New(ajaerr.AllocatorExhausted, err)
	}
	if in.Video != nil {
		n := in.Video.Len()
		if n > video.Len() {
			n = video.Len()
		}
		copy(video.Bytes()[:n], in.Video.Bytes()[:n])
	}
	return video, nil
}

// isSDFormat reports whether m is 525/625-line SD, the only formats the
// tall-VANC ADF padding workaround of §4.6.2 step 5 applies to.
func isSDFormat(m videoformat.Mode) bool {
	return m.Height == 486 || m.Height == 576
}

// waitUntilPrimedOrShutdown blocks until playing and the queue holds at
// least half the ring (or eos), or shutdown is requested, or ctx is done
// (§4.6.3 step 2). A drain requested while the queue is empty completes
// here, before priming (§4.6.3 step 1). Returns false if shutdown was
// requested or ctx ended before priming completed.
func (e *Engine) waitUntilPrimedOrShutdown(ctx context.Context) bool {
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	half := e.cfg.QueueSize / 2
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if e.shutdown || ctx.Err() != nil {
			return false
		}
		if e.draining && e.In.FrameCount() == 0 {
			e.draining = false
			e.cond.Broadcast()
		}
		if e.playing && (e.In.FrameCount() >= half || e.eos) {
			return true
		}
		e.cond.Wait()
	}
}

// RequestDrain implements the caps-change handshake of §4.6.4: the render
// side calls this to signal draining=true and block until the output
// thread has drained the queue and cleared it. Returns false if shutdown
// happened first.
func (e *Engine) RequestDrain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draining = true
	e.cond.Broadcast()
	for e.draining && !e.shutdown {
		e.cond.Wait()
	}
	return !e.shutdown
}

// Run is the output thread loop of §4.6.3. It blocks until ctx is done or
// shutdown is requested.
func (e *Engine) Run(ctx context.Context) error {
	if !e.waitUntilPrimedOrShutdown(ctx) {
		return nil
	}

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	for {
		e.mu.Lock()
		shutdown := e.shutdown
		if e.draining && e.In.FrameCount() == 0 {
			e.draining = false
			e.cond.Broadcast()
		}
		e.mu.Unlock()
		if shutdown {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		status, err := e.handle.AutoCirculateGetStatus(e.cfg.Channel)
		if err != nil {
			e.log.Warn("AutoCirculateGetStatus: %v", err)
			continue
		}

		if status.FramesDropped > e.driverDropsSeen {
			n := status.FramesDropped - e.driverDropsSeen
			e.driverDropsSeen = status.FramesDropped
			e.log.Warn("driver dropped %d output frame(s) (QoS)", n)
		}

		if status.AvailableOutputFrames < 2 {
			if err := e.handle.WaitForVerticalInterrupt(ctx, e.cfg.Channel, true); err != nil && ctx.Err() != nil {
				return nil
			}
			continue
		}

		it, ok := e.popHeadPolled(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if it.Kind != queue.KindFrame {
			continue
		}
		e.transferOne(it.Frame)
		e.framesRendered++
		e.logDrift()
	}

	return nil
}

// popHeadPollInterval bounds how long popHeadPolled blocks before returning
// to let Run's top-of-loop re-check the drain/shutdown flags: RequestDrain
// only broadcasts on e.cond, which a PopHead call blocked on the queue's
// own condition variable never observes, so an indefinitely blocking
// PopHead on an already-empty queue would never notice draining finished.
const popHeadPollInterval = 20 * time.Millisecond

// popHeadPolled is e.In.PopHead bounded to popHeadPollInterval per attempt,
// so Run keeps re-checking e.draining/e.shutdown even when nothing is
// being pushed. ok is false both on a real timeout and on ctx
// cancellation; callers distinguish the two with ctx.Err().
func (e *Engine) popHeadPolled(ctx context.Context) (queue.Item, bool) {
	pctx, cancel := context.WithTimeout(ctx, popHeadPollInterval)
	defer cancel()
	return e.In.PopHead(pctx)
}

func (e *Engine) transferOne(f *queue.Frame) {
	defer f.Release()

	req := device.TransferRequest{Channel: e.cfg.Channel, Video: f.Video.Bytes(), RP188: e.cfg.RP188}
	if f.Audio != nil {
		req.Audio = f.Audio.Bytes()
	}
	if f.ANCF1 != nil {
		req.ANCF1 = f.ANCF1.Bytes()
	}
	if f.ANCF2 != nil {
		req.ANCF2 = f.ANCF2.Bytes()
	}

	if _, err := e.handle.AutoCirculateTransfer(req); err != nil {
		e.log.Warn("AutoCirculateTransfer: %v", ajaerr.New(ajaerr.TransferFailed, err))
	}
}

// logDrift implements §4.6.3 step 4's "trivial drift" measurement:
// frames_produced (here, frames rendered) vs. frames expected given
// elapsed wall time and the configured frame rate. Logged only; no
// compensation is performed (§9 Open Question: unresolved whether future
// versions should drop/duplicate frames to correct it).
func (e *Engine) logDrift() {
	num, den := e.mode.RateNum, e.mode.RateDen
	if num == 0 {
		return
	}
	elapsed := time.Since(e.startTime).Seconds()
	expected := elapsed * float64(num) / float64(den)
	drift := float64(e.framesRendered) - expected
	if e.framesRendered%e.cfg.QueueSize == 0 {
		e.log.Debug("drift %.3f frames after %d rendered", drift, e.framesRendered)
	}
}

// Shutdown implements §4.6.3 step 5: stop AutoCirculate, release the
// planned frame range, deactivate and close the DMA pools, and release
// the device handle.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.In.Close()

	e.setState(StateDraining)
	if err := e.handle.AutoCirculateStop(e.cfg.Channel); err != nil {
		e.log.Warn("AutoCirculateStop on shutdown: %v", err)
	}
	e.ranges.Release(e.cfg.Channel)

	e.setState(StateShuttingDown)
	if e.videoPool != nil {
		e.videoPool.Close()
	}
	if e.audioPool != nil {
		e.audioPool.Close()
	}
	if e.ancPool != nil {
		e.ancPool.Close()
	}
	if e.alloc != nil {
		e.alloc.Close()
	}
	e.handle.Release()
	e.setState(StateStopped)
}

// quadChannelSet is the display-side mirror of capture's channel-set
// helper: the set of physical channels a quad-mode configuration spans,
// starting at base (§4.6.1).
func quadChannelSet(base int, quad, is8K bool) []int {
	if !quad {
		return []int{base}
	}
	n := 4
	if is8K {
		n = 16
	}
	out := make([]int, n)
	for i := range out {
		out[i] = base + i
	}
	return out
}

// routingTier identifies one of the five resolution/framerate tiers
// §4.6.1 calls out by name (mirroring capture's classification), each of
// which gets a distinct crosspoint edge set: "HD-HFR, quad-HD, quad-quad,
// quad-quad-HFR, 4K-HFR".
type routingTier int

const (
	tierSingleLink routingTier = iota
	tierHDHFR
	tierQuadHD
	tierQuadQuad
	tierQuadQuadHFR
	tier4KHFR
)

// hfrThreshold is the frame rate (fps) at or above which a format needs a
// second data stream (DS2) to carry on a single 3G-SDI link, or extra
// per-channel DS2 edges in quad variants.
const hfrThreshold = 50

func isHFR(m videoformat.Mode) bool {
	if m.RateDen == 0 {
		return false
	}
	return m.RateNum >= hfrThreshold*m.RateDen
}

// classifyTier resolves cfg/m/is8K into the routing tier whose edge set
// buildOutputRouting must build. Mirrors internal/capture's classifyTier.
func classifyTier(cfg config.ChannelConfig, m videoformat.Mode, is8K bool) routingTier {
	hfr := isHFR(m)
	switch {
	case !cfg.NeedsQuad():
		if hfr {
			return tierHDHFR
		}
		return tierSingleLink
	case is8K:
		if hfr {
			return tierQuadQuadHFR
		}
		return tierQuadQuad
	default:
		if hfr {
			return tier4KHFR
		}
		return tierQuadHD
	}
}

// usesTSI reports whether this configuration wires its quad group through
// two-sample-interleave rather than square-division (§4.6.1 mirrors
// §4.5.2 step 5: HDMI quad always configures squares + TSI).
func usesTSI(cfg config.ChannelConfig) bool {
	return cfg.SDIMode.IsQuadLinkTSI() || cfg.Destination.IsHDMI()
}

// buildOutputRouting constructs the crosspoint routing transaction for an
// output channel (§4.6.1: "framebuffer-output -> destination-input
// connections, plus additional DS2/MUX edges in the TSI and SQD quad
// variants"). Quad tiers route the group's single TSI-addressed
// framebuffer through a per-group MUX (TSI) or each quadrant framebuffer
// directly to its own destination (SQD); the three HFR tiers (HD-HFR,
// 4K-HFR, quad-quad-HFR) add a second DS2 edge per physical channel.
func buildOutputRouting(cfg config.ChannelConfig, channels []int, tier routingTier) device.RoutingTransaction {
	tx := device.RoutingTransaction{}
	dstPrefix := destinationPrefix(cfg)

	addDS2 := func(ch int, dstIn string) {
		ds2Out := crosspointName("ds2_out", ch)
		tx.OwnedOutputs = append(tx.OwnedOutputs, ds2Out)
		tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: ds2Out, Input: dstIn})
	}

	switch tier {
	case tierSingleLink, tierHDHFR:
		ch := channels[0]
		fbOut := crosspointName("fb_out", ch)
		dstIn := crosspointName(dstPrefix, ch)
		tx.OwnedOutputs = append(tx.OwnedOutputs, fbOut)
		tx.OwnedInputs = append(tx.OwnedInputs, dstIn)
		tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: fbOut, Input: dstIn})
		if tier == tierHDHFR {
			addDS2(ch, dstIn)
		}

	case tierQuadHD, tier4KHFR:
		if usesTSI(cfg) {
			// TSI: the group's base channel's framebuffer feeds one MUX,
			// which fans out to the four physical destination outputs.
			base := channels[0]
			fbOut := crosspointName("fb_out", base)
			muxIn := crosspointName("mux_in", base)
			muxOut := crosspointName("mux_out", base)
			tx.OwnedOutputs = append(tx.OwnedOutputs, fbOut, muxOut)
			tx.OwnedInputs = append(tx.OwnedInputs, muxIn)
			tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: fbOut, Input: muxIn})
			for _, ch := range channels {
				dstIn := crosspointName(dstPrefix, ch)
				tx.OwnedInputs = append(tx.OwnedInputs, dstIn)
				tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: muxOut, Input: dstIn})
				if tier == tier4KHFR {
					addDS2(ch, dstIn)
				}
			}
		} else {
			// SQD: each quadrant framebuffer routes directly to its own
			// physical destination.
			for _, ch := range channels {
				fbOut := crosspointName("fb_out", ch)
				dstIn := crosspointName(dstPrefix, ch)
				tx.OwnedOutputs = append(tx.OwnedOutputs, fbOut)
				tx.OwnedInputs = append(tx.OwnedInputs, dstIn)
				tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: fbOut, Input: dstIn})
				if tier == tier4KHFR {
					addDS2(ch, dstIn)
				}
			}
		}

	case tierQuadQuad, tierQuadQuadHFR:
		// quad-quad (8K) spans 16 physical channels, each SQD-routed
		// directly regardless of cfg.SDIMode, since 8K TSI addressing is
		// a QuadQuad-flag concern (set via SetQuadEnables) rather than a
		// distinct crosspoint shape.
		for _, ch := range channels {
			fbOut := crosspointName("fb_out", ch)
			dstIn := crosspointName(dstPrefix, ch)
			tx.OwnedOutputs = append(tx.OwnedOutputs, fbOut)
			tx.OwnedInputs = append(tx.OwnedInputs, dstIn)
			tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: fbOut, Input: dstIn})
			if tier == tierQuadQuadHFR {
				addDS2(ch, dstIn)
			}
		}
	}

	return tx
}

func destinationPrefix(cfg config.ChannelConfig) string {
	if cfg.Destination.IsHDMI() {
		return "hdmi_out"
	}
	return "sdi_out"
}

func crosspointName(prefix string, ch int) string {
	return prefix + "_" + itoa(ch)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
