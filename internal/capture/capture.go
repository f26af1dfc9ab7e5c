// Package capture implements C6, the capture engine: the state machine,
// configuration protocol, and steady-state transfer loop that turn an
// input SDI/HDMI signal into a stream of queue.Item values (§4.5).
//
// Grounded on a V4L2 source's configure-then-read-loop shape: a configure
// phase that resolves the requested format against
// what the device actually advertises, a dedicated loop goroutine reading
// buffers off the device in a tight cycle, and explicit state transitions
// the rest of the element observes. AutoCirculate's polling/transfer model
// has no direct V4L2 analogue (V4L2 blocks in ioctl; AutoCirculate polls
// status then transfers), so the inner loop body is original to this
// package, built from spec §4.5.2/§4.5.3's prose protocol.
package capture

import (
	"context"
	"sync"
	"sync/atomic"
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

var log = logging.DefaultLogger.WithTag("capture")

// maxFormatRetries bounds the fix-point detect/configure retry loop of
// §4.5.2 step 3: the device is re-probed for its input format up to this
// many times before giving up, since a signal can still be settling
// (genlock acquiring, a quad-link cable reseating) immediately after
// EnableChannel.
const maxFormatRetries = 4

// noSignalIdleLimit is the number of consecutive no-signal steady-state
// iterations (§4.5.3) after which the engine pushes a second SignalChange
// item reporting loss (the first is pushed on the first no-signal
// iteration) and stops attempting transfers until the signal returns.
// Iterations in between push nothing, so an unplugged cable does not
// flood the queue with redundant signal-change notifications.
const noSignalIdleLimit = 32

// State is C6's lifecycle state (§4.5, §3 Lifecycle).
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

// Engine is C6.
type Engine struct {
	cfg      config.ChannelConfig
	handle   device.Handle
	setupMu  *device.GlobalSetupMutex
	ranges   *planner.Registry
	totalFrames int

	stateMu sync.Mutex
	state   State

	alloc     *dma.Allocator
	videoPool *dma.Pool
	audioPool *dma.Pool
	ancPool   *dma.Pool

	Out *queue.Queue

	// log is this channel's own tagged logger (e.g. "capture.ch0"), so
	// every line this Engine emits already carries its channel identity
	// instead of every call site formatting "channel %d:" by hand.
	log *logging.Logger

	detected         videoformat.Mode
	detectedVPID     videoformat.VPID
	noSignalStreak   int
	driverDropsSeen  int
	discontNext      bool

	// signalPresent mirrors the steady-state loop's present/absent
	// determination for the source element's read-only "signal"
	// property (§6), set with atomic ops since it's read from outside
	// the loop goroutine.
	signalPresent int32
}

// Signal reports whether the capture engine currently sees input signal
// present. Safe to call from any goroutine.
func (e *Engine) Signal() bool { return atomic.LoadInt32(&e.signalPresent) == 1 }

func b2i32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// New constructs an Engine for cfg, bound to handle and sharing setupMu/
// ranges/totalFrames with every other channel on the same device.
func New(cfg config.ChannelConfig, handle device.Handle, setupMu *device.GlobalSetupMutex, ranges *planner.Registry, totalFrames int) *Engine {
	return &Engine{
		cfg:         cfg,
		handle:      handle,
		setupMu:     setupMu,
		ranges:      ranges,
		totalFrames: totalFrames,
		state:       StateStopped,
		Out:         queue.New(cfg.QueueSize),
		discontNext: true,
		log:         log.WithChannel(cfg.Channel),
	}
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

// Configure runs the twelve-step configuration protocol of §4.5.2.
func (e *Engine) Configure(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return ajaerr.New(ajaerr.FatalConfig, err)
	}
	e.setState(StateConfiguring)

	var configured bool
	err := e.setupMu.WithLock(func() error {
		if err := e.handle.AutoCirculateStop(e.cfg.Channel); err != nil {
			e.log.Warn("stop prior AutoCirculate: %v", err)
		}

		needsQuad := e.cfg.NeedsQuad()

		m, vpid, err := e.detectFormat()
		if err != nil {
			return err
		}
		e.detected = m
		e.detectedVPID = vpid

		id := m.SingleLinkID
		if needsQuad {
			id = m.QuadLinkID
		}
		if id == 0 || !e.handle.CanDoVideoFormat(id) {
			return ajaerr.Newf(ajaerr.UnsupportedMode, "channel %d: device cannot drive %s (quad=%v)", e.cfg.Channel, m, needsQuad)
		}

		if err := e.handle.EnableChannel(e.cfg.Channel, true); err != nil {
			return ajaerr.New(ajaerr.DeviceUnavailable, err)
		}
		if err := e.handle.SetMode(e.cfg.Channel, device.ModeCapture); err != nil {
			return ajaerr.New(ajaerr.DeviceUnavailable, err)
		}
		if err := e.handle.SetVideoFormat(e.cfg.Channel, m); err != nil {
			return ajaerr.New(ajaerr.UnsupportedMode, err)
		}

		vancTall := e.cfg.CCPolicy != config.CCNone
		fbFmt := device.FrameBufferFormat{TenBitYUV422: true, VANCTall: vancTall}
		if err := e.handle.SetFrameBufferFormat(e.cfg.Channel, fbFmt); err != nil {
			return ajaerr.New(ajaerr.UnsupportedMode, err)
		}

		channels := quadChannelSet(e.cfg.Channel, needsQuad, e.handle.Is8K())
		if err := e.handle.SetQuadEnables(needsQuad, e.handle.Is8K() && needsQuad, true, e.cfg.SDIMode.IsQuadLinkTSI(), channels); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		tier := classifyTier(e.cfg, m, e.handle.Is8K())
		if needsQuad && usesTSI(e.cfg) {
			if err := e.handle.SetTsiFrameEnable(e.cfg.Channel, true); err != nil {
				return ajaerr.New(ajaerr.RoutingFailed, err)
			}
		}

		tx := buildInputRouting(e.cfg, channels, tier)
		if err := e.handle.ApplyRouting(tx); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		if err := e.handle.SetReferenceSource(e.cfg.ReferenceSource); err != nil {
			return ajaerr.New(ajaerr.RoutingFailed, err)
		}

		mult := e.cfg.QuadMultiplier(e.handle.Is8K())
		start, end, err := e.planFrameRange(mult)
		if err != nil {
			return err
		}

		if err := e.handle.AutoCirculateInitForInput(e.cfg.Channel, start, end, e.cfg.RP188, e.cfg.CCPolicy != config.CCNone); err != nil {
			return ajaerr.New(ajaerr.AllocatorExhausted, err)
		}

		if err := e.createPools(m, vancTall); err != nil {
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
		return errors.New("capture: configuration did not complete")
	}

	e.setState(StateRunning)
	return nil
}

// detectFormat implements the bounded fix-point retry loop of §4.5.2 step
// 3: re-probe until a non-auto format is reported or maxFormatRetries is
// exhausted.
func (e *Engine) detectFormat() (videoformat.Mode, videoformat.VPID, error) {
	var last error
	for i := 0; i < maxFormatRetries; i++ {
		m, vpid, err := e.handle.GetInputVideoFormat(e.cfg.Channel)
		if err != nil {
			last = err
			continue
		}
		if !m.IsAuto() {
			return m, vpid, nil
		}
		last = ajaerr.Newf(ajaerr.UnsupportedMode, "channel %d: no signal detected", e.cfg.Channel)
	}
	return videoformat.Mode{}, videoformat.VPID{}, last
}

func (e *Engine) planFrameRange(mult int) (start, end int, err error) {
	if !e.cfg.AutoAssign() {
		return e.cfg.StartFrame, e.cfg.EndFrame, nil
	}
	res, ok := e.ranges.Plan(planner.Request{
		Channel:      e.cfg.Channel,
		DesiredCount: e.cfg.QueueSize,
		Multiplier:   mult,
		TotalFrames:  e.totalFrames,
	})
	if !ok {
		return 0, 0, ajaerr.Newf(ajaerr.AllocatorExhausted, "channel %d: no free frame range for %d frames", e.cfg.Channel, e.cfg.QueueSize)
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

	const audioBufSize = 401 * 1024 // fixed 401 KiB per audio buffer
	ap, err := dma.NewPool(e.alloc, audioBufSize, count)
	if err != nil {
		return ajaerr.New(ajaerr.AllocatorExhausted, err)
	}
	e.audioPool = ap
	e.audioPool.Activate()

	if e.cfg.CCPolicy != config.CCNone {
		const ancBufSize = 256
		anp, err := dma.NewPool(e.alloc, ancBufSize, count)
		if err != nil {
			return ajaerr.New(ajaerr.AllocatorExhausted, err)
		}
		e.ancPool = anp
		e.ancPool.Activate()
	}
	return nil
}

// Run is the steady-state transfer loop of §4.5.3. It blocks until ctx is
// done or a fatal error occurs.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := e.handle.WaitForVerticalInterrupt(ctx, e.cfg.Channel, false); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.Out.PushTail(queue.ErrorItem(err))
			continue
		}

		status, err := e.handle.AutoCirculateGetStatus(e.cfg.Channel)
		if err != nil {
			e.Out.PushTail(queue.ErrorItem(ajaerr.New(ajaerr.TransferFailed, err)))
			continue
		}

		if status.FramesDropped > e.driverDropsSeen {
			n := status.FramesDropped - e.driverDropsSeen
			e.driverDropsSeen = status.FramesDropped
			e.Out.PushTail(queue.FramesDroppedItem(queue.FramesDropped{Count: n, DriverSide: true}))
		}

		m, vpid, err := e.handle.GetInputVideoFormat(e.cfg.Channel)
		if err == nil {
			present := !m.IsAuto()
			atomic.StoreInt32(&e.signalPresent, b2i32(present))
			if !present {
				e.noSignalStreak++
				if e.noSignalStreak == 1 || e.noSignalStreak == noSignalIdleLimit {
					e.Out.PushTail(queue.SignalChangeItem(queue.SignalChange{Present: false}))
				}
				if e.noSignalStreak >= noSignalIdleLimit {
					e.discontNext = true
					continue
				}
			} else {
				if e.noSignalStreak > 0 || m != e.detected {
					e.detected = m
					e.detectedVPID = vpid
					e.discontNext = true
					e.Out.PushTail(queue.SignalChangeItem(queue.SignalChange{Present: true, Format: m, VPID: vpid}))
				}
				e.noSignalStreak = 0
			}
		}

		if status.AvailableInputFrames <= 0 {
			continue
		}

		if err := e.transferOne(ctx); err != nil {
			e.Out.PushTail(queue.ErrorItem(err))
		}

		if n := e.Out.DrainDropped(); n > 0 {
			e.Out.PushTail(queue.FramesDroppedItem(queue.FramesDropped{Count: n, DriverSide: false}))
		}
	}
}

func (e *Engine) transferOne(ctx context.Context) error {
	video, err := e.videoPool.Acquire()
	if err != nil {
		return ajaerr.New(ajaerr.AllocatorExhausted, err)
	}

	req := device.TransferRequest{Channel: e.cfg.Channel, Video: video.Bytes(), RP188: e.cfg.RP188}

	var audio *dma.Block
	if e.audioPool != nil {
		audio, err = e.audioPool.Acquire()
		if err == nil {
			req.Audio = audio.Bytes()
		}
	}

	var ancF1, ancF2 *dma.Block
	if e.ancPool != nil {
		ancF1, _ = e.ancPool.Acquire()
		if ancF1 != nil {
			req.ANCF1 = ancF1.Bytes()
		}
		if e.detected.IsInterlaced() {
			ancF2, _ = e.ancPool.Acquire()
			if ancF2 != nil {
				req.ANCF2 = ancF2.Bytes()
			}
		}
	}

	res, err := e.handle.AutoCirculateTransfer(req)
	if err != nil {
		e.videoPool.Release(video)
		if audio != nil {
			e.audioPool.Release(audio)
		}
		if ancF1 != nil {
			e.ancPool.Release(ancF1)
		}
		if ancF2 != nil {
			e.ancPool.Release(ancF2)
		}
		return ajaerr.New(ajaerr.TransferFailed, err)
	}

	if audio != nil {
		audio.Resize(res.AudioBytesCaptured)
	}
	if ancF1 != nil {
		ancF1.Resize(res.ANCF1Bytes)
	}
	if ancF2 != nil {
		ancF2.Resize(res.ANCF2Bytes)
	}

	f := queue.NewFrame(e.videoPool, e.audioPool, e.ancPool)
	f.Video = video
	f.Audio = audio
	f.ANCF1 = ancF1
	f.ANCF2 = ancF2
	f.CaptureTime = time.Now()
	f.DetectedFormat = e.detected
	f.VPID = e.deriveVPID()
	f.Discont = e.discontNext
	f.Timecode = res.Timecode
	num, den := e.detected.FrameDuration()
	if den > 0 {
		f.Duration = time.Duration(num) * time.Second / time.Duration(den)
	}
	e.discontNext = false

	f.ParNum, f.ParDen = videoformat.PixelAspectRatio(e.detected.Height, f.VPID.Widescreen)

	f.StructuredTC = anc.Decode(res.Timecode, anc.FormatForRate(e.detected))

	if ancF1 != nil {
		lines := [][]byte{ancF1.Bytes()}
		if ancF2 != nil {
			lines = append(lines, ancF2.Bytes())
		}
		f.Captions = anc.ParseVANCCaptions(lines, e.cfg.CCPolicy)
		if afd, ok := anc.ParseAFDBar(ancF1.Bytes()); ok {
			f.AFD = &afd
		}
	}

	e.Out.PushTail(queue.FrameItem(f))
	return nil
}

// deriveVPID resolves the detected VPID's colorimetry fields from its raw
// SMPTE ST 352 payload word when the wire actually carried one (Raw != 0);
// a Raw of zero means the VPID was supplied directly (e.g. a test double),
// so its Transfer/Colorimetry/Range are taken as already authoritative and
// left untouched (§4.5.5: "derive PAR/colorimetry from VPID").
func (e *Engine) deriveVPID() videoformat.VPID {
	vpid := e.detectedVPID
	if vpid.Raw == 0 {
		return vpid
	}
	vpid.Transfer = videoformat.MapTransfer(int((vpid.Raw >> 8) & 0xFF))
	vpid.Colorimetry = videoformat.MapColorimetry(int((vpid.Raw >> 4) & 0x1))
	vpid.Range = videoformat.MapRange(int((vpid.Raw >> 5) & 0x1))
	return vpid
}

// Shutdown implements §4.5.4: stop AutoCirculate, release the planned
// frame range, deactivate and close the DMA pools, and release the
// device handle.
func (e *Engine) Shutdown() {
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
	e.Out.Close()
	e.handle.Release()
	e.setState(StateStopped)
}

// quadChannelSet returns the set of physical channels a quad-mode
// configuration spans, starting at base (§4.5.2 step 5: "quad and
// quad-quad configurations occupy four, respectively sixteen, contiguous
// physical channels starting at the requested channel").
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
// §4.5.2 step 7 calls out by name, each of which gets a distinct
// crosspoint edge set: "HD-HFR, quad-HD, quad-quad, quad-quad-HFR,
// 4K-HFR".
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
// per-channel DS2 edges in quad variants (§4.5.2 step 7).
const hfrThreshold = 50

func isHFR(m videoformat.Mode) bool {
	if m.RateDen == 0 {
		return false
	}
	return m.RateNum >= hfrThreshold*m.RateDen
}

// classifyTier resolves cfg/m/is8K into the routing tier whose edge set
// buildInputRouting (and buildOutputRouting) must build.
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
// two-sample-interleave rather than square-division (§4.5.2 step 5: "HDMI
// quad always configures squares + TSI").
func usesTSI(cfg config.ChannelConfig) bool {
	return cfg.SDIMode.IsQuadLinkTSI() || cfg.Destination.IsHDMI()
}

// buildInputRouting constructs the crosspoint routing transaction for an
// input channel (§4.5.2 step 7): wire the channel's SDI/HDMI input(s)
// through to its framebuffer input(s), owning exactly the crosspoints this
// channel's physical channel set spans. Quad tiers additionally route
// through a per-group MUX crosspoint (TSI) or direct per-quadrant
// framebuffer edges (SQD); the HFR tiers (HD-HFR, 4K-HFR, quad-quad-HFR)
// add a DS2 edge per physical channel for the link's second data stream.
func buildInputRouting(cfg config.ChannelConfig, channels []int, tier routingTier) device.RoutingTransaction {
	tx := device.RoutingTransaction{}
	srcPrefix := destinationPrefix(cfg)

	addDS2 := func(ch int, srcOut string) {
		ds2In := crosspointName("ds2_in", ch)
		tx.OwnedInputs = append(tx.OwnedInputs, ds2In)
		tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: srcOut, Input: ds2In})
	}

	switch tier {
	case tierSingleLink, tierHDHFR:
		ch := channels[0]
		fbIn := crosspointName("fb_in", ch)
		srcOut := crosspointName(srcPrefix, ch)
		tx.OwnedInputs = append(tx.OwnedInputs, fbIn)
		tx.OwnedOutputs = append(tx.OwnedOutputs, srcOut)
		tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: srcOut, Input: fbIn})
		if tier == tierHDHFR {
			addDS2(ch, srcOut)
		}

	case tierQuadHD, tier4KHFR:
		if usesTSI(cfg) {
			// TSI: all four physical inputs feed one MUX, which in turn
			// feeds the single TSI-addressed framebuffer of the group's
			// base channel.
			base := channels[0]
			muxIn := crosspointName("mux_in", base)
			fbIn := crosspointName("fb_in", base)
			tx.OwnedInputs = append(tx.OwnedInputs, muxIn, fbIn)
			for _, ch := range channels {
				srcOut := crosspointName(srcPrefix, ch)
				tx.OwnedOutputs = append(tx.OwnedOutputs, srcOut)
				tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: srcOut, Input: muxIn})
				if tier == tier4KHFR {
					addDS2(ch, srcOut)
				}
			}
			muxOut := crosspointName("mux_out", base)
			tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: muxOut, Input: fbIn})
		} else {
			// SQD: each physical channel routes directly to its own
			// quadrant framebuffer.
			for _, ch := range channels {
				fbIn := crosspointName("fb_in", ch)
				srcOut := crosspointName(srcPrefix, ch)
				tx.OwnedInputs = append(tx.OwnedInputs, fbIn)
				tx.OwnedOutputs = append(tx.OwnedOutputs, srcOut)
				tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: srcOut, Input: fbIn})
				if tier == tier4KHFR {
					addDS2(ch, srcOut)
				}
			}
		}

	case tierQuadQuad, tierQuadQuadHFR:
		// quad-quad (8K) spans 16 physical channels, each SQD-routed to
		// its own quadrant-of-a-quadrant framebuffer regardless of
		// cfg.SDIMode, since 8K TSI addressing is a QuadQuad-flag concern
		// (set via SetQuadEnables) rather than a distinct crosspoint
		// shape.
		for _, ch := range channels {
			fbIn := crosspointName("fb_in", ch)
			srcOut := crosspointName(srcPrefix, ch)
			tx.OwnedInputs = append(tx.OwnedInputs, fbIn)
			tx.OwnedOutputs = append(tx.OwnedOutputs, srcOut)
			tx.Edges = append(tx.Edges, device.CrossPointEdge{Output: srcOut, Input: fbIn})
			if tier == tierQuadQuadHFR {
				addDS2(ch, srcOut)
			}
		}
	}

	return tx
}

func destinationPrefix(cfg config.ChannelConfig) string {
	if cfg.Destination.IsHDMI() {
		return "hdmi_in"
	}
	return "sdi_in"
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
