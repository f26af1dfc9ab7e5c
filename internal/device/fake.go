package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

// Fake is an in-process stand-in for the vendor SDK, used by this module's
// own test suite and available to any consumer that wants to exercise the
// capture/playout engines without real AJA hardware attached. It is a
// first-class part of SPEC_FULL (see SPEC_FULL.md): §4.1 requires the
// engines to drive a capability-queried device, and a fake is the only way
// to unit test that negotiation logic in CI.
type Fake struct {
	mu sync.Mutex
	id string

	supported     map[videoformat.HardwareID]bool
	customAnc     bool
	biDirectional bool
	maxAudioCh    int
	is8k          bool

	channels map[int]*fakeChannel
	routing  []CrossPointEdge

	tsiFrameEnabled map[int]bool

	cond *sync.Cond
}

type fakeChannel struct {
	enabled bool
	mode    ChannelMode
	format  videoformat.Mode
	fbFmt   FrameBufferFormat

	haveSignal    bool
	detected      videoformat.Mode
	detectedVPID  videoformat.VPID

	acDirectionIn bool
	acRunning     bool
	start, end    int

	availInput  int
	availOutput int
	dropped     int
	frameStamp  int64

	inputQueue  [][]byte // bytes handed back on the next input transfer
	outputLog   [][]byte // bytes captured from every output transfer
	timecode    RP188

	vertGenInput  int
	vertGenOutput int
}

// NewFake constructs a Fake with reasonable default capabilities: every
// table mode supported, custom-ANC available, 16 audio channels, no 8K.
func NewFake(id string) *Fake {
	f := &Fake{
		id:         id,
		supported:  map[videoformat.HardwareID]bool{},
		customAnc:  true,
		maxAudioCh: 16,
		channels:   map[int]*fakeChannel{},
	}
	f.cond = sync.NewCond(&f.mu)
	for _, m := range videoformat.Table {
		if m.SingleLinkID != 0 {
			f.supported[m.SingleLinkID] = true
		}
		if m.QuadLinkID != 0 {
			f.supported[m.QuadLinkID] = true
		}
	}
	return f
}

func (f *Fake) chan_(ch int) *fakeChannel {
	c, ok := f.channels[ch]
	if !ok {
		c = &fakeChannel{}
		f.channels[ch] = c
	}
	return c
}

func (f *Fake) Identifier() string { return f.id }

func (f *Fake) CanDoVideoFormat(id videoformat.HardwareID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported[id]
}
func (f *Fake) CanDoCustomAnc() bool      { f.mu.Lock(); defer f.mu.Unlock(); return f.customAnc }
func (f *Fake) HasBiDirectionalSDI() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.biDirectional }
func (f *Fake) MaxAudioChannels() int     { f.mu.Lock(); defer f.mu.Unlock(); return f.maxAudioCh }
func (f *Fake) Is8K() bool                { f.mu.Lock(); defer f.mu.Unlock(); return f.is8k }

// SetCustomAnc, SetBiDirectionalSDI, SetMaxAudioChannels, SetIs8K let tests
// configure capability advertisement.
func (f *Fake) SetCustomAnc(v bool)          { f.mu.Lock(); f.customAnc = v; f.mu.Unlock() }
func (f *Fake) SetBiDirectionalSDI(v bool)   { f.mu.Lock(); f.biDirectional = v; f.mu.Unlock() }
func (f *Fake) SetMaxAudioChannels(n int)    { f.mu.Lock(); f.maxAudioCh = n; f.mu.Unlock() }
func (f *Fake) SetIs8K(v bool)               { f.mu.Lock(); f.is8k = v; f.mu.Unlock() }

func (f *Fake) EnableChannel(ch int, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).enabled = enable
	return nil
}

func (f *Fake) SetMode(ch int, mode ChannelMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).mode = mode
	return nil
}

func (f *Fake) SetVideoFormat(ch int, m videoformat.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).format = m
	return nil
}

func (f *Fake) SetFrameBufferFormat(ch int, fbf FrameBufferFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).fbFmt = fbf
	return nil
}

func (f *Fake) SetReferenceSource(ref config.ReferenceSource) error { return nil }

func (f *Fake) SetSDITransmitDirection(sdiIndex int, transmit bool) error { return nil }

func (f *Fake) SetQuadEnables(quad, quadQuad, squares, tsi bool, channels []int) error { return nil }

func (f *Fake) SetTsiFrameEnable(ch int, tsi bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tsiFrameEnabled == nil {
		f.tsiFrameEnabled = map[int]bool{}
	}
	f.tsiFrameEnabled[ch] = tsi
	return nil
}

// TsiFrameEnabled reports the last value passed to SetTsiFrameEnable for
// ch, for test assertions.
func (f *Fake) TsiFrameEnabled(ch int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tsiFrameEnabled[ch]
}

func (f *Fake) ApplyRouting(tx RoutingTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	owned := func(s string, set []string) bool {
		for _, o := range set {
			if o == s {
				return true
			}
		}
		return false
	}

	kept := f.routing[:0:0]
	for _, e := range f.routing {
		if owned(e.Output, tx.OwnedOutputs) || owned(e.Input, tx.OwnedInputs) {
			continue // torn down, will be replaced by tx.Edges if still needed
		}
		kept = append(kept, e)
	}
	f.routing = append(kept, tx.Edges...)
	return nil
}

// Routing returns a snapshot of the currently-applied edges, for test
// assertions.
func (f *Fake) Routing() []CrossPointEdge {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CrossPointEdge, len(f.routing))
	copy(out, f.routing)
	return out
}

// SetSignal configures what GetInputVideoFormat reports for ch, and wakes
// any WaitForVerticalInterrupt(ctx, ch, false) callers.
func (f *Fake) SetSignal(ch int, present bool, m videoformat.Mode, vpid videoformat.VPID) {
	f.mu.Lock()
	c := f.chan_(ch)
	c.haveSignal = present
	c.detected = m
	c.detectedVPID = vpid
	c.vertGenInput++
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fake) GetInputVideoFormat(ch int) (videoformat.Mode, videoformat.VPID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	if !c.haveSignal {
		return videoformat.Mode{}, videoformat.VPID{}, nil
	}
	return c.detected, c.detectedVPID, nil
}

func (f *Fake) SetInputTimecode(ch int, tc RP188) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).timecode = tc
}

func (f *Fake) GetInputTimecode(ch int, idx config.TimecodeIndex) (RP188, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chan_(ch).timecode, nil
}

func (f *Fake) AutoCirculateInitForInput(ch, start, end int, rp188, anc bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	c.acDirectionIn = true
	c.start, c.end = start, end
	return nil
}

func (f *Fake) AutoCirculateInitForOutput(ch, start, end int, rp188, anc bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	c.acDirectionIn = false
	c.start, c.end = start, end
	return nil
}

func (f *Fake) AutoCirculateStart(ch int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).acRunning = true
	return nil
}

func (f *Fake) AutoCirculateStop(ch int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).acRunning = false
	return nil
}

func (f *Fake) AutoCirculateGetStatus(ch int) (AutoCirculateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	return AutoCirculateStatus{
		Running:               c.acRunning,
		AvailableInputFrames:  c.availInput,
		AvailableOutputFrames: c.availOutput,
		FramesDropped:         c.dropped,
		FrameStampTime100ns:   c.frameStamp,
	}, nil
}

// PushCapturedFrame queues one frame of raw bytes to be handed back on the
// next input AutoCirculateTransfer for ch, and bumps its available-input
// count so the engine's status poll sees work to do.
func (f *Fake) PushCapturedFrame(ch int, video, audio, ancF1, ancF2 []byte, tc RP188) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	c.inputQueue = append(c.inputQueue, video, audio, ancF1, ancF2)
	c.timecode = tc
	c.availInput++
}

// SetAvailableOutputFrames lets a test simulate ring drain/fill for the
// playout side without a real consumer.
func (f *Fake) SetAvailableOutputFrames(ch, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).availOutput = n
}

// OutputLog returns every video buffer transferred out for ch, in order.
func (f *Fake) OutputLog(ch int) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(ch)
	out := make([][]byte, len(c.outputLog))
	copy(out, c.outputLog)
	return out
}

// InjectDriverDrop increments the cumulative driver-side dropped-frame
// counter AutoCirculateGetStatus reports, simulating ring overflow at the
// hardware level (§4.5.3 step 5 / §4.6.3).
func (f *Fake) InjectDriverDrop(ch int, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chan_(ch).dropped += n
}

func (f *Fake) AutoCirculateTransfer(req TransferRequest) (TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.chan_(req.Channel)

	if c.acDirectionIn {
		if len(c.inputQueue) < 4 {
			return TransferResult{}, ajaerr.Newf(ajaerr.TransferFailed, "channel %d: no captured frame queued", req.Channel)
		}
		video, audio, ancF1, ancF2 := c.inputQueue[0], c.inputQueue[1], c.inputQueue[2], c.inputQueue[3]
		c.inputQueue = c.inputQueue[4:]
		if c.availInput > 0 {
			c.availInput--
		}
		n := copy(req.Video, video)
		_ = n
		audioBytes := copy(req.Audio, audio)
		var f1, f2 int
		if req.ANCF1 != nil {
			f1 = copy(req.ANCF1, ancF1)
		}
		if req.ANCF2 != nil {
			f2 = copy(req.ANCF2, ancF2)
		}
		return TransferResult{
			AudioBytesCaptured: audioBytes,
			ANCF1Bytes:         f1,
			ANCF2Bytes:         f2,
			Timecode:           c.timecode,
			FrameStampTime100ns: c.frameStamp,
		}, nil
	}

	// Output direction: record what was sent.
	cp := append([]byte(nil), req.Video...)
	c.outputLog = append(c.outputLog, cp)
	if c.availOutput > 0 {
		c.availOutput--
	}
	return TransferResult{}, nil
}

// Tick manually advances the vertical-interrupt generation for ch,
// unblocking any WaitForVerticalInterrupt call.
func (f *Fake) Tick(ch int, output bool) {
	f.mu.Lock()
	c := f.chan_(ch)
	if output {
		c.vertGenOutput++
	} else {
		c.vertGenInput++
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fake) WaitForVerticalInterrupt(ctx context.Context, ch int, output bool) error {
	f.mu.Lock()
	c := f.chan_(ch)
	gen := c.vertGenInput
	if output {
		gen = c.vertGenOutput
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			f.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	for {
		cur := c.vertGenInput
		if output {
			cur = c.vertGenOutput
		}
		if cur != gen {
			f.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			f.mu.Unlock()
			return errors.Wrap(ctx.Err(), "waiting for vertical interrupt")
		default:
		}
		f.cond.Wait()
	}
}

func (f *Fake) GetVideoActiveSize(m videoformat.Mode, vancTall bool) int {
	// 10-bit packed 4:2:2 (v210): 16 bytes per 6-pixel group ->
	// approximated as width*height*8/3, rounded to a 128-byte line stride.
	lineBytes := (m.Width*8/3 + 127) &^ 127
	lines := m.Height
	if vancTall {
		lines += 30 // approximate VANC line allowance
	}
	if lineBytes == 0 || lines == 0 {
		return 0
	}
	return lineBytes * lines
}

func (f *Fake) Close() error { return nil }

var _ Hardware = (*Fake)(nil)
