// Package device implements C1 (the reference-counted device handle) and
// C2 (the named cross-process setup mutex). The handle exposes the narrow
// capability set §4.1 lists: channel enable, mode/format/geometry, routing,
// AutoCirculate, vertical-interrupt wait, and page-lock primitives.
//
// There is no vendor SDK available to this module, so Hardware is an
// interface; the production adapter would wrap the AJA SDK's C++ bindings
// via cgo the way a V4L2 package wraps ioctls through a narrow `device`
// type. Fake (fake.go) is the in-module implementation the engines are
// tested against.
package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/lanikai/gstreamer-aja/internal/ajaerr"
	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/logging"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

var log = logging.DefaultLogger.WithTag("device")

// ChannelMode selects whether a channel is configured for capture or
// display.
type ChannelMode int

const (
	ModeCapture ChannelMode = iota
	ModeDisplay
)

// FrameBufferFormat is always 10-bit packed 4:2:2 in this core (§1 explicit
// non-goal: no color conversion beyond what the frame-buffer format
// dictates), but VANC-tall vs VANC-off changes the addressable geometry,
// so it's still a parameter the device layer must be told about.
type FrameBufferFormat struct {
	TenBitYUV422 bool // always true; kept explicit for readability at call sites
	VANCTall     bool
}

// CrossPointEdge is one routing-matrix connection: an output crosspoint
// (framebuffer or MUX output) wired to an input crosspoint (SDI input,
// DS2, or downstream MUX input). §4.5.2 step 7 / §4.6.1 build sets of these
// and apply them atomically (§9: "encapsulate every read-modify-write of
// the routing matrix as an explicit transaction value").
type CrossPointEdge struct {
	Output string
	Input  string
}

// RoutingTransaction is the explicit transaction value §9 calls for: the
// complete target edge set for the channels this transaction owns, applied
// atomically against whatever the rest of the device currently has routed.
type RoutingTransaction struct {
	// OwnedOutputs/OwnedInputs are the crosspoints this transaction is
	// allowed to touch; any edge currently routed through one of them
	// that isn't present in Edges is torn down. Edges belonging to
	// crosspoints outside this set (other channels' routing) are left
	// untouched.
	OwnedOutputs []string
	OwnedInputs  []string
	Edges        []CrossPointEdge
}

// AutoCirculateStatus mirrors the SDK's AUTOCIRCULATE_STATUS struct to the
// extent the engines need it.
type AutoCirculateStatus struct {
	Running               bool
	AvailableInputFrames  int // frames the driver has filled, not yet taken
	AvailableOutputFrames int // free slots the driver can accept a transfer into
	FramesProcessed       int
	FramesDropped         int // cumulative, driver-side
	CurrentFrame          int
	FrameStampTime100ns   int64 // driver's frame-stamp clock, 100ns units
}

// TransferRequest/TransferResult model one AutoCirculateTransfer call.
type TransferRequest struct {
	Channel int
	Video   []byte
	Audio   []byte // nil if not requested
	ANCF1   []byte // nil unless custom-ANC enabled
	ANCF2   []byte // nil unless custom-ANC enabled and interlaced
	RP188   bool
}

type TransferResult struct {
	AudioBytesCaptured  int
	ANCF1Bytes          int
	ANCF2Bytes          int
	Timecode            RP188
	FrameStampTime100ns int64
}

// RP188 is the 64-bit SMPTE timecode register triple.
type RP188 struct {
	DBB, Low, High uint32
	Valid          bool
}

// Capabilities is the subset of §4.1's device-capability queries the
// engines consult.
type Capabilities interface {
	CanDoVideoFormat(id videoformat.HardwareID) bool
	CanDoCustomAnc() bool
	HasBiDirectionalSDI() bool
	MaxAudioChannels() int
	Is8K() bool
}

// Hardware is the narrow capability set C1 exposes to the capture and
// playout engines, excluding the process-local reference-counting
// lifecycle (that's Handle, below). All operations are safe for
// concurrent use from multiple engines on different channels; operations
// that touch multi-channel shared state are documented as requiring the
// caller to hold the GlobalSetupMutex (C2) -- Hardware itself does not
// serialize across that boundary, matching §4.1's "held only around
// configuration phases, never across DMA transfers or vertical waits".
type Hardware interface {
	Capabilities

	Identifier() string

	EnableChannel(ch int, enable bool) error
	SetMode(ch int, mode ChannelMode) error
	SetVideoFormat(ch int, m videoformat.Mode) error
	SetFrameBufferFormat(ch int, f FrameBufferFormat) error
	SetReferenceSource(ref config.ReferenceSource) error
	SetSDITransmitDirection(sdiIndex int, transmit bool) error
	SetQuadEnables(quad, quadQuad, squares, tsi bool, channels []int) error

	// SetTsiFrameEnable toggles the per-channel two-sample-interleave
	// frame-store mapping (§4.5.2 step 7 / §8 scenario 3): when tsi is
	// true, ch's framebuffer is addressed as one TSI-muxed UHD/4K raster
	// rather than four square-division quadrants.
	SetTsiFrameEnable(ch int, tsi bool) error

	ApplyRouting(tx RoutingTransaction) error

	GetInputVideoFormat(ch int) (videoformat.Mode, videoformat.VPID, error)
	GetInputTimecode(ch int, idx config.TimecodeIndex) (RP188, error)

	AutoCirculateInitForInput(ch int, startFrame, endFrame int, rp188, anc bool) error
	AutoCirculateInitForOutput(ch int, startFrame, endFrame int, rp188, anc bool) error
	AutoCirculateStart(ch int) error
	AutoCirculateStop(ch int) error
	AutoCirculateGetStatus(ch int) (AutoCirculateStatus, error)
	AutoCirculateTransfer(req TransferRequest) (TransferResult, error)

	// WaitForVerticalInterrupt blocks until the next vertical-blank
	// interrupt for ch (output selects the output, rather than input,
	// interrupt subsystem), or until ctx is done.
	WaitForVerticalInterrupt(ctx context.Context, ch int, output bool) error

	// GetVideoActiveSize returns the byte size of one frame's active
	// raster (or active+VANC region when vancTall is true) at m.
	GetVideoActiveSize(m videoformat.Mode, vancTall bool) int
}

// Handle is a reference-counted handle onto one open Hardware instance
// (§3 Ownership: "the device handle is shared by all components through
// atomic reference counting; the last release closes the hardware").
type Handle interface {
	Hardware

	// Retain returns a new, independently-releasable reference to the
	// same underlying device.
	Retain() Handle

	// Release drops this reference. When the last reference is
	// released, the underlying Hardware is closed.
	Release()
}

// registry is the process-wide table of open devices, keyed by
// identifier, so repeated Open calls for the same device share one
// reference-counted Hardware (§3: "acquired when the element transitions
// into the paused precondition state").
var (
	registryMu sync.Mutex
	registry   = map[string]*refCountedHardware{}
	opener     = func(identifier string) (Hardware, error) {
		return nil, ajaerr.Newf(ajaerr.DeviceUnavailable, "no hardware backend registered for identifier %q (use device.RegisterOpener, or device.RegisterFake in tests)", identifier)
	}
)

// RegisterOpener installs the function used to open a real device by
// identifier. Production builds register their cgo-backed SDK adapter
// here; tests never need to, since they construct a *Fake directly and
// register it with RegisterFake.
func RegisterOpener(open func(identifier string) (Hardware, error)) {
	opener = open
}

// RegisterFake installs f as the Hardware returned for future Open calls
// against identifier, without going through the hardware opener. Intended
// for tests.
func RegisterFake(identifier string, f Hardware) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[identifier] = &refCountedHardware{Hardware: f, refs: 0}
}

// Open acquires a reference to the device named by identifier (an index or
// serial number), opening it if this is the first caller.
func Open(identifier string) (Handle, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	rc, ok := registry[identifier]
	if !ok {
		h, err := opener(identifier)
		if err != nil {
			return nil, errors.Wrapf(err, "opening device %q", identifier)
		}
		rc = &refCountedHardware{Hardware: h}
		registry[identifier] = rc
		log.Info("device %q: opened", identifier)
	}
	rc.refs++
	log.Debug("device %q: acquired (refs=%d)", identifier, rc.refs)
	return &handleRef{refCountedHardware: rc}, nil
}

// refCountedHardware embeds the real Hardware and tracks the live
// reference count; its methods are promoted to every handleRef.
type refCountedHardware struct {
	Hardware
	refs int
}

// handleRef is the value returned by Open/Retain; each one decrements refs
// exactly once via Release. It embeds *refCountedHardware so every
// Hardware method is promoted automatically -- only the lifecycle methods
// need explicit implementations.
type handleRef struct {
	*refCountedHardware
	released bool
}

func (r *handleRef) Retain() Handle {
	registryMu.Lock()
	defer registryMu.Unlock()
	r.refs++
	return &handleRef{refCountedHardware: r.refCountedHardware}
}

func (r *handleRef) Release() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.refs--
	log.Debug("device %q: released (refs=%d)", r.Identifier(), r.refs)
	if r.refs <= 0 {
		for id, rc := range registry {
			if rc == r.refCountedHardware {
				delete(registry, id)
				break
			}
		}
		if closer, ok := r.Hardware.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Warn("device %q: close: %v", r.Identifier(), err)
			}
		}
	}
}

var _ Handle = (*handleRef)(nil)
