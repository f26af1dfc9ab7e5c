package element

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/playout"
	"github.com/lanikai/gstreamer-aja/internal/queue"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

// Sink is the display-side element C7 is exposed through: the same
// device-identifier-plus-channel-configuration property set as Source
// (§6), mapped onto playout.Engine's Configure/Render/Run/Shutdown calls.
//
// Unlike Source, Sink's Configure can't run as part of the ready->paused
// transition: the display mode isn't known until the framework's caps
// negotiation hands it one (§4.6.1: "mode comes from the negotiated input
// format"). Callers invoke SetCaps once negotiation completes, any time
// after reaching StatePaused.
type Sink struct {
	Identifier string
	Config     config.ChannelConfig

	// CEA708Line/CEA608Line override the default VANC line numbers used
	// when building ancillary packets (0 selects §4.6.2's defaults).
	CEA708Line, CEA608Line int

	mu    sync.Mutex
	state State

	handle  device.Handle
	engine  *playout.Engine
	cancel  context.CancelFunc
	runDone chan struct{}
}

// NewSink constructs a Sink in StateNull for the given device identifier.
func NewSink(identifier string, cfg config.ChannelConfig) *Sink {
	return &Sink{Identifier: identifier, Config: cfg, state: StateNull}
}

// State reports the element's current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState drives the element toward target one step at a time, mirroring
// Source.SetState. ctx gives it the same call shape as Source.SetState;
// none of Sink's transitions use it.
func (s *Sink) SetState(ctx context.Context, target State) error {
	for {
		s.mu.Lock()
		cur := s.state
		s.mu.Unlock()
		if cur == target {
			return nil
		}

		var err error
		if target > cur {
			err = s.stepUp()
		} else {
			err = s.stepDown()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Sink) stepUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.state.next()
	if !ok {
		return errors.Errorf("sink: no forward transition from %s", s.state)
	}

	switch next {
	case StateReady:
		h, err := device.Open(s.Identifier)
		if err != nil {
			return errors.Wrapf(err, "sink: opening device %q", s.Identifier)
		}
		res, err := acquireDeviceResources(s.Identifier)
		if err != nil {
			h.Release()
			return err
		}
		s.handle = h
		s.engine = playout.New(s.Config, h, res.setupMu, res.ranges, defaultTotalFrames, s.CEA708Line, s.CEA608Line)

	case StatePlaying:
		s.engine.SetPlaying(true)
	}

	s.state = next
	return nil
}

func (s *Sink) stepDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.state.prev()
	if !ok {
		return errors.Errorf("sink: no backward transition from %s", s.state)
	}

	switch s.state {
	case StatePlaying:
		s.engine.SetPlaying(false)

	case StatePaused:
		if s.cancel != nil {
			s.cancel()
		}
		if s.runDone != nil {
			s.mu.Unlock()
			<-s.runDone
			s.mu.Lock()
		}
		s.cancel = nil
		s.runDone = nil
		s.engine.Shutdown()

	case StateReady:
		s.handle.Release()
		releaseDeviceResources(s.Identifier)
		s.handle = nil
		s.engine = nil
	}

	s.state = prev
	return nil
}

// SetCaps configures the display mode once the framework's caps
// negotiation has settled on one, and starts the output thread. Valid only
// once the element has reached StatePaused or StatePlaying; calling it
// again (a caps change mid-stream) reconfigures in place after draining
// the render queue (§4.6.4).
func (s *Sink) SetCaps(ctx context.Context, mode videoformat.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return errors.New("sink: SetCaps called before reaching StatePaused")
	}

	if s.cancel != nil {
		if !s.engine.RequestDrain() {
			return errors.New("sink: shutdown requested before drain completed")
		}
	}

	if err := s.engine.Configure(ctx, mode); err != nil {
		return errors.Wrap(err, "sink: configure")
	}

	if s.cancel == nil {
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.runDone = make(chan struct{})
		engine := s.engine
		done := s.runDone
		go func() {
			defer close(done)
			if err := engine.Run(runCtx); err != nil {
				log.Warn("sink %q channel %d: run: %v", s.Identifier, s.Config.Channel, err)
			}
		}()
	}
	return nil
}

// Render hands one composite frame to the playout engine's render path
// (§4.6.2), forwarding the result unchanged.
func (s *Sink) Render(f *queue.Frame) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return errors.New("sink: Render called before reaching StatePaused")
	}
	return engine.Render(f)
}
