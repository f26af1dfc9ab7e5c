package element

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/gstreamer-aja/internal/capture"
	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/queue"
)

// Source is the capture-side element C6 is exposed through: one
// device-identifier property plus the channel configuration of §3, and the
// null/ready/paused/playing lifecycle mapped onto capture.Engine's own
// Configure/Run/Shutdown calls.
type Source struct {
	// Identifier and Config are the element's properties (§6); set them
	// before the first SetState(StateReady) call. Changing them once the
	// element has left StateNull has no effect until it returns there.
	Identifier string
	Config     config.ChannelConfig

	mu    sync.Mutex
	state State

	handle  device.Handle
	engine  *capture.Engine
	cancel  context.CancelFunc
	runDone chan struct{}
}

// NewSource constructs a Source in StateNull for the given device
// identifier, with cfg as its initial channel configuration.
func NewSource(identifier string, cfg config.ChannelConfig) *Source {
	return &Source{Identifier: identifier, Config: cfg, state: StateNull}
}

// State reports the element's current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Out returns the bounded queue the capture engine publishes Frame/
// SignalChange/FramesDropped/Error items to, once the element has reached
// StatePaused or later. Returns nil before then.
func (s *Source) Out() *queue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Out
}

// Signal reports whether the source currently sees an input signal, the
// read-only "signal" property of §6. False before the element reaches
// StatePlaying.
func (s *Source) Signal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return false
	}
	return s.engine.Signal()
}

// SetState drives the element toward target, one step at a time, the way a
// framework base class walks an element through every intermediate state
// on a multi-step request (e.g. null directly to playing passes through
// ready and paused).
func (s *Source) SetState(ctx context.Context, target State) error {
	for {
		s.mu.Lock()
		cur := s.state
		s.mu.Unlock()
		if cur == target {
			return nil
		}

		var err error
		if target > cur {
			err = s.stepUp(ctx)
		} else {
			err = s.stepDown()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Source) stepUp(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.state.next()
	if !ok {
		return errors.Errorf("source: no forward transition from %s", s.state)
	}

	switch next {
	case StateReady:
		h, err := device.Open(s.Identifier)
		if err != nil {
			return errors.Wrapf(err, "source: opening device %q", s.Identifier)
		}
		res, err := acquireDeviceResources(s.Identifier)
		if err != nil {
			h.Release()
			return err
		}
		s.handle = h
		s.engine = capture.New(s.Config, h, res.setupMu, res.ranges, defaultTotalFrames)

	case StatePaused:
		if err := s.engine.Configure(ctx); err != nil {
			return errors.Wrap(err, "source: configure")
		}

	case StatePlaying:
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.runDone = make(chan struct{})
		engine := s.engine
		done := s.runDone
		go func() {
			defer close(done)
			if err := engine.Run(runCtx); err != nil {
				log.Warn("source %q channel %d: run: %v", s.Identifier, s.Config.Channel, err)
			}
		}()
	}

	s.state = next
	return nil
}

func (s *Source) stepDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.state.prev()
	if !ok {
		return errors.Errorf("source: no backward transition from %s", s.state)
	}

	switch s.state {
	case StatePlaying:
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

	case StatePaused:
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
