// Package element implements C1's consumer-facing half: the two framework
// elements (source, sink) §6 calls for, each exposing one device-identifier
// property plus the channel configuration of §3, and mapping the
// framework's null/ready/paused/playing state machine onto the capture and
// playout engines' own Configure/Run/Shutdown lifecycle.
//
// Grounded on a top-level connection-object idiom: a value that owns a
// cancelable context, builds up a handful of sub-components across its
// lifetime, and tears all of it down from one Close/state-transition
// call -- the same shape this package's state machine follows one level
// up from the capture/playout engines.
package element

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/logging"
	"github.com/lanikai/gstreamer-aja/internal/planner"
)

var log = logging.DefaultLogger.WithTag("element")

// State is the framework's four-state element lifecycle (§6): "element
// state-machine hooks (null<->ready<->paused<->playing) with the stated
// lifecycle mapping".
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// next and prev are the only single-step transitions the state machine
// accepts; SetState walks one step at a time toward the target the same
// way a framework base class drives an element through every intermediate
// state on a multi-step request.
func (s State) next() (State, bool) {
	switch s {
	case StateNull:
		return StateReady, true
	case StateReady:
		return StatePaused, true
	case StatePaused:
		return StatePlaying, true
	default:
		return s, false
	}
}

func (s State) prev() (State, bool) {
	switch s {
	case StatePlaying:
		return StatePaused, true
	case StatePaused:
		return StateReady, true
	case StateReady:
		return StateNull, true
	default:
		return s, false
	}
}

// defaultTotalFrames is this core's normalized frame-store size (§4.3):
// the device capability surface this module builds against has no
// query for it, so every channel on a device plans against the same
// fixed HD-frame-equivalent budget.
const defaultTotalFrames = 32

// deviceResources is the per-device shared state C2 (the setup mutex) and
// C4 (the frame-range planner) require: every channel -- source or sink --
// opened against the same identifier shares one of each, the same way
// device.Open shares one Hardware per identifier.
type deviceResources struct {
	setupMu *device.GlobalSetupMutex
	ranges  *planner.Registry
	refs    int
}

var (
	sharedMu  sync.Mutex
	sharedRes = map[string]*deviceResources{}
)

// acquireDeviceResources returns the shared setup mutex and frame-range
// registry for identifier, opening the named semaphore on first use and
// ref-counting subsequent acquisitions so every channel on the device
// contends for the same mutex and plans against the same registry.
func acquireDeviceResources(identifier string) (*deviceResources, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if r, ok := sharedRes[identifier]; ok {
		r.refs++
		return r, nil
	}

	m, err := device.OpenGlobalSetupMutex(device.SemaphoreName)
	if err != nil {
		return nil, errors.Wrapf(err, "opening global setup mutex for device %q", identifier)
	}
	r := &deviceResources{setupMu: m, ranges: planner.NewRegistry(), refs: 1}
	sharedRes[identifier] = r
	return r, nil
}

// releaseDeviceResources drops one reference, closing the underlying
// semaphore file descriptor once nothing on this device holds it anymore.
func releaseDeviceResources(identifier string) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	r, ok := sharedRes[identifier]
	if !ok {
		return
	}
	r.refs--
	if r.refs <= 0 {
		delete(sharedRes, identifier)
		if err := r.setupMu.Close(); err != nil {
			log.Warn("device %q: closing global setup mutex: %v", identifier, err)
		}
	}
}
