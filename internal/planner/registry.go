package planner

import "sync"

// Registry tracks which channels on one device currently hold a planned
// frame range, so a new Plan call can see every other channel's occupied
// window (§4.3). One Registry is shared per device, the same way C1's
// device handle is shared per device identifier.
type Registry struct {
	mu      sync.Mutex
	running map[int]Running
}

// NewRegistry constructs an empty per-device registry.
func NewRegistry() *Registry {
	return &Registry{running: map[int]Running{}}
}

// Plan finds a window for req, consulting every other channel currently
// registered, and -- on success -- registers it for req.Channel so
// subsequent Plan calls for other channels see it occupied.
func (r *Registry) Plan(req Request) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var running []Running
	for ch, rr := range r.running {
		if ch == req.Channel {
			continue
		}
		running = append(running, rr)
	}

	res, ok := Plan(req, running)
	if !ok {
		return res, false
	}

	r.running[req.Channel] = Running{
		Channel:    req.Channel,
		Start:      res.Start,
		End:        res.End,
		Multiplier: req.Multiplier,
	}
	return res, true
}

// Release frees ch's registered range, e.g. on AutoCirculateStop /
// teardown.
func (r *Registry) Release(ch int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, ch)
}

// Running reports the currently-registered range for ch, if any.
func (r *Registry) Running(ch int) (Running, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.running[ch]
	return rr, ok
}
