// Package planner implements C4, the frame-range planner: given a channel
// and a desired frame count, it finds an unused window of device frame
// store aligned to that channel's quad-mode multiplier, accounting for
// every other currently-running channel's occupied range (§4.3).
//
// There's no direct precedent for this elsewhere in the module --
// AutoCirculate's frame-store partitioning has no V4L2 counterpart -- so
// this package is new, implemented as plain, dependency-free arithmetic
// over the interval set the rest of the module already tracks via
// Running.
package planner

import "sort"

// Running describes one other channel currently occupying a range of the
// device's frame store.
type Running struct {
	Channel    int
	Start, End int // inclusive, in that channel's own frame-index space
	Multiplier int // quad-mode multiplier in effect for that channel
}

// Request is one frame-range allocation request.
type Request struct {
	// Channel is the requesting channel; only used to exclude a channel's
	// own prior range from Running, and to report Multiplier.
	Channel int

	// DesiredCount is the number of logical (HD-equivalent) frames the
	// requesting channel wants.
	DesiredCount int

	// Multiplier is the requesting channel's quad-mode multiplier: 1 for
	// single-link, 4 for quad (UHD/4K), 8 for quad-quad (8K) (§4.3, §3
	// GLOSSARY "quad multiplier").
	Multiplier int

	// TotalFrames is the device's total addressable frame-store size, in
	// the same normalized HD-frame index space as the occupied ranges
	// below (§4.3: "normalize to a single index space by expanding... to
	// HD-frame units").
	TotalFrames int
}

// Result is the allocated window, in the requesting channel's own
// frame-index space (i.e. already divided back down by Multiplier).
type Result struct {
	Start, End int // inclusive
}

// Plan finds the first window of req.DesiredCount*req.Multiplier normalized
// indices, aligned to a multiple of req.Multiplier, that doesn't overlap
// any of running's occupied ranges (§4.3).
//
// Each Running range is normalized by multiplying its [Start,End] by its
// own Multiplier before taking the union of occupied indices; the returned
// window is then divided back down by req.Multiplier to land in the
// requesting channel's own frame-index space.
func Plan(req Request, running []Running) (Result, bool) {
	width := req.DesiredCount * req.Multiplier
	if width <= 0 || req.Multiplier <= 0 || req.TotalFrames <= 0 {
		return Result{}, false
	}

	occupied := occupiedRanges(req.Channel, running)

	for start := 0; start+width <= req.TotalFrames; start += req.Multiplier {
		if !overlapsAny(start, start+width-1, occupied) {
			return Result{
				Start: start / req.Multiplier,
				End:   (start + width - 1) / req.Multiplier,
			}, true
		}
	}
	return Result{}, false
}

type normRange struct{ start, end int }

func occupiedRanges(requestingChannel int, running []Running) []normRange {
	var ranges []normRange
	for _, r := range running {
		if r.Channel == requestingChannel {
			continue
		}
		mult := r.Multiplier
		if mult <= 0 {
			mult = 1
		}
		ranges = append(ranges, normRange{
			start: r.Start * mult,
			end:   r.End*mult + (mult - 1), // expand to cover the full normalized width
		})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	return ranges
}

func overlapsAny(start, end int, ranges []normRange) bool {
	for _, r := range ranges {
		if start <= r.end && r.start <= end {
			return true
		}
	}
	return false
}
