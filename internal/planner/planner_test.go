package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanEmptyDevice(t *testing.T) {
	res, ok := Plan(Request{Channel: 0, DesiredCount: 8, Multiplier: 1, TotalFrames: 512}, nil)
	assert.True(t, ok)
	assert.Equal(t, Result{Start: 0, End: 7}, res)
}

// TestPlanScenario6 mirrors the worked example: channel 1 already running
// [0,7] at multiplier 1; channel 0 then requests 8 frames at multiplier 1
// (lands at [8,15]); channel 5 then requests 8 frames at multiplier 4 and
// must land at the smallest multiple-of-4 start at or past 16.
func TestPlanScenario6(t *testing.T) {
	running := []Running{{Channel: 1, Start: 0, End: 7, Multiplier: 1}}

	res, ok := Plan(Request{Channel: 0, DesiredCount: 8, Multiplier: 1, TotalFrames: 512}, running)
	assert.True(t, ok)
	assert.Equal(t, Result{Start: 8, End: 15}, res)

	running = append(running, Running{Channel: 0, Start: 8, End: 15, Multiplier: 1})

	res, ok = Plan(Request{Channel: 5, DesiredCount: 8, Multiplier: 4, TotalFrames: 512}, running)
	assert.True(t, ok)
	assert.Equal(t, Result{Start: 4, End: 11}, res)
}

func TestPlanExcludesOwnPriorRange(t *testing.T) {
	running := []Running{{Channel: 2, Start: 0, End: 7, Multiplier: 1}}
	res, ok := Plan(Request{Channel: 2, DesiredCount: 8, Multiplier: 1, TotalFrames: 16}, running)
	assert.True(t, ok)
	assert.Equal(t, Result{Start: 0, End: 7}, res)
}

func TestPlanFailsWhenDeviceFull(t *testing.T) {
	running := []Running{{Channel: 1, Start: 0, End: 15, Multiplier: 1}}
	_, ok := Plan(Request{Channel: 0, DesiredCount: 1, Multiplier: 1, TotalFrames: 16}, running)
	assert.False(t, ok)
}

func TestPlanQuadAlignment(t *testing.T) {
	// A single occupied HD-frame at index 3 should force a quad (mult=4)
	// request to skip past the whole [0,3] normalized block it overlaps,
	// landing at the next multiple of 4.
	running := []Running{{Channel: 1, Start: 3, End: 3, Multiplier: 1}}
	res, ok := Plan(Request{Channel: 0, DesiredCount: 1, Multiplier: 4, TotalFrames: 64}, running)
	assert.True(t, ok)
	assert.Equal(t, Result{Start: 1, End: 1}, res) // normalized [4,7]
}
