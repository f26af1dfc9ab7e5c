package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPlanAndRelease(t *testing.T) {
	reg := NewRegistry()

	res, ok := reg.Plan(Request{Channel: 1, DesiredCount: 8, Multiplier: 1, TotalFrames: 512})
	require.True(t, ok)
	assert.Equal(t, Result{Start: 0, End: 7}, res)

	res, ok = reg.Plan(Request{Channel: 0, DesiredCount: 8, Multiplier: 1, TotalFrames: 512})
	require.True(t, ok)
	assert.Equal(t, Result{Start: 8, End: 15}, res)

	reg.Release(1)
	res, ok = reg.Plan(Request{Channel: 2, DesiredCount: 8, Multiplier: 1, TotalFrames: 512})
	require.True(t, ok)
	assert.Equal(t, Result{Start: 0, End: 7}, res, "released channel 1's range should be reusable")
}
