package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default(0)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.AutoAssign())
}

func TestValidateRejectsOutOfRangeChannel(t *testing.T) {
	cfg := Default(8)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroQueueSize(t *testing.T) {
	cfg := Default(0)
	cfg.QueueSize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateNonHDMIQuadOnlyOnChannelOneOrFive(t *testing.T) {
	cfg := Default(2)
	cfg.SDIMode = SDIQuadLinkSQD
	cfg.Destination = DestAuto
	assert.Error(t, cfg.Validate())

	cfg.Channel = 0
	assert.NoError(t, cfg.Validate())

	cfg.Channel = 4
	assert.NoError(t, cfg.Validate())
}

func TestValidateNonHDMIQuadRequiresAutoDestination(t *testing.T) {
	cfg := Default(0)
	cfg.SDIMode = SDIQuadLinkSQD
	cfg.Destination = DestSDI1
	assert.Error(t, cfg.Validate())
}

func TestValidateHDMIQuadAllowedOnAnyChannel(t *testing.T) {
	cfg := Default(2)
	cfg.Destination = DestHDMI1
	assert.NoError(t, cfg.Validate())
}

func TestNeedsQuad(t *testing.T) {
	cfg := Default(0)
	assert.False(t, cfg.NeedsQuad())

	cfg.SDIMode = SDIQuadLinkTSI
	assert.True(t, cfg.NeedsQuad())

	cfg = Default(0)
	cfg.Destination = DestHDMI1
	assert.True(t, cfg.NeedsQuad())
}

func TestQuadMultiplier(t *testing.T) {
	cfg := Default(0)
	assert.Equal(t, 1, cfg.QuadMultiplier(false))

	cfg.SDIMode = SDIQuadLinkSQD
	assert.Equal(t, 4, cfg.QuadMultiplier(false))
	assert.Equal(t, 8, cfg.QuadMultiplier(true))
}

func TestAutoAssignFalseWhenRangeGiven(t *testing.T) {
	cfg := Default(0)
	cfg.StartFrame, cfg.EndFrame = 0, 7
	assert.False(t, cfg.AutoAssign())
}

func TestRegisterFlagsParsesEnums(t *testing.T) {
	cfg := Default(0)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs, "")

	require.NoError(t, fs.Parse([]string{
		"--sdi-mode=quad-link-tsi",
		"--destination=hdmi-2",
		"--reference=external",
		"--timecode=atc-ltc",
		"--cc-policy=cea608-only",
		"--queue-size=32",
		"--channel=3",
	}))

	assert.Equal(t, SDIQuadLinkTSI, cfg.SDIMode)
	assert.Equal(t, DestHDMI2, cfg.Destination)
	assert.Equal(t, RefExternal, cfg.ReferenceSource)
	assert.Equal(t, TCAtcLTC, cfg.TimecodeIndex)
	assert.Equal(t, CC608Only, cfg.CCPolicy)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 3, cfg.Channel)
}

func TestEnumSetRejectsUnknownValue(t *testing.T) {
	var m SDIMode
	assert.Error(t, m.Set("bogus"))

	var d Destination
	assert.Error(t, d.Set("sdi-9"))
}

func TestDestinationHelpers(t *testing.T) {
	assert.True(t, DestHDMI3.IsHDMI())
	assert.False(t, DestSDI1.IsHDMI())
	assert.True(t, DestSDI4.IsSDI())

	idx, ok := DestSDI1.SDIIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = DestHDMI1.SDIIndex()
	assert.False(t, ok)
}

func TestAudioSystemAutoRoundTrip(t *testing.T) {
	var a AudioSystem
	require.NoError(t, a.Set("auto"))
	assert.Equal(t, AudioSystemAuto, a)
	assert.Equal(t, "auto", a.String())

	require.NoError(t, a.Set("4"))
	assert.Equal(t, AudioSystem(4), a)
	assert.Equal(t, "4", a.String())

	assert.Error(t, a.Set("9"))
	assert.Error(t, a.Set("0"))
}

func TestCCPolicyPreferenceHelpers(t *testing.T) {
	assert.True(t, CC708And608.WantsCEA708())
	assert.True(t, CC708And608.WantsCEA608())

	assert.True(t, CC708Or608.WantsCEA708())
	assert.True(t, CC708Or608.Prefer708WhenBoth())

	assert.True(t, CC608Or708.WantsCEA608())
	assert.False(t, CC608Or708.Prefer708WhenBoth())

	assert.True(t, CC708Only.WantsCEA708())
	assert.False(t, CC708Only.WantsCEA608())

	assert.True(t, CC608Only.WantsCEA608())
	assert.False(t, CC608Only.WantsCEA708())

	assert.False(t, CCNone.WantsCEA708())
	assert.False(t, CCNone.WantsCEA608())
}
