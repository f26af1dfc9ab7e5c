package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// ChannelConfig is the channel configuration value object of §3: everything
// needed to bring up one capture or playout channel.
type ChannelConfig struct {
	Channel int // 0-7

	SDIMode         SDIMode
	AudioSystem     AudioSystem
	Destination     Destination
	AudioSource     AudioSource
	ReferenceSource ReferenceSource
	TimecodeIndex   TimecodeIndex
	CCPolicy        CCPolicy

	QueueSize int

	// Frame-buffer allocation range. StartFrame == EndFrame means
	// "auto-assign QueueSize contiguous frames" (§3).
	StartFrame, EndFrame int

	// Optional CPU core pinned for the worker thread. Negative means
	// unset.
	WorkerCPUCore int

	RP188 bool
}

// Default returns a ChannelConfig with the same defaults the command-line
// flags below apply (AUTO everywhere sensible, a 16-frame queue).
func Default(channel int) ChannelConfig {
	return ChannelConfig{
		Channel:         channel,
		SDIMode:         SDISingleLink,
		AudioSystem:     AudioSystemAuto,
		Destination:     DestAuto,
		AudioSource:     AudioEmbedded,
		ReferenceSource: RefAuto,
		TimecodeIndex:   TCEmbeddedVITC,
		CCPolicy:        CC708And608,
		QueueSize:       16,
		WorkerCPUCore:   -1,
		RP188:           true,
	}
}

// AutoAssign reports whether the frame range should be planned rather than
// taken literally.
func (c ChannelConfig) AutoAssign() bool { return c.StartFrame == c.EndFrame }

// Validate checks the static invariants of §3/§4.5.2 step 1 that don't
// require a live device: channel range, queue size, and the HDMI/quad
// legality rule ("reject configurations that request non-HDMI quad on
// channels other than 1 or 5, or quad with a non-auto non-HDMI input
// source").
func (c ChannelConfig) Validate() error {
	if c.Channel < 0 || c.Channel > 7 {
		return errors.Errorf("channel %d out of range [0,7]", c.Channel)
	}
	if c.QueueSize < 1 {
		return errors.Errorf("queue-size must be >= 1, got %d", c.QueueSize)
	}
	if c.NeedsQuad() {
		if !c.Destination.IsHDMI() {
			if c.Channel != 0 && c.Channel != 4 {
				return errors.Errorf("non-HDMI quad only supported on channel 1 or 5 (0-indexed 0 or 4), got channel %d", c.Channel)
			}
			if c.Destination != DestAuto {
				return errors.Errorf("non-HDMI quad requires an AUTO input source, got %s", c.Destination)
			}
		}
	}
	return nil
}

// NeedsQuad implements §4.5.2 step 1's quad-mode need computation: quad if
// the SDI mode is quad-link, or the input is HDMI (HDMI is internally
// quad).
func (c ChannelConfig) NeedsQuad() bool {
	return c.SDIMode.IsQuad() || c.Destination.IsHDMI()
}

// QuadMultiplier returns the frame-index multiplier C4 uses to normalize
// this channel's occupied range into the shared HD-frame index space: 1 for
// single-link, 4 for quad, 8 for quad-quad (8K).
func (c ChannelConfig) QuadMultiplier(is8K bool) int {
	switch {
	case !c.NeedsQuad():
		return 1
	case is8K:
		return 8
	default:
		return 4
	}
}

// RegisterFlags registers every field of c as a pflag in fs, using the
// enumeration Value implementations above, so a caller embedding this core
// in a CLI (out of scope here, but a real consumer of this package) gets
// parsing/validation for free.
func (c *ChannelConfig) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	fs.IntVar(&c.Channel, prefix+"channel", c.Channel, "channel index (0-7)")
	fs.Var(&c.SDIMode, prefix+"sdi-mode", "single-link, quad-link-sqd, or quad-link-tsi")
	fs.Var(&c.AudioSystem, prefix+"audio-system", "audio system 1-8, or auto")
	fs.Var(&c.Destination, prefix+"destination", "sdi-N, hdmi-N, analog, or auto")
	fs.Var(&c.AudioSource, prefix+"audio-source", "embedded, aes, analog, hdmi, or mic")
	fs.Var(&c.ReferenceSource, prefix+"reference", "auto, external, freerun, or sdi-N")
	fs.Var(&c.TimecodeIndex, prefix+"timecode", "vitc, atc-ltc, ltc-1, or ltc-2")
	fs.Var(&c.CCPolicy, prefix+"cc-policy", "closed-caption capture policy")
	fs.IntVar(&c.QueueSize, prefix+"queue-size", c.QueueSize, "bounded queue depth in frames")
	fs.IntVar(&c.StartFrame, prefix+"start-frame", c.StartFrame, "frame range start (start==end: auto-assign)")
	fs.IntVar(&c.EndFrame, prefix+"end-frame", c.EndFrame, "frame range end (start==end: auto-assign)")
	fs.IntVar(&c.WorkerCPUCore, prefix+"worker-cpu", c.WorkerCPUCore, "CPU core to pin the worker thread to, or -1")
	fs.BoolVar(&c.RP188, prefix+"rp188", c.RP188, "enable RP188 timecode transfer")
}
