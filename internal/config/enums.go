// Package config holds the channel configuration value object (§3) and the
// finite enumerations it is built from. Each enumeration implements
// pflag.Value (String/Set/Type) so it can be independently parsed and
// validated the way pflag-backed command-line flags are, even though the
// CLI driver itself is out of this core's scope (§1).
package config

import "fmt"

// enumTable is a tiny generic helper backing every enumeration below: a
// stable, ordered list of (name, value) pairs generated once, per §9's
// "wide enumerations ... generate them from a single table of records".
type enumTable[T comparable] struct {
	names  []string
	values []T
}

func (t enumTable[T]) parse(s string) (T, bool) {
	for i, n := range t.names {
		if n == s {
			return t.values[i], true
		}
	}
	var zero T
	return zero, false
}

func (t enumTable[T]) name(v T) string {
	for i, vv := range t.values {
		if vv == v {
			return t.names[i]
		}
	}
	return "?"
}

// SDIMode selects single-link vs. one of the two quad-link wire formats.
type SDIMode int

const (
	SDISingleLink SDIMode = iota
	SDIQuadLinkSQD
	SDIQuadLinkTSI
)

var sdiModeTable = enumTable[SDIMode]{
	names:  []string{"single-link", "quad-link-sqd", "quad-link-tsi"},
	values: []SDIMode{SDISingleLink, SDIQuadLinkSQD, SDIQuadLinkTSI},
}

func (m SDIMode) String() string       { return sdiModeTable.name(m) }
func (m *SDIMode) Set(s string) error  { return setEnum(m, sdiModeTable, s) }
func (SDIMode) Type() string           { return "sdi-mode" }
func (m SDIMode) IsQuad() bool         { return m != SDISingleLink }
func (m SDIMode) IsQuadLinkTSI() bool  { return m == SDIQuadLinkTSI }

// AudioSystem identifies one of the device's independent audio systems, or
// AUTO to let the engine pick one.
type AudioSystem int

const AudioSystemAuto AudioSystem = 0

func (a AudioSystem) String() string {
	if a == AudioSystemAuto {
		return "auto"
	}
	return fmt.Sprintf("%d", int(a))
}
func (a *AudioSystem) Set(s string) error {
	if s == "auto" || s == "" {
		*a = AudioSystemAuto
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 || n > 8 {
		return fmt.Errorf("invalid audio system %q: must be 1-8 or auto", s)
	}
	*a = AudioSystem(n)
	return nil
}
func (AudioSystem) Type() string { return "audio-system" }

// Destination identifies an input or output connector.
type Destination int

const (
	DestAuto Destination = iota
	DestSDI1
	DestSDI2
	DestSDI3
	DestSDI4
	DestSDI5
	DestSDI6
	DestSDI7
	DestSDI8
	DestHDMI1
	DestHDMI2
	DestHDMI3
	DestHDMI4
	DestAnalog
)

var destTable = enumTable[Destination]{
	names: []string{
		"auto",
		"sdi-1", "sdi-2", "sdi-3", "sdi-4", "sdi-5", "sdi-6", "sdi-7", "sdi-8",
		"hdmi-1", "hdmi-2", "hdmi-3", "hdmi-4",
		"analog",
	},
	values: []Destination{
		DestAuto,
		DestSDI1, DestSDI2, DestSDI3, DestSDI4, DestSDI5, DestSDI6, DestSDI7, DestSDI8,
		DestHDMI1, DestHDMI2, DestHDMI3, DestHDMI4,
		DestAnalog,
	},
}

func (d Destination) String() string      { return destTable.name(d) }
func (d *Destination) Set(s string) error { return setEnum(d, destTable, s) }
func (Destination) Type() string          { return "destination" }
func (d Destination) IsHDMI() bool        { return d >= DestHDMI1 && d <= DestHDMI4 }
func (d Destination) IsSDI() bool         { return d >= DestSDI1 && d <= DestSDI8 }

// SDIIndex returns the 1-based SDI input/output index for an SDI
// destination, and false otherwise.
func (d Destination) SDIIndex() (int, bool) {
	if !d.IsSDI() {
		return 0, false
	}
	return int(d-DestSDI1) + 1, true
}

// AudioSource identifies where captured/played-out audio comes from or
// goes to.
type AudioSource int

const (
	AudioEmbedded AudioSource = iota
	AudioAES
	AudioAnalog
	AudioHDMI
	AudioMic
)

var audioSourceTable = enumTable[AudioSource]{
	names:  []string{"embedded", "aes", "analog", "hdmi", "mic"},
	values: []AudioSource{AudioEmbedded, AudioAES, AudioAnalog, AudioHDMI, AudioMic},
}

func (a AudioSource) String() string      { return audioSourceTable.name(a) }
func (a *AudioSource) Set(s string) error { return setEnum(a, audioSourceTable, s) }
func (AudioSource) Type() string          { return "audio-source" }

// ReferenceSource selects the genlock reference.
type ReferenceSource int

const (
	RefAuto ReferenceSource = iota
	RefExternal
	RefFreerun
	RefSDI1
	RefSDI2
	RefSDI3
	RefSDI4
	RefSDI5
	RefSDI6
	RefSDI7
	RefSDI8
)

var refTable = enumTable[ReferenceSource]{
	names: []string{
		"auto", "external", "freerun",
		"sdi-1", "sdi-2", "sdi-3", "sdi-4", "sdi-5", "sdi-6", "sdi-7", "sdi-8",
	},
	values: []ReferenceSource{
		RefAuto, RefExternal, RefFreerun,
		RefSDI1, RefSDI2, RefSDI3, RefSDI4, RefSDI5, RefSDI6, RefSDI7, RefSDI8,
	},
}

func (r ReferenceSource) String() string      { return refTable.name(r) }
func (r *ReferenceSource) Set(s string) error { return setEnum(r, refTable, s) }
func (ReferenceSource) Type() string          { return "reference-source" }

// TimecodeIndex selects which RP188/LTC register the engines read/write.
type TimecodeIndex int

const (
	TCEmbeddedVITC TimecodeIndex = iota
	TCAtcLTC
	TCAnalogLTC1
	TCAnalogLTC2
)

var tcTable = enumTable[TimecodeIndex]{
	names:  []string{"vitc", "atc-ltc", "ltc-1", "ltc-2"},
	values: []TimecodeIndex{TCEmbeddedVITC, TCAtcLTC, TCAnalogLTC1, TCAnalogLTC2},
}

func (t TimecodeIndex) String() string      { return tcTable.name(t) }
func (t *TimecodeIndex) Set(s string) error { return setEnum(t, tcTable, s) }
func (TimecodeIndex) Type() string          { return "timecode-index" }

// CCPolicy is the closed-caption capture policy (§3): which VANC CC
// standards to attach, and with what precedence when both are present.
type CCPolicy int

const (
	CCNone CCPolicy = iota
	CC708And608
	CC708Or608
	CC608Or708
	CC708Only
	CC608Only
)

var ccTable = enumTable[CCPolicy]{
	names: []string{"none", "cea708-and-cea608", "cea708-or-cea608", "cea608-or-cea708", "cea708-only", "cea608-only"},
	values: []CCPolicy{
		CCNone, CC708And608, CC708Or608, CC608Or708, CC708Only, CC608Only,
	},
}

func (c CCPolicy) String() string      { return ccTable.name(c) }
func (c *CCPolicy) Set(s string) error { return setEnum(c, ccTable, s) }
func (CCPolicy) Type() string          { return "cc-policy" }

// WantsCEA708 and WantsCEA608 report whether the policy ever attaches the
// respective standard.
func (c CCPolicy) WantsCEA708() bool {
	return c == CC708And608 || c == CC708Or608 || c == CC608Or708 || c == CC708Only
}
func (c CCPolicy) WantsCEA608() bool {
	return c == CC708And608 || c == CC708Or608 || c == CC608Or708 || c == CC608Only
}

// Prefer708WhenBoth reports whether, when both CC standards are present in
// the same VANC, 708 wins (true) or 608 wins (false). Only meaningful for
// the two "or" policies; the "and" policy attaches both.
func (c CCPolicy) Prefer708WhenBoth() bool {
	return c == CC708Or608
}

func setEnum[T comparable](dst *T, t enumTable[T], s string) error {
	v, ok := t.parse(s)
	if !ok {
		return fmt.Errorf("invalid value %q (want one of %v)", s, t.names)
	}
	*dst = v
	return nil
}
