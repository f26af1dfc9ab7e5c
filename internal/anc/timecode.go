// Package anc derives structured output metadata from the raw bytes the
// capture engine pulls off the wire: RP188 timecode registers, VANC/custom
// ANC closed-caption packets, and AFD/Bar signaling (§4.5.5).
//
// There's no direct analogue for broadcast ancillary data in the wider
// pack, so this package follows the general small-decoder parsing idiom
// seen across it: allocation-light decoders operating on a byte slice
// view, returning a typed struct or an error.
package anc

import (
	"fmt"

	"github.com/lanikai/gstreamer-aja/internal/device"
	"github.com/lanikai/gstreamer-aja/internal/videoformat"
)

// TimecodeFormat is the tc_format of a timecode: its nominal frame rate and
// whether it drops frame numbers to track wall-clock time.
type TimecodeFormat int

const (
	TCFormat24 TimecodeFormat = iota
	TCFormat25
	TCFormat30
	TCFormat30Drop
	TCFormat48
	TCFormat50
	TCFormat60
	TCFormat60Drop
)

func (f TimecodeFormat) String() string {
	switch f {
	case TCFormat24:
		return "24"
	case TCFormat25:
		return "25"
	case TCFormat30:
		return "30"
	case TCFormat30Drop:
		return "30DF"
	case TCFormat48:
		return "48"
	case TCFormat50:
		return "50"
	case TCFormat60:
		return "60"
	case TCFormat60Drop:
		return "60DF"
	default:
		return "unknown"
	}
}

// Timecode is the structured, human-addressable form of an RP188 register
// triple (§4.5.5: "translate to a structured timecode value with an
// explicit tc_format derived from the detected frame rate").
type Timecode struct {
	Hours, Minutes, Seconds, Frames int
	DropFrame                       bool
	Format                          TimecodeFormat
	Valid                           bool
}

// FormatForRate derives the tc_format a given video Mode's rate implies
// (§4.5.5). Rates are matched to the nearest nominal rate; the x/1001
// variants of 30 and 60 are drop-frame, while 23.98 and 47.95 map to the
// non-drop 24 and 48 formats.
func FormatForRate(m videoformat.Mode) TimecodeFormat {
	num, den := m.RateNum, m.RateDen
	if den == 0 {
		den = 1
	}
	fps := float64(num) / float64(den)
	dropish := den == 1001

	switch {
	case fps > 55:
		if dropish {
			return TCFormat60Drop
		}
		return TCFormat60
	case fps > 49:
		return TCFormat50
	case fps > 45:
		return TCFormat48
	case fps > 27:
		if dropish {
			return TCFormat30Drop
		}
		return TCFormat30
	case fps > 24.5:
		return TCFormat25
	default:
		return TCFormat24
	}
}

// Decode translates a raw RP188 register triple into a structured
// Timecode, recording tcFormat (from FormatForRate) and the drop-frame flag
// it implies; the BCD fields are taken as read, without range checks.
func Decode(rp device.RP188, tcFormat TimecodeFormat) Timecode {
	if !rp.Valid {
		return Timecode{Format: tcFormat}
	}

	// RP188's Low/High registers pack two BCD digits per nibble-pair, one
	// field each for frames, seconds, minutes, hours, matching SMPTE
	// 12M's linear timecode word layout.
	frames := bcdPair(rp.Low, 0)
	seconds := bcdPair(rp.Low, 16)
	minutes := bcdPair(rp.High, 0)
	hours := bcdPair(rp.High, 16)

	drop := tcFormat == TCFormat30Drop || tcFormat == TCFormat60Drop

	return Timecode{
		Hours:      hours,
		Minutes:    minutes,
		Seconds:    seconds,
		Frames:     frames,
		DropFrame:  drop,
		Format:     tcFormat,
		Valid:      true,
	}
}

// bcdPair reads two BCD digits (tens, units) packed starting at bit offset
// shift within a 32-bit register, as RP188's DBB-adjacent Low/High words
// do for each of frames/seconds/minutes/hours.
func bcdPair(reg uint32, shift uint) int {
	v := (reg >> shift) & 0xff
	units := v & 0x0f
	tens := (v >> 4) & 0x0f
	return int(tens)*10 + int(units)
}

// Encode is Decode's inverse: it packs a structured Timecode back into an
// RP188 register triple, for the playout render path (§4.6.2 step 3:
// "convert a structured timecode to RP188 using the tc_format derived
// from the configured frame rate").
func Encode(t Timecode) device.RP188 {
	if !t.Valid {
		return device.RP188{}
	}
	low := bcdByte(t.Frames) | bcdByte(t.Seconds)<<16
	high := bcdByte(t.Minutes) | bcdByte(t.Hours)<<16
	return device.RP188{Low: low, High: high, Valid: true}
}

// bcdByte packs a 0-99 decimal value into one BCD byte (tens nibble, units
// nibble), the inverse of the tens/units split bcdPair reads back out.
func bcdByte(v int) uint32 {
	tens := (v / 10) % 10
	units := v % 10
	return uint32(tens)<<4 | uint32(units)
}

func (t Timecode) String() string {
	sep := ":"
	if t.DropFrame {
		sep = ";"
	}
	if !t.Valid {
		return "00:00:00:00"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", t.Hours, t.Minutes, t.Seconds, sep, t.Frames)
}
