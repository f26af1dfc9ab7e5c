// Package videoformat holds the video-mode enumeration table (§3 "Video
// format descriptor") and the derived geometry/colorimetry helpers used by
// the capture and playout engines. Modeled as a single table of records per
// §9's "wide enumerations" design note: the table is generated once, and
// per-device usability is obtained by intersecting with a device's
// advertised capability set at runtime (see Supported).
package videoformat

import "fmt"

// FieldOrder describes which field of an interlaced/PSF raster is
// transmitted first.
type FieldOrder int

const (
	FieldOrderNone FieldOrder = iota
	FieldOrderTopFirst
	FieldOrderBottomFirst
)

// Scan describes the raster's scan structure.
type Scan int

const (
	ScanProgressive Scan = iota
	ScanInterlaced
	ScanPSF // progressive segmented frame, carried as two interlaced fields
)

// HardwareID is an opaque per-device format identifier (the SDK's
// NTV2VideoFormat-equivalent enum value). Zero means "not representable".
type HardwareID int

// Mode is one named entry of the video format table. It is immutable once
// constructed; Table holds the canonical set.
type Mode struct {
	Name string

	Width, Height int

	// Display frame rate as a reduced fraction, e.g. 30000/1001 for 29.97p.
	RateNum, RateDen int

	// Pixel aspect ratio, as a reduced fraction. Square (1/1) for
	// everything except 525/625-line SD.
	ParNum, ParDen int

	Scan       Scan
	FieldOrder FieldOrder

	// Single-link and quad-link hardware ids. At most one may be zero
	// (absent); a Mode is only usable in quad-mode when QuadLinkID != 0.
	SingleLinkID HardwareID
	QuadLinkID   HardwareID
}

// Auto is the distinguished sentinel requesting runtime format detection.
var Auto = Mode{Name: "AUTO"}

func (m Mode) IsAuto() bool { return m.Name == "AUTO" || m == Mode{} }

func (m Mode) String() string { return m.Name }

// UsableQuad reports whether m can be used in quad-link mode.
func (m Mode) UsableQuad() bool { return !m.IsAuto() && m.QuadLinkID != 0 }

// FrameDuration returns the nominal frame duration as a reduced fraction of
// seconds (den/num), i.e. the reciprocal of the frame rate.
func (m Mode) FrameDuration() (num, den int) {
	return m.RateDen, m.RateNum
}

func (m Mode) IsInterlaced() bool { return m.Scan != ScanProgressive }

// Table is the full, stable video-mode enumeration (§3). Entries cover the
// partial enumeration of §6: SD 525/625, HD 720p/1080i/1080p/1080psf, 2K
// DCI, UHD/4K square-division and TSI quad-link variants, and 8K/4320p
// quad-quad variants.
var Table = buildTable()

func buildTable() []Mode {
	sq := func(n int) (int, int) { return n, n } // unused placeholder for square PAR below
	_ = sq

	return []Mode{
		// SD (non-square pixel aspect ratio)
		{Name: "525_5994", Width: 720, Height: 486, RateNum: 30000, RateDen: 1001, ParNum: 10, ParDen: 11, Scan: ScanInterlaced, FieldOrder: FieldOrderBottomFirst, SingleLinkID: 1},
		{Name: "625_5000", Width: 720, Height: 576, RateNum: 25, RateDen: 1, ParNum: 59, ParDen: 54, Scan: ScanInterlaced, FieldOrder: FieldOrderTopFirst, SingleLinkID: 2},

		// 720p HD
		{Name: "720p_5994", Width: 1280, Height: 720, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 10},
		{Name: "720p_6000", Width: 1280, Height: 720, RateNum: 60, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 11},
		{Name: "720p_5000", Width: 1280, Height: 720, RateNum: 50, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 12},

		// 1080i/1080PSF HD
		{Name: "1080i_5000", Width: 1920, Height: 1080, RateNum: 25, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanInterlaced, FieldOrder: FieldOrderTopFirst, SingleLinkID: 20},
		{Name: "1080i_5994", Width: 1920, Height: 1080, RateNum: 30000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanInterlaced, FieldOrder: FieldOrderTopFirst, SingleLinkID: 21},
		{Name: "1080i_6000", Width: 1920, Height: 1080, RateNum: 30, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanInterlaced, FieldOrder: FieldOrderTopFirst, SingleLinkID: 22},
		{Name: "1080psf_2500_2", Width: 1920, Height: 1080, RateNum: 25, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanPSF, FieldOrder: FieldOrderTopFirst, SingleLinkID: 20},
		{Name: "1080psf_2997_2", Width: 1920, Height: 1080, RateNum: 30000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanPSF, FieldOrder: FieldOrderTopFirst, SingleLinkID: 21},

		// 1080p HD (including HFR)
		{Name: "1080p_2398", Width: 1920, Height: 1080, RateNum: 24000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 30},
		{Name: "1080p_2400", Width: 1920, Height: 1080, RateNum: 24, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 31},
		{Name: "1080p_2500", Width: 1920, Height: 1080, RateNum: 25, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 32},
		{Name: "1080p_2997", Width: 1920, Height: 1080, RateNum: 30000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 33},
		{Name: "1080p_3000", Width: 1920, Height: 1080, RateNum: 30, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 34},
		{Name: "1080p_5000", Width: 1920, Height: 1080, RateNum: 50, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 35, QuadLinkID: 135},
		{Name: "1080p_5994", Width: 1920, Height: 1080, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 36, QuadLinkID: 136},
		{Name: "1080p_6000", Width: 1920, Height: 1080, RateNum: 60, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 37, QuadLinkID: 137},

		// 2K DCI 1080p
		{Name: "2048x1080p_2398", Width: 2048, Height: 1080, RateNum: 24000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 40},
		{Name: "2048x1080p_2400", Width: 2048, Height: 1080, RateNum: 24, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 41},
		{Name: "2048x1080p_5000", Width: 2048, Height: 1080, RateNum: 50, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 42, QuadLinkID: 142},
		{Name: "2048x1080p_5994", Width: 2048, Height: 1080, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, SingleLinkID: 43, QuadLinkID: 143},

		// UHD (2160p) quad-link square-division / TSI
		{Name: "2160p_2398", Width: 3840, Height: 2160, RateNum: 24000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 200},
		{Name: "2160p_2400", Width: 3840, Height: 2160, RateNum: 24, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 201},
		{Name: "2160p_2500", Width: 3840, Height: 2160, RateNum: 25, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 202},
		{Name: "2160p_2997", Width: 3840, Height: 2160, RateNum: 30000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 203},
		{Name: "2160p_3000", Width: 3840, Height: 2160, RateNum: 30, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 204},
		{Name: "2160p_5000", Width: 3840, Height: 2160, RateNum: 50, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 205},
		{Name: "2160p_5994", Width: 3840, Height: 2160, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 206},
		{Name: "2160p_6000", Width: 3840, Height: 2160, RateNum: 60, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 207},

		// UHD DCI
		{Name: "2160p_DCI_2398", Width: 4096, Height: 2160, RateNum: 24000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 220},
		{Name: "2160p_DCI_5994", Width: 4096, Height: 2160, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 226},

		// 8K (4320p) quad-quad
		{Name: "4320p_2398", Width: 7680, Height: 4320, RateNum: 24000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 300},
		{Name: "4320p_3000", Width: 7680, Height: 4320, RateNum: 30, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 304},
		{Name: "4320p_5000", Width: 7680, Height: 4320, RateNum: 50, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 305},
		{Name: "4320p_5994", Width: 7680, Height: 4320, RateNum: 60000, RateDen: 1001, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 306},
		{Name: "4320p_6000", Width: 7680, Height: 4320, RateNum: 60, RateDen: 1, ParNum: 1, ParDen: 1, Scan: ScanProgressive, QuadLinkID: 307},
	}
}

// ByName looks up a Mode by its canonical name. "AUTO" (case-insensitive)
// returns Auto.
func ByName(name string) (Mode, bool) {
	if name == "" || equalFold(name, "AUTO") {
		return Auto, true
	}
	for _, m := range Table {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// CapabilitySet is a device's advertised capability predicate: whether it
// can drive a given Mode at all, and whether it can drive it in quad mode.
type CapabilitySet interface {
	CanDoVideoFormat(id HardwareID) bool
}

// Supported intersects Table with a device's advertised capabilities,
// returning only the modes the device can actually drive (single-link or
// quad-link, matching the usability rule in UsableQuad).
func Supported(caps CapabilitySet, quad bool) []Mode {
	var out []Mode
	for _, m := range Table {
		id := m.SingleLinkID
		if quad {
			id = m.QuadLinkID
		}
		if id == 0 {
			continue
		}
		if caps.CanDoVideoFormat(id) {
			out = append(out, m)
		}
	}
	return out
}

// QuarterSize returns the per-quadrant/per-link Mode implied by a quad-link
// Mode (the "effective" format of §4.5.3 step 2): same name and timing,
// width/height divided by two in each dimension.
func (m Mode) QuarterSize() Mode {
	q := m
	q.Width /= 2
	q.Height /= 2
	return q
}

func (m Mode) GoString() string {
	return fmt.Sprintf("Mode{%s %dx%d@%d/%d}", m.Name, m.Width, m.Height, m.RateNum, m.RateDen)
}
