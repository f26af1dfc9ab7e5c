package anc

import "github.com/lanikai/gstreamer-aja/internal/config"

// CDPPacket holds the CEA-708 caption distribution packet bytes extracted
// from VANC line 9/10 (or the custom-ANC equivalent), still in wire form;
// downstream caption decoding/rendering is out of this core's scope (§1
// non-goal: no caption rendering, only capture/attachment).
type CDPPacket struct {
	Data []byte
}

// S3341APacket holds the CEA-608-in-S334-1A payload bytes, similarly
// unrendered.
type S3341APacket struct {
	Data []byte
}

// Captions is the per-frame attachment result: zero or more of each
// standard's packets, selected and ordered according to a CCPolicy
// (§4.5.5: "apply the configured CC policy to decide which of the two
// standards, if both are present, get attached and in what order").
type Captions struct {
	CEA708 []CDPPacket
	CEA608 []S3341APacket
}

// rawVANC is what the VANC/custom-ANC parser hands up before policy
// filtering: every candidate packet found on the line, tagged by which
// standard it decodes as.
type rawVANC struct {
	cea708 []CDPPacket
	cea608 []S3341APacket
}

// applyPolicy filters and orders raw to match policy. When policy is one
// of the "or" variants and both standards are present, only the preferred
// one is kept; "and" keeps both; "only" variants keep exactly one
// regardless of what else was found; CCNone drops everything.
func applyPolicy(raw rawVANC, policy config.CCPolicy) Captions {
	var out Captions

	want708 := policy.WantsCEA708() && len(raw.cea708) > 0
	want608 := policy.WantsCEA608() && len(raw.cea608) > 0

	switch policy {
	case config.CC708Or608, config.CC608Or708:
		if want708 && want608 {
			if policy.Prefer708WhenBoth() {
				want608 = false
			} else {
				want708 = false
			}
		}
	}

	if want708 {
		out.CEA708 = raw.cea708
	}
	if want608 {
		out.CEA608 = raw.cea608
	}
	return out
}

// ParseVANCCaptions scans a VANC (or custom-ANC) payload line for CEA-708
// CDP and CEA-608 S334-1A ancillary packets, applying policy to decide
// what the caller receives. lines may be one element (progressive/PSF) or
// two (interlaced field 1 and field 2); when two are given their captions
// are concatenated in field order.
//
// Packet parsing here is deliberately shallow: it locates ANC packets by
// their well-known Data ID (DID) / Secondary Data ID (SDID) pair and
// hands back their user-data-words payload unparsed, since this core
// attaches caption bytes rather than decoding caption text (§1 non-goal).
func ParseVANCCaptions(lines [][]byte, policy config.CCPolicy) Captions {
	var raw rawVANC
	for _, line := range lines {
		for _, pkt := range scanANCPackets(line) {
			switch {
			case pkt.did == 0x61 && pkt.sdid == 0x01: // CEA-708 CDP
				raw.cea708 = append(raw.cea708, CDPPacket{Data: pkt.userData})
			case pkt.did == 0x61 && pkt.sdid == 0x02: // CEA-608 S334-1A
				raw.cea608 = append(raw.cea608, S3341APacket{Data: pkt.userData})
			}
		}
	}
	return applyPolicy(raw, policy)
}

type ancPacket struct {
	did, sdid byte
	userData  []byte
}

// scanANCPackets walks a VANC line's packets in SMPTE 291M framing: each
// packet is [ancillary data flag x3][DID][SDID][data count][user data
// words...][checksum]. Multi-word (10-bit) packing is approximated here
// as one byte per word, matching this core's treatment of VANC payload as
// opaque attachment bytes rather than a bit-exact 10-bit-word decode.
func scanANCPackets(line []byte) []ancPacket {
	const headerLen = 5 // 3 ANC flag bytes + DID + SDID, data count read separately
	var out []ancPacket
	i := 0
	for i+headerLen+1 <= len(line) {
		if line[i] != 0x00 || line[i+1] != 0x03 || line[i+2] != 0xFF {
			i++
			continue
		}
		did := line[i+3]
		sdid := line[i+4]
		if i+headerLen+1 > len(line) {
			break
		}
		count := int(line[i+headerLen])
		start := i + headerLen + 1
		end := start + count
		if end > len(line) {
			break
		}
		out = append(out, ancPacket{did: did, sdid: sdid, userData: append([]byte(nil), line[start:end]...)})
		i = end + 1 // skip checksum word
	}
	return out
}

// AFDBar is the decoded Active Format Description / Bar Data ancillary
// packet (SMPTE 2016), attached verbatim as metadata (§4.5.5).
type AFDBar struct {
	AFD            byte
	AspectRatio    byte
	BarDataPresent bool
	BarTop, BarBottom int
	BarLeft, BarRight int
}

// ParseAFDBar extracts an AFD/Bar packet from a VANC line, if present.
func ParseAFDBar(line []byte) (AFDBar, bool) {
	for _, pkt := range scanANCPackets(line) {
		if pkt.did != 0x41 || pkt.sdid != 0x05 || len(pkt.userData) < 1 {
			continue
		}
		afdByte := pkt.userData[0]
		out := AFDBar{
			AFD:         (afdByte >> 3) & 0x0F,
			AspectRatio: (afdByte >> 2) & 0x01,
		}
		if len(pkt.userData) >= 9 {
			out.BarDataPresent = true
			out.BarTop = int(pkt.userData[1])<<8 | int(pkt.userData[2])
			out.BarBottom = int(pkt.userData[3])<<8 | int(pkt.userData[4])
			out.BarLeft = int(pkt.userData[5])<<8 | int(pkt.userData[6])
			out.BarRight = int(pkt.userData[7])<<8 | int(pkt.userData[8])
		}
		return out, true
	}
	return AFDBar{}, false
}
