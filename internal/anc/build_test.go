package anc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/gstreamer-aja/internal/config"
	"github.com/lanikai/gstreamer-aja/internal/device"
)

func TestEncodeInvertsDecode(t *testing.T) {
	rp := device.RP188{Low: uint32(0x34<<16 | 0x12), High: uint32(0x01<<16 | 0x56), Valid: true}
	tc := Decode(rp, TCFormat30Drop)
	got := Encode(tc)
	assert.Equal(t, rp.Low, got.Low)
	assert.Equal(t, rp.High, got.High)
	assert.True(t, got.Valid)
}

func TestEncodeInvalidTimecodeIsZero(t *testing.T) {
	got := Encode(Timecode{})
	assert.Equal(t, device.RP188{}, got)
}

func TestBuildPacketsOrderAndDefaultLines(t *testing.T) {
	c := Captions{
		CEA708: []CDPPacket{{Data: []byte{0xAA, 0xBB}}},
		CEA608: []S3341APacket{{Data: []byte{0xCC}}},
	}
	pkts := BuildPackets(c, 0, 0)
	if assert.Len(t, pkts, 2) {
		assert.Equal(t, byte(0x61), pkts[0].DID)
		assert.Equal(t, byte(0x01), pkts[0].SDID)
		assert.Equal(t, DefaultCEA708Line, pkts[0].Line)
		assert.Equal(t, byte(0x02), pkts[1].SDID)
		assert.Equal(t, DefaultCEA608Line, pkts[1].Line)
	}
}

func TestBuildPacketsHonorsExplicitLines(t *testing.T) {
	c := Captions{CEA708: []CDPPacket{{Data: []byte{0x01}}}}
	pkts := BuildPackets(c, 15, 7)
	if assert.Len(t, pkts, 1) {
		assert.Equal(t, 15, pkts[0].Line)
	}
}

func TestSerializeRoundTripsThroughParse(t *testing.T) {
	c := Captions{
		CEA708: []CDPPacket{{Data: []byte{0xDE, 0xAD}}},
		CEA608: []S3341APacket{{Data: []byte{0xBE, 0xEF}}},
	}
	pkts := BuildPackets(c, 0, 0)
	line := SerializeAll(pkts, false)

	caps := ParseVANCCaptions([][]byte{line}, config.CC708And608)
	if assert.Len(t, caps.CEA708, 1) {
		assert.Equal(t, []byte{0xDE, 0xAD}, caps.CEA708[0].Data)
	}
	if assert.Len(t, caps.CEA608, 1) {
		assert.Equal(t, []byte{0xBE, 0xEF}, caps.CEA608[0].Data)
	}
}

func TestSerializeSDWorkaroundPadsToTwelveWords(t *testing.T) {
	pkt := Packet{DID: 0x61, SDID: 0x01, UserData: []byte{0x01, 0x02, 0x03}}
	out := Serialize(pkt, true)
	// header(6) + 12-word padded payload + checksum(1)
	assert.Equal(t, 6+sdPad12Words+1, len(out))
	assert.Equal(t, byte(sdPad12Words), out[5])
	assert.Equal(t, byte(sdPadFiller), out[6+3])
}

func TestSerializeNoWorkaroundLeavesShortPayload(t *testing.T) {
	pkt := Packet{DID: 0x61, SDID: 0x02, UserData: []byte{0x01, 0x02, 0x03}}
	out := Serialize(pkt, false)
	assert.Equal(t, 6+3+1, len(out))
	assert.Equal(t, byte(3), out[5])
}
