package kax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genCallsign(t *rapid.T) Callsign {
	base := rapid.StringMatching(`[A-Z0-9]{1,6}`).Draw(t, "base")
	ssid := rapid.IntRange(0, 15).Draw(t, "ssid")
	repeated := rapid.Bool().Draw(t, "repeated")
	return Callsign{Base: base, SSID: ssid, Repeated: repeated}
}

func TestAddressEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		call := genCallsign(t)
		last := rapid.Bool().Draw(t, "last")

		field := EncodeAddress(call, last)
		gotCall, gotLast, err := DecodeAddress(field)
		require.NoError(t, err)
		assert.Equal(t, call, gotCall)
		assert.Equal(t, last, gotLast)
	})
}

func TestParseCallsignString(t *testing.T) {
	cases := []struct {
		in   string
		want Callsign
	}{
		{"N0CALL", Callsign{Base: "N0CALL"}},
		{"N0CALL-9", Callsign{Base: "N0CALL", SSID: 9}},
		{"WIDE1-1*", Callsign{Base: "WIDE1", SSID: 1, Repeated: true}},
	}
	for _, c := range cases {
		got, err := ParseCallsign(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.in, got.String())
	}
}

func TestParseAddressFieldsMultiDigipeater(t *testing.T) {
	dest, _ := ParseCallsign("APRS")
	src, _ := ParseCallsign("N0CALL-9")
	d1, _ := ParseCallsign("WIDE1-1")
	d2, _ := ParseCallsign("WIDE2-2")

	parsed := ParsedAddresses{Destination: dest, Source: src, Path: []Callsign{d1, d2}}
	raw := EncodeAddressFields(parsed)

	got, offset, err := ParseAddressFields(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), offset)
	assert.Equal(t, dest, got.Destination)
	assert.Equal(t, src, got.Source)
	assert.Equal(t, []Callsign{d1, d2}, got.Path)
}

func TestDecodeControlIFrame(t *testing.T) {
	b := EncodeIControl(3, 5, true)
	c := DecodeControl(b)
	assert.Equal(t, ClassI, c.Class)
	assert.Equal(t, 3, c.NS)
	assert.Equal(t, 5, c.NR)
	assert.True(t, c.PF)
}

func TestDecodeControlSFrameTypes(t *testing.T) {
	for _, st := range []SType{RR, RNR, REJ, SREJ} {
		b := EncodeSControl(st, 2, false)
		c := DecodeControl(b)
		assert.Equal(t, ClassS, c.Class)
		assert.Equal(t, st, c.SType)
		assert.Equal(t, 2, c.NR)
	}
}

func TestDecodeControlUFrameTypes(t *testing.T) {
	for _, ut := range []UType{SABM, DISC, UA, DM, FRMR, UI} {
		b := EncodeUControl(ut, false)
		c := DecodeControl(b)
		assert.Equal(t, ClassU, c.Class)
		assert.Equal(t, ut, c.UType)
	}
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	dest, _ := ParseCallsign("APRS")
	src, _ := ParseCallsign("N0CALL-9")
	f := BuildUI(dest, src, nil, []byte("!4740.90N/12219.18W>test"))

	raw := f.Encode()
	got, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Addrs, got.Addrs)
	assert.Equal(t, f.Control, got.Control)
	assert.Equal(t, f.PID, got.PID)
	assert.Equal(t, f.Info, got.Info)
}

func TestDecodeAddressInvalidNonPrintable(t *testing.T) {
	field := EncodeAddress(Callsign{Base: "N0CALL"}, true)
	field[0] = 0x00 // decodes to char 0x00, non-printable
	_, _, err := DecodeAddress(field)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressInvalid)
}
