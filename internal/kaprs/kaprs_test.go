package kaprs

import (
	"testing"

	"github.com/k1fsy/station-samoyed/internal/kax25"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var noDest = kax25.Callsign{Base: "APRS"}
var noSource = kax25.Callsign{Base: "N0CALL"}

func TestParsePositionBasic(t *testing.T) {
	p := Parse(noDest, noSource, []byte("!4740.90N/12219.18W>test comment"))
	require.Equal(t, KindPosition, p.Kind)
	assert.InDelta(t, 47+40.90/60.0, p.Position.Lat, 1e-6)
	assert.InDelta(t, -(122+19.18/60.0), p.Position.Lon, 1e-6)
	assert.Equal(t, byte('/'), p.Position.SymbolTable)
	assert.Equal(t, byte('>'), p.Position.SymbolCode)
	assert.Equal(t, "test comment", p.Position.Comment)
}

func TestParsePositionRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat := rapid.Float64Range(-89.99, 89.99).Draw(t, "lat")
		lon := rapid.Float64Range(-179.99, 179.99).Draw(t, "lon")
		// Quantize to 1/100 minute, matching the wire precision.
		lat = float64(int(lat*6000)) / 6000
		lon = float64(int(lon*6000)) / 6000

		wire := FormatPosition(lat, lon, '/', '>', "")
		p := Parse(noDest, noSource, []byte(wire))
		require.Equal(t, KindPosition, p.Kind)
		assert.InDelta(t, lat, p.Position.Lat, 1e-6)
		assert.InDelta(t, lon, p.Position.Lon, 1e-6)
	})
}

func TestParsePositionWithWeather(t *testing.T) {
	p := Parse(noDest, noSource, []byte("!4740.90N/12219.18W_c220s005g010t072h50b10150"))
	require.Equal(t, KindPosition, p.Kind)
	require.True(t, p.Position.HasWeather)
	w := p.Position.Weather
	require.NotNil(t, w.WindDirDeg)
	assert.Equal(t, 220, *w.WindDirDeg)
	assert.Equal(t, 5, *w.WindSpeedMPH)
	assert.Equal(t, 10, *w.GustMPH)
	assert.Equal(t, 72, *w.TempF)
	assert.Equal(t, 50, *w.HumidityPercent)
	assert.Equal(t, 10150, *w.PressureTenths)
}

func TestParseWeatherOnlyHumidityZeroMeans100(t *testing.T) {
	p := Parse(noDest, noSource, []byte("_12345678c000s000g000t000h00b10000"))
	require.Equal(t, KindWeather, p.Kind)
	require.NotNil(t, p.Weather.HumidityPercent)
	assert.Equal(t, 100, *p.Weather.HumidityPercent)
}

func TestParseMessageBasic(t *testing.T) {
	p := Parse(noDest, noSource, []byte(":N0CALL   :hello{7"))
	require.Equal(t, KindMessage, p.Kind)
	assert.Equal(t, "N0CALL", p.Message.Addressee)
	assert.Equal(t, "hello", p.Message.Text)
	assert.Equal(t, "7", p.Message.MsgID)
}

func TestParseMessageAck(t *testing.T) {
	p := Parse(noDest, noSource, []byte(":N0CALL   :ack7"))
	require.Equal(t, KindMessage, p.Kind)
	assert.True(t, p.Message.IsAck)
	assert.Equal(t, "7", p.Message.MsgID)
}

func TestParseMICERoundTrip(t *testing.T) {
	// Construct a MIC-E packet by encoding a known latitude into the
	// destination address using the same digit table the decoder
	// reads, then verify decode recovers it. This exercises the
	// decoder's official digit table rather than re-deriving the
	// arithmetic inline.
	dest, err := kax25.ParseCallsign("S4PRST")
	require.NoError(t, err)
	// S=3,4=4,P=0,R=2,S=3,T=4 -> lat = (3*10+4) + (0*1000+2*100+3*10+4)/6000
	// = 34 + 234/6000 = 34.039
	info := []byte{'`', 0x4A, 0x5A, 0x3C, 0x58, 0x58, 0x58, '>', '/', ' '}
	p := Parse(dest, noSource, info)
	require.Equal(t, KindMICE, p.Kind)
	assert.InDelta(t, 34+234.0/6000.0, p.Position.Lat, 1e-6)
	assert.Equal(t, byte('/'), p.Position.SymbolTable)
	assert.Equal(t, byte('>'), p.Position.SymbolCode)
}

func TestParseThirdParty(t *testing.T) {
	igate := kax25.Callsign{Base: "KI1ABC", SSID: 10}
	p := Parse(noDest, igate, []byte("}W1ABC>APRS,WIDE1-1:!4740.90N/12219.18W>hi"))
	require.Equal(t, KindThirdParty, p.Kind)
	// RelaySource is the outer AX.25 frame's source (the igate that
	// actually relayed this packet), not the inner TNC2 header's
	// original-station callsign.
	assert.Equal(t, "KI1ABC", p.ThirdParty.RelaySource.Base)
	assert.Equal(t, 10, p.ThirdParty.RelaySource.SSID)
	assert.Equal(t, "W1ABC", p.ThirdParty.OriginalSource.Base)
	assert.Equal(t, KindPosition, p.ThirdParty.Inner.Kind)
}

func TestParseObject(t *testing.T) {
	p := Parse(noDest, noSource, []byte(";LEADER   *111111z4740.90N/12219.18W>out front"))
	require.Equal(t, KindObject, p.Kind)
	assert.Equal(t, "LEADER", p.Object.Name)
	assert.True(t, p.Object.Live)
	require.NotNil(t, p.Object.Position)
}

func TestParseItem(t *testing.T) {
	p := Parse(noDest, noSource, []byte(")MARKER!4740.90N/12219.18W>left"))
	require.Equal(t, KindItem, p.Kind)
	assert.Equal(t, "MARKER", p.Item.Name)
	assert.True(t, p.Item.Live)
}

func TestParseUnknownPreservesRaw(t *testing.T) {
	raw := []byte("%not a real format")
	p := Parse(noDest, noSource, raw)
	assert.Equal(t, KindUnknown, p.Kind)
	assert.Equal(t, raw, p.Raw)
}
