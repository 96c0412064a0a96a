package kdigi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1fsy/station-samoyed/internal/kax25"
)

type fakeClassifier struct {
	digis map[string]bool
}

func (f fakeClassifier) IsKnownDigipeater(call string) bool { return f.digis[call] }

func mustCall(t *testing.T, s string) kax25.Callsign {
	t.Helper()
	c, err := kax25.ParseCallsign(s)
	require.NoError(t, err)
	return c
}

func path(t *testing.T, hops ...string) []kax25.Callsign {
	t.Helper()
	out := make([]kax25.Callsign, len(hops))
	for i, h := range hops {
		out[i] = mustCall(t, h)
	}
	return out
}

// TestNewParadigmRewrite is spec.md §8 scenario 5: WIDE1-1,WIDE2-2
// rewrites to K1ABC-1*,WIDE1*,WIDE2-2.
func TestNewParadigmRewrite(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", On, fakeClassifier{}, nil)

	p := Packet{
		Source:      mustCall(t, "N0CALL-9"),
		Destination: mustCall(t, "APRS"),
		Path:        path(t, "WIDE1-1", "WIDE2-2"),
		HopCount:    0,
	}
	require.True(t, d.ShouldDigipeat(p))

	newPath, label := d.Rewrite(p.Path, false)
	require.Len(t, newPath, 3)
	assert.Equal(t, "K1ABC-1*", newPath[0].String())
	assert.True(t, newPath[0].Repeated)
	assert.Equal(t, "WIDE1*", newPath[1].String())
	assert.Equal(t, "WIDE2-2", newPath[2].String())
	assert.Equal(t, "WIDE1-1", label)
}

func TestWideNDecrementsWithoutConsuming(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", On, fakeClassifier{}, nil)

	newPath, _ := d.Rewrite(path(t, "WIDE2-2"), false)
	require.Len(t, newPath, 2)
	assert.Equal(t, "K1ABC-1*", newPath[0].String())
	assert.Equal(t, "WIDE2-1", newPath[1].String())
	assert.False(t, newPath[1].Repeated)
}

func TestModeOffNeverDigipeats(t *testing.T) {
	d := New(mustCall(t, "K1ABC-1"), "WIDE1", Off, fakeClassifier{}, nil)
	p := Packet{Source: mustCall(t, "N0CALL"), Path: path(t, "WIDE1-1")}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestAlreadyDigipeatedPacketSkipped(t *testing.T) {
	d := New(mustCall(t, "K1ABC-1"), "WIDE1", On, fakeClassifier{}, nil)
	p := Packet{
		Source:   mustCall(t, "N0CALL"),
		Path:     path(t, "WIDE1-1*", "WIDE2-1"),
		HopCount: 1,
	}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestOwnPacketNeverDigipeated(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", On, fakeClassifier{}, nil)
	p := Packet{Source: mycall, Path: path(t, "WIDE1-1")}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestKnownDigipeaterSourceSkipped(t *testing.T) {
	d := New(mustCall(t, "K1ABC-1"), "WIDE1", On, fakeClassifier{digis: map[string]bool{"DIGI-1": true}}, nil)
	p := Packet{Source: mustCall(t, "DIGI-1"), Path: path(t, "WIDE1-1")}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestNoViableHopSkipped(t *testing.T) {
	d := New(mustCall(t, "K1ABC-1"), "WIDE1", On, fakeClassifier{}, nil)
	p := Packet{Source: mustCall(t, "N0CALL"), Path: path(t, "RELAY-1")}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestMyCallInPathDigipeated(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "", On, fakeClassifier{}, nil)
	p := Packet{Source: mustCall(t, "N0CALL"), Path: path(t, "K1ABC-1")}
	require.True(t, d.ShouldDigipeat(p))

	newPath, label := d.Rewrite(p.Path, false)
	require.Len(t, newPath, 1)
	assert.True(t, newPath[0].Repeated)
	assert.Equal(t, "K1ABC-1", label)
}

// TestSelfModeOutboundDirect covers SELF mode digipeating our own
// direct traffic.
func TestSelfModeOutboundDirect(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", Self, fakeClassifier{}, nil)
	p := Packet{
		Source:      mustCall(t, "K1ABC-9"), // same base, different SSID
		Destination: mustCall(t, "APRS"),
		Path:        path(t, "WIDE1-1"),
		HopCount:    0,
	}
	assert.True(t, d.ShouldDigipeat(p))
}

// TestSelfModeInboundCourtesyRelay covers the courtesy-relay insertion:
// an already-digipeated packet addressed to our base callsign gets our
// call inserted after the last consumed hop, with no viable-hop check.
func TestSelfModeInboundCourtesyRelay(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", Self, fakeClassifier{}, nil)
	p := Packet{
		Source:      mustCall(t, "N0CALL-9"),
		Destination: mustCall(t, "K1ABC-9"), // our base, different SSID
		Path:        path(t, "WIDE1*", "WIDE2-1"),
		HopCount:    1,
	}
	require.True(t, d.ShouldDigipeat(p))

	newPath, label := d.Rewrite(p.Path, true)
	require.Len(t, newPath, 3)
	assert.Equal(t, "WIDE1*", newPath[0].String())
	assert.Equal(t, "K1ABC-1*", newPath[1].String())
	assert.True(t, newPath[1].Repeated)
	assert.Equal(t, "WIDE2-1", newPath[2].String())
	assert.Equal(t, "Courtesy", label)
}

func TestSelfModeIgnoresUnrelatedTraffic(t *testing.T) {
	d := New(mustCall(t, "K1ABC-1"), "WIDE1", Self, fakeClassifier{}, nil)
	p := Packet{
		Source:      mustCall(t, "N0CALL-9"),
		Destination: mustCall(t, "APRS"),
		Path:        path(t, "WIDE1-1"),
		HopCount:    0,
	}
	assert.False(t, d.ShouldDigipeat(p))
}

func TestDigipeatFrameRebuildsAddresses(t *testing.T) {
	mycall := mustCall(t, "K1ABC-1")
	d := New(mycall, "WIDE1", On, fakeClassifier{}, nil)

	src := mustCall(t, "N0CALL-9")
	dst := mustCall(t, "APRS")
	f := kax25.BuildUI(dst, src, path(t, "WIDE1-1", "WIDE2-2"), []byte("!4740.50N/12217.50W>test"))

	out, ok := d.DigipeatFrame(f, HopCount(f.Addrs.Path), "")
	require.True(t, ok)
	assert.Equal(t, "K1ABC-1*", out.Addrs.Path[0].String())
	assert.Equal(t, f.Info, out.Info)
	assert.Equal(t, 1, d.Count)
}
