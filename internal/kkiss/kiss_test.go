package kkiss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWrapUnwrapEscapeExample(t *testing.T) {
	// spec.md §8 scenario 1.
	payload := []byte{0xC0, 0xDB, 0x41}
	wire := Wrap(payload, 0)
	assert.Equal(t, []byte{0xC0, 0x00, 0xDB, 0xDC, 0xDB, 0xDD, 0x41, 0xC0}, wire)

	port, got, ok := Unwrap(wire)
	require.True(t, ok)
	assert.Equal(t, 0, port)
	assert.Equal(t, payload, got)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload")
		port := rapid.IntRange(0, 15).Draw(t, "port")

		wire := Wrap(payload, port)
		gotPort, gotPayload, ok := Unwrap(wire)
		require.True(t, ok)
		assert.Equal(t, port, gotPort)
		if len(payload) == 0 {
			assert.Empty(t, gotPayload)
		} else {
			assert.Equal(t, payload, gotPayload)
		}
	})
}

func TestMalformedEscapePassesThrough(t *testing.T) {
	// FESC followed by a byte that is neither TFEND nor TFESC: emitted
	// verbatim rather than aborting the frame.
	frame := []byte{FEND, 0x00, FESC, 0x41, FEND}
	_, payload, ok := Unwrap(frame)
	require.True(t, ok)
	assert.Equal(t, []byte{FESC, 0x41}, payload)
}

func TestReassemblerCollapsesAdjacentDelimiters(t *testing.T) {
	var r Reassembler
	wire1 := Wrap([]byte("hello"), 0)
	wire2 := Wrap([]byte("world"), 0)

	// Simulate a writer that emits a close-delimiter immediately
	// followed by the next frame's open-delimiter, i.e. "...C0 C0...".
	stream := append(append([]byte{}, wire1...), wire2...)
	frames := r.Feed(stream)
	require.Len(t, frames, 2)

	_, p1, _ := Unwrap(frames[0])
	_, p2, _ := Unwrap(frames[1])
	assert.Equal(t, []byte("hello"), p1)
	assert.Equal(t, []byte("world"), p2)
}

func TestReassemblerDropsRunawayInput(t *testing.T) {
	var r Reassembler
	junk := make([]byte, MaxPending+10)
	for i := range junk {
		junk[i] = byte(i) & 0x7F // never FEND, so no closing delimiter
	}
	junk[0] = FEND
	frames := r.Feed(junk)
	assert.Empty(t, frames)
}

func TestReassemblerFeedsAcrossCalls(t *testing.T) {
	var r Reassembler
	wire := Wrap([]byte("split"), 2)

	frames := r.Feed(wire[:3])
	assert.Empty(t, frames)

	frames = r.Feed(wire[3:])
	require.Len(t, frames, 1)
	port, payload, ok := Unwrap(frames[0])
	require.True(t, ok)
	assert.Equal(t, 2, port)
	assert.Equal(t, []byte("split"), payload)
}
