package ktransport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPairDeliversFrame(t *testing.T) {
	var mu sync.Mutex
	var gotAtB [][]byte

	a, b, closeFn, err := LoopbackPair(0, 0, nil, func(f []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotAtB = append(gotAtB, f)
	}, nil)
	require.NoError(t, err)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Listen(ctx)

	require.NoError(t, a.WriteFrame([]byte{0x7e, 0x01, 0x02, 0x03}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotAtB) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{0x7e, 0x01, 0x02, 0x03}, gotAtB[0])
}

func TestLoopbackPairRoundTripsFENDEscapes(t *testing.T) {
	var mu sync.Mutex
	var gotAtB [][]byte

	a, b, closeFn, err := LoopbackPair(0, 0, nil, func(f []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotAtB = append(gotAtB, f)
	}, nil)
	require.NoError(t, err)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Listen(ctx)

	payload := []byte{0xC0, 0xDB, 0x01, 0xC0}
	require.NoError(t, a.WriteFrame(payload))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotAtB) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, payload, gotAtB[0])
}

func TestChannelBusyDefaultsFalse(t *testing.T) {
	p := NewPort(nil, 0, nil, nil)
	assert.False(t, p.ChannelBusy())
}

func TestChannelBusyUsesInstalledSignal(t *testing.T) {
	p := NewPort(nil, 0, nil, nil)
	p.SetBusySignal(func() bool { return true })
	assert.True(t, p.ChannelBusy())
}

func TestListSerialDevicesFiltersCandidates(t *testing.T) {
	assert.True(t, isCandidateTTY("/dev/ttyUSB0"))
	assert.True(t, isCandidateTTY("/dev/ttyACM1"))
	assert.False(t, isCandidateTTY("/dev/ttyS0"))
	assert.False(t, isCandidateTTY("/dev/null"))
}
