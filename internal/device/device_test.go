package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSharesOneHardwareAcrossCallers(t *testing.T) {
	fake := NewFake("fake-registry-share")
	RegisterFake("fake-registry-share", fake)

	h1, err := Open("fake-registry-share")
	require.NoError(t, err)
	h2, err := Open("fake-registry-share")
	require.NoError(t, err)

	assert.Same(t, fake, h1.(*handleRef).Hardware)
	assert.Same(t, h1.(*handleRef).refCountedHardware, h2.(*handleRef).refCountedHardware)

	h1.Release()
	h2.Release()
}

func TestReleaseClosesOnLastReference(t *testing.T) {
	fake := NewFake("fake-registry-close")
	RegisterFake("fake-registry-close", fake)

	h1, err := Open("fake-registry-close")
	require.NoError(t, err)
	h2 := h1.Retain()

	h1.Release()
	// Device still registered: h2 holds a reference, so Open shares it.
	h3, err := Open("fake-registry-close")
	require.NoError(t, err)
	assert.Same(t, h2.(*handleRef).refCountedHardware, h3.(*handleRef).refCountedHardware)

	h3.Release()
	h2.Release()
	registryMu.Lock()
	_, stillOpen := registry["fake-registry-close"]
	registryMu.Unlock()
	assert.False(t, stillOpen, "last Release must close and unregister the device")
}

func TestReleaseIsIdempotent(t *testing.T) {
	fake := NewFake("fake-registry-idempotent")
	RegisterFake("fake-registry-idempotent", fake)

	h, err := Open("fake-registry-idempotent")
	require.NoError(t, err)
	h.Release()
	assert.NotPanics(t, h.Release)
}

func TestOpenUnknownIdentifierFailsWithoutOpenerOrFake(t *testing.T) {
	_, err := Open("no-such-device-ever-registered")
	assert.Error(t, err)
}

func TestGlobalSetupMutexWithLockRunsExclusively(t *testing.T) {
	m, err := OpenGlobalSetupMutex("/gstreamer-aja-test-sem")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	ran := false
	require.NoError(t, m.WithLock(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestGlobalSetupMutexTryLockFailsWhileHeld(t *testing.T) {
	m1, err := OpenGlobalSetupMutex("/gstreamer-aja-test-trylock")
	require.NoError(t, err)
	t.Cleanup(func() { m1.Close() })
	require.NoError(t, m1.Lock())

	m2, err := OpenGlobalSetupMutex("/gstreamer-aja-test-trylock")
	require.NoError(t, err)
	t.Cleanup(func() { m2.Close() })

	ok, err := m2.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m1.Unlock())
}
