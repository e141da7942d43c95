package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstExhausts(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("tenant-a"), "request %d should fit in the burst", i)
	}
	assert.False(t, l.Allow("tenant-a"), "burst is spent, refill is 1/s")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(1, 1)

	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))

	assert.True(t, l.Allow("tenant-b"), "another tenant keeps its own bucket")
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("k"))
	}
}
