package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreaterThan(t *testing.T) {
	assert.True(t, GreaterThan(2, 1))
	assert.False(t, GreaterThan(1, 2))
	assert.False(t, GreaterThan(1, 1))
	// Wraparound: 1 is ahead of 0xFFFF.
	assert.True(t, GreaterThan(1, 0xFFFF))
	assert.False(t, GreaterThan(0xFFFF, 1))
}

func TestAddWraps(t *testing.T) {
	assert.Equal(t, uint16(2), Add(0xFFFF, 3))
	assert.Equal(t, uint16(5), Add(2, 3))
	assert.Equal(t, uint16(10), Add(10, 0))
}

func TestInWindow(t *testing.T) {
	assert.True(t, InWindow(100, 105))
	assert.True(t, InWindow(0xFFFE, 2))
	assert.False(t, InWindow(100, 100+1<<15))
}
