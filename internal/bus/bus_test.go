package bus

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/status"
)

// ramRegion is a minimal byte-addressable bus target for tests.
type ramRegion struct {
	data []byte
}

func newRAMRegion(size int) *ramRegion {
	return &ramRegion{data: make([]byte, size)}
}

func (r *ramRegion) read(offset uint32, size uint8) uint32 {
	var val uint32
	for i := uint8(0); i < size; i++ {
		val |= uint32(r.data[offset+uint32(i)]) << (8 * i)
	}
	return val
}

func (r *ramRegion) write(offset uint32, value uint32, size uint8) status.Status {
	for i := uint8(0); i < size; i++ {
		r.data[offset+uint32(i)] = byte(value >> (8 * i))
	}
	return status.OK
}

func TestBusRouting(t *testing.T) {
	b := New(log.NewTestLogger(t))
	low := newRAMRegion(0x100)
	high := newRAMRegion(0x100)

	assert.Equal(t, status.OK, b.Register(0x1000, 0x100, low.read, low.write))
	assert.Equal(t, status.OK, b.Register(0x2000, 0x100, high.read, high.write))

	assert.Equal(t, status.OK, b.Write(0x1010, 0xAA, 1))
	assert.Equal(t, status.OK, b.Write(0x2010, 0xBB, 1))

	assert.Equal(t, uint32(0xAA), b.Read(0x1010, 1))
	assert.Equal(t, uint32(0xBB), b.Read(0x2010, 1))

	// handlers see offsets relative to their base
	assert.Equal(t, byte(0xAA), low.data[0x10])
	assert.Equal(t, byte(0xBB), high.data[0x10])
}

func TestBusUnmapped(t *testing.T) {
	b := New(log.NewTestLogger(t))

	assert.Equal(t, uint32(0), b.Read(0xDEAD0000, 4))
	assert.Equal(t, status.InvalidAddress, b.Write(0xDEAD0000, 1, 4))
}

func TestBusRegionLimit(t *testing.T) {
	b := New(log.NewTestLogger(t))
	r := newRAMRegion(0x10)

	for i := 0; i < MaxRegions; i++ {
		assert.Equal(t, status.OK, b.Register(uint32(i)*0x100, 0x10, r.read, r.write))
	}
	assert.Equal(t, status.Error, b.Register(0x10000, 0x10, r.read, r.write))
}

func TestBusOverlapRejected(t *testing.T) {
	b := New(log.NewTestLogger(t))
	r := newRAMRegion(0x100)

	assert.Equal(t, status.OK, b.Register(0x1000, 0x100, r.read, r.write))

	tests := []struct {
		name string
		base uint32
		size uint32
	}{
		{"identical", 0x1000, 0x100},
		{"inside", 0x1040, 0x10},
		{"straddles start", 0xFC0, 0x80},
		{"straddles end", 0x10C0, 0x80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, status.Error, b.Register(tt.base, tt.size, r.read, r.write))
		})
	}

	// adjacent regions do not overlap
	assert.Equal(t, status.OK, b.Register(0x1100, 0x100, r.read, r.write))
}

func TestBusFirstMatchWins(t *testing.T) {
	b := New(log.NewTestLogger(t))
	first := newRAMRegion(0x10)
	second := newRAMRegion(0x10)

	assert.Equal(t, status.OK, b.Register(0x0, 0x10, first.read, first.write))
	// a second, separate device at a different base
	assert.Equal(t, status.OK, b.Register(0x100, 0x10, second.read, second.write))

	assert.Equal(t, status.OK, b.Write(0x0, 0x42, 1))
	assert.Equal(t, byte(0x42), first.data[0])
	assert.Equal(t, byte(0), second.data[0])
}
