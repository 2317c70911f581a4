// Package bus routes memory accesses to registered address regions.
// Adding a device to the address space requires only a Register call.
package bus

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/status"
)

// MaxRegions bounds the number of registered address regions.
const MaxRegions = 16

// ReadFunc reads 1/2/4 bytes at an offset relative to the region base.
type ReadFunc func(offset uint32, size uint8) uint32

// WriteFunc writes 1/2/4 bytes at an offset relative to the region base.
type WriteFunc func(offset uint32, value uint32, size uint8) status.Status

type region struct {
	base  uint32
	size  uint32
	read  ReadFunc
	write WriteFunc
}

// Bus dispatches loads and stores to the first registered region containing
// the address. Region scan is linear in registration order.
type Bus struct {
	regions []region
	logger  *log.Logger
}

// New returns an empty bus.
func New(logger *log.Logger) *Bus {
	return &Bus{
		regions: make([]region, 0, MaxRegions),
		logger:  logger,
	}
}

// Register adds an address region. Regions must not overlap; the two Flash
// mappings (alias at 0x00000000 and canonical base) are distinct regions.
func (b *Bus) Register(base, size uint32, read ReadFunc, write WriteFunc) status.Status {
	if len(b.regions) >= MaxRegions {
		b.logger.Error("Bus region limit reached")
		return status.Error
	}
	for _, r := range b.regions {
		if base < r.base+r.size && r.base < base+size {
			b.logger.Error("Bus region overlaps existing region",
				log.String("base", fmt.Sprintf("0x%08X", base)))
			return status.Error
		}
	}
	b.regions = append(b.regions, region{base: base, size: size, read: read, write: write})
	return status.OK
}

func (b *Bus) find(addr uint32) *region {
	for i := range b.regions {
		r := &b.regions[i]
		if addr >= r.base && addr < r.base+r.size {
			return r
		}
	}
	return nil
}

// Read loads 1/2/4 bytes from the given address. Unmapped reads return 0,
// matching what firmware expects from unmodeled peripherals.
func (b *Bus) Read(addr uint32, size uint8) uint32 {
	if r := b.find(addr); r != nil && r.read != nil {
		return r.read(addr-r.base, size)
	}
	b.logger.Warn("Bus fault: read from unmapped address",
		log.String("addr", fmt.Sprintf("0x%08X", addr)))
	return 0
}

// Write stores 1/2/4 bytes to the given address.
func (b *Bus) Write(addr uint32, value uint32, size uint8) status.Status {
	if r := b.find(addr); r != nil && r.write != nil {
		return r.write(addr-r.base, value, size)
	}
	b.logger.Warn("Bus fault: write to unmapped address",
		log.String("addr", fmt.Sprintf("0x%08X", addr)))
	return status.InvalidAddress
}
