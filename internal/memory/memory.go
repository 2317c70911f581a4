// Package memory implements the Flash and SRAM storage of the emulated
// STM32F103C8T6. Flash is writable only through the loader; all bus-visible
// accesses are little-endian.
package memory

import (
	"fmt"
	"os"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/status"
)

// Memory layout constants of the STM32F103C8T6.
const (
	FlashBase = 0x08000000
	FlashSize = 64 * 1024
	SRAMBase  = 0x20000000
	SRAMSize  = 20 * 1024
)

// Memory holds the Flash and SRAM byte containers and provides
// bus-compatible access callbacks for both.
type Memory struct {
	flash  [FlashSize]byte
	sram   [SRAMSize]byte
	logger *log.Logger
}

// New returns an initialized memory with zeroed Flash and SRAM.
func New(logger *log.Logger) *Memory {
	return &Memory{logger: logger}
}

// Reset clears SRAM. Flash is non-volatile and survives a reset.
func (m *Memory) Reset() {
	m.sram = [SRAMSize]byte{}
}

// LoadBinary reads a raw firmware image into Flash starting at offset 0.
// Files larger than Flash are truncated without error.
func (m *Memory) LoadBinary(path string) status.Status {
	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.Error("Cannot open firmware image", log.String("path", path), log.Err(err))
		return status.Error
	}
	if len(data) == 0 {
		m.logger.Error("Firmware image is empty", log.String("path", path))
		return status.Error
	}

	n := copy(m.flash[:], data)
	m.logger.Info("Loaded firmware image",
		log.String("path", path),
		log.Int("bytes", n))
	return status.OK
}

// FlashBytes returns a copy of the first n Flash bytes.
func (m *Memory) FlashBytes(n int) []byte {
	if n > FlashSize {
		n = FlashSize
	}
	out := make([]byte, n)
	copy(out, m.flash[:n])
	return out
}

// WriteFlash stores bytes into Flash outside of normal execution, as the
// loader does. Used by tests and the firmware upload path.
func (m *Memory) WriteFlash(offset uint32, data []byte) status.Status {
	if int(offset)+len(data) > FlashSize {
		return status.InvalidAddress
	}
	copy(m.flash[offset:], data)
	return status.OK
}

// FlashRead is the bus read callback for both Flash regions.
func (m *Memory) FlashRead(offset uint32, size uint8) uint32 {
	if offset+uint32(size) > FlashSize {
		return 0
	}
	return readLE(m.flash[:], offset, size)
}

// FlashWrite always fails: Flash is read-only during execution.
func (m *Memory) FlashWrite(offset uint32, value uint32, size uint8) status.Status {
	m.logger.Warn("Attempted write to flash",
		log.String("offset", fmt.Sprintf("0x%08X", offset)))
	return status.Error
}

// SRAMRead is the bus read callback for the SRAM region.
func (m *Memory) SRAMRead(offset uint32, size uint8) uint32 {
	if offset+uint32(size) > SRAMSize {
		return 0
	}
	return readLE(m.sram[:], offset, size)
}

// SRAMWrite is the bus write callback for the SRAM region.
func (m *Memory) SRAMWrite(offset uint32, value uint32, size uint8) status.Status {
	if offset+uint32(size) > SRAMSize {
		return status.InvalidAddress
	}
	writeLE(m.sram[:], offset, value, size)
	return status.OK
}

func readLE(base []byte, offset uint32, size uint8) uint32 {
	switch size {
	case 1:
		return uint32(base[offset])
	case 2:
		return uint32(base[offset]) | uint32(base[offset+1])<<8
	case 4:
		return uint32(base[offset]) | uint32(base[offset+1])<<8 |
			uint32(base[offset+2])<<16 | uint32(base[offset+3])<<24
	default:
		return 0
	}
}

func writeLE(base []byte, offset uint32, value uint32, size uint8) {
	switch size {
	case 1:
		base[offset] = byte(value)
	case 2:
		base[offset] = byte(value)
		base[offset+1] = byte(value >> 8)
	case 4:
		base[offset] = byte(value)
		base[offset+1] = byte(value >> 8)
		base[offset+2] = byte(value >> 16)
		base[offset+3] = byte(value >> 24)
	}
}
