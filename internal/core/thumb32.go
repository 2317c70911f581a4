package core

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/status"
)

// execute32 decodes the 32-bit Thumb-2 subset: BL and B.W branch, the
// permanently undefined encoding is an accepted no-op, everything else is
// an invalid instruction.
func (c *Core) execute32(hw1, hw2 uint16) status.Status {
	// BL: hw1 = 11110 S imm10, hw2 = 11 J1 1 J2 imm11
	if hw1&0xF800 == 0xF000 && hw2&0xD000 == 0xD000 {
		offset := branchOffset25(hw1, hw2)
		c.State.R[RegLR] = (c.State.R[RegPC] + 4) | 1
		c.State.R[RegPC] = uint32(int32(c.State.R[RegPC]) + 4 + offset)
		c.pcWritten = true
		return status.OK
	}

	// B.W (T4): hw1 = 11110 S imm10, hw2 = 10 J1 1 J2 imm11
	if hw1&0xF800 == 0xF000 && hw2&0xD000 == 0x9000 {
		offset := branchOffset25(hw1, hw2)
		c.State.R[RegPC] = uint32(int32(c.State.R[RegPC]) + 4 + offset)
		c.pcWritten = true
		return status.OK
	}

	// UDF.W (permanently undefined): 0xF7Fx 0xAxxx. Accepted no-op.
	if hw1&0xFFF0 == 0xF7F0 && hw2&0xF000 == 0xA000 {
		c.logger.Debug("UDF.W executed as no-op",
			log.String("pc", fmt.Sprintf("0x%08X", c.State.R[RegPC])))
		return status.OK
	}

	c.logger.Error("Unimplemented 32-bit instruction",
		log.String("hw1", fmt.Sprintf("0x%04X", hw1)),
		log.String("hw2", fmt.Sprintf("0x%04X", hw2)),
		log.String("pc", fmt.Sprintf("0x%08X", c.State.R[RegPC])))
	return status.InvalidInstruction
}

// branchOffset25 assembles the signed 25-bit offset shared by BL and B.W:
// S, I1=~(J1^S), I2=~(J2^S), imm10, imm11.
func branchOffset25(hw1, hw2 uint16) int32 {
	s := uint32(hw1>>10) & 1
	j1 := uint32(hw2>>13) & 1
	j2 := uint32(hw2>>11) & 1
	i1 := ^(j1 ^ s) & 1
	i2 := ^(j2 ^ s) & 1
	imm10 := uint32(hw1) & 0x3FF
	imm11 := uint32(hw2) & 0x7FF

	raw := s<<24 | i1<<23 | i2<<22 | imm10<<12 | imm11<<1
	return signExtend(raw, 25)
}
