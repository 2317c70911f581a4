package core

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/status"
)

// instrEntry maps a masked bit pattern to its handler. The table is ordered
// from most specific to least specific; the first match wins, mirroring the
// encoding tables of the architecture reference manual.
type instrEntry struct {
	mask    uint16
	pattern uint16
	handler func(*Core, uint16) status.Status
	name    string
}

var instrTable = []instrEntry{
	// NOP (fully specified encoding)
	{0xFFFF, 0xBF00, (*Core).execNop, "NOP"},

	// Format 4: ALU register-register
	{0xFFC0, 0x4000, (*Core).execAnd, "AND"},
	{0xFFC0, 0x4040, (*Core).execEor, "EOR"},
	{0xFFC0, 0x4080, (*Core).execLslReg, "LSL"},
	{0xFFC0, 0x40C0, (*Core).execLsrReg, "LSR"},
	{0xFFC0, 0x4100, (*Core).execAsrReg, "ASR"},
	{0xFFC0, 0x4140, (*Core).execAdc, "ADC"},
	{0xFFC0, 0x4180, (*Core).execSbc, "SBC"},
	{0xFFC0, 0x41C0, (*Core).execRor, "ROR"},
	{0xFFC0, 0x4200, (*Core).execTst, "TST"},
	{0xFFC0, 0x4240, (*Core).execNeg, "NEG"},
	{0xFFC0, 0x4280, (*Core).execCmpReg, "CMP"},
	{0xFFC0, 0x42C0, (*Core).execCmn, "CMN"},
	{0xFFC0, 0x4300, (*Core).execOrr, "ORR"},
	{0xFFC0, 0x4340, (*Core).execMul, "MUL"},
	{0xFFC0, 0x4380, (*Core).execBic, "BIC"},
	{0xFFC0, 0x43C0, (*Core).execMvn, "MVN"},

	// Format 5: hi register operations / BX
	{0xFF80, 0x4700, (*Core).execBx, "BX"},
	{0xFF00, 0x4400, (*Core).execAddHi, "ADD hi"},
	{0xFF00, 0x4500, (*Core).execCmpHi, "CMP hi"},
	{0xFF00, 0x4600, (*Core).execMovHi, "MOV hi"},

	// SVC, before the conditional branch so that cond=0xF lands here
	{0xFF00, 0xDF00, (*Core).execSvc, "SVC"},

	// Format 13: adjust SP
	{0xFF00, 0xB000, (*Core).execAdjustSP, "ADD/SUB SP"},

	// Format 2: add/subtract register and imm3
	{0xFE00, 0x1800, (*Core).execAddReg, "ADD reg"},
	{0xFE00, 0x1A00, (*Core).execSubReg, "SUB reg"},
	{0xFE00, 0x1C00, (*Core).execAddImm3, "ADD imm3"},
	{0xFE00, 0x1E00, (*Core).execSubImm3, "SUB imm3"},

	// Formats 7/8: load/store with register offset
	{0xFE00, 0x5000, (*Core).execStrReg, "STR reg"},
	{0xFE00, 0x5200, (*Core).execStrhReg, "STRH reg"},
	{0xFE00, 0x5400, (*Core).execStrbReg, "STRB reg"},
	{0xFE00, 0x5600, (*Core).execLdrsbReg, "LDRSB reg"},
	{0xFE00, 0x5800, (*Core).execLdrReg, "LDR reg"},
	{0xFE00, 0x5A00, (*Core).execLdrhReg, "LDRH reg"},
	{0xFE00, 0x5C00, (*Core).execLdrbReg, "LDRB reg"},
	{0xFE00, 0x5E00, (*Core).execLdrshReg, "LDRSH reg"},

	// Format 14: PUSH / POP
	{0xFE00, 0xB400, (*Core).execPush, "PUSH"},
	{0xFE00, 0xBC00, (*Core).execPop, "POP"},

	// Format 1: shift by immediate
	{0xF800, 0x0000, (*Core).execLslImm, "LSL imm"},
	{0xF800, 0x0800, (*Core).execLsrImm, "LSR imm"},
	{0xF800, 0x1000, (*Core).execAsrImm, "ASR imm"},

	// Format 3: move/compare/add/subtract immediate
	{0xF800, 0x2000, (*Core).execMovImm, "MOV imm"},
	{0xF800, 0x2800, (*Core).execCmpImm, "CMP imm"},
	{0xF800, 0x3000, (*Core).execAddImm8, "ADD imm8"},
	{0xF800, 0x3800, (*Core).execSubImm8, "SUB imm8"},

	// Format 6: PC-relative load
	{0xF800, 0x4800, (*Core).execLdrPC, "LDR PC"},

	// Format 9: load/store with immediate offset (word/byte)
	{0xF800, 0x6000, (*Core).execStrImm, "STR imm"},
	{0xF800, 0x6800, (*Core).execLdrImm, "LDR imm"},
	{0xF800, 0x7000, (*Core).execStrbImm, "STRB imm"},
	{0xF800, 0x7800, (*Core).execLdrbImm, "LDRB imm"},

	// Format 10: load/store halfword with immediate offset
	{0xF800, 0x8000, (*Core).execStrhImm, "STRH imm"},
	{0xF800, 0x8800, (*Core).execLdrhImm, "LDRH imm"},

	// Format 11: SP-relative load/store
	{0xF800, 0x9000, (*Core).execStrSP, "STR SP"},
	{0xF800, 0x9800, (*Core).execLdrSP, "LDR SP"},

	// Format 12: load address
	{0xF800, 0xA000, (*Core).execAdr, "ADR"},
	{0xF800, 0xA800, (*Core).execAddSPImmRd, "ADD SP imm"},

	// Format 16: conditional branch
	{0xF000, 0xD000, (*Core).execBCond, "B<cond>"},

	// Format 18: unconditional branch
	{0xF800, 0xE000, (*Core).execB, "B"},
}

// Format 1: shift by immediate.

func (c *Core) execLslImm(instr uint16) status.Status {
	rd := instr & 0x7
	rs := (instr >> 3) & 0x7
	imm5 := (instr >> 6) & 0x1F

	if imm5 == 0 {
		c.State.R[rd] = c.State.R[rs]
	} else {
		c.setFlag(FlagC, (c.State.R[rs]>>(32-imm5))&1 != 0)
		c.State.R[rd] = c.State.R[rs] << imm5
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execLsrImm(instr uint16) status.Status {
	rd := instr & 0x7
	rs := (instr >> 3) & 0x7
	imm5 := (instr >> 6) & 0x1F

	if imm5 == 0 {
		// LSR #0 encodes LSR #32
		c.setFlag(FlagC, c.State.R[rs]>>31&1 != 0)
		c.State.R[rd] = 0
	} else {
		c.setFlag(FlagC, (c.State.R[rs]>>(imm5-1))&1 != 0)
		c.State.R[rd] = c.State.R[rs] >> imm5
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execAsrImm(instr uint16) status.Status {
	rd := instr & 0x7
	rs := (instr >> 3) & 0x7
	imm5 := (instr >> 6) & 0x1F

	if imm5 == 0 {
		// ASR #0 encodes ASR #32
		bit31 := c.State.R[rs]>>31&1 != 0
		c.setFlag(FlagC, bit31)
		if bit31 {
			c.State.R[rd] = 0xFFFFFFFF
		} else {
			c.State.R[rd] = 0
		}
	} else {
		c.setFlag(FlagC, (c.State.R[rs]>>(imm5-1))&1 != 0)
		c.State.R[rd] = uint32(int32(c.State.R[rs]) >> imm5)
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

// Format 2: add/subtract register and 3-bit immediate.

func (c *Core) execAddReg(instr uint16) status.Status {
	rd := instr & 0x7
	rn := (instr >> 3) & 0x7
	rm := (instr >> 6) & 0x7
	result := c.State.R[rn] + c.State.R[rm]
	c.updateFlagsAdd(c.State.R[rn], c.State.R[rm], result)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execSubReg(instr uint16) status.Status {
	rd := instr & 0x7
	rn := (instr >> 3) & 0x7
	rm := (instr >> 6) & 0x7
	result := c.State.R[rn] - c.State.R[rm]
	c.updateFlagsSub(c.State.R[rn], c.State.R[rm], result)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execAddImm3(instr uint16) status.Status {
	rd := instr & 0x7
	rn := (instr >> 3) & 0x7
	imm3 := uint32(instr>>6) & 0x7
	result := c.State.R[rn] + imm3
	c.updateFlagsAdd(c.State.R[rn], imm3, result)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execSubImm3(instr uint16) status.Status {
	rd := instr & 0x7
	rn := (instr >> 3) & 0x7
	imm3 := uint32(instr>>6) & 0x7
	result := c.State.R[rn] - imm3
	c.updateFlagsSub(c.State.R[rn], imm3, result)
	c.State.R[rd] = result
	return status.OK
}

// Format 3: move/compare/add/subtract 8-bit immediate.

func (c *Core) execMovImm(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	c.State.R[rd] = uint32(instr) & 0xFF
	return status.OK
}

func (c *Core) execCmpImm(instr uint16) status.Status {
	rn := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	result := c.State.R[rn] - imm8
	c.updateFlagsSub(c.State.R[rn], imm8, result)
	return status.OK
}

func (c *Core) execAddImm8(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	result := c.State.R[rd] + imm8
	c.updateFlagsAdd(c.State.R[rd], imm8, result)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execSubImm8(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	result := c.State.R[rd] - imm8
	c.updateFlagsSub(c.State.R[rd], imm8, result)
	c.State.R[rd] = result
	return status.OK
}

// Format 4: ALU register-register.

func (c *Core) execAnd(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] &= c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execEor(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] ^= c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execLslReg(instr uint16) status.Status {
	rd, rs := instr&0x7, (instr>>3)&0x7
	shift := c.State.R[rs] & 0xFF
	switch {
	case shift == 0:
		// no change
	case shift < 32:
		c.setFlag(FlagC, (c.State.R[rd]>>(32-shift))&1 != 0)
		c.State.R[rd] <<= shift
	case shift == 32:
		c.setFlag(FlagC, c.State.R[rd]&1 != 0)
		c.State.R[rd] = 0
	default:
		c.setFlag(FlagC, false)
		c.State.R[rd] = 0
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execLsrReg(instr uint16) status.Status {
	rd, rs := instr&0x7, (instr>>3)&0x7
	shift := c.State.R[rs] & 0xFF
	switch {
	case shift == 0:
		// no change
	case shift < 32:
		c.setFlag(FlagC, (c.State.R[rd]>>(shift-1))&1 != 0)
		c.State.R[rd] >>= shift
	case shift == 32:
		c.setFlag(FlagC, c.State.R[rd]>>31&1 != 0)
		c.State.R[rd] = 0
	default:
		c.setFlag(FlagC, false)
		c.State.R[rd] = 0
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execAsrReg(instr uint16) status.Status {
	rd, rs := instr&0x7, (instr>>3)&0x7
	shift := c.State.R[rs] & 0xFF
	switch {
	case shift == 0:
		// no change
	case shift < 32:
		c.setFlag(FlagC, (c.State.R[rd]>>(shift-1))&1 != 0)
		c.State.R[rd] = uint32(int32(c.State.R[rd]) >> shift)
	default:
		bit31 := c.State.R[rd]>>31&1 != 0
		c.setFlag(FlagC, bit31)
		if bit31 {
			c.State.R[rd] = 0xFFFFFFFF
		} else {
			c.State.R[rd] = 0
		}
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execAdc(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	a, b := c.State.R[rd], c.State.R[rm]
	carry := c.carry()
	sum := uint64(a) + uint64(b) + uint64(carry)
	result := uint32(sum)
	c.updateNZ(result)
	c.setFlag(FlagC, sum > 0xFFFFFFFF)
	c.setFlag(FlagV, (^(a^b)&(a^result))>>31 != 0)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execSbc(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	a, b := c.State.R[rd], c.State.R[rm]
	borrow := 1 - c.carry()
	result := a - b - borrow
	c.updateNZ(result)
	c.setFlag(FlagC, uint64(a) >= uint64(b)+uint64(borrow))
	c.setFlag(FlagV, ((a^b)&(a^result))>>31 != 0)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execRor(instr uint16) status.Status {
	rd, rs := instr&0x7, (instr>>3)&0x7
	shift := c.State.R[rs] & 0xFF
	if shift != 0 {
		shift &= 0x1F
		if shift == 0 {
			c.setFlag(FlagC, c.State.R[rd]>>31&1 != 0)
		} else {
			c.setFlag(FlagC, (c.State.R[rd]>>(shift-1))&1 != 0)
			c.State.R[rd] = c.State.R[rd]>>shift | c.State.R[rd]<<(32-shift)
		}
	}
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execTst(instr uint16) status.Status {
	rn, rm := instr&0x7, (instr>>3)&0x7
	c.updateNZ(c.State.R[rn] & c.State.R[rm])
	return status.OK
}

func (c *Core) execNeg(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	result := -c.State.R[rm]
	c.updateFlagsSub(0, c.State.R[rm], result)
	c.State.R[rd] = result
	return status.OK
}

func (c *Core) execCmpReg(instr uint16) status.Status {
	rn, rm := instr&0x7, (instr>>3)&0x7
	result := c.State.R[rn] - c.State.R[rm]
	c.updateFlagsSub(c.State.R[rn], c.State.R[rm], result)
	return status.OK
}

func (c *Core) execCmn(instr uint16) status.Status {
	rn, rm := instr&0x7, (instr>>3)&0x7
	result := c.State.R[rn] + c.State.R[rm]
	c.updateFlagsAdd(c.State.R[rn], c.State.R[rm], result)
	return status.OK
}

func (c *Core) execOrr(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] |= c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execMul(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] *= c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execBic(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] &^= c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

func (c *Core) execMvn(instr uint16) status.Status {
	rd, rm := instr&0x7, (instr>>3)&0x7
	c.State.R[rd] = ^c.State.R[rm]
	c.updateNZ(c.State.R[rd])
	return status.OK
}

// Format 5: hi register operations / BX.

func (c *Core) execAddHi(instr uint16) status.Status {
	rd := (instr>>4)&0x8 | instr&0x7
	rm := (instr >> 3) & 0xF
	c.State.R[rd] += c.State.R[rm]
	if rd == RegPC {
		c.State.R[RegPC] &^= 1
		c.pcWritten = true
	}
	return status.OK
}

func (c *Core) execCmpHi(instr uint16) status.Status {
	rn := (instr>>4)&0x8 | instr&0x7
	rm := (instr >> 3) & 0xF
	result := c.State.R[rn] - c.State.R[rm]
	c.updateFlagsSub(c.State.R[rn], c.State.R[rm], result)
	return status.OK
}

func (c *Core) execMovHi(instr uint16) status.Status {
	rd := (instr>>4)&0x8 | instr&0x7
	rm := (instr >> 3) & 0xF
	c.State.R[rd] = c.State.R[rm]
	if rd == RegPC {
		c.State.R[RegPC] &^= 1
		c.pcWritten = true
	}
	return status.OK
}

func (c *Core) execBx(instr uint16) status.Status {
	rm := (instr >> 3) & 0xF
	target := c.State.R[rm]

	if isExcReturn(target) {
		c.exitException()
		c.pcWritten = true
		return status.OK
	}

	// Hardware raises a UsageFault when bit 0 is clear; the emulator
	// branches anyway but never silently.
	if target&1 == 0 {
		c.logger.Warn("BX to target without Thumb bit",
			log.String("target", fmt.Sprintf("0x%08X", target)))
	}

	c.State.R[RegPC] = target &^ 1
	c.pcWritten = true
	return status.OK
}

// Format 6: PC-relative load.

func (c *Core) execLdrPC(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	base := (c.State.R[RegPC] + 4) &^ 3
	c.State.R[rd] = c.bus.Read(base+imm8<<2, 4)
	return status.OK
}

// Formats 7/8: load/store with register offset.

func (c *Core) execStrReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	return c.bus.Write(c.State.R[rn]+c.State.R[rm], c.State.R[rd], 4)
}

func (c *Core) execStrbReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	return c.bus.Write(c.State.R[rn]+c.State.R[rm], c.State.R[rd]&0xFF, 1)
}

func (c *Core) execLdrReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+c.State.R[rm], 4)
	return status.OK
}

func (c *Core) execLdrbReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+c.State.R[rm], 1)
	return status.OK
}

func (c *Core) execStrhReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	return c.bus.Write(c.State.R[rn]+c.State.R[rm], c.State.R[rd]&0xFFFF, 2)
}

func (c *Core) execLdrhReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+c.State.R[rm], 2)
	return status.OK
}

func (c *Core) execLdrsbReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	val := c.bus.Read(c.State.R[rn]+c.State.R[rm], 1)
	c.State.R[rd] = uint32(int32(int8(val)))
	return status.OK
}

func (c *Core) execLdrshReg(instr uint16) status.Status {
	rd, rn, rm := instr&0x7, (instr>>3)&0x7, (instr>>6)&0x7
	val := c.bus.Read(c.State.R[rn]+c.State.R[rm], 2)
	c.State.R[rd] = uint32(int32(int16(val)))
	return status.OK
}

// Format 9: load/store with immediate offset (word/byte).

func (c *Core) execStrImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	return c.bus.Write(c.State.R[rn]+imm5<<2, c.State.R[rd], 4)
}

func (c *Core) execLdrImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+imm5<<2, 4)
	return status.OK
}

func (c *Core) execStrbImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	return c.bus.Write(c.State.R[rn]+imm5, c.State.R[rd]&0xFF, 1)
}

func (c *Core) execLdrbImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+imm5, 1)
	return status.OK
}

// Format 10: load/store halfword with immediate offset.

func (c *Core) execStrhImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	return c.bus.Write(c.State.R[rn]+imm5<<1, c.State.R[rd]&0xFFFF, 2)
}

func (c *Core) execLdrhImm(instr uint16) status.Status {
	rd, rn := instr&0x7, (instr>>3)&0x7
	imm5 := uint32(instr>>6) & 0x1F
	c.State.R[rd] = c.bus.Read(c.State.R[rn]+imm5<<1, 2)
	return status.OK
}

// Format 11: SP-relative load/store.

func (c *Core) execStrSP(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	return c.bus.Write(c.State.R[RegSP]+imm8<<2, c.State.R[rd], 4)
}

func (c *Core) execLdrSP(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	c.State.R[rd] = c.bus.Read(c.State.R[RegSP]+imm8<<2, 4)
	return status.OK
}

// Format 12: load address.

func (c *Core) execAdr(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	c.State.R[rd] = (c.State.R[RegPC]+4)&^3 + imm8<<2
	return status.OK
}

func (c *Core) execAddSPImmRd(instr uint16) status.Status {
	rd := (instr >> 8) & 0x7
	imm8 := uint32(instr) & 0xFF
	c.State.R[rd] = c.State.R[RegSP] + imm8<<2
	return status.OK
}

// Format 13: adjust SP.

func (c *Core) execAdjustSP(instr uint16) status.Status {
	imm7 := uint32(instr&0x7F) << 2
	if instr&0x80 != 0 {
		c.State.R[RegSP] -= imm7
	} else {
		c.State.R[RegSP] += imm7
	}
	return status.OK
}

// Format 14: PUSH / POP.

func (c *Core) execPush(instr uint16) status.Status {
	rlist := instr & 0xFF
	storeLR := instr>>8&1 != 0

	count := 0
	for i := 0; i < 8; i++ {
		if rlist&(1<<i) != 0 {
			count++
		}
	}
	if storeLR {
		count++
	}

	c.State.R[RegSP] -= uint32(count) * 4
	addr := c.State.R[RegSP]

	for i := 0; i < 8; i++ {
		if rlist&(1<<i) != 0 {
			c.bus.Write(addr, c.State.R[i], 4)
			addr += 4
		}
	}
	if storeLR {
		c.bus.Write(addr, c.State.R[RegLR], 4)
	}
	return status.OK
}

func (c *Core) execPop(instr uint16) status.Status {
	rlist := instr & 0xFF
	loadPC := instr>>8&1 != 0
	addr := c.State.R[RegSP]

	for i := 0; i < 8; i++ {
		if rlist&(1<<i) != 0 {
			c.State.R[i] = c.bus.Read(addr, 4)
			addr += 4
		}
	}
	if loadPC {
		val := c.bus.Read(addr, 4)
		addr += 4

		if isExcReturn(val) {
			c.State.R[RegSP] = addr
			c.exitException()
			c.pcWritten = true
			return status.OK
		}

		c.State.R[RegPC] = val &^ 1
		c.pcWritten = true
	}
	c.State.R[RegSP] = addr
	return status.OK
}

// Format 16: conditional branch. cond=0xF is the SVC encoding form and is
// caught by the SVC table entry before this one.
func (c *Core) execBCond(instr uint16) status.Status {
	cond := uint8(instr>>8) & 0xF
	if c.conditionPassed(cond) {
		offset := signExtend(uint32(instr)&0xFF, 8) << 1
		c.State.R[RegPC] = uint32(int32(c.State.R[RegPC]) + 4 + offset)
		c.pcWritten = true
	}
	return status.OK
}

// Format 17: SVC. Accepted no-op.
func (c *Core) execSvc(instr uint16) status.Status {
	c.logger.Debug("SVC called", log.Int("comment", int(instr&0xFF)))
	return status.OK
}

// Format 18: unconditional branch.
func (c *Core) execB(instr uint16) status.Status {
	offset := signExtend(uint32(instr)&0x7FF, 11) << 1
	c.State.R[RegPC] = uint32(int32(c.State.R[RegPC]) + 4 + offset)
	c.pcWritten = true
	return status.OK
}

func (c *Core) execNop(uint16) status.Status {
	return status.OK
}
