package uart

import "x16uart/serialport"

// Core is the Access Dispatcher and Register File together: the full
// behavioral model of one TL16C2550 channel, addressed by the guest through
// eight byte-wide offsets exactly like the original RHR/IER/IIR/LCR/MCR/
// LSR/MSR/SCR layout.
//
// Grounded on core_engine/devices/serial.go's HandleIO dispatch, generalized
// from that file's port-IO in/out switch to this specification's
// DLAB/loopback register overlay and live-derived status registers.
type Core struct {
	regs registers

	port   serialport.Port
	path   string
	opened bool

	diag *Diagnostics
}

// Status codes returned by WriteReg/ReadReg. StatusOK covers every normal
// single-byte access except a write to DLSB, which returns the stored byte;
// the rest mirror the distilled specification's negative sentinels exactly.
const (
	StatusOK = 1

	// StatusNoData is returned by a read of offset 0 when the host has no
	// byte buffered; the delivered value is 0.
	StatusNoData = -1

	// StatusHostWriteFailed is returned by a write of offset 0 (outside
	// loopback) when the host port rejects the byte.
	StatusHostWriteFailed = -1

	// StatusWriteToLSR and StatusWriteToMSR are returned by writes to the
	// read-only status registers; the negation of their offsets.
	StatusWriteToLSR = -5
	StatusWriteToMSR = -6
)

// newCore builds a Core over the given host port, reset to power-on state.
func newCore(port serialport.Port, diag *Diagnostics) *Core {
	c := &Core{port: port, diag: diag}
	c.regs.reset()
	return c
}

// WriteReg applies a guest write to the register at offset (only the low
// three bits of offset are significant) and returns a status code.
func (c *Core) WriteReg(offset int, value byte) int {
	switch offset & 0x07 {
	case OffsetDataOrDLSB:
		switch {
		case c.regs.lcr&lcrDLAB != 0:
			c.regs.dlsb = value
			return int(c.regs.dlsb)
		case c.regs.mcr&mcrLoopback != 0:
			c.regs.loopValue = value
			return StatusOK
		default:
			if !c.opened {
				return StatusHostWriteFailed
			}
			if err := c.port.Write(value); err != nil {
				c.diag.hostError("write", err)
				return StatusHostWriteFailed
			}
			return StatusOK
		}

	case OffsetIERorDMSB:
		if c.regs.lcr&lcrDLAB != 0 {
			c.regs.dmsb = value
		} else {
			c.regs.ier = value & ierReservedMask
		}
		return StatusOK

	case OffsetIIRFCR:
		c.regs.fcr = value & fcrWriteMask
		if c.regs.fcr&fcrFIFOEnable != 0 {
			c.regs.iir |= iirFIFOEnabledBits
		} else {
			c.regs.iir &^= iirFIFOEnabledBits
		}
		return StatusOK

	case OffsetLCR:
		oldDLAB := c.regs.lcr&lcrDLAB != 0
		newDLAB := value&lcrDLAB != 0
		dirty := false

		if oldDLAB && !newDLAB {
			c.regs.requestedDivisor = uint16(c.regs.dmsb)<<8 | uint16(c.regs.dlsb)
			dirty = true
		}
		if c.regs.lcr&lcrLow7Mask != value&lcrLow7Mask {
			dirty = true
		}

		c.regs.lcr = value
		if dirty {
			c.reconfigure()
		}
		return StatusOK

	case OffsetMCR:
		if c.regs.mcr != value {
			c.regs.mcr = value
			c.reconfigure()
		}
		return StatusOK

	case OffsetLSR:
		return StatusWriteToLSR

	case OffsetMSR:
		return StatusWriteToMSR

	case OffsetScratch:
		c.regs.scr = value
		return StatusOK
	}

	return StatusOK
}

// ReadReg returns the value a guest read of offset observes, and a status
// code (StatusOK for every offset except a no-data read of offset 0).
func (c *Core) ReadReg(offset int) (byte, int) {
	switch offset & 0x07 {
	case OffsetDataOrDLSB:
		switch {
		case c.regs.lcr&lcrDLAB != 0:
			return c.regs.dlsb, StatusOK
		case c.regs.mcr&mcrLoopback != 0:
			return c.regs.loopValue, StatusOK
		default:
			if !c.hostHasData() {
				return 0, StatusNoData
			}
			b, ok, err := c.port.ReadByte()
			if err != nil {
				c.diag.hostError("read", err)
				return 0, StatusNoData
			}
			if !ok {
				return 0, StatusNoData
			}
			return b, StatusOK
		}

	case OffsetIERorDMSB:
		if c.regs.lcr&lcrDLAB != 0 {
			return c.regs.dmsb, StatusOK
		}
		return c.regs.ier, StatusOK

	case OffsetIIRFCR:
		if c.regs.fcr&fcrFIFOEnable != 0 {
			c.regs.iir |= iirFIFOEnabledBits
		} else {
			c.regs.iir &^= iirFIFOEnabledBits
		}
		return c.regs.iir, StatusOK

	case OffsetLCR:
		return c.regs.lcr, StatusOK

	case OffsetMCR:
		return c.regs.mcr, StatusOK

	case OffsetLSR:
		return c.computeLSR(), StatusOK

	case OffsetMSR:
		return c.computeMSR(), StatusOK

	case OffsetScratch:
		return c.regs.scr, StatusOK
	}

	return 0, StatusOK
}

// hostHasData reports whether the host currently has at least one byte
// buffered for receipt, without consuming it. In loopback mode the last
// value written to the data register is always "available" to read back.
func (c *Core) hostHasData() bool {
	if c.regs.mcr&mcrLoopback != 0 {
		return true
	}
	if !c.opened {
		return false
	}
	n, err := c.port.Available()
	if err != nil {
		c.diag.hostError("available", err)
		return false
	}
	return n >= 1
}

// computeLSR derives the Line Status Register at read time. Only Data
// Ready varies with host state; THRE and TEMT are always set because every
// transmit write is forwarded to the host synchronously, so the holding
// register and the transmitter are immediately empty again.
func (c *Core) computeLSR() byte {
	lsr := byte(lsrTHRE | lsrTEMT)
	if c.hostHasData() {
		lsr |= lsrDataReady
	}
	return lsr
}

// computeMSR derives the Modem Status Register at read time. Outside
// loopback, DSR is wired permanently asserted and CTS tracks the host's
// receive-buffer depth against ctsThrottleThreshold. In loopback mode the
// 16550-family diagnostic wiring applies: MSR's DSR and CTS reflect MCR's
// DTR and Auto-Flow-Enable bits rather than real host state.
func (c *Core) computeMSR() byte {
	if c.regs.mcr&mcrLoopback != 0 {
		msr := byte(0)
		if c.regs.mcr&mcrDTR != 0 {
			msr |= msrDSR
		}
		if c.regs.mcr&mcrAFE != 0 {
			msr |= msrCTS
		}
		return msr
	}

	msr := byte(msrDSR)
	if !c.opened {
		msr |= msrCTS
		return msr
	}
	n, err := c.port.Available()
	if err != nil {
		c.diag.hostError("available", err)
		return msr
	}
	if n < ctsThrottleThreshold {
		msr |= msrCTS
	}
	return msr
}
