package uart

import (
	"strconv"
	"strings"

	"x16uart/serialport"
)

// reconfigure translates the current LCR/MCR/divisor register state into
// serialport.Params and pushes it to the host port. It is called whenever a
// write dirties LCR, MCR, or the divisor latch (§4.2). A host-side failure
// is logged and otherwise swallowed: the guest has no register bit that
// reports "the host port rejected this framing", so emulation continues.
// A divisor of zero is rejected before the host port is touched; a failed
// reopen leaves the host port closed, since the backends close the old
// device before opening it again. A verbose trace line is logged only after
// a successful reopen.
func (c *Core) reconfigure() {
	params := serialport.Params{
		Baud:   baudForDivisor(c.regs.requestedDivisor),
		Data:   wordLength(c.regs.lcr),
		Stop:   stopBits(c.regs.lcr),
		Parity: parityMode(c.regs.lcr),
	}

	if !c.opened {
		return
	}

	if params.Baud == baudInvalid {
		c.diag.hostError("reconfigure", serialport.ErrBaudRejected)
		return
	}

	if err := c.port.Open(c.path, params); err != nil {
		c.diag.hostError("reconfigure", err)
		return
	}

	c.diag.trace("reconfigure: path=%s baud=%d data=%d stop=%s parity=%s dtr=%v rts=%v",
		c.path, params.Baud, params.Data, params.Stop, params.Parity,
		c.regs.mcr&mcrDTR != 0, c.regs.mcr&mcrAFE != 0)

	// RTS is deliberately driven from MCR bit 5 (Auto-Flow-Enable), not the
	// canonical bit 1. This preserves a deviation present in the original
	// implementation rather than correcting it.
	dtr := c.regs.mcr&mcrDTR != 0
	rts := c.regs.mcr&mcrAFE != 0
	if err := c.port.SetModemLines(dtr, rts); err != nil {
		c.diag.hostError("set modem lines", err)
	}
}

// wordLength translates LCR bits 1:0 into a host word length.
func wordLength(lcr byte) serialport.DataBits {
	switch lcr & lcrWordLenMask {
	case 0:
		return serialport.DataBits5
	case 1:
		return serialport.DataBits6
	case 2:
		return serialport.DataBits7
	default:
		return serialport.DataBits8
	}
}

// stopBits translates LCR bit 2 (and, for 5-bit words, bit 2 means 1.5 stop
// bits rather than 2) into a host stop-bit count.
func stopBits(lcr byte) serialport.StopBits {
	if lcr&lcrStopBits == 0 {
		return serialport.StopBits1
	}
	if lcr&lcrWordLenMask == 0 {
		return serialport.StopBits1_5
	}
	return serialport.StopBits2
}

// parityMode translates LCR bits 5:4:3 into a host parity mode.
func parityMode(lcr byte) serialport.Parity {
	if lcr&lcrParityBit == 0 {
		return serialport.ParityNone
	}
	switch {
	case lcr&lcrParitySP != 0 && lcr&lcrParityEven != 0:
		return serialport.ParitySpace
	case lcr&lcrParitySP != 0:
		return serialport.ParityMark
	case lcr&lcrParityEven != 0:
		return serialport.ParityEven
	default:
		return serialport.ParityOdd
	}
}

// normalizeDevicePath applies the host-platform path convention for a device
// name, e.g. Windows COM ports numbered 10 and above must be opened through
// the \\.\ device namespace or CreateFile rejects them; COM1-COM9 work
// either way. goos is passed explicitly (rather than read from runtime.GOOS)
// so the decision is a pure function and testable on any platform.
func normalizeDevicePath(goos, path string) string {
	if goos != "windows" {
		return path
	}
	if strings.HasPrefix(path, `\\.\`) {
		return path
	}
	if n, ok := comPortNumber(path); ok && n >= 10 {
		return `\\.\` + path
	}
	return path
}

// comPortNumber reports the numeric suffix of a "COM<n>" device name,
// case-insensitively, or ok=false if path isn't shaped like one.
func comPortNumber(path string) (int, bool) {
	const prefix = "COM"
	if len(path) <= len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(path[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
