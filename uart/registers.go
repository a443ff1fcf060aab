// Package uart emulates the register interface of a Texas Instruments
// TL16C2550 dual-UART, bridging an emulated 8-bit guest (the Commander X16)
// to a real serial port on the host. It owns the register state machine
// (this file and dispatcher.go) and the host-port reconfiguration protocol
// (controller.go) that together let unmodified guest serial software run
// against a physical port.
//
// Adapted from the teacher pack's core_engine/devices/serial.go 16550
// skeleton, but reworked around this specification's DLAB/loopback overlay,
// live-derived status bits, and AFE-as-RTS wiring instead of that file's
// KVM/x86 port-IO and interrupt plumbing.
package uart

// Oscillator is the reference clock frequency, in Hz, the divisor divides to
// produce the baud rate: baud = Oscillator / (divisor * 16).
const Oscillator = 14_745_600

// Register offsets, relative to the UART's base address. Every access is
// first reduced to one of these eight with `offset & 0x07`.
const (
	OffsetDataOrDLSB  = 0 // Receiver/Transmitter Holding Register, or DLSB when DLAB=1
	OffsetIERorDMSB   = 1 // Interrupt Enable Register, or DMSB when DLAB=1
	OffsetIIRFCR      = 2 // Interrupt Identification Register (read) / FIFO Control Register (write)
	OffsetLCR         = 3 // Line Control Register
	OffsetMCR         = 4 // Modem Control Register
	OffsetLSR         = 5 // Line Status Register (read-only)
	OffsetMSR         = 6 // Modem Status Register (read-only)
	OffsetScratch     = 7 // Scratch Register
)

// LCR bits.
const (
	lcrWordLenMask = 0x03 // bits 1:0
	lcrStopBits    = 0x04 // bit 2
	lcrParityBit   = 0x08 // bit 3: parity enable
	lcrParityEven  = 0x10 // bit 4: even/odd select (meaningful only if parity enabled)
	lcrParitySP    = 0x20 // bit 5: stick parity select
	lcrDLAB        = 0x80 // bit 7: Divisor Latch Access Bit
	lcrLow7Mask    = 0x7F
)

// MCR bits.
const (
	mcrDTR      = 0x01
	mcrAFE      = 0x20 // Auto-Flow-Enable; this emulation drives RTS from this bit, not bit 1
	mcrLoopback = 0x10
)

// IER bits.
const ierReservedMask = 0x0F // only the low nibble is meaningful; upper nibble always reads/writes 0

// FCR bits.
const (
	fcrWriteMask  = 0xCF // bits 4 and 5 are reserved zero
	fcrFIFOEnable = 0x01
)

// IIR bits.
const iirFIFOEnabledBits = 0xC0 // upper two bits reflect FCR's FIFO-enable bit

// LSR bits. Only Data Ready, THRE, and TEMT are meaningful in this
// emulation: there is no FIFO and no transmit delay, so once a write has
// been forwarded to the host port the holding register and the
// transmitter are immediately empty again.
//
// LSRDataReady is exported for embedders polling OffsetLSR directly, the
// way a guest would.
const (
	LSRDataReady = 0x01

	lsrDataReady = LSRDataReady
	lsrTHRE      = 0x20
	lsrTEMT      = 0x40
)

// MSR bits.
const (
	msrCTS = 0x20
	msrDSR = 0x10
)

// ctsThrottleThreshold is the receive-buffer depth at and above which CTS is
// reported deasserted (§4.1: "CTS is reported asserted whenever the host has
// fewer than 14 bytes currently buffered for receive").
const ctsThrottleThreshold = 14

// registers is the pure-storage Register File. LSR and MSR are not stored
// here at all: both are derived fresh on every read by the Access
// Dispatcher (computeLSR/computeMSR) and never cached, per the
// freshness invariant that rules out a stale-availability bug.
type registers struct {
	ier  byte
	iir  byte
	fcr  byte
	mcr  byte
	lcr  byte
	scr  byte
	dlsb byte
	dmsb byte

	requestedDivisor uint16
	loopValue        byte
}

// reset restores power-on defaults. ROMTERM.PRG-style guest probes read IER,
// LCR, and MCR at $9fe1/$9fe3/$9fe4 expecting zero, so those three (and
// scratch) stay zero; the divisor latch defaults to 8, selecting 115200 baud
// against the 14.7456MHz reference oscillator.
func (r *registers) reset() {
	*r = registers{
		dlsb:             8,
		dmsb:             0,
		requestedDivisor: 8,
	}
}

// baudInvalid is the error sentinel baudForDivisor returns for the undefined
// divisor-zero case.
const baudInvalid = -1

// baudForDivisor returns the bits-per-second a divisor selects, or
// baudInvalid for a divisor of zero.
func baudForDivisor(divisor uint16) int {
	if divisor == 0 {
		return baudInvalid
	}
	return (Oscillator / int(divisor)) / 16
}
