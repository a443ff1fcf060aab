// Package serialport talks to a real asynchronous serial device on the host
// operating system. It is the host-side collaborator the uart package's Port
// Controller drives whenever the guest reprograms baud, framing, or
// modem-control bits.
package serialport

import "fmt"

// DataBits is the guest-selected word length, translated from LCR bits 1:0.
type DataBits int

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

// StopBits is the guest-selected stop-bit count, translated from LCR bit 2.
type StopBits int

const (
	StopBits1   StopBits = iota // 1 stop bit
	StopBits1_5                 // 1.5 stop bits, only meaningful with 5 data bits
	StopBits2                   // 2 stop bits
)

func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1 bit"
	case StopBits1_5:
		return "1.5 bits"
	case StopBits2:
		return "2 bits"
	default:
		return "unknown"
	}
}

// Parity is the guest-selected parity mode, translated from LCR bits 5:4:3.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return "unknown"
	}
}

// Params is the framing the Port Controller asks the host port to adopt.
type Params struct {
	Baud     int
	Data     DataBits
	Stop     StopBits
	Parity   Parity
}

// Classified open/reconfigure failures, mirroring the numbered errorOpening
// codes of the original serialib-backed implementation.
var (
	ErrDeviceNotFound  = fmt.Errorf("device not found")
	ErrOpenFailed      = fmt.Errorf("error while opening the device")
	ErrGetParamsFailed = fmt.Errorf("error while getting port parameters")
	ErrBaudRejected    = fmt.Errorf("speed (baud) not recognized")
	ErrSetParamsFailed = fmt.Errorf("error while writing port parameters")
	ErrTimeoutFailed   = fmt.Errorf("error while writing timeout parameters")
	ErrDataBitsInvalid = fmt.Errorf("data bits not recognized")
	ErrStopBitsInvalid = fmt.Errorf("stop bits not recognized")
	ErrParityInvalid   = fmt.Errorf("parity not recognized")
	ErrClosed          = fmt.Errorf("port already closed")
)

// Port is a physical serial device: open, framed, and byte-oriented. The
// uart package never touches the host operating system directly; every
// platform implements this interface in its own port_<goos>.go.
type Port interface {
	// Open connects to the named device with the given framing.
	Open(path string, params Params) error

	// Close releases the device. Close on an already-closed Port has no
	// effect; the Linux, Windows and fakeport implementations return
	// ErrClosed for it.
	Close() error

	// Write sends exactly one byte, blocking until the host driver accepts it.
	Write(b byte) error

	// ReadByte blocks briefly waiting for one byte and returns it. If no byte
	// arrives before the bounded wait elapses, ok is false.
	ReadByte() (b byte, ok bool, err error)

	// Available reports how many bytes the host currently has buffered for
	// receipt, without blocking.
	Available() (int, error)

	// SetModemLines asserts DTR and RTS to the given levels.
	SetModemLines(dtr, rts bool) error
}
