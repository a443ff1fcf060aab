// Package fakeport is an in-memory serialport.Port double used by the uart
// package's tests, in the spirit of the teacher pack's hand-written mocks
// (devices.MockInterruptRaiser, devices.MockTapDevice in
// core_engine/devices/ne2000_test.go) rather than a generated or recorded
// fixture.
package fakeport

import (
	"sync"

	"x16uart/serialport"
)

// Port is a faithful-enough serialport.Port stand-in backed by byte queues,
// so tests can assert on framing changes and on bytes that crossed the
// simulated wire without a real tty.
type Port struct {
	mu sync.Mutex

	open   bool
	path   string
	params serialport.Params

	rx []byte // bytes waiting to be "received" from the host
	tx []byte // bytes the core has transmitted to the host

	dtr, rts bool

	openCount int
	closeCount int

	// OpenErr, when non-nil, is returned by the next Open call instead of
	// succeeding — used to exercise the Port Controller's failure path.
	OpenErr error
}

func New() *Port {
	return &Port{}
}

func (p *Port) Open(path string, params serialport.Params) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		p.open = false
	}
	if p.OpenErr != nil {
		err := p.OpenErr
		p.OpenErr = nil
		return err
	}
	p.path = path
	p.params = params
	p.open = true
	p.openCount++
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return serialport.ErrClosed
	}
	p.open = false
	p.closeCount++
	return nil
}

func (p *Port) Write(b byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return serialport.ErrClosed
	}
	p.tx = append(p.tx, b)
	return nil
}

func (p *Port) ReadByte() (byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return 0, false, serialport.ErrClosed
	}
	if len(p.rx) == 0 {
		return 0, false, nil
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, true, nil
}

func (p *Port) Available() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return 0, serialport.ErrClosed
	}
	return len(p.rx), nil
}

func (p *Port) SetModemLines(dtr, rts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return serialport.ErrClosed
	}
	p.dtr, p.rts = dtr, rts
	return nil
}

// Test-observation helpers, not part of the serialport.Port interface.

// QueueRx enqueues bytes as if the remote end of the wire sent them.
func (p *Port) QueueRx(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, b...)
}

// Transmitted returns (and does not clear) the bytes written so far.
func (p *Port) Transmitted() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.tx))
	copy(out, p.tx)
	return out
}

func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *Port) Params() serialport.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

func (p *Port) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *Port) ModemLines() (dtr, rts bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dtr, p.rts
}

func (p *Port) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openCount
}

func (p *Port) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}
