package uart

import (
	"sync"

	"x16uart/serialport"
)

// Handle is an opaque reference to one emulated UART channel, the Go
// replacement for the original C ABI's serialuartTL16C2550Handle void
// pointer. Embedders (the emulator core) hold a Handle value rather than a
// *Core, keeping the package's internal layout free to change without
// breaking callers — the same boundary the original void*-returning
// uart_init gave C callers, expressed as a package-level registry instead
// of a cast pointer.
type Handle struct {
	id uint64
}

var (
	registryMu   sync.Mutex
	registryNext uint64
	registry     = map[uint64]*Core{}
)

// Option configures a Core at construction time.
type Option func(*Core)

// WithPort overrides the host port a Handle drives, for tests. Embedders
// never call this: production handles always get the platform's real host
// port (serialport.NewHostPort).
func WithPort(port serialport.Port) Option {
	return func(c *Core) { c.port = port }
}

// WithDiagnostics overrides the diagnostics sink, for tests that want to
// capture or silence logged host failures.
func WithDiagnostics(d *Diagnostics) Option {
	return func(c *Core) { c.diag = d }
}

// NewHandle allocates a fresh, unopened UART channel and returns a Handle
// for it, mirroring uart_init's allocate-then-return-handle contract.
func NewHandle(opts ...Option) Handle {
	port := serialport.NewHostPort()
	diag := NewDiagnostics()
	c := newCore(port, diag)
	for _, opt := range opts {
		opt(c)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registryNext++
	id := registryNext
	registry[id] = c
	return Handle{id: id}
}

// core resolves a Handle to its Core, or nil if the handle is invalid or
// already destroyed.
func (h Handle) core() *Core {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[h.id]
}

// Open connects the channel to a real host device at path at 8-N-1, at the
// baud the current divisor selects, and drives DTR/RTS from the current MCR.
// It may be called again to reopen the device or to switch device paths.
func (h Handle) Open(path string) error {
	c := h.core()
	if c == nil {
		return serialport.ErrClosed
	}

	c.path = normalizeDevicePath(hostGOOS, path)

	// The guest's LCR register reads as all-zero until the guest itself
	// programs it, which happens to decode (via wordLength) to 5 data bits
	// rather than the 8-N-1 the original host library actually opened the
	// port at by default. Rather than propagate that mismatch, the initial
	// open is explicit: 8-N-1 at the divisor-derived baud. Any subsequent
	// LCR/MCR write reconfigures from the register state as normal.
	params := serialport.Params{
		Baud:   baudForDivisor(c.regs.requestedDivisor),
		Data:   serialport.DataBits8,
		Stop:   serialport.StopBits1,
		Parity: serialport.ParityNone,
	}
	if params.Baud == baudInvalid {
		err := serialport.ErrBaudRejected
		c.diag.hostError("open", err)
		return err
	}
	if err := c.port.Open(c.path, params); err != nil {
		c.diag.hostError("open", err)
		return err
	}
	c.opened = true
	dtr := c.regs.mcr&mcrDTR != 0
	rts := c.regs.mcr&mcrAFE != 0
	if err := c.port.SetModemLines(dtr, rts); err != nil {
		c.diag.hostError("set modem lines", err)
	}
	return nil
}

// Write performs a guest register write and returns the resulting status
// code, mirroring uart_addrwrite's int return.
func (h Handle) Write(offset int, value byte) int {
	c := h.core()
	if c == nil {
		return StatusWriteToLSR // any negative status reads as "not handled"
	}
	return c.WriteReg(offset, value)
}

// Read performs a guest register read, mirroring uart_addrread's
// out-parameter contract: *value receives the byte, and the return is the
// status code.
func (h Handle) Read(offset int, value *byte) int {
	c := h.core()
	if c == nil {
		return StatusWriteToLSR
	}
	v, status := c.ReadReg(offset)
	*value = v
	return status
}

// Destroy releases the channel's host port and removes it from the
// registry, mirroring uart_destroy. The Handle must not be used afterward.
func (h Handle) Destroy() {
	registryMu.Lock()
	c, ok := registry[h.id]
	if ok {
		delete(registry, h.id)
	}
	registryMu.Unlock()

	if ok && c.opened {
		_ = c.port.Close()
	}
}
