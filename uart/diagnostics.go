package uart

import (
	"fmt"
	"io"
	"os"
)

// Diagnostics is the UART's logging sink: an io.Writer-backed line logger in
// the teacher pack's own style (core_engine/devices/serial.go logs host
// failures with bare fmt.Printf rather than a structured logging library),
// gated by a runtime Verbose flag rather than the original's compile-time
// VERBOSE #ifdef.
type Diagnostics struct {
	Out     io.Writer
	Verbose bool
}

// NewDiagnostics returns a Diagnostics writing to os.Stderr with Verbose off.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{Out: os.Stderr}
}

func (d *Diagnostics) writer() io.Writer {
	if d == nil || d.Out == nil {
		return os.Stderr
	}
	return d.Out
}

// hostError logs a classified host-port failure, mirroring the numbered
// "Error opening port: N" messages the original emitted to stderr.
func (d *Diagnostics) hostError(op string, err error) {
	fmt.Fprintf(d.writer(), "uart: %s: %v\n", op, err)
}

// trace logs a verbose-only diagnostic line, e.g. a successful
// reconfiguration. Silent unless Verbose is set.
func (d *Diagnostics) trace(format string, args ...any) {
	if d == nil || !d.Verbose {
		return
	}
	fmt.Fprintf(d.writer(), "uart: "+format+"\n", args...)
}
