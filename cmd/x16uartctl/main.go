// x16uartctl is a small harness for exercising a uart.Handle against a real
// host serial device from the command line: it programs baud/framing
// through the same register writes an emulated guest would make, then
// bridges stdin/stdout to the channel until interrupted.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"x16uart/uart"
)

func divisorForBaud(baud int) uint16 {
	if baud <= 0 {
		return 8
	}
	return uint16(uart.Oscillator / (baud * 16))
}

func mainImpl() error {
	device := flag.String("device", "", "host serial device path (e.g. /dev/ttyUSB0 or COM3)")
	baud := flag.Int("baud", 115200, "baud rate")
	verbose := flag.Bool("verbose", false, "log each successful host-port reconfiguration")
	flag.Parse()

	if *device == "" {
		return fmt.Errorf("-device is required")
	}

	diag := uart.NewDiagnostics()
	diag.Verbose = *verbose
	h := uart.NewHandle(uart.WithDiagnostics(diag))
	defer h.Destroy()

	divisor := divisorForBaud(*baud)
	h.Write(uart.OffsetLCR, 0x80) // DLAB=1
	h.Write(uart.OffsetDataOrDLSB, byte(divisor))
	h.Write(uart.OffsetIERorDMSB, byte(divisor>>8))
	h.Write(uart.OffsetLCR, 0x03) // DLAB=0, 8N1
	h.Write(uart.OffsetMCR, 0x01) // DTR asserted

	if err := h.Open(*device); err != nil {
		return fmt.Errorf("open %s: %w", *device, err)
	}
	fmt.Fprintf(os.Stderr, "x16uartctl: connected to %s at %d baud\n", *device, *baud)

	halt := make(chan os.Signal, 1)
	signal.Notify(halt, syscall.SIGINT, syscall.SIGTERM)

	stdin := bufio.NewReader(os.Stdin)
	incoming := make(chan byte)
	go func() {
		for {
			b, err := stdin.ReadByte()
			if err != nil {
				return
			}
			incoming <- b
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-halt:
			fmt.Fprintln(os.Stderr, "x16uartctl: closing")
			return nil
		case b := <-incoming:
			h.Write(uart.OffsetDataOrDLSB, b)
		case <-ticker.C:
			var lsr byte
			h.Read(uart.OffsetLSR, &lsr)
			if lsr&uart.LSRDataReady != 0 {
				var rx byte
				h.Read(uart.OffsetDataOrDLSB, &rx)
				os.Stdout.Write([]byte{rx})
			}
		}
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "x16uartctl: %s\n", err)
		os.Exit(1)
	}
}
