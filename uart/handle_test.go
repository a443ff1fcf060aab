package uart

import (
	"errors"
	"testing"

	"x16uart/serialport"
	"x16uart/serialport/fakeport"
)

func TestOpenPropagatesHostFailure(t *testing.T) {
	port := fakeport.New()
	port.OpenErr = serialport.ErrDeviceNotFound
	h := NewHandle(WithPort(port), WithDiagnostics(&Diagnostics{Out: discardWriter{}}))
	defer h.Destroy()

	err := h.Open("/dev/does-not-exist")
	if !errors.Is(err, serialport.ErrDeviceNotFound) {
		t.Errorf("Open error = %v, want %v", err, serialport.ErrDeviceNotFound)
	}

	// A failed open must not mark the channel opened: register reads should
	// fall back to the unopened CTS-asserted/no-data behavior rather than
	// touching the (never connected) port.
	if v := readByte(t, h, OffsetMSR); v&msrCTS == 0 {
		t.Errorf("MSR CTS not set after failed open: %#x", v)
	}
}

func TestDestroyClosesPortAndInvalidatesHandle(t *testing.T) {
	port := fakeport.New()
	h := NewHandle(WithPort(port), WithDiagnostics(&Diagnostics{Out: discardWriter{}}))
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	h.Destroy()
	if port.IsOpen() {
		t.Error("port still open after Destroy")
	}
	if port.CloseCount() != 1 {
		t.Errorf("CloseCount = %d, want 1", port.CloseCount())
	}

	var v byte
	if status := h.Read(OffsetScratch, &v); status != StatusWriteToLSR {
		t.Errorf("Read after Destroy status = %d, want %d (invalid handle sentinel)", status, StatusWriteToLSR)
	}
}

func TestMultipleHandlesAreIndependent(t *testing.T) {
	h1, port1 := newTestHandle(t)
	h2, port2 := newTestHandle(t)

	if err := h1.Open("/dev/fake0"); err != nil {
		t.Fatalf("h1.Open: %v", err)
	}
	if err := h2.Open("/dev/fake1"); err != nil {
		t.Fatalf("h2.Open: %v", err)
	}

	h1.Write(OffsetScratch, 0x11)
	h2.Write(OffsetScratch, 0x22)

	if v := readByte(t, h1, OffsetScratch); v != 0x11 {
		t.Errorf("h1 scratch = %#x, want 0x11", v)
	}
	if v := readByte(t, h2, OffsetScratch); v != 0x22 {
		t.Errorf("h2 scratch = %#x, want 0x22", v)
	}
	if port1.Path() == port2.Path() {
		t.Errorf("expected distinct device paths, both got %q", port1.Path())
	}
}
