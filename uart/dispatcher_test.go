package uart

import (
	"testing"

	"x16uart/serialport"
	"x16uart/serialport/fakeport"
)

func newTestHandle(t *testing.T) (Handle, *fakeport.Port) {
	t.Helper()
	port := fakeport.New()
	h := NewHandle(WithPort(port), WithDiagnostics(&Diagnostics{Out: discardWriter{}}))
	t.Cleanup(h.Destroy)
	return h, port
}

// discardWriter swallows diagnostic output so tests don't spam stdout with
// expected host-failure lines (e.g. the closed-port scenario below).
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func readByte(t *testing.T, h Handle, offset int) byte {
	t.Helper()
	var v byte
	if status := h.Read(offset, &v); status != StatusOK {
		t.Fatalf("Read(%d) status = %d, want %d", offset, status, StatusOK)
	}
	return v
}

func TestResetDefaults(t *testing.T) {
	h, _ := newTestHandle(t)
	if v := readByte(t, h, OffsetIERorDMSB); v != 0 {
		t.Errorf("IER at reset = %#x, want 0", v)
	}
	if v := readByte(t, h, OffsetLCR); v != 0 {
		t.Errorf("LCR at reset = %#x, want 0", v)
	}
	if v := readByte(t, h, OffsetMCR); v != 0 {
		t.Errorf("MCR at reset = %#x, want 0", v)
	}
}

func TestDLABOverlayReadsDivisorLatch(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Write(OffsetLCR, lcrDLAB)
	h.Write(OffsetDataOrDLSB, 0x60)
	h.Write(OffsetIERorDMSB, 0x00)

	if v := readByte(t, h, OffsetDataOrDLSB); v != 0x60 {
		t.Errorf("DLSB readback = %#x, want 0x60", v)
	}

	h.Write(OffsetLCR, 0x00) // clear DLAB
	if v := readByte(t, h, OffsetIERorDMSB); v != 0 {
		t.Errorf("IER after clearing DLAB = %#x, want 0", v)
	}
}

func TestIERMasksReservedNibble(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetIERorDMSB, 0xFF)
	if v := readByte(t, h, OffsetIERorDMSB); v != 0x0F {
		t.Errorf("IER = %#x, want 0x0F (upper nibble masked)", v)
	}
}

func TestFCRMasksReservedBits(t *testing.T) {
	h, _ := newTestHandle(t)
	status := h.Write(OffsetIIRFCR, 0xFF)
	if status != StatusOK {
		t.Fatalf("Write(FCR) status = %d", status)
	}
	if got := h.core().regs.fcr; got != 0xCF {
		t.Errorf("FCR stored = %#x, want 0xCF", got)
	}
}

func TestLSRandMSRAreReadOnly(t *testing.T) {
	h, _ := newTestHandle(t)
	if status := h.Write(OffsetLSR, 0x00); status != StatusWriteToLSR {
		t.Errorf("Write(LSR) status = %d, want %d", status, StatusWriteToLSR)
	}
	if status := h.Write(OffsetMSR, 0x00); status != StatusWriteToMSR {
		t.Errorf("Write(MSR) status = %d, want %d", status, StatusWriteToMSR)
	}
}

func TestScratchRegisterRoundTrips(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetScratch, 0xA5)
	if v := readByte(t, h, OffsetScratch); v != 0xA5 {
		t.Errorf("scratch = %#x, want 0xA5", v)
	}
}

func TestLCRWriteUnchangedDoesNotReopenPort(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	before := port.OpenCount()

	h.Write(OffsetLCR, 0x03) // 8 data bits, 1 stop, no parity
	afterFirst := port.OpenCount()
	if afterFirst != before+1 {
		t.Fatalf("first LCR write: open count = %d, want %d", afterFirst, before+1)
	}

	h.Write(OffsetLCR, 0x03) // identical value: must not trigger a reconfigure
	if got := port.OpenCount(); got != afterFirst {
		t.Errorf("repeat identical LCR write reopened port: count = %d, want %d", got, afterFirst)
	}
}

func TestMCRChangeReconfiguresButRepeatDoesNot(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	before := port.OpenCount()

	h.Write(OffsetMCR, 0x01)
	afterFirst := port.OpenCount()
	if afterFirst != before+1 {
		t.Fatalf("first MCR write: open count = %d, want %d", afterFirst, before+1)
	}

	h.Write(OffsetMCR, 0x01) // identical value: must not retrigger reconfiguration
	if got := port.OpenCount(); got != afterFirst {
		t.Errorf("repeat identical MCR write reopened port: count = %d, want %d", got, afterFirst)
	}

	h.Write(OffsetMCR, 0x03) // changed: reconfigures again
	if got := port.OpenCount(); got != afterFirst+1 {
		t.Errorf("changed MCR write: open count = %d, want %d", got, afterFirst+1)
	}
}

func TestMCRDrivesModemLinesFromDTRAndAFE(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Write(OffsetMCR, mcrDTR|mcrAFE)
	dtr, rts := port.ModemLines()
	if !dtr || !rts {
		t.Errorf("ModemLines = (%v, %v), want (true, true)", dtr, rts)
	}

	h.Write(OffsetMCR, mcrDTR) // AFE (bit 5) cleared: RTS follows it, not canonical bit 1
	dtr, rts = port.ModemLines()
	if !dtr || rts {
		t.Errorf("ModemLines after clearing AFE = (%v, %v), want (true, false)", dtr, rts)
	}
}

func TestLoopbackEchoesDataRegisterWithoutTouchingHost(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Write(OffsetMCR, mcrLoopback)
	h.Write(OffsetDataOrDLSB, 0x42)

	if v := readByte(t, h, OffsetDataOrDLSB); v != 0x42 {
		t.Errorf("loopback readback = %#x, want 0x42", v)
	}
	if got := port.Transmitted(); len(got) != 0 {
		t.Errorf("loopback write reached host: %v", got)
	}

	if v := readByte(t, h, OffsetLSR); v&lsrDataReady == 0 {
		t.Errorf("LSR DR not set in loopback, got %#x", v)
	}
}

func TestDataRegisterForwardsToHostOutsideLoopback(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Write(OffsetDataOrDLSB, 0x55)
	if got := port.Transmitted(); len(got) != 1 || got[0] != 0x55 {
		t.Errorf("Transmitted = %v, want [0x55]", got)
	}
}

func TestLSRDataReadyReflectsHostAvailability(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if v := readByte(t, h, OffsetLSR); v&lsrDataReady != 0 {
		t.Errorf("LSR DR set with nothing queued: %#x", v)
	}

	port.QueueRx(0x99)
	if v := readByte(t, h, OffsetLSR); v&lsrDataReady == 0 {
		t.Errorf("LSR DR not set with a byte queued: %#x", v)
	}

	if v := readByte(t, h, OffsetDataOrDLSB); v != 0x99 {
		t.Errorf("RHR = %#x, want 0x99", v)
	}
	if v := readByte(t, h, OffsetLSR); v&lsrDataReady != 0 {
		t.Errorf("LSR DR still set after RHR consumed the byte: %#x", v)
	}
}

func TestMSRDSRAlwaysAssertedOnceOpen(t *testing.T) {
	h, _ := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v := readByte(t, h, OffsetMSR); v&msrDSR == 0 {
		t.Errorf("MSR DSR not set: %#x", v)
	}
}

func TestMSRCTSDeassertsAtThrottleThreshold(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if v := readByte(t, h, OffsetMSR); v&msrCTS == 0 {
		t.Errorf("MSR CTS not set with empty receive buffer: %#x", v)
	}

	buf := make([]byte, ctsThrottleThreshold)
	port.QueueRx(buf...)
	if v := readByte(t, h, OffsetMSR); v&msrCTS != 0 {
		t.Errorf("MSR CTS set at throttle threshold: %#x", v)
	}
}

func TestDivisorZeroIsRejectedAtOpen(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetLCR, lcrDLAB)
	h.Write(OffsetDataOrDLSB, 0x00)
	h.Write(OffsetIERorDMSB, 0x00) // requestedDivisor now 0
	h.Write(OffsetLCR, 0x00)

	if err := h.Open("/dev/fake0"); err == nil {
		t.Fatal("Open with divisor 0 succeeded, want error")
	}
}

func TestBaudForDivisor(t *testing.T) {
	cases := []struct {
		divisor uint16
		want    int
	}{
		{8, 115200},
		{1, 921600},
		{0, baudInvalid},
	}
	for _, tc := range cases {
		if got := baudForDivisor(tc.divisor); got != tc.want {
			t.Errorf("baudForDivisor(%d) = %d, want %d", tc.divisor, got, tc.want)
		}
	}
}

func TestWriteOffsetIsMaskedToThreeBits(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetScratch+8, 0x77) // offset 15 aliases offset 7
	if v := readByte(t, h, OffsetScratch); v != 0x77 {
		t.Errorf("aliased write didn't land on scratch: %#x", v)
	}
}

func TestReadOffsetZeroWithNoDataReturnsSentinel(t *testing.T) {
	h, _ := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	var v byte
	status := h.Read(OffsetDataOrDLSB, &v)
	if status != StatusNoData {
		t.Errorf("status = %d, want %d", status, StatusNoData)
	}
	if v != 0 {
		t.Errorf("delivered value = %#x, want 0", v)
	}
}

func TestWriteDivisorLatchByteReturnsStoredValue(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetLCR, lcrDLAB)
	if status := h.Write(OffsetDataOrDLSB, 0x42); status != 0x42 {
		t.Errorf("write DLSB status = %d, want 0x42", status)
	}
}

func TestWriteOffsetZeroOutsideLoopbackPropagatesHostFailure(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = port.Close() // simulate the host link dropping out from under the core

	status := h.Write(OffsetDataOrDLSB, 0x10)
	if status != StatusHostWriteFailed {
		t.Errorf("status = %d, want %d", status, StatusHostWriteFailed)
	}
}

// TestFramingChangeTriggerMatchesSpecExactly exercises property 4 precisely:
// a write to LCR that only flips bit 7 (DLAB), without being a 1->0 edge
// and without changing the low seven bits, must not reconfigure.
func TestFramingChangeTriggerMatchesSpecExactly(t *testing.T) {
	h, port := newTestHandle(t)
	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	before := port.OpenCount()

	h.Write(OffsetLCR, lcrDLAB) // 0x00 -> 0x80: DLAB 0->1 edge, low7 unchanged
	if got := port.OpenCount(); got != before {
		t.Errorf("DLAB 0->1 edge reconfigured: count = %d, want %d", got, before)
	}

	h.Write(OffsetLCR, 0x00) // 0x80 -> 0x00: DLAB 1->0 edge commits the divisor
	if got := port.OpenCount(); got != before+1 {
		t.Errorf("DLAB 1->0 edge didn't reconfigure: count = %d, want %d", got, before+1)
	}
}

func TestDivisorCommitUsesCombinedLatchBytes(t *testing.T) {
	h, _ := newTestHandle(t)
	h.Write(OffsetLCR, lcrDLAB)
	h.Write(OffsetDataOrDLSB, 0x01) // DLSB
	h.Write(OffsetIERorDMSB, 0x00)  // DMSB
	h.Write(OffsetLCR, 0x00)        // commit: divisor = 0x0001

	if err := h.Open("/dev/fake0"); err != nil {
		t.Fatalf("Open with divisor 1: %v", err)
	}
	if got := h.core().regs.requestedDivisor; got != 1 {
		t.Errorf("requestedDivisor = %d, want 1", got)
	}
}

var _ serialport.Port = (*fakeport.Port)(nil)
