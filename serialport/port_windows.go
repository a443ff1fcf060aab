//go:build windows

package serialport

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsPort is a serialport.Port backed by a Win32 COM port, configured
// through the classic DCB/CommState API. golang.org/x/sys/windows does not
// wrap GetCommState/SetCommState/EscapeCommFunction/SetCommTimeouts/
// ClearCommError directly, so those five calls go through kernel32 the way
// most Go serial-port libraries do it;
// everything else (handle, CreateFile, Read/WriteFile) comes straight from
// golang.org/x/sys/windows.
type WindowsPort struct {
	handle windows.Handle
	path   string
	closed atomic.Bool
}

func NewWindowsPort() *WindowsPort {
	return &WindowsPort{handle: windows.InvalidHandle}
}

var (
	modkernel32             = syscall.NewLazyDLL("kernel32.dll")
	procGetCommState        = modkernel32.NewProc("GetCommState")
	procSetCommState        = modkernel32.NewProc("SetCommState")
	procEscapeCommFunction  = modkernel32.NewProc("EscapeCommFunction")
	procSetCommTimeouts     = modkernel32.NewProc("SetCommTimeouts")
	procClearCommError      = modkernel32.NewProc("ClearCommError")
)

const (
	setRTS = 3
	clrRTS = 4
	setDTR = 5
	clrDTR = 6

	dcbBinary         = 1 << 0
	dcbParityEnable   = 1 << 1
	dcbOutxCTSFlow    = 1 << 2
	dcbOutxDSRFlow    = 1 << 3
	dcbDTRControl     = 1 << 4 // 2 bits, DTR_CONTROL_ENABLE
	dcbRTSControl     = 1 << 12

	noParity    = 0
	oddParity   = 1
	evenParity  = 2
	markParity  = 3
	spaceParity = 4

	oneStopBit     = 0
	onePointFive   = 1
	twoStopBits    = 2
)

// dcb mirrors the Win32 DCB structure layout (winbase.h).
type dcb struct {
	DCBlength uint32
	BaudRate  uint32
	flags     uint32
	wReserved uint16
	XonLim    uint16
	XoffLim   uint16
	ByteSize  byte
	Parity    byte
	StopBits  byte
	XonChar   byte
	XoffChar  byte
	ErrorChar byte
	EofChar   byte
	EvtChar   byte
	wReserved1 uint16
}

type commTimeouts struct {
	ReadIntervalTimeout         uint32
	ReadTotalTimeoutMultiplier  uint32
	ReadTotalTimeoutConstant    uint32
	WriteTotalTimeoutMultiplier uint32
	WriteTotalTimeoutConstant   uint32
}

func (p *WindowsPort) Open(path string, params Params) error {
	if p.handle != windows.InvalidHandle {
		_ = p.closeHandle()
	}
	// The uart package's normalizeDevicePath adds the \\.\ prefix for COM10
	// and above; here it is added to every path that still lacks it,
	// including COM1-COM9 names and paths passed directly to serialport.
	winPath := path
	if len(path) < 4 || path[:4] != `\\.\` {
		winPath = `\\.\` + path
	}
	name, err := windows.UTF16PtrFromString(winPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}
	h, err := windows.CreateFile(name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, path, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}

	var d dcb
	d.DCBlength = uint32(unsafe.Sizeof(d))
	if err := getCommState(h, &d); err != nil {
		windows.CloseHandle(h)
		return fmt.Errorf("%w: %v", ErrGetParamsFailed, err)
	}

	if err := applyDCB(&d, params); err != nil {
		windows.CloseHandle(h)
		return err
	}

	if err := setCommState(h, &d); err != nil {
		windows.CloseHandle(h)
		return fmt.Errorf("%w: %v", ErrSetParamsFailed, err)
	}

	timeouts := commTimeouts{
		ReadIntervalTimeout:        50,
		ReadTotalTimeoutConstant:   1000,
		WriteTotalTimeoutConstant:  1000,
	}
	if err := setCommTimeouts(h, &timeouts); err != nil {
		windows.CloseHandle(h)
		return fmt.Errorf("%w: %v", ErrTimeoutFailed, err)
	}

	p.handle = h
	p.path = path
	p.closed.Store(false)
	return nil
}

func applyDCB(d *dcb, params Params) error {
	d.flags |= dcbBinary
	d.flags &^= dcbOutxCTSFlow | dcbOutxDSRFlow
	d.BaudRate = uint32(params.Baud)
	if params.Baud <= 0 {
		return fmt.Errorf("%w: %d", ErrBaudRejected, params.Baud)
	}

	switch params.Data {
	case DataBits5, DataBits6, DataBits7, DataBits8:
		d.ByteSize = byte(params.Data)
	case 0:
		d.ByteSize = 8
	default:
		return ErrDataBitsInvalid
	}

	switch params.Stop {
	case StopBits1:
		d.StopBits = oneStopBit
	case StopBits1_5:
		d.StopBits = onePointFive
	case StopBits2:
		d.StopBits = twoStopBits
	default:
		return ErrStopBitsInvalid
	}

	switch params.Parity {
	case ParityNone:
		d.Parity = noParity
		d.flags &^= dcbParityEnable
	case ParityOdd:
		d.Parity = oddParity
		d.flags |= dcbParityEnable
	case ParityEven:
		d.Parity = evenParity
		d.flags |= dcbParityEnable
	case ParityMark:
		d.Parity = markParity
		d.flags |= dcbParityEnable
	case ParitySpace:
		d.Parity = spaceParity
		d.flags |= dcbParityEnable
	default:
		return ErrParityInvalid
	}
	return nil
}

func getCommState(h windows.Handle, d *dcb) error {
	r, _, err := procGetCommState.Call(uintptr(h), uintptr(unsafe.Pointer(d)))
	if r == 0 {
		return err
	}
	return nil
}

func setCommState(h windows.Handle, d *dcb) error {
	r, _, err := procSetCommState.Call(uintptr(h), uintptr(unsafe.Pointer(d)))
	if r == 0 {
		return err
	}
	return nil
}

func setCommTimeouts(h windows.Handle, t *commTimeouts) error {
	r, _, err := procSetCommTimeouts.Call(uintptr(h), uintptr(unsafe.Pointer(t)))
	if r == 0 {
		return err
	}
	return nil
}

func (p *WindowsPort) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return p.closeHandle()
}

func (p *WindowsPort) closeHandle() error {
	h := p.handle
	p.handle = windows.InvalidHandle
	if h == windows.InvalidHandle {
		return nil
	}
	return windows.CloseHandle(h)
}

func (p *WindowsPort) Write(b byte) error {
	if p.handle == windows.InvalidHandle {
		return ErrClosed
	}
	buf := [1]byte{b}
	var written uint32
	if err := windows.WriteFile(p.handle, buf[:], &written, nil); err != nil {
		return err
	}
	if written != 1 {
		return fmt.Errorf("serialport: short write (%d bytes)", written)
	}
	return nil
}

func (p *WindowsPort) ReadByte() (byte, bool, error) {
	if p.handle == windows.InvalidHandle {
		return 0, false, ErrClosed
	}
	var buf [1]byte
	var read uint32
	if err := windows.ReadFile(p.handle, buf[:], &read, nil); err != nil {
		return 0, false, err
	}
	if read == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// comstat mirrors the Win32 COMSTAT structure; only cbInQue is used.
type comstat struct {
	flags   uint32
	cbInQue uint32
	cbOutQue uint32
}

func (p *WindowsPort) Available() (int, error) {
	if p.handle == windows.InvalidHandle {
		return 0, ErrClosed
	}
	var errs uint32
	var stat comstat
	r, _, err := procClearCommError.Call(uintptr(p.handle), uintptr(unsafe.Pointer(&errs)), uintptr(unsafe.Pointer(&stat)))
	if r == 0 {
		return 0, err
	}
	return int(stat.cbInQue), nil
}

func (p *WindowsPort) SetModemLines(dtr, rts bool) error {
	if p.handle == windows.InvalidHandle {
		return ErrClosed
	}
	dtrFn := uintptr(clrDTR)
	if dtr {
		dtrFn = setDTR
	}
	if r, _, err := procEscapeCommFunction.Call(uintptr(p.handle), dtrFn); r == 0 {
		return err
	}
	rtsFn := uintptr(clrRTS)
	if rts {
		rtsFn = setRTS
	}
	if r, _, err := procEscapeCommFunction.Call(uintptr(p.handle), rtsFn); r == 0 {
		return err
	}
	return nil
}

var _ Port = (*WindowsPort)(nil)
