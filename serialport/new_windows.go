//go:build windows

package serialport

// NewHostPort returns the Port implementation for the current platform.
func NewHostPort() Port { return NewWindowsPort() }
