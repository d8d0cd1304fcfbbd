package control

import (
	"go.bug.st/serial"
)

// NewSerialLineMux creates a LineMux backed by a real serial port at the
// given path using the provided serial options. Used when playback is
// driven by an external controller wired to a serial line instead of
// stdin.
func NewSerialLineMux(path string, opts PortOptions) (*LineMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewLineMux[serial.Port](port), nil
}

// NewStdinLineMux creates a LineMux reading commands from the process's
// standard input, the default control source for the daemon.
func NewStdinLineMux() *LineMux[*StdinPort] {
	return NewLineMux(NewStdinPort())
}
