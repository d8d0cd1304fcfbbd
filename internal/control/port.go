package control

import (
	"io"
	"os"
	"time"
)

// LinePorter defines the minimal interface needed for a control port.
// This abstraction enables unit testing without real serial hardware.
type LinePorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutLinePorter extends LinePorter with timeout capabilities.
// This is an optional interface that ports may implement.
type TimeoutLinePorter interface {
	LinePorter
	// SetReadTimeout sets the read timeout for the port.
	SetReadTimeout(timeout time.Duration) error
}

// LinePortFactory defines an interface for creating control ports.
// This abstraction enables dependency injection of port creation.
type LinePortFactory interface {
	// Open opens a control port at the specified path with the given options.
	Open(path string, opts PortOptions) (LinePorter, error)
}

// LinePortOpener is a function type for opening control ports.
// This allows for easier testing by replacing the opener function.
type LinePortOpener func(path string, opts PortOptions) (LinePorter, error)

// StdinPort adapts the process's standard streams into a LinePorter:
// commands are read from stdin and acknowledgements written to stdout.
// Close is a no-op so shutting the mux down never closes os.Stdin.
type StdinPort struct {
	in  io.Reader
	out io.Writer
}

// NewStdinPort returns a port reading os.Stdin and writing os.Stdout.
func NewStdinPort() *StdinPort {
	return &StdinPort{in: os.Stdin, out: os.Stdout}
}

func (p *StdinPort) Read(buf []byte) (int, error)  { return p.in.Read(buf) }
func (p *StdinPort) Write(buf []byte) (int, error) { return p.out.Write(buf) }
func (p *StdinPort) Close() error                  { return nil }
