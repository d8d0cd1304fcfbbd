// Package sink transmits rendered frames to a WLED-style LED controller
// over UDP. One datagram carries one whole frame in the controller's raw
// realtime format, so a lost packet costs a single tick and nothing else.
package sink

import (
	"fmt"
	"net"
	"sync"
)

// DefaultPort is the WLED raw UDP realtime port.
const DefaultPort = 19446

// PacketConn is the write side of a UDP connection. Satisfied by
// *net.UDPConn; tests substitute a mock so no sockets are opened.
type PacketConn interface {
	Write(b []byte) (n int, err error)
	Close() error
	RemoteAddr() net.Addr
}

// DialUDP resolves address and opens a connected UDP socket to it.
func DialUDP(address string) (PacketConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sink address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sink: %w", err)
	}
	return conn, nil
}

// Stats is a snapshot of transmit counters.
type Stats struct {
	FramesSent uint64 `json:"frames_sent"`
	BytesSent  uint64 `json:"bytes_sent"`
	SendErrors uint64 `json:"send_errors"`
}

// UDPSink sends frames to one controller. The connection is dialed once;
// UDP has no session so a controller reboot needs no reconnect handling.
type UDPSink struct {
	conn    PacketConn
	address string
	mirror  *Mirror

	mu     sync.Mutex
	frames uint64
	bytes  uint64
	errs   uint64
}

// NewUDPSink dials host:port and returns a sink ready to send.
func NewUDPSink(host string, port int) (*UDPSink, error) {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := DialUDP(address)
	if err != nil {
		return nil, err
	}
	return NewSinkWithConn(conn, address), nil
}

// NewSinkWithConn wraps an already-open connection. Used by tests and by
// callers that manage their own dialing.
func NewSinkWithConn(conn PacketConn, address string) *UDPSink {
	return &UDPSink{conn: conn, address: address}
}

// AttachMirror copies every frame passed to Send onto m, regardless of
// whether the primary write succeeds.
func (s *UDPSink) AttachMirror(m *Mirror) {
	s.mirror = m
}

// Send transmits one frame as a single datagram. A failed write is
// counted and returned; the caller decides whether to log it.
func (s *UDPSink) Send(frame []byte) error {
	if s.mirror != nil {
		s.mirror.ForwardAsync(frame)
	}

	n, err := s.conn.Write(frame)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs++
		return fmt.Errorf("sink write to %s: %w", s.address, err)
	}
	s.frames++
	s.bytes += uint64(n)
	return nil
}

// Stats returns a copy of the transmit counters.
func (s *UDPSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{FramesSent: s.frames, BytesSent: s.bytes, SendErrors: s.errs}
}

// Address returns the remote address the sink was built for.
func (s *UDPSink) Address() string {
	return s.address
}

// Close closes the underlying connection.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// Blank returns an all-zero frame for zones of the given width. Sending
// it turns every LED off.
func Blank(zones, bytesPerZone int) []byte {
	return make([]byte, zones*bytesPerZone)
}
