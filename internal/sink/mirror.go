package sink

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Mirror handles asynchronous copying of outgoing frames to a second
// controller. Queueing never blocks the playback loop: when the buffer
// is full the frame is dropped and counted instead.
type Mirror struct {
	conn        PacketConn
	channel     chan []byte
	logInterval time.Duration
	address     string
	dropped     atomic.Uint64
}

// NewMirror dials host:port and returns a mirror with the default
// 1000-frame buffer.
func NewMirror(host string, port int, logInterval time.Duration) (*Mirror, error) {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := DialUDP(address)
	if err != nil {
		return nil, err
	}
	return NewMirrorWithConn(conn, address, 1000, logInterval), nil
}

// NewMirrorWithConn wraps an already-open connection with an explicit
// buffer size. Used by tests and by callers that manage their own dialing.
func NewMirrorWithConn(conn PacketConn, address string, buffer int, logInterval time.Duration) *Mirror {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Mirror{
		conn:        conn,
		channel:     make(chan []byte, buffer),
		logInterval: logInterval,
		address:     address,
	}
}

// Start begins the forwarding goroutine that drains queued frames to the
// connection. Write failures are tallied and reported at the configured
// interval rather than logged per frame.
func (m *Mirror) Start(ctx context.Context) {
	go func() {
		failedCount := 0
		var lastError error
		ticker := time.NewTicker(m.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-m.channel:
				if _, err := m.conn.Write(frame); err != nil {
					failedCount++
					lastError = err
				}
			case <-ticker.C:
				if failedCount > 0 && lastError != nil {
					log.Printf("mirror: %d frames failed to %s (latest: %v)", failedCount, m.address, lastError)
					failedCount = 0
					lastError = nil
				}
			}
		}
	}()

	log.Printf("mirroring frames to %s", m.address)
}

// ForwardAsync queues a copy of frame for transmission without blocking.
// If the buffer is full the frame is dropped and the drop counter
// incremented.
func (m *Mirror) ForwardAsync(frame []byte) {
	// Copy so the caller may reuse its buffer for the next tick.
	frameCopy := make([]byte, len(frame))
	copy(frameCopy, frame)

	select {
	case m.channel <- frameCopy:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns the number of frames dropped because the buffer was full.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Address returns the remote address the mirror was built for.
func (m *Mirror) Address() string {
	return m.address
}

// Close closes the underlying connection.
func (m *Mirror) Close() error {
	return m.conn.Close()
}
