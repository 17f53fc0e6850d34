// Package transport defines the narrow framing contract each 9P
// transport adapter implements, plus concrete helpers: StreamFramer
// (reassembles 9P messages out of an arbitrary byte stream), NetTransport
// (wraps any net.Conn, including a PipeListener's net.Pipe, for tests),
// and PipeListener (an in-process net.Listener for tests), grounded
// respectively on styxproto.Decoder's sliding-window reassembly and
// internal/netutil.PipeListener.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"go.minnow.dev/ninep/wire"
)

// ErrNotSupported is returned by MTU when a transport has no inherent
// message-size bound, in which case the session's negotiated msize is
// the governing limit.
var ErrNotSupported = errors.New("transport: mtu not supported")

// Receiver is invoked once per complete 9P message. The byte slice is
// only valid for the duration of the call; implementations that need
// to retain it must copy.
type Receiver func(msg []byte)

// Transport is the interface every adapter (TCP, a UART framer, a
// test pipe) implements. The core never performs I/O directly; it only
// calls through this interface.
type Transport interface {
	// Send writes exactly one framed message. Send must not interleave
	// with a concurrent Send on the same Transport.
	Send(msg []byte) error

	// Start begins delivering inbound messages to recv. Start must not
	// block; delivery happens on a transport-owned goroutine.
	Start(recv Receiver) error

	// Stop disables delivery and releases any transport-owned
	// goroutines or resources.
	Stop() error

	// MTU returns an upper bound on a single outbound message, or
	// ErrNotSupported if the transport has none.
	MTU() (int, error)
}

// StreamFramer wraps an io.Reader that carries a byte stream (no
// inherent message boundaries, e.g. a TCP socket or a UART) and
// invokes recv once per complete 9P frame, using the codec's own
// 4-byte size header to find frame boundaries.
//
// Oversized claimed sizes (greater than maxSize) are dropped and the
// framer resyncs by discarding exactly that many bytes before
// resuming size-parsing, per spec.md §4.4's framing rule.
type StreamFramer struct {
	r       io.Reader
	maxSize int
	mu      sync.Mutex
}

// NewStreamFramer returns a StreamFramer reading from r, rejecting any
// claimed message size larger than maxSize.
func NewStreamFramer(r io.Reader, maxSize int) *StreamFramer {
	return &StreamFramer{r: r, maxSize: maxSize}
}

// Run reads frames from the underlying reader until it returns an
// error (io.EOF included), invoking recv once per complete message.
// Run is blocking; callers run it on its own goroutine.
func (f *StreamFramer) Run(recv Receiver) error {
	dec := wire.NewDecoder(f.r)
	dec.MaxSize = int64(f.maxSize)
	for dec.Next() {
		m := dec.Msg()
		recv(rawBytes(m))
	}
	return dec.Err()
}

// rawBytes extracts the underlying wire bytes of any decoded message
// type, all of which are defined as []byte.
func rawBytes(m wire.Msg) []byte {
	switch v := m.(type) {
	case wire.Tversion:
		return v
	case wire.Rversion:
		return v
	case wire.Tauth:
		return v
	case wire.Rauth:
		return v
	case wire.Tattach:
		return v
	case wire.Rattach:
		return v
	case wire.Rerror:
		return v
	case wire.Tflush:
		return v
	case wire.Rflush:
		return v
	case wire.Twalk:
		return v
	case wire.Rwalk:
		return v
	case wire.Topen:
		return v
	case wire.Ropen:
		return v
	case wire.Tcreate:
		return v
	case wire.Rcreate:
		return v
	case wire.Tread:
		return v
	case wire.Rread:
		return v
	case wire.Twrite:
		return v
	case wire.Rwrite:
		return v
	case wire.Tclunk:
		return v
	case wire.Rclunk:
		return v
	case wire.Tremove:
		return v
	case wire.Rremove:
		return v
	case wire.Tstat:
		return v
	case wire.Rstat:
		return v
	case wire.Twstat:
		return v
	case wire.Rwstat:
		return v
	case wire.BadMessage:
		// A BadMessage still carries a tag a dispatcher can reply
		// Rerror to; forwarding its raw bytes (instead of dropping
		// them) lets the session layer redecode and dispatch it
		// rather than silently losing the request.
		return v.Raw()
	default:
		return nil
	}
}

// NetTransport adapts any net.Conn (TCP, Unix, or a PipeListener's
// net.Pipe) to the Transport interface, framing with StreamFramer.
type NetTransport struct {
	conn    net.Conn
	maxSize int
	enc     *wire.Encoder

	stop chan struct{}
	once sync.Once
}

// NewNetTransport wraps conn, rejecting inbound frames larger than
// maxSize.
func NewNetTransport(conn net.Conn, maxSize int) *NetTransport {
	return &NetTransport{conn: conn, maxSize: maxSize, enc: wire.NewEncoder(conn), stop: make(chan struct{})}
}

func (t *NetTransport) Send(msg []byte) error {
	_, err := t.conn.Write(msg)
	return err
}

func (t *NetTransport) Start(recv Receiver) error {
	framer := NewStreamFramer(t.conn, t.maxSize)
	go func() {
		framer.Run(func(msg []byte) {
			select {
			case <-t.stop:
			default:
				recv(msg)
			}
		})
	}()
	return nil
}

func (t *NetTransport) Stop() error {
	t.once.Do(func() { close(t.stop) })
	return t.conn.Close()
}

func (t *NetTransport) MTU() (int, error) {
	return 0, ErrNotSupported
}
