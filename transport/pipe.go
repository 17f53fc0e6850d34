package transport

import (
	"errors"
	"net"
	"sync"
)

var errListenerClosed = errors.New("transport: pipe listener closed")

// PipeListener is a net.Listener that needs no socket or port,
// grounded on the teacher's internal/netutil.PipeListener. It is the
// basis for in-process client/server tests: session.Pool can Accept
// from it, and a test client Dials it to get the other end of the
// same net.Pipe.
type PipeListener struct {
	once     sync.Once
	incoming chan net.Conn
	shutdown chan struct{}
}

func (l *PipeListener) init() {
	l.once.Do(func() {
		l.incoming = make(chan net.Conn)
		l.shutdown = make(chan struct{})
	})
}

// Accept blocks until Dial is called or the listener is closed.
func (l *PipeListener) Accept() (net.Conn, error) {
	l.init()
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.shutdown:
		return nil, errListenerClosed
	}
}

// Dial returns one end of a fresh net.Pipe, handing the other end to
// whatever goroutine is blocked in Accept.
func (l *PipeListener) Dial() (net.Conn, error) {
	l.init()
	client, server := net.Pipe()
	select {
	case <-l.shutdown:
		client.Close()
		server.Close()
		return nil, errListenerClosed
	case l.incoming <- server:
		return client, nil
	}
}

// Close unblocks any pending Accept/Dial calls. It is safe to call
// more than once.
func (l *PipeListener) Close() error {
	l.init()
	select {
	case <-l.shutdown:
	default:
		close(l.shutdown)
	}
	return nil
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// Addr returns a placeholder net.Addr; in-process pipes have no real
// address.
func (l *PipeListener) Addr() net.Addr {
	l.init()
	return pipeAddr{}
}
