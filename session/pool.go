// Package session implements the 9P session pool: a fixed-size array
// of slots, each wrapping one connection's transport and Dispatcher,
// supervised by an accept loop with exponential backoff on transient
// accept errors.
//
// Grounded on the teacher's server.go accept loop (retry.Exponential
// backoff over temporary net.Listener errors) and pool.go's decoder/
// writer reuse idea, generalized into the spec's explicit slot state
// machine (free -> allocated -> connected -> disconnecting -> free).
// golang.org/x/sync/errgroup supervises the accept goroutine and every
// per-connection serve goroutine so Stop can wait for a clean drain.
package session

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"aqwari.net/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/server"
	"go.minnow.dev/ninep/transport"
	"go.minnow.dev/ninep/wire"
)

type state int

const (
	free state = iota
	allocated
	connected
	disconnecting
)

// Slot holds one session's connection and dispatcher. The zero Slot is
// free.
type Slot struct {
	mu    sync.Mutex
	state state
	conn  net.Conn
	disp  *server.Dispatcher
}

// State reports the slot's current lifecycle state, for diagnostics.
func (s *Slot) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case allocated:
		return "allocated"
	case connected:
		return "connected"
	case disconnecting:
		return "disconnecting"
	default:
		return "free"
	}
}

// Pool accepts connections, binds each to a free Slot, and serves 9P
// requests on it through a shared backend and Dispatcher config until
// the connection closes or Stop is called. All slots share one
// fs.FileSystem context, per spec.md §4.7.
type Pool struct {
	backend fs.FileSystem
	cfg     server.Config

	slotsMu sync.Mutex
	slots   []*Slot

	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// New returns a Pool with maxSessions slots (defaults to 64 if <= 0),
// serving backend with the given Dispatcher config for every session.
func New(backend fs.FileSystem, cfg server.Config, maxSessions int) *Pool {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	slots := make([]*Slot, maxSessions)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return &Pool{backend: backend, cfg: cfg, slots: slots}
}

// Slots returns the pool's slot array, for diagnostics (e.g. a
// /sessions synthetic file).
func (p *Pool) Slots() []*Slot { return p.slots }

func (p *Pool) allocSlot() (*Slot, bool) {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()
	for _, s := range p.slots {
		s.mu.Lock()
		if s.state == free {
			s.state = allocated
			s.mu.Unlock()
			return s, true
		}
		s.mu.Unlock()
	}
	return nil, false
}

func (p *Pool) freeSlot(s *Slot) {
	s.mu.Lock()
	s.state = free
	s.conn = nil
	s.disp = nil
	s.mu.Unlock()
}

// Serve accepts connections from l until ctx is cancelled or Stop is
// called, spawning one supervised goroutine per connection. It returns
// once the accept loop and every in-flight session goroutine have
// exited.
func (p *Pool) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.listener = l

	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	backoff := retry.Exponential(time.Millisecond).Max(time.Second)
	try := 0

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return g.Wait()
			default:
			}
			if te, ok := err.(interface{ Temporary() bool }); ok && te.Temporary() {
				try++
				time.Sleep(backoff(try))
				continue
			}
			cancel()
			g.Wait()
			return err
		}
		try = 0

		slot, ok := p.allocSlot()
		if !ok {
			conn.Close()
			continue
		}
		g.Go(func() error {
			p.serveConn(gctx, slot, conn)
			return nil
		})
	}
}

// Stop cancels the accept loop, closes the listener to unblock Accept,
// and waits for every in-flight session to finish cleanup.
func (p *Pool) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	if p.group != nil {
		return p.group.Wait()
	}
	return nil
}

func (p *Pool) msize() int {
	if p.cfg.MaxMsize <= 0 {
		return wire.DefaultMsize
	}
	return p.cfg.MaxMsize
}

// serveConn marks slot connected, runs the dispatch loop until conn
// closes or dec fails, then cleans up every fid the session opened
// before returning the slot to free. Per spec.md §4.7, "on disconnect
// the pool calls the server's cleanup then returns the slot to free".
func (p *Pool) serveConn(ctx context.Context, slot *Slot, conn net.Conn) {
	defer conn.Close()

	// Close the connection when the pool stops, so framer.Run returns
	// and Stop does not wait on a client that keeps its end open.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sessionID := uuid.New().String()
	logger := p.cfg.Logger
	if logger != nil {
		logger.Printf("session %s: connected from %s", sessionID, conn.RemoteAddr())
		defer logger.Printf("session %s: disconnected", sessionID)
	}

	disp := server.New(p.backend, p.cfg)
	msize := p.msize()

	slot.mu.Lock()
	slot.conn = conn
	slot.disp = disp
	slot.state = connected
	slot.mu.Unlock()

	p.cfg.Metrics.SessionConnected()
	defer p.cfg.Metrics.SessionDisconnected()

	enc := wire.NewEncoder(conn)
	var writeMu sync.Mutex

	framer := transport.NewStreamFramer(conn, msize)
	framer.Run(func(msg []byte) {
		dec := wire.NewDecoderSize(bytes.NewReader(msg), msize)
		if !dec.Next() {
			return
		}
		writeMu.Lock()
		disp.Dispatch(ctx, dec.Msg(), enc)
		enc.Flush()
		writeMu.Unlock()
	})

	slot.mu.Lock()
	slot.state = disconnecting
	slot.mu.Unlock()

	disp.Cleanup(ctx)
	p.freeSlot(slot)
}
