// Package client implements the 9P client multiplexer: a transmit lock
// serializing writes onto one transport, a per-tag wakeup scheme via
// tagtable, and Tflush-on-timeout cancellation. High-level helpers
// (Attach/Walk/Open/Read/Write/Stat/Create/Remove/Clunk) build on top
// of the multiplexer the way Harvey-OS/ninep's Client wraps its own
// GetTag/readNetPackets dispatch loop, generalized with fid allocation
// via the teacher's internal/pool.FidPool contiguous-allocation
// strategy (the client mints its own fid numbers; the server merely
// accepts whatever it is given, per spec.md §4.2).
package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.minnow.dev/ninep"
	"go.minnow.dev/ninep/tagtable"
	"go.minnow.dev/ninep/transport"
	"go.minnow.dev/ninep/wire"
)

// Logger is the narrow logging capability Client uses uniformly with
// server.Dispatcher and session.Pool.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Config tunes a Client's resource use and timeouts.
type Config struct {
	// MaxMsize is the msize this client proposes in Tversion; the
	// server may negotiate it down.
	MaxMsize int
	// MaxTags caps the number of concurrently outstanding requests;
	// defaults to 64 if zero.
	MaxTags int
	// Timeout bounds how long a request (other than Tread, matching the
	// teacher's own Client.Timeout doc, so a long-poll style read is
	// never aborted by this deadline) waits for a reply before the
	// client issues a Tflush and reports ninep.ErrTimeout.
	Timeout time.Duration
	Logger  Logger
}

func (c Config) maxMsize() int {
	if c.MaxMsize <= 0 {
		return wire.DefaultMsize
	}
	return c.MaxMsize
}

func (c Config) maxTags() int {
	if c.MaxTags <= 0 {
		return 64
	}
	return c.MaxTags
}

func (c Config) logger() Logger {
	if c.Logger == nil {
		return nopLogger{}
	}
	return c.Logger
}

// Client multiplexes one 9P session over one transport.Transport: many
// callers may have requests outstanding at once, each pinned to its
// own tag and its own tagtable.Pending response buffer, so no caller
// ever blocks another's reply from arriving.
type Client struct {
	cfg  Config
	tr   transport.Transport
	tags *tagtable.Table
	fids *fidPool

	txmu sync.Mutex // serializes Sends, one message at a time

	// verCh receives the single Rversion reply during Dial; it is
	// non-nil only for the duration of the handshake.
	verCh chan wire.Rversion

	msize uint32
}

// fidPool hands out client-chosen fid numbers using the teacher's
// contiguous-allocation-with-reclaim-list strategy (reimplemented here
// rather than shared with tagtable, since fids are uint32 and tags are
// uint16).
type fidPool struct {
	mu        sync.Mutex
	next      uint32
	reclaimed []uint32
}

func (p *fidPool) get() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.reclaimed); n > 0 {
		fid := p.reclaimed[n-1]
		p.reclaimed = p.reclaimed[:n-1]
		return fid
	}
	fid := p.next
	p.next++
	return fid
}

func (p *fidPool) put(fid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fid == p.next-1 {
		p.next--
		return
	}
	p.reclaimed = append(p.reclaimed, fid)
}

// Dial negotiates a session over tr: starts tr's receive loop routing
// replies back to their callers by tag, then sends Tversion and waits
// for the matching Rversion.
func Dial(ctx context.Context, tr transport.Transport, cfg Config) (*Client, error) {
	c := &Client{
		cfg:   cfg,
		tr:    tr,
		tags:  tagtable.New(cfg.maxTags()),
		fids:  &fidPool{},
		verCh: make(chan wire.Rversion, 1),
	}

	if err := tr.Start(c.onMessage); err != nil {
		return nil, fmt.Errorf("client: starting transport: %w", err)
	}

	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	enc.Tversion(uint32(cfg.maxMsize()), "9P2000")
	enc.Flush()
	c.txmu.Lock()
	err := tr.Send(buf.Bytes())
	c.txmu.Unlock()
	if err != nil {
		tr.Stop()
		return nil, fmt.Errorf("client: sending Tversion: %w", err)
	}

	var rv wire.Rversion
	select {
	case rv = <-c.verCh:
	case <-ctx.Done():
		tr.Stop()
		return nil, ctx.Err()
	}
	c.msize = uint32(rv.Msize())
	if rv.Version() != "9P2000" {
		tr.Stop()
		return nil, ninep.E(ninep.KindUnknownVersion, "server rejected version: %s", rv.Version())
	}
	return c, nil
}

// onMessage is the transport.Receiver wired up in Dial. msg is only
// valid for the duration of this call, so anything handed to a waiting
// caller is copied first.
func (c *Client) onMessage(msg []byte) {
	if len(msg) < 7 {
		return
	}
	msgType := wire.MsgType(msg[4])
	tag := binary.LittleEndian.Uint16(msg[5:7])

	cp := make([]byte, len(msg))
	copy(cp, msg)

	if msgType == wire.MsgRversion && tag == wire.NOTAG {
		select {
		case c.verCh <- wire.Rversion(cp):
		default:
		}
		return
	}

	status := tagtable.Done
	if msgType == wire.MsgRerror {
		status = tagtable.Failed
	}
	if !c.tags.Complete(tag, status, nil, cp) {
		c.cfg.logger().Printf("client: response for unknown tag %d (type %d), dropped", tag, msgType)
	}
}

// send builds one message via build, transmits it under the transmit
// lock, and waits for its reply (or a timeout, which issues Tflush and
// returns ninep.ErrTimeout). readCall, when true, exempts this call
// from cfg.Timeout, matching the teacher's Client.Timeout semantics for
// long-poll-style reads.
func (c *Client) send(ctx context.Context, readCall bool, build func(tag uint16) ([]byte, error)) ([]byte, error) {
	pending, err := c.tags.Alloc()
	if err != nil {
		return nil, ninep.Wrap(ninep.KindFidExhausted, err, "no free tags")
	}
	defer c.tags.Free(pending.Tag)

	buf, err := build(pending.Tag)
	if err != nil {
		return nil, err
	}

	c.txmu.Lock()
	err = c.tr.Send(buf)
	c.txmu.Unlock()
	if err != nil {
		return nil, ninep.Wrap(ninep.KindTransportError, err, "")
	}

	var timeout <-chan time.Time
	if !readCall && c.cfg.Timeout > 0 {
		timer := time.NewTimer(c.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-pending.Wait():
		if pending.Status == tagtable.Failed {
			return nil, ninep.E(ninep.KindBackendError, "%s", wire.Rerror(pending.Response).Error())
		}
		return pending.Response, nil
	case <-timeout:
		c.flush(pending.Tag)
		return nil, ninep.ErrTimeout
	case <-ctx.Done():
		c.flush(pending.Tag)
		return nil, ctx.Err()
	}
}

// flush issues a Tflush for oldtag on a best-effort basis: by the time
// it runs, the original request may already have completed, in which
// case the server's Rflush is simply ignored (this client never waits
// on its own tag).
func (c *Client) flush(oldtag uint16) {
	flushTag, err := c.tags.Alloc()
	if err != nil {
		return
	}
	defer c.tags.Free(flushTag.Tag)

	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	enc.Tflush(flushTag.Tag, oldtag)
	enc.Flush()

	c.txmu.Lock()
	c.tr.Send(buf.Bytes())
	c.txmu.Unlock()
}

// Close stops the underlying transport.
func (c *Client) Close() error {
	return c.tr.Stop()
}
