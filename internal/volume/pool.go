package volume

import (
	"context"
	"sync"
)

// Pool is a bounded pool of sessions created lazily by a Dialer.
//
// At most size sessions are checked out at any time. Acquire blocks while
// the pool is exhausted and returns the context error if ctx ends first.
// Released sessions are kept for reuse.
type Pool struct {
	dial   Dialer
	target string
	slots  chan struct{}

	mu     sync.Mutex
	idle   []Conn
	closed bool
}

// NewPool creates a pool of at most size sessions. A size below 1 is treated as 1.
// target names the volume in connection errors.
func NewPool(dial Dialer, target string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		dial:   dial,
		target: target,
		slots:  make(chan struct{}, size),
	}
}

// Size returns the maximum number of sessions the pool hands out.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Acquire returns a session for exclusive use. The caller must Release it.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p.slots <- struct{}{}:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	// Dial outside the lock so a slow handshake does not serialize acquirers.
	conn, err := p.dial(ctx)
	if err != nil {
		<-p.slots
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewConnectionError(p.target, err)
	}
	return conn, nil
}

// Release returns a session obtained from Acquire.
func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
	} else {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	<-p.slots
}

// Discard closes a session obtained from Acquire instead of returning it to
// the pool. The slot is freed so the next Acquire dials a fresh session.
func (p *Pool) Discard(conn Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close()
	<-p.slots
}

// Close closes all idle sessions. Sessions still checked out are closed on Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for _, conn := range p.idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
