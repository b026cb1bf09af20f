// Package volumetest provides an in-memory volume for exercising the walker
// without a network. Directories list "." and ".." first, like readdir(3),
// and faults and delays can be injected per path.
package volumetest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// ErrNotExist is returned when opening a path that was never added.
var ErrNotExist = errors.New("volumetest: no such directory")

type readFault struct {
	after int
	err   error
}

// Volume is an in-memory tree. Build it before dialing; it is safe for
// concurrent reads once traversal starts.
type Volume struct {
	mu       sync.Mutex
	children map[string][]models.Entry
	openErr  map[string]error
	readErr  map[string]readFault
	opens    map[string]int
	delay    time.Duration
	dialErr  error
	lifetime int
	deadErr  error

	dials     atomic.Int64
	sharedUse atomic.Int64
}

// New returns a volume containing only the root directory "/".
func New() *Volume {
	return &Volume{
		children: map[string][]models.Entry{"/": nil},
		openErr:  make(map[string]error),
		readErr:  make(map[string]readFault),
		opens:    make(map[string]int),
	}
}

// AddDir creates a directory and any missing parents.
func (v *Volume) AddDir(p string) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureDir(path.Clean(p))
	return v
}

// AddFile creates a regular file and any missing parent directories.
func (v *Volume) AddFile(p string) *Volume {
	return v.add(p, models.EntryFile)
}

// AddOther creates an entry that is neither a file nor a directory, such as a symlink.
func (v *Volume) AddOther(p string) *Volume {
	return v.add(p, models.EntryOther)
}

func (v *Volume) add(p string, typ models.EntryType) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	p = path.Clean(p)
	dir, name := path.Split(p)
	dir = path.Clean(dir)
	v.ensureDir(dir)
	v.children[dir] = append(v.children[dir], models.Entry{Name: name, Type: typ, Parent: dir})
	return v
}

func (v *Volume) ensureDir(p string) {
	if _, ok := v.children[p]; ok {
		return
	}
	if p == "." {
		v.children[p] = nil
		return
	}
	parent, name := path.Split(p)
	parent = path.Clean(parent)
	v.ensureDir(parent)
	v.children[parent] = append(v.children[parent], models.Entry{Name: name, Type: models.EntryDirectory, Parent: parent})
	v.children[p] = nil
}

// FailOpen makes every OpenDir of p fail with err.
func (v *Volume) FailOpen(p string, err error) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openErr[path.Clean(p)] = err
	return v
}

// FailRead makes reading p fail with err after the given number of entries.
func (v *Volume) FailRead(p string, after int, err error) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readErr[path.Clean(p)] = readFault{after: after, err: err}
	return v
}

// SetDelay sleeps before every entry read.
func (v *Volume) SetDelay(d time.Duration) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delay = d
	return v
}

// KillSessionsAfter makes every session fail all opens with err once it has
// served n of them, like a connection the server dropped.
func (v *Volume) KillSessionsAfter(n int, err error) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lifetime = n
	v.deadErr = err
	return v
}

// SetDialError makes Dial fail with err.
func (v *Volume) SetDialError(err error) *Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dialErr = err
	return v
}

// Files returns every regular file in the tree, sorted.
func (v *Volume) Files() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var files []string
	for _, entries := range v.children {
		for _, e := range entries {
			if e.Type == models.EntryFile {
				files = append(files, e.Path())
			}
		}
	}
	sort.Strings(files)
	return files
}

// Opens returns how many times p was opened.
func (v *Volume) Opens(p string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opens[path.Clean(p)]
}

// Dials returns how many sessions were established.
func (v *Volume) Dials() int64 {
	return v.dials.Load()
}

// SharedUse returns how many times a session was used by two callers at once.
func (v *Volume) SharedUse() int64 {
	return v.sharedUse.Load()
}

// Dial implements volume.Dialer.
func (v *Volume) Dial(ctx context.Context) (volume.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	err := v.dialErr
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	v.dials.Add(1)
	return &conn{vol: v}, nil
}

type conn struct {
	vol    *Volume
	busy   atomic.Bool
	closed atomic.Bool
	served atomic.Int64
}

func (c *conn) OpenDir(ctx context.Context, p string) (volume.DirReader, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("volumetest: session closed")
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.vol.sharedUse.Add(1)
	}

	p = path.Clean(p)
	v := c.vol
	v.mu.Lock()
	if v.deadErr != nil && c.served.Load() >= int64(v.lifetime) {
		deadErr := v.deadErr
		v.mu.Unlock()
		c.busy.Store(false)
		return nil, fmt.Errorf("opendir %s: %w", p, deadErr)
	}
	c.served.Add(1)
	v.opens[p]++
	err := v.openErr[p]
	entries, ok := v.children[p]
	fault, faulty := v.readErr[p]
	delay := v.delay
	v.mu.Unlock()

	if err == nil && !ok {
		err = ErrNotExist
	}
	if err != nil {
		c.busy.Store(false)
		return nil, fmt.Errorf("opendir %s: %w", p, err)
	}

	listing := make([]models.Entry, 0, len(entries)+2)
	listing = append(listing,
		models.Entry{Name: ".", Type: models.EntryDirectory, Parent: p},
		models.Entry{Name: "..", Type: models.EntryDirectory, Parent: p},
	)
	listing = append(listing, entries...)

	r := &reader{conn: c, entries: listing, delay: delay}
	if faulty {
		r.failAt = fault.after
		r.failErr = fault.err
	} else {
		r.failAt = -1
	}
	return r, nil
}

func (c *conn) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}

type reader struct {
	conn    *conn
	entries []models.Entry
	pos     int
	delay   time.Duration
	failAt  int
	failErr error
	closed  bool
}

func (r *reader) Next(ctx context.Context) (models.Entry, error) {
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return models.Entry{}, ctx.Err()
		case <-t.C:
		}
	}
	// "." and ".." do not count towards the fault position.
	if r.failAt >= 0 && r.pos-2 >= r.failAt {
		return models.Entry{}, r.failErr
	}
	if r.pos >= len(r.entries) {
		return models.Entry{}, volume.EOD
	}
	e := r.entries[r.pos]
	r.pos++
	return e, nil
}

func (r *reader) Close() error {
	if !r.closed {
		r.closed = true
		r.conn.busy.Store(false)
	}
	return nil
}
