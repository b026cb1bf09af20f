// Package billyvol serves a volume from a go-billy filesystem. The local
// backend uses it over osfs to traverse an exported brick or a mounted
// volume directly.
package billyvol

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// Conn is a session over a billy filesystem. Paths are resolved relative to
// the filesystem root.
type Conn struct {
	fs billy.Filesystem
}

// New wraps an existing filesystem.
func New(fs billy.Filesystem) *Conn {
	return &Conn{fs: fs}
}

// NewDialer returns a dialer opening osfs sessions rooted at root.
// Dialing fails when root is not an existing directory.
func NewDialer(root string) volume.Dialer {
	return func(ctx context.Context) (volume.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", root)
		}
		return New(osfs.New(root)), nil
	}
}

// OpenDir reads the directory listing. Entries are returned after "." and
// "..", matching what readdir reports on a POSIX volume. billy has no
// streaming readdir, so the whole listing is read here and Next only walks
// it; open errors still surface from OpenDir.
func (c *Conn) OpenDir(ctx context.Context, path string) (volume.DirReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := c.fs.ReadDir(path)
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(infos)+2)
	entries = append(entries,
		models.Entry{Name: ".", Type: models.EntryDirectory, Parent: path},
		models.Entry{Name: "..", Type: models.EntryDirectory, Parent: path},
	)
	for _, info := range infos {
		entries = append(entries, models.Entry{
			Name:   info.Name(),
			Type:   classify(info),
			Parent: path,
		})
	}
	return &reader{entries: entries}, nil
}

// Ping checks that the filesystem root is still a readable directory.
func (c *Conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := c.fs.Stat("/")
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("volume root is not a directory")
	}
	return nil
}

// Close is a no-op; billy filesystems hold no session state.
func (c *Conn) Close() error {
	return nil
}

func classify(info os.FileInfo) models.EntryType {
	switch {
	case info.IsDir():
		return models.EntryDirectory
	case info.Mode().IsRegular():
		return models.EntryFile
	default:
		return models.EntryOther
	}
}

type reader struct {
	entries []models.Entry
	pos     int
}

func (r *reader) Next(ctx context.Context) (models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return models.Entry{}, err
	}
	if r.pos >= len(r.entries) {
		return models.Entry{}, volume.EOD
	}
	e := r.entries[r.pos]
	r.pos++
	return e, nil
}

func (r *reader) Close() error {
	r.entries = nil
	return nil
}
