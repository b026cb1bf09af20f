// Package miniovol serves a volume from an S3-compatible object store through
// minio-go. Each volume maps to a bucket; directories are the common
// prefixes of a non-recursive listing.
package miniovol

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// Options configures the minio client.
type Options struct {
	Server    string
	Port      int
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Endpoint returns the host:port the client connects to.
func (o Options) Endpoint() string {
	return net.JoinHostPort(o.Server, strconv.Itoa(o.Port))
}

// Client is the subset of *minio.Client used by Conn.
type Client interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Conn is a session bound to one bucket.
type Conn struct {
	client Client
	bucket string
}

// New wraps an existing client.
func New(client Client, bucket string) *Conn {
	return &Conn{client: client, bucket: bucket}
}

// NewDialer returns a dialer creating one minio client per session.
func NewDialer(opts Options) volume.Dialer {
	return func(ctx context.Context) (volume.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		client, err := minio.New(opts.Endpoint(), &minio.Options{
			Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
			Secure: opts.UseSSL,
			Region: opts.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		return New(client, opts.Bucket), nil
	}
}

// OpenDir starts a delimited listing of the directory's prefix. The listing
// runs until the reader is closed or exhausted.
func (c *Conn) OpenDir(ctx context.Context, path string) (volume.DirReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(ctx)
	prefix := volume.ObjectPrefix(path)
	objects := c.client.ListObjects(lctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	})
	return &reader{
		parent:  path,
		prefix:  prefix,
		objects: objects,
		cancel:  cancel,
	}, nil
}

// Ping checks that the bucket exists.
func (c *Conn) Ping(ctx context.Context) error {
	ok, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

// Close is a no-op; minio clients share an HTTP transport and need no teardown.
func (c *Conn) Close() error {
	return nil
}

type reader struct {
	parent  string
	prefix  string
	objects <-chan minio.ObjectInfo
	cancel  context.CancelFunc
}

func (r *reader) Next(ctx context.Context) (models.Entry, error) {
	for {
		select {
		case <-ctx.Done():
			return models.Entry{}, ctx.Err()
		case obj, ok := <-r.objects:
			if !ok {
				return models.Entry{}, volume.EOD
			}
			if obj.Err != nil {
				return models.Entry{}, obj.Err
			}
			if entry, ok := volume.EntryFromKey(r.parent, r.prefix, obj.Key); ok {
				return entry, nil
			}
		}
	}
}

func (r *reader) Close() error {
	r.cancel()
	// Drain so the listing goroutine can exit.
	for range r.objects {
	}
	return nil
}
