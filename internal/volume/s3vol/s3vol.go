// Package s3vol serves a volume from an S3 bucket through aws-sdk-go-v2.
package s3vol

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// Options configures the S3 client.
type Options struct {
	Endpoint  string // Custom endpoint URL; empty uses the AWS endpoint for Region
	Bucket    string
	Region    string
	AccessKey string // Empty falls back to the default credential chain
	SecretKey string
}

// Client is the subset of *s3.Client used by Conn.
type Client interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
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

// NewDialer returns a dialer creating one S3 client per session.
func NewDialer(opts Options) volume.Dialer {
	return func(ctx context.Context) (volume.Conn, error) {
		client, err := newClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return New(client, opts.Bucket), nil
	}
}

func newClient(ctx context.Context, opts Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts = append(loadOpts, config.WithRegion(region))
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3Opts...), nil
}

// OpenDir lists the directory's prefix one page at a time using "/" as the
// delimiter. Pages are fetched lazily from Next.
func (c *Conn) OpenDir(ctx context.Context, path string) (volume.DirReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := volume.ObjectPrefix(path)
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	return &reader{parent: path, prefix: prefix, pages: paginator}, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no per-session state.
func (c *Conn) Close() error {
	return nil
}

type reader struct {
	parent  string
	prefix  string
	pages   *s3.ListObjectsV2Paginator
	pending []models.Entry
}

func (r *reader) Next(ctx context.Context) (models.Entry, error) {
	for len(r.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return models.Entry{}, err
		}
		if !r.pages.HasMorePages() {
			return models.Entry{}, volume.EOD
		}
		page, err := r.pages.NextPage(ctx)
		if err != nil {
			return models.Entry{}, err
		}
		for _, cp := range page.CommonPrefixes {
			if e, ok := volume.EntryFromKey(r.parent, r.prefix, aws.ToString(cp.Prefix)); ok {
				r.pending = append(r.pending, e)
			}
		}
		for _, obj := range page.Contents {
			if e, ok := volume.EntryFromKey(r.parent, r.prefix, aws.ToString(obj.Key)); ok {
				r.pending = append(r.pending, e)
			}
		}
	}
	e := r.pending[0]
	r.pending = r.pending[1:]
	return e, nil
}

func (r *reader) Close() error {
	r.pending = nil
	return nil
}
