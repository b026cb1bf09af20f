package s3vol

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// fakeClient serves pre-built pages keyed by prefix. Continuation tokens are
// the index of the next page.
type fakeClient struct {
	pages   map[string][]*s3.ListObjectsV2Output
	listErr error
	headErr error
	calls   int
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if aws.ToString(in.Delimiter) != "/" {
		return nil, errors.New("expected delimiter /")
	}
	pages := f.pages[aws.ToString(in.Prefix)]
	if len(pages) == 0 {
		return &s3.ListObjectsV2Output{}, nil
	}
	idx := 0
	if in.ContinuationToken != nil {
		idx = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	out := *pages[idx]
	if idx+1 < len(pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + idx + 1)))
	}
	return &out, nil
}

func (f *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func page(prefixes []string, keys []string) *s3.ListObjectsV2Output {
	out := &s3.ListObjectsV2Output{}
	for _, p := range prefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(p)})
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out
}

func drain(t *testing.T, r volume.DirReader) []models.Entry {
	t.Helper()
	var out []models.Entry
	for {
		e, err := r.Next(context.Background())
		if errors.Is(err, volume.EOD) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestOpenDirFollowsPages(t *testing.T) {
	client := &fakeClient{pages: map[string][]*s3.ListObjectsV2Output{
		"a/": {
			page([]string{"a/d1/"}, []string{"a/", "a/f1"}),
			page(nil, []string{"a/f2"}),
		},
	}}
	dir, err := New(client, "vol0").OpenDir(context.Background(), "/a")
	require.NoError(t, err)
	defer dir.Close()

	assert.Equal(t, []models.Entry{
		{Name: "d1", Type: models.EntryDirectory, Parent: "/a"},
		{Name: "f1", Type: models.EntryFile, Parent: "/a"},
		{Name: "f2", Type: models.EntryFile, Parent: "/a"},
	}, drain(t, dir))
	assert.Equal(t, 2, client.calls)
}

func TestEmptyDirectory(t *testing.T) {
	client := &fakeClient{}
	dir, err := New(client, "vol0").OpenDir(context.Background(), "/")
	require.NoError(t, err)
	assert.Empty(t, drain(t, dir))
}

func TestListErrorSurfaces(t *testing.T) {
	boom := errors.New("AccessDenied")
	dir, err := New(&fakeClient{listErr: boom}, "vol0").OpenDir(context.Background(), "/")
	require.NoError(t, err)
	_, err = dir.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNextHonorsCancellation(t *testing.T) {
	client := &fakeClient{pages: map[string][]*s3.ListObjectsV2Output{"": {page(nil, []string{"f"})}}}
	dir, err := New(client, "vol0").OpenDir(context.Background(), "/")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dir.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.calls)
}

func TestPing(t *testing.T) {
	assert.NoError(t, New(&fakeClient{}, "vol0").Ping(context.Background()))

	boom := errors.New("NotFound")
	err := New(&fakeClient{headErr: boom}, "vol0").Ping(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "vol0")
}

func TestDialerWithStaticCredentials(t *testing.T) {
	conn, err := NewDialer(Options{
		Endpoint:  "http://localhost:9000",
		Bucket:    "vol0",
		Region:    "eu-west-1",
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "secret",
	})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vol0", conn.(*Conn).bucket)
	assert.NoError(t, conn.Close())
}
