package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
	"github.com/harrison/gpfind/internal/volume/volumetest"
)

// recordingLogger captures what the walker reports.
type recordingLogger struct {
	mu       sync.Mutex
	subtrees []string
	summary  *models.RunSummary
}

func (l *recordingLogger) LogTrace(string) {}
func (l *recordingLogger) LogDebug(string) {}
func (l *recordingLogger) LogInfo(string)  {}

func (l *recordingLogger) LogSubtreeError(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subtrees = append(l.subtrees, path)
}

func (l *recordingLogger) LogSummary(summary models.RunSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = &summary
}

func (l *recordingLogger) subtreeErrors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.subtrees...)
}

// buildTree creates a deterministic tree of the given depth and fan-out.
// Every directory holds fanout files and fanout subdirectories.
func buildTree(vol *volumetest.Volume, root string, depth, fanout int) {
	vol.AddDir(root)
	if depth == 0 {
		return
	}
	for i := 0; i < fanout; i++ {
		vol.AddFile(models.JoinPath(root, fmt.Sprintf("file-%d.dat", i)))
	}
	for i := 0; i < fanout; i++ {
		buildTree(vol, models.JoinPath(root, fmt.Sprintf("dir-%d", i)), depth-1, fanout)
	}
}

type runResult struct {
	lines   []string
	summary *models.RunSummary
	logger  *recordingLogger
	err     error
}

// runWalker runs a traversal and fails the test if it does not terminate.
func runWalker(t *testing.T, vol *volumetest.Volume, opts Options, poolSize int) runResult {
	t.Helper()

	var out bytes.Buffer
	logger := &recordingLogger{}
	pool := volume.NewPool(vol.Dial, "test", poolSize)
	w := New(pool, &out, logger, opts)

	done := make(chan runResult, 1)
	go func() {
		summary, err := w.Run(context.Background())
		done <- runResult{summary: summary, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("traversal did not terminate")
	}

	res.logger = logger
	if s := strings.TrimSuffix(out.String(), "\n"); s != "" {
		res.lines = strings.Split(s, "\n")
	}
	return res
}

func sorted(lines []string) []string {
	out := append([]string(nil), lines...)
	sort.Strings(out)
	return out
}

func TestRunConcreteScenario(t *testing.T) {
	newVolume := func() *volumetest.Volume {
		return volumetest.New().
			AddFile("/a/f1").
			AddFile("/a/d1/f2")
	}

	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			res := runWalker(t, newVolume(), Options{Root: "/a", Workers: workers}, workers)
			require.NoError(t, res.err)
			assert.ElementsMatch(t, []string{"/a/f1", "/a/d1/f2"}, res.lines)
			assert.Equal(t, 0, res.summary.Failed)
			assert.Equal(t, int64(2), res.summary.Directories)
		})
	}

	t.Run("open failure on /a/d1", func(t *testing.T) {
		vol := newVolume().FailOpen("/a/d1", errors.New("permission denied"))
		res := runWalker(t, vol, Options{Root: "/a", Workers: 2}, 2)

		require.NoError(t, res.err)
		assert.Equal(t, []string{"/a/f1"}, res.lines)
		assert.Equal(t, []string{"/a/d1"}, res.logger.subtreeErrors())
		require.Equal(t, 1, res.summary.Failed)

		var dirErr *DirectoryError
		require.ErrorAs(t, res.summary.Failures[0].Err, &dirErr)
		assert.Equal(t, OpOpen, dirErr.Op)
		assert.Equal(t, "/a/d1", dirErr.Path)
	})
}

func TestRunCompleteness(t *testing.T) {
	vol := volumetest.New()
	buildTree(vol, "/data", 4, 3)
	want := vol.Files()

	for _, workers := range []int{1, 2, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			res := runWalker(t, vol, Options{Root: "/data", Workers: workers}, workers)
			require.NoError(t, res.err)
			assert.Equal(t, want, sorted(res.lines))
			assert.Equal(t, int64(len(want)), res.summary.Files)
		})
	}
}

func TestRunSameMultisetAcrossWorkerCounts(t *testing.T) {
	vol := volumetest.New()
	buildTree(vol, "/", 3, 5)

	var baseline []string
	for _, workers := range []int{1, 4, 64} {
		res := runWalker(t, vol, Options{Root: "/", Workers: workers, Printers: 2}, 8)
		require.NoError(t, res.err)

		got := sorted(res.lines)
		if baseline == nil {
			baseline = got
			continue
		}
		assert.Equal(t, baseline, got, "workers=%d produced a different multiset", workers)
	}
	assert.Equal(t, vol.Files(), baseline)
}

func TestRunTerminates(t *testing.T) {
	tests := []struct {
		name  string
		vol   func() *volumetest.Volume
		root  string
		files []string
	}{
		{
			name:  "empty root",
			vol:   volumetest.New,
			root:  "/",
			files: nil,
		},
		{
			name:  "empty subdirectory",
			vol:   func() *volumetest.Volume { return volumetest.New().AddDir("/empty") },
			root:  "/empty",
			files: nil,
		},
		{
			name:  "single file",
			vol:   func() *volumetest.Volume { return volumetest.New().AddFile("/only") },
			root:  "/",
			files: []string{"/only"},
		},
		{
			name: "delayed reads",
			vol: func() *volumetest.Volume {
				v := volumetest.New().SetDelay(time.Millisecond)
				buildTree(v, "/slow", 2, 3)
				return v
			},
			root: "/slow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vol := tt.vol()
			want := tt.files
			if want == nil {
				want = vol.Files()
			}

			for _, workers := range []int{1, 4} {
				res := runWalker(t, vol, Options{Root: tt.root, Workers: workers}, workers)
				require.NoError(t, res.err)
				assert.Equal(t, want, sorted(res.lines))
				assert.False(t, res.summary.Cancelled)
			}
		})
	}
}

func TestRunPartialFailureContainment(t *testing.T) {
	vol := volumetest.New()
	buildTree(vol, "/v", 3, 3)
	vol.FailOpen("/v/dir-0", errors.New("stale file handle"))
	vol.FailRead("/v/dir-1/dir-2", 1, errors.New("connection reset"))

	res := runWalker(t, vol, Options{Root: "/v", Workers: 4}, 4)
	require.NoError(t, res.err)

	for _, line := range res.lines {
		assert.False(t, strings.HasPrefix(line, "/v/dir-0/"), "failed subtree leaked %s", line)
	}
	// Siblings are complete.
	for _, f := range vol.Files() {
		if strings.HasPrefix(f, "/v/dir-2/") {
			assert.Contains(t, res.lines, f)
		}
	}
	// The read failure keeps the entry read before it.
	assert.Contains(t, res.lines, "/v/dir-1/dir-2/file-0.dat")
	assert.NotContains(t, res.lines, "/v/dir-1/dir-2/file-1.dat")

	assert.ElementsMatch(t, []string{"/v/dir-0", "/v/dir-1/dir-2"}, res.logger.subtreeErrors())
	assert.Equal(t, 2, res.summary.Failed)
}

func TestRunExcludesSelfAndParent(t *testing.T) {
	vol := volumetest.New().AddFile("/a/f1").AddFile("/a/f2")

	res := runWalker(t, vol, Options{Root: "/a", Workers: 2}, 2)
	require.NoError(t, res.err)

	assert.ElementsMatch(t, []string{"/a/f1", "/a/f2"}, res.lines)
	for _, line := range res.lines {
		assert.NotContains(t, line, "/.")
	}
	// "/a/." would reopen /a and "/a/.." would open /.
	assert.Equal(t, 1, vol.Opens("/a"))
	assert.Equal(t, 0, vol.Opens("/"))
	assert.Equal(t, int64(1), res.summary.Directories)
}

func TestRunIgnoresOtherEntryTypes(t *testing.T) {
	vol := volumetest.New().
		AddFile("/r/real").
		AddOther("/r/link")

	res := runWalker(t, vol, Options{Root: "/r", Workers: 1}, 1)
	require.NoError(t, res.err)
	assert.Equal(t, []string{"/r/real"}, res.lines)
}

func TestRunNeverSharesAHandle(t *testing.T) {
	vol := volumetest.New().SetDelay(100 * time.Microsecond)
	buildTree(vol, "/", 3, 4)

	res := runWalker(t, vol, Options{Root: "/", Workers: 16}, 2)
	require.NoError(t, res.err)
	assert.Equal(t, vol.Files(), sorted(res.lines))
	assert.Zero(t, vol.SharedUse())
	assert.LessOrEqual(t, vol.Dials(), int64(2))
}

func TestRunReplacesDroppedSession(t *testing.T) {
	errDropped := errors.New("transport endpoint is not connected")
	vol := volumetest.New().KillSessionsAfter(2, errDropped)
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		vol.AddFile("/r/" + d + "/f")
	}

	// One worker and one session: opens go /r, two leaves, then the session
	// dies on the third leaf and must be replaced for the remaining two.
	res := runWalker(t, vol, Options{Root: "/r", Workers: 1}, 1)
	require.NoError(t, res.err)
	require.NotNil(t, res.summary)

	assert.Equal(t, int64(3), vol.Dials())
	assert.Equal(t, 2, res.summary.Failed)
	assert.Len(t, res.lines, 3)
	for _, f := range res.summary.Failures {
		assert.ErrorIs(t, f.Err, errDropped)
	}
	assert.Zero(t, vol.SharedUse())
}

func TestRunBackpressureFromSlowSink(t *testing.T) {
	vol := volumetest.New()
	buildTree(vol, "/", 2, 6)

	slow := &slowWriter{delay: 50 * time.Microsecond}
	pool := volume.NewPool(vol.Dial, "test", 4)
	w := New(pool, slow, nil, Options{Root: "/", Workers: 4, FileBuffer: 1})

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(slow.String(), "\n"), "\n")
	assert.Equal(t, vol.Files(), sorted(lines))
}

func TestRunCancellation(t *testing.T) {
	vol := volumetest.New().SetDelay(5 * time.Millisecond)
	buildTree(vol, "/", 4, 4)

	pool := volume.NewPool(vol.Dial, "test", 2)
	logger := &recordingLogger{}
	w := New(pool, io.Discard, logger, Options{Root: "/", Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	done := make(chan struct{})
	var summary *models.RunSummary
	var err error
	go func() {
		summary, err = w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled traversal did not return")
	}

	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.Less(t, summary.Files, int64(len(vol.Files())))
	assert.Empty(t, logger.subtreeErrors(), "cancellation must not be reported as subtree failures")
}

func TestRunAcquireFailureIsContained(t *testing.T) {
	vol := volumetest.New().AddFile("/f").SetDialError(errors.New("no route to host"))

	res := runWalker(t, vol, Options{Root: "/", Workers: 2}, 1)
	require.NoError(t, res.err)
	assert.Empty(t, res.lines)
	require.Equal(t, 1, res.summary.Failed)

	var dirErr *DirectoryError
	require.ErrorAs(t, res.summary.Failures[0].Err, &dirErr)
	assert.Equal(t, OpAcquire, dirErr.Op)
	var connErr *volume.ConnectionError
	assert.ErrorAs(t, res.summary.Failures[0].Err, &connErr)
}

func TestRunOutputErrorStopsTraversal(t *testing.T) {
	vol := volumetest.New()
	for i := 0; i < 400; i++ {
		vol.AddFile(fmt.Sprintf("/big/%s-%04d", strings.Repeat("n", 40), i))
	}

	pool := volume.NewPool(vol.Dial, "test", 2)
	w := New(pool, failingWriter{}, nil, Options{Root: "/big", Workers: 2})

	summary, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, summary)
	assert.False(t, summary.Cancelled)
}

func TestNewAppliesDefaults(t *testing.T) {
	w := New(volume.NewPool(volumetest.New().Dial, "test", 1), io.Discard, nil, Options{})
	opts := w.Options()

	assert.Equal(t, "/", opts.Root)
	assert.Equal(t, DefaultWorkers, opts.Workers)
	assert.Equal(t, DefaultPrinters, opts.Printers)
	assert.Equal(t, DefaultFileBuffer, opts.FileBuffer)
}

func TestNewFileBufferBelowOneUsesDefault(t *testing.T) {
	pool := volume.NewPool(volumetest.New().Dial, "test", 1)
	for _, size := range []int{0, -1} {
		w := New(pool, io.Discard, nil, Options{FileBuffer: size})
		assert.Equal(t, DefaultFileBuffer, w.Options().FileBuffer, "FileBuffer %d", size)
	}
	w := New(pool, io.Discard, nil, Options{FileBuffer: 1})
	assert.Equal(t, 1, w.Options().FileBuffer)
}

func TestRunRequiresPool(t *testing.T) {
	w := New(nil, io.Discard, nil, Options{})
	_, err := w.Run(context.Background())
	assert.Error(t, err)
}

type slowWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	delay time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *slowWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
