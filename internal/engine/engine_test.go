package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileman/internal/fsops"
	"fileman/internal/ops"
	"fileman/internal/paths"
	"fileman/internal/transfer"
)

type harness struct {
	fs     afero.Fs
	engine *Engine
	events []Event
}

func newHarness(t *testing.T, fsys afero.Fs, opts Options, wd string) *harness {
	t.Helper()
	h := &harness{fs: fsys}
	getwd := func() (string, error) { return wd, nil }
	h.engine = New(Deps{
		Resolver:   paths.NewResolver(fsys, getwd),
		Transferer: transfer.New(fsys, transfer.Options{}, zerolog.Nop()),
		FileOps:    fsops.New(fsys, nil, fsops.Options{}, zerolog.Nop()),
		Observers: []Observer{ObserverFunc(func(_ context.Context, ev Event) error {
			h.events = append(h.events, ev)
			return nil
		})},
		Logger: zerolog.Nop(),
	}, opts)
	return h
}

func serve(payload []byte, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
}

func requireFailure(t *testing.T, res ops.Result, kind ops.ErrorKind) {
	t.Helper()
	require.False(t, res.OK(), "expected failure, got success: %s", res.Summary)
	assert.Equal(t, kind, res.Err.Kind, "detail: %s", res.Err.Detail())
	assert.NotEmpty(t, res.Err.Detail())
}

func TestInstallScenario(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1000)
	srv := serve(payload, http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")
	h := newHarness(t, afero.NewOsFs(), Options{}, dir)

	res := h.engine.Execute(context.Background(), ops.Install{Destination: dst, Source: srv.URL + "/file.bin"})
	require.True(t, res.OK())
	assert.Equal(t, ops.KindInstall, res.Op)
	assert.Equal(t, int64(1000), res.Bytes)
	assert.Contains(t, res.Summary, "installed")

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestInstall404(t *testing.T) {
	srv := serve([]byte("gone"), http.StatusNotFound)
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")
	h := newHarness(t, afero.NewOsFs(), Options{}, dir)

	res := h.engine.Execute(context.Background(), ops.Install{Destination: dst, Source: srv.URL})
	requireFailure(t, res, ops.NetworkError)
	assert.NoFileExists(t, dst)
}

func TestInstallInvalidURL(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), Options{}, "/")
	res := h.engine.Execute(context.Background(), ops.Install{Destination: "/out", Source: "ftp://host/x"})
	requireFailure(t, res, ops.NetworkError)
}

func TestInstallTrimsSourceURL(t *testing.T) {
	srv := serve([]byte("trimmed"), http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.txt")
	h := newHarness(t, afero.NewOsFs(), Options{}, dir)

	res := h.engine.Execute(context.Background(), ops.Install{Destination: dst, Source: "  " + srv.URL + "/f\n"})
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, fmt.Sprintf("installed %s/f -> %s (7 bytes)", srv.URL, dst), res.Summary)
	require.Len(t, h.events, 1)
	assert.Equal(t, srv.URL+"/f", h.events[0].Source)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "trimmed", string(got))
}

func TestMoveOntoExistingScenario(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a/x.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/a/y.txt", []byte("y"), 0o644))
	h := newHarness(t, fsys, Options{}, "/")

	res := h.engine.Execute(context.Background(), ops.Move{Source: "/a/x.txt", Destination: "/a/y.txt"})
	requireFailure(t, res, ops.AlreadyExists)

	x, _ := afero.ReadFile(fsys, "/a/x.txt")
	y, _ := afero.ReadFile(fsys, "/a/y.txt")
	assert.Equal(t, "x", string(x))
	assert.Equal(t, "y", string(y))
}

func TestMoveToNewPath(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a/x.txt", []byte("x"), 0o644))
	h := newHarness(t, fsys, Options{}, "/a")

	res := h.engine.Execute(context.Background(), ops.Move{Source: "x.txt", Destination: "z.txt"})
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, "moved /a/x.txt -> /a/z.txt", res.Summary)

	_, err := fsys.Stat("/a/x.txt")
	assert.True(t, os.IsNotExist(err))
	_, err = fsys.Stat("/a/z.txt")
	assert.NoError(t, err)
}

func TestDeleteMissingScenario(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), Options{}, "/")
	res := h.engine.Execute(context.Background(), ops.Delete{Target: "/a/missing.txt"})
	requireFailure(t, res, ops.NotFound)
}

func TestDeleteDirectories(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data/empty", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/data/full/a.txt", []byte("aaa"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data/full/sub/b.txt", []byte("bb"), 0o644))
	h := newHarness(t, fsys, Options{}, "/")

	res := h.engine.Execute(context.Background(), ops.Delete{Target: "/data/empty"})
	require.True(t, res.OK(), "%v", res.Err)

	res = h.engine.Execute(context.Background(), ops.Delete{Target: "/data/full"})
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, int64(5), res.Bytes)

	for _, p := range []string{"/data/empty", "/data/full", "/data/full/sub/b.txt"} {
		_, err := fsys.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestBlankPathsAreInvalid(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), Options{}, "/")
	for _, op := range []ops.Operation{
		ops.Delete{Target: "   "},
		ops.Move{Source: "", Destination: "/b"},
		ops.Move{Source: "/a", Destination: "\t"},
		ops.Install{Destination: "", Source: "http://example.test/x"},
		ops.Install{Destination: "/out", Source: " \t"},
	} {
		res := h.engine.Execute(context.Background(), op)
		requireFailure(t, res, ops.InvalidPath)
		assert.Equal(t, op.Kind(), res.Op)
	}
}

func TestNilOperation(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs(), Options{}, "/")
	res := h.engine.Execute(context.Background(), nil)
	requireFailure(t, res, ops.InvalidPath)
}

// TestDryRunNeverMutates proves the dry-run contract: every operation is
// checked but no mutating filesystem call is made
func TestDryRunNeverMutates(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, "/data/file1.txt", []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := base.MkdirAll("/data/dir/sub", 0o755); err != nil {
		t.Fatal(err)
	}
	rec := fsops.NewRecordingFS(base)
	h := newHarness(t, rec, Options{DryRun: true}, "/")

	results := []ops.Result{
		h.engine.Execute(context.Background(), ops.Delete{Target: "/data/file1.txt"}),
		h.engine.Execute(context.Background(), ops.Delete{Target: "/data/dir"}),
		h.engine.Execute(context.Background(), ops.Move{Source: "/data/file1.txt", Destination: "/data/moved.txt"}),
		h.engine.Execute(context.Background(), ops.Install{Destination: "/data/new.bin", Source: "http://127.0.0.1:1/never"}),
	}
	for _, res := range results {
		if !res.OK() {
			t.Fatalf("dry run of %s failed: %v", res.Op, res.Err)
		}
		if !strings.HasPrefix(res.Summary, "[dry run]") {
			t.Errorf("summary %q lacks dry run marker", res.Summary)
		}
	}

	if calls := rec.Mutations(); len(calls) != 0 {
		t.Errorf("DRY-RUN VIOLATION: expected 0 mutating calls, got %d: %v", len(calls), calls)
	}
	for _, ev := range h.events {
		if !ev.DryRun {
			t.Errorf("event for %s not marked as dry run", ev.Result.Op)
		}
	}
}

func TestDryRunStillReportsFailures(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a/x.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/a/y.txt", []byte("y"), 0o644))
	h := newHarness(t, fsys, Options{DryRun: true}, "/")

	requireFailure(t, h.engine.Execute(context.Background(), ops.Delete{Target: "/a/nope"}), ops.NotFound)
	requireFailure(t, h.engine.Execute(context.Background(), ops.Move{Source: "/a/x.txt", Destination: "/a/y.txt"}), ops.AlreadyExists)
	requireFailure(t, h.engine.Execute(context.Background(), ops.Install{Destination: "/a", Source: "http://example.test/x"}), ops.IoError)
}

func TestObserversSeeEveryResult(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a/x.txt", []byte("x"), 0o644))
	h := newHarness(t, fsys, Options{}, "/")

	h.engine.Execute(context.Background(), ops.Move{Source: "/a/x.txt", Destination: "/a/y.txt"})
	h.engine.Execute(context.Background(), ops.Delete{Target: "/a/missing"})

	require.Len(t, h.events, 2)
	assert.Equal(t, "/a/x.txt", h.events[0].Source)
	assert.Equal(t, "/a/y.txt", h.events[0].Target)
	assert.True(t, h.events[0].Result.OK())
	assert.Equal(t, "/a/missing", h.events[1].Target)
	assert.Equal(t, ops.NotFound, h.events[1].Result.Err.Kind)
}

func TestObserverFailureDoesNotChangeResult(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a/x.txt", []byte("x"), 0o644))

	e := New(Deps{
		Resolver: paths.NewResolver(fsys, nil),
		FileOps:  fsops.New(fsys, nil, fsops.Options{}, zerolog.Nop()),
		Observers: []Observer{ObserverFunc(func(context.Context, Event) error {
			return errors.New("history unavailable")
		})},
		Logger: zerolog.Nop(),
	}, Options{})

	res := e.Execute(context.Background(), ops.Delete{Target: "/a/x.txt"})
	assert.True(t, res.OK())
}

func TestDurationUsesClock(t *testing.T) {
	fsys := afero.NewMemMapFs()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond)}
	e := New(Deps{
		Resolver: paths.NewResolver(fsys, nil),
		FileOps:  fsops.New(fsys, nil, fsops.Options{}, zerolog.Nop()),
		Logger:   zerolog.Nop(),
		Now: func() time.Time {
			now := ticks[0]
			ticks = ticks[1:]
			return now
		},
	}, Options{})

	res := e.Execute(context.Background(), ops.Delete{Target: "/missing"})
	assert.Equal(t, 1500*time.Millisecond, res.Duration)
}

type lastProgress struct{ last ops.Progress }

func (s *lastProgress) Progress(p ops.Progress) { s.last = p }

func TestProgressReachesSink(t *testing.T) {
	srv := serve(bytes.Repeat([]byte("p"), 100000), http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	fsys := afero.NewOsFs()
	sink := &lastProgress{}
	e := New(Deps{
		Resolver:   paths.NewResolver(fsys, nil),
		Transferer: transfer.New(fsys, transfer.Options{}, zerolog.Nop()),
		Sink:       sink,
		Logger:     zerolog.Nop(),
	}, Options{})

	res := e.Execute(context.Background(), ops.Install{Destination: filepath.Join(dir, "f"), Source: srv.URL})
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, ops.Progress{Bytes: 100000, Total: 100000}, sink.last)
	assert.Equal(t, float64(100), sink.last.Percent())
}
