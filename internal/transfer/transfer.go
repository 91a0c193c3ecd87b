// Package transfer streams a remote resource to a local path.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"fileman/internal/disk"
	"fileman/internal/limiter"
	"fileman/internal/ops"
	"fileman/internal/safety"
)

const (
	DefaultChunkSize = 32 * 1024
	DefaultUserAgent = "fileman"

	defaultMode os.FileMode = 0o644
)

// Options configures the HTTP client and the on-disk commit
type Options struct {
	ChunkSize      int
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
	// Timeout bounds the whole transfer; zero means no limit
	Timeout           time.Duration
	UserAgent         string
	MaxBytesPerSecond int64
	CreateParents     bool
	CheckFreeSpace    bool
	Space             disk.SpaceFunc
	// Client overrides the client built from the timeouts above
	Client *http.Client
	// Validator guards the destination like any other mutation; nil allows all
	Validator *safety.Validator
}

// Transferer performs single-shot HTTP GETs into local files
type Transferer struct {
	fs      afero.Fs
	client  *http.Client
	opts    Options
	limiter *limiter.BandwidthLimiter
	logger  zerolog.Logger
}

// New creates a Transferer writing through fsys
func New(fsys afero.Fs, opts Options, logger zerolog.Logger) *Transferer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = newClient(opts)
	}
	return &Transferer{
		fs:      fsys,
		client:  client,
		opts:    opts,
		limiter: limiter.NewBandwidthLimiter(opts.MaxBytesPerSecond, opts.ChunkSize),
		logger:  logger.With().Str("component", "transfer").Logger(),
	}
}

func newClient(opts Options) *http.Client {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.HeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

// Fetch downloads url into dst and returns the number of bytes written.
// The payload is staged in a temporary sibling and renamed into place, so dst
// keeps its previous content on any failure.
func (t *Transferer) Fetch(ctx context.Context, url string, dst ops.Path, sink ops.ProgressSink) (int64, error) {
	if sink == nil {
		sink = ops.NopSink{}
	}
	if err := t.CheckDestination(dst); err != nil {
		return 0, err
	}

	resp, err := t.get(ctx, url)
	if err != nil {
		return 0, ops.Wrap(ops.NetworkError, ops.KindInstall, dst.Abs, err)
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}
	dir := dst.Dir()

	if t.opts.CheckFreeSpace && total > 0 {
		if err := disk.EnsureSpace(t.opts.Space, nearestExisting(t.fs, dir), uint64(total)); err != nil {
			return 0, ops.Wrap(ops.IoError, ops.KindInstall, dst.Abs, err)
		}
	}
	if t.opts.CreateParents {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return 0, ops.AsError(ops.KindInstall, dir, err)
		}
	}

	mode, err := t.targetMode(dst)
	if err != nil {
		return 0, err
	}

	tmp, err := afero.TempFile(t.fs, dir, "."+dst.Base()+".fileman-*.part")
	if err != nil {
		return 0, ops.AsError(ops.KindInstall, dst.Abs, fmt.Errorf("create temporary file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := t.fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				t.logger.Warn().Err(rmErr).Str("path", tmpName).Msg("failed to remove temporary file")
			}
		}
	}()

	written, err := t.stream(ctx, resp.Body, tmp, total, sink)
	if err != nil {
		return written, ops.AsError(ops.KindInstall, dst.Abs, err)
	}

	if err := tmp.Sync(); err != nil {
		return written, ops.Wrap(ops.IoError, ops.KindInstall, dst.Abs, fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return written, ops.Wrap(ops.IoError, ops.KindInstall, dst.Abs, fmt.Errorf("close: %w", err))
	}
	if err := t.fs.Chmod(tmpName, mode); err != nil {
		return written, ops.AsError(ops.KindInstall, dst.Abs, err)
	}
	if err := t.fs.Rename(tmpName, dst.Abs); err != nil {
		return written, ops.AsError(ops.KindInstall, dst.Abs, err)
	}
	committed = true

	t.logger.Debug().
		Str("url", url).
		Str("path", dst.Abs).
		Int64("bytes", written).
		Msg("installed")
	return written, nil
}

// CheckDestination runs the local preconditions of Fetch without touching
// the network or the filesystem
func (t *Transferer) CheckDestination(dst ops.Path) error {
	if err := t.opts.Validator.Guard(ops.KindInstall, dst.Abs); err != nil {
		return err
	}
	if dst.IsDir() {
		return ops.Errorf(ops.IoError, ops.KindInstall, dst.Abs, "destination is a directory")
	}

	parent := dst.Dir()
	info, err := t.fs.Stat(parent)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return ops.Errorf(ops.IoError, ops.KindInstall, dst.Abs, "parent %s is not a directory", parent)
	case ops.Classify(err) == ops.NotFound && t.opts.CreateParents:
		return nil
	case ops.Classify(err) == ops.NotFound:
		return ops.Errorf(ops.IoError, ops.KindInstall, dst.Abs, "parent directory %s does not exist", parent)
	default:
		return ops.AsError(ops.KindInstall, parent, err)
	}
}

func (t *Transferer) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp, nil
}

// stream copies body into w in ChunkSize pieces, reporting progress after
// every chunk. Read failures are NetworkError, write failures IoError.
func (t *Transferer) stream(ctx context.Context, body io.Reader, w io.Writer, total int64, sink ops.ProgressSink) (int64, error) {
	r := t.limiter.Reader(ctx, body)
	buf := make([]byte, t.opts.ChunkSize)
	var written int64

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, ops.Wrap(ops.IoError, ops.KindInstall, "", fmt.Errorf("write: %w", werr))
			}
			written += int64(n)
			sink.Progress(ops.Progress{Bytes: written, Total: total})
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return written, ops.Wrap(ops.NetworkError, ops.KindInstall, "", fmt.Errorf("read after %d bytes: %w", written, rerr))
		}
	}

	if total >= 0 && written != total {
		return written, ops.Errorf(ops.NetworkError, ops.KindInstall, "", "body ended after %d of %d bytes", written, total)
	}
	return written, nil
}

// targetMode keeps the permissions of a file being replaced
func (t *Transferer) targetMode(dst ops.Path) (os.FileMode, error) {
	if !dst.Exists() {
		return defaultMode, nil
	}
	info, err := t.fs.Stat(dst.Abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultMode, nil
		}
		return 0, ops.AsError(ops.KindInstall, dst.Abs, err)
	}
	return info.Mode().Perm(), nil
}

// nearestExisting walks up from dir to the first directory that exists, so the
// free-space probe works before missing parents are created
func nearestExisting(fsys afero.Fs, dir string) string {
	for {
		if _, err := fsys.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
