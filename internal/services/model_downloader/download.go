package model_downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/vision-ai/internal/types"

	"go.uber.org/zap"
	"lukechampine.com/blake3"
)

var (
	ErrBadStatus        = errors.New("download failed with bad status")
	ErrWrite            = errors.New("failed to write artifact")
	ErrSizeMismatch     = errors.New("download size mismatch")
	ErrChecksumMismatch = errors.New("download checksum mismatch")
)

const defaultProgressInterval = 250 * time.Millisecond

// Transport performs a single HTTP round trip. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProgressFunc receives cumulative bytes written and the expected total.
// total is 0 when the size is unknown.
type ProgressFunc func(completed, total int64)

type Downloader struct {
	client   Transport
	interval time.Duration
	logger   *zap.Logger
}

type Option func(d *Downloader)

func WithTransport(t Transport) Option {
	return func(d *Downloader) {
		d.client = t
	}
}

func WithProgressInterval(interval time.Duration) Option {
	return func(d *Downloader) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

func NewDownloader(options ...Option) *Downloader {
	d := &Downloader{
		client:   newHTTPClient(),
		interval: defaultProgressInterval,
		logger:   zap.NewNop(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0, // model files are large, rely on ctx instead
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 60 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   60 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       60 * time.Second,
		},
	}
}

// Fetch streams desc.URL into dest. The body is written to dest+".tmp" and
// renamed into place only after it has been fully written and verified, so
// dest never holds a partial file. The temp file is removed on failure.
func (d *Downloader) Fetch(ctx context.Context, desc types.ModelDescriptor, dest string, progress ProgressFunc) (err error) {
	if progress == nil {
		progress = func(int64, int64) {}
	}

	tmpPath := dest + ".tmp"
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	d.logger.Info("downloading model", zap.String("name", desc.Name), zap.String("url", desc.URL))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = desc.SizeHint
	}

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer f.Close()

	hasher := blake3.New(32, nil)
	var (
		written    int64
		lastReport time.Time
		buf        = make([]byte, 32*1024)
	)

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrWrite, werr)
			}
			hasher.Write(buf[:n])
			written += int64(n)

			if now := time.Now(); now.Sub(lastReport) >= d.interval {
				lastReport = now
				progress(written, total)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read failed: %w", rerr)
		}
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("%w: expected %d, got %d", ErrSizeMismatch, resp.ContentLength, written)
	}

	if desc.Checksum != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, desc.Checksum) {
			return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, desc.Checksum, sum)
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("%w: failed to move file: %v", ErrWrite, err)
	}

	if total <= 0 {
		total = written
	}
	progress(written, total)

	d.logger.Info("model downloaded", zap.String("name", desc.Name), zap.Int64("bytes", written))
	return nil
}
