package model_downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/hashutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	return bytes.Repeat([]byte("onnx"), n/4)
}

func TestFetchWritesAtomically(t *testing.T) {
	body := payload(256 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	desc := types.ModelDescriptor{Name: "m", URL: srv.URL, Filename: "model.onnx", Checksum: hashutil.Blake3Hash(body)}

	var (
		mu    sync.Mutex
		calls [][2]int64
	)
	d := NewDownloader(WithProgressInterval(time.Hour))
	err := d.Fetch(context.Background(), desc, dest, func(c, total int64) {
		mu.Lock()
		calls = append(calls, [2]int64{c, total})
		mu.Unlock()
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.NoFileExists(t, dest+".tmp")

	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, int64(len(body)), last[0])
	assert.Equal(t, int64(len(body)), last[1])
}

func TestFetchProgressMonotonic(t *testing.T) {
	body := payload(512 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		flusher := w.(http.Flusher)
		for off := 0; off < len(body); off += 64 * 1024 {
			w.Write(body[off : off+64*1024])
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}))
	defer srv.Close()

	var seen []int64
	d := NewDownloader(WithProgressInterval(time.Millisecond))
	err := d.Fetch(context.Background(), types.ModelDescriptor{URL: srv.URL}, filepath.Join(t.TempDir(), "m.onnx"), func(c, _ int64) {
		seen = append(seen, c)
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, int64(len(body)), seen[len(seen)-1])
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	err := NewDownloader().Fetch(context.Background(), types.ModelDescriptor{URL: srv.URL}, dest, nil)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".tmp")
}

func TestFetchTruncatedBody(t *testing.T) {
	body := payload(64 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Advertise more than is sent, then drop the connection.
		w.Header().Set("Content-Length", strconv.Itoa(len(body)*2))
		w.Write(body)
		w.(http.Flusher).Flush()
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	err := NewDownloader().Fetch(context.Background(), types.ModelDescriptor{URL: srv.URL}, dest, nil)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".tmp")
}

func TestFetchChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not the model"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	desc := types.ModelDescriptor{URL: srv.URL, Checksum: hashutil.Blake3Hash([]byte("the model"))}
	err := NewDownloader().Fetch(context.Background(), desc, dest, nil)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.NoFileExists(t, dest)
}

func TestFetchWriteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	// A regular file where the parent directory should be.
	parent := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(parent, nil, 0o644))

	err := NewDownloader().Fetch(context.Background(), types.ModelDescriptor{URL: srv.URL}, filepath.Join(parent, "m.onnx"), nil)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestSubscriptionManager(t *testing.T) {
	sm := NewSubscriptionManager()
	id := types.PipelineClassification

	sm.SetModelStatus(id, StatusDownloading, nil)
	ch := sm.Subscribe(id)

	select {
	case <-ch:
		t.Fatal("subscriber released early")
	default:
	}

	sm.SetModelStatus(id, StatusFailed, assert.AnError)
	err := <-ch
	assert.ErrorIs(t, err, ErrModelDownloadFailed)
	assert.ErrorIs(t, err, assert.AnError)

	assert.ErrorIs(t, <-sm.Subscribe(id), ErrModelDownloadFailed)

	sm.SetModelStatus(id, StatusDownloading, nil)
	ch = sm.Subscribe(id)
	sm.SetModelStatus(id, StatusReady, nil)
	assert.NoError(t, <-ch)
	assert.Equal(t, StatusReady, sm.GetModelStatus(id))
}
