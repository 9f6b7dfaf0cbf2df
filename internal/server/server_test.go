package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/inference/inferencetest"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	return newTestServerWithSession(t, &inferencetest.Session{
		OutputOrder: []string{"logits"},
		Outputs: map[string]inference.Tensor{
			"logits": inference.NewFloat32([]int64{1, 3}, []float32{0.1, 3, 0.2}),
		},
	})
}

func newTestServerWithSession(t *testing.T, sess *inferencetest.Session) (*Server, *app.App) {
	t.Helper()

	models := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("onnx-bytes"))
	}))
	t.Cleanup(models.Close)

	home := t.TempDir()
	descs := make(map[string]*types.ModelDescriptor)
	for _, id := range types.Pipelines {
		descs[string(id)] = &types.ModelDescriptor{
			Name:     string(id),
			URL:      models.URL + "/" + string(id) + ".onnx",
			Filename: string(id) + ".onnx",
		}
	}

	cfg := &config.Config{
		Environment:      "test",
		Host:             "127.0.0.1",
		Port:             8881,
		HomeDir:          home,
		ModelsDir:        filepath.Join(home, "models"),
		OutputsDir:       filepath.Join(home, "outputs"),
		LabelsDir:        filepath.Join(home, "labels"),
		DataDir:          filepath.Join(home, "data"),
		Workers:          3,
		ProgressInterval: time.Millisecond,
		Detection:        &config.DetectionConfig{Threshold: 0.5},
		Species:          &config.SpeciesConfig{NoMatchIndex: 2},
		Labels:           &config.LabelsConfig{Classification: "synset.txt", Species: "species.txt"},
		Models:           descs,
	}

	a, err := app.NewApp(cfg, app.WithEngine(&inferencetest.Engine{Session: sess}))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.LabelPath("species.txt"),
		[]byte("0b5a1c9e-4f5e-4a4c-9d0c-3a1f2b3c4d5e;Apis mellifera\n8f7e6d5c-1b2a-4c3d-9e8f-7a6b5c4d3e2f;Bombus terrestris\nnone\n"), 0o644))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(context.Background())
	}()
	t.Cleanup(func() {
		a.Close()
		<-done
	})

	s, err := NewServer(cfg)
	require.NoError(t, err)
	s.SetupRoutes(a)

	return s, a
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, response) {
	t.Helper()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	require.NoError(t, imageutil.EncodeFile(path, img))
}

func uploadRequest(t *testing.T, target, name string) *http.Request {
	t.Helper()

	src := filepath.Join(t.TempDir(), name)
	writeImage(t, src)
	content, err := os.ReadFile(src)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	w, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)
}

func TestModelStatuses(t *testing.T) {
	s, _ := newTestServer(t)

	w, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var statuses []types.ModelStatus
	require.NoError(t, json.Unmarshal(body.Data, &statuses))
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		assert.Equal(t, types.ArtifactAbsent, st.Status)
		assert.False(t, st.Loaded)
	}

	w, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/models/segmentation", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunBeforeDownloadIsUnavailable(t *testing.T) {
	s, a := newTestServer(t)

	img := filepath.Join(t.TempDir(), "bee.png")
	writeImage(t, img)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run/species",
		strings.NewReader(`{"image_path":"`+img+`"}`))
	req.Header.Set("Content-Type", "application/json")

	w, body := do(t, s, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body.Message, "not ready")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.WaitDownload(ctx, types.PipelineSpecies))
}

func TestPrepareThenRunUpload(t *testing.T) {
	s, a := newTestServer(t)

	w, body := do(t, s, httptest.NewRequest(http.MethodPost, "/api/v1/models/species/prepare", nil))
	require.Equal(t, http.StatusOK, w.Code, body.Message)

	var status types.ModelStatus
	require.NoError(t, json.Unmarshal(body.Data, &status))
	assert.True(t, status.Loaded)
	assert.Equal(t, types.ArtifactPresent, status.Status)

	req := uploadRequest(t, "/api/v1/run/species", "bee.png")

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, types.PipelineSpecies, result.Pipeline)
	assert.True(t, strings.HasPrefix(result.Message, "Species: Bombus terrestris\nConfidence: "))
	assert.NotEmpty(t, result.Token)

	uploads, err := os.ReadDir(filepath.Join(a.Config().DataDir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, uploads)
}

func TestUploadKeptUntilResultAfterClientLeaves(t *testing.T) {
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	defer release()

	sess := &inferencetest.Session{
		OutputOrder: []string{"logits"},
		Outputs: map[string]inference.Tensor{
			"logits": inference.NewFloat32([]int64{1, 3}, []float32{0.1, 3, 0.2}),
		},
		Gate: gate,
	}
	s, a := newTestServerWithSession(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Prepare(ctx, types.PipelineSpecies))

	reqCtx, leave := context.WithCancel(context.Background())
	req := uploadRequest(t, "/api/v1/run/species", "bee.png").WithContext(reqCtx)

	served := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		served <- w.Code
	}()

	// The image is decoded and the session is blocked in Run.
	require.Eventually(t, func() bool { return len(sess.Received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	leave()
	assert.Equal(t, http.StatusRequestTimeout, <-served)

	uploadsDir := filepath.Join(a.Config().DataDir, "uploads")
	uploads, err := os.ReadDir(uploadsDir)
	require.NoError(t, err)
	require.Len(t, uploads, 1, "upload removed while the pipeline still runs")

	release()
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(uploadsDir)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOutputs(t *testing.T) {
	s, a := newTestServer(t)
	writeImage(t, filepath.Join(a.Outputs().Dir(), "op-street.png"))

	w, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/outputs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), `"count":1`)

	w, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/outputs/op-street.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/file/op-street.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/v1/outputs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), `"removed":1`)

	w, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/file/op-street.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t)

	w, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
