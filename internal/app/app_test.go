package app

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/dispatcher"
	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/inference/inferencetest"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	home := t.TempDir()

	models := make(map[string]*types.ModelDescriptor)
	for _, id := range types.Pipelines {
		models[string(id)] = &types.ModelDescriptor{
			Name:     string(id),
			URL:      baseURL + "/" + string(id) + ".onnx",
			Filename: string(id) + ".onnx",
		}
	}

	return &config.Config{
		Environment:      "test",
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
		Models:           models,
	}
}

func TestDownloadWarmAndClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	sess := &inferencetest.Session{
		OutputOrder: []string{"logits"},
		Outputs: map[string]inference.Tensor{
			"logits": inference.NewFloat32([]int64{1, 6}, []float32{2, 1, 0.1, 0.1, 0.1, 0.1}),
		},
	}

	events := make(chan Event, 256)
	a, err := NewApp(cfg,
		WithEngine(&inferencetest.Engine{Session: sess}),
		WithEventHandler(func(ev Event) { events <- ev }),
	)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.LabelPath("synset.txt"),
		[]byte("n0 zero\nn1 one\nn2 two\nn3 three\nn4 four\nn5 five\n"), 0o644))

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	imgPath := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, imageutil.EncodeFile(imgPath, img))

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(context.Background()) }()

	req := types.InferenceRequest{Pipeline: types.PipelineClassification, ImagePath: imgPath}
	_, err = a.Submit(req, func(types.InferenceResult) {})
	require.ErrorIs(t, err, dispatcher.ErrModelNotReady)

	deadline := time.After(5 * time.Second)
	for loaded := false; !loaded; {
		select {
		case ev := <-events:
			if ev.Kind == EventLoad && ev.Pipeline == types.PipelineClassification {
				require.NoError(t, ev.Err)
				loaded = true
			}
		case <-deadline:
			t.Fatal("session never loaded")
		}
	}

	st, err := a.ModelStatus(types.PipelineClassification)
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactPresent, st.Status)
	assert.True(t, st.Loaded)

	results := make(chan types.InferenceResult, 1)
	token, err := a.Submit(req, func(r types.InferenceResult) { results <- r })
	require.NoError(t, err)

	select {
	case r := <-results:
		assert.True(t, r.OK, r.Message)
		assert.Equal(t, token, r.Token)
		assert.True(t, strings.HasPrefix(r.Message, "Top-5 predictions: \n1. zero: "))
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}

	require.NoError(t, a.Close())
	assert.NoError(t, <-runErr)
	assert.True(t, sess.Closed())
}

func TestPrepareReportsLoadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupt"))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	a, err := NewApp(cfg, WithEngine(&inferencetest.Engine{Err: errors.New("invalid model")}))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = a.Prepare(ctx, types.PipelineSpecies)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model")

	statuses := a.ModelStatuses()
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		if st.Pipeline == types.PipelineSpecies {
			assert.Equal(t, types.ArtifactPresent, st.Status)
			assert.False(t, st.Loaded)
			assert.NotEmpty(t, st.LoadFailed)
		}
	}
}

func TestOutputsManagerUsesOutputsDir(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	a, err := NewApp(cfg, WithEngine(&inferencetest.Engine{}))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, cfg.OutputsDir, a.Outputs().Dir())
	assert.DirExists(t, cfg.OutputsDir)
}

func TestWarmLoadsModelAlreadyOnDisk(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	engine := &inferencetest.Engine{Session: &inferencetest.Session{}}

	events := make(chan Event, 16)
	a, err := NewApp(cfg, WithEngine(engine), WithEventHandler(func(ev Event) { events <- ev }))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.ModelsDir, "detection.onnx"), []byte("model"), 0o644))

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(context.Background()) }()

	require.NoError(t, a.Warm(types.PipelineDetection))

	select {
	case ev := <-events:
		assert.Equal(t, EventLoad, ev.Kind)
		assert.Equal(t, types.PipelineDetection, ev.Pipeline)
		assert.NoError(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no load event")
	}
	assert.Equal(t, 1, engine.Loads())

	require.NoError(t, a.Close())
	assert.NoError(t, <-runErr)
}
