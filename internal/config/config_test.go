package config

import (
	"path/filepath"
	"testing"

	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("VISIONAI_HOME", home)
	t.Setenv("VISIONAI_ONNXRUNTIME_THREADS", "4")
	t.Cleanup(viper.Reset)

	require.NoError(t, InitConfig())
	cfg := GetConfig()

	assert.Equal(t, home, cfg.HomeDir)
	assert.Equal(t, filepath.Join(home, "models"), cfg.ModelsDir)
	assert.FileExists(t, filepath.Join(home, "config.yaml"))
	assert.Equal(t, 4, cfg.OnnxRuntimeThreads)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultProgressInterval, cfg.ProgressInterval)

	desc, err := cfg.Descriptor(types.PipelineClassification)
	require.NoError(t, err)
	assert.NotEmpty(t, desc.URL)
	assert.Equal(t, filepath.Join(home, "labels", "synset_words.txt"), cfg.LabelPath(cfg.Labels.Classification))
}
