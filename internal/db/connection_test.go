package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/db/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionDefaultsToSQLite(t *testing.T) {
	dataDir := t.TempDir()
	cfg := &config.Config{Environment: "test", DataDir: dataDir}
	ctx := context.Background()

	driver, err := NewConnection(ctx, cfg)
	require.NoError(t, err)
	defer driver.Close()

	require.NoError(t, Migrate(ctx, driver))
	// Applying twice is a no-op.
	require.NoError(t, Migrate(ctx, driver))

	count, err := driver.GetDB().NewSelect().Model((*models.Inference)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.FileExists(t, filepath.Join(dataDir, defaultSQLiteFile))
}
