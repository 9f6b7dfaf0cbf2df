package migrations

import (
	"context"

	"github.com/cozy-creator/vision-ai/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().Model((*models.Inference)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}

		_, err := db.NewCreateIndex().
			Model((*models.Inference)(nil)).
			Index("inferences_pipeline_created_at_idx").
			IfNotExists().
			Column("pipeline", "created_at").
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().Model((*models.Inference)(nil)).IfExists().Exec(ctx)
		return err
	})
}
