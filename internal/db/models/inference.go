package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Inference is one delivered inference result.
type Inference struct {
	bun.BaseModel `bun:"table:inferences"`

	ID         uuid.UUID `bun:",pk,type:uuid"`
	Token      string    `bun:",notnull"`
	Pipeline   string    `bun:",notnull"`
	ImagePath  string    `bun:",notnull"`
	OK         bool      `bun:"ok,notnull"`
	Message    string    `bun:",notnull"`
	DurationMs int64     `bun:",notnull"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
