package memory

import (
	"context"

	"github.com/quailyquaily/emotionbank/db/models"
)

// Store is the relational side of the pipeline. The pipeline is the only
// writer; nothing else touches these tables.
type Store interface {
	Create(ctx context.Context, row *models.Memory) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Memory, bool, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.Memory, error)
	ListByEmotion(ctx context.Context, label string, limit int) ([]models.Memory, error)
	ListRecent(ctx context.Context, limit int) ([]models.Memory, error)
	// ListComplete returns rows whose analysis columns are populated,
	// in insertion order. Used by startup index reconciliation.
	ListComplete(ctx context.Context) ([]models.Memory, error)
	// Delete exists only as the compensation step of a failed upload.
	Delete(ctx context.Context, id int64) error

	AppendChat(ctx context.Context, row *models.ChatHistory) error
	RecentChats(ctx context.Context, limit int) ([]models.ChatHistory, error)
}
