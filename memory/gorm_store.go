package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/emotionbank/db/models"
	"gorm.io/gorm"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Create(ctx context.Context, row *models.Memory) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, fmt.Errorf("nil gorm db")
	}
	if row == nil {
		return 0, fmt.Errorf("nil memory row")
	}
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *GormStore) GetByID(ctx context.Context, id int64) (models.Memory, bool, error) {
	if s == nil || s.DB == nil {
		return models.Memory{}, false, fmt.Errorf("nil gorm db")
	}
	var row models.Memory
	err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Memory{}, false, nil
		}
		return models.Memory{}, false, err
	}
	return row, true, nil
}

func (s *GormStore) GetByIDs(ctx context.Context, ids []int64) ([]models.Memory, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Memory
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByEmotion matches rows whose emotional_tags JSON array contains the
// label. The column holds a JSON-encoded list, so the label is matched in
// its own JSON encoding, surrounding quotes included, which makes the LIKE
// an exact element match even for labels with quotes or backslashes.
func (s *GormStore) ListByEmotion(ctx context.Context, label string, limit int) ([]models.Memory, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	var rows []models.Memory
	err := s.DB.WithContext(ctx).
		Where(`emotional_tags LIKE ? ESCAPE '\'`, `%`+escapeLike(encodeJSON(label))+`%`).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) ListRecent(ctx context.Context, limit int) ([]models.Memory, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	var rows []models.Memory
	err := s.DB.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) ListComplete(ctx context.Context) ([]models.Memory, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	var rows []models.Memory
	err := s.DB.WithContext(ctx).
		Where("text_embedding <> '' AND image_embedding <> ''").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) Delete(ctx context.Context, id int64) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("nil gorm db")
	}
	return s.DB.WithContext(ctx).Delete(&models.Memory{}, "id = ?", id).Error
}

func (s *GormStore) AppendChat(ctx context.Context, row *models.ChatHistory) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("nil gorm db")
	}
	if row == nil {
		return fmt.Errorf("nil chat row")
	}
	return s.DB.WithContext(ctx).Create(row).Error
}

func (s *GormStore) RecentChats(ctx context.Context, limit int) ([]models.ChatHistory, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []models.ChatHistory
	err := s.DB.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// escapeLike neutralizes LIKE metacharacters. The escape character itself
// goes first, or escaping the others would corrupt pre-existing backslashes.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
