package models

import "time"

// ChatHistory is append-only: one row per companion turn, with the cited
// memory ids serialized as a JSON array.
type ChatHistory struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserInput        string    `gorm:"column:user_input;type:text;not null"`
	AIResponse       string    `gorm:"column:ai_response;type:text;not null"`
	DetectedEmotion  string    `gorm:"column:detected_emotion;type:text"`
	RelatedMemoryIDs string    `gorm:"column:related_memory_ids;type:text"`
	Timestamp        time.Time `gorm:"column:timestamp;not null;index:idx_chat_history_timestamp"`
}

func (ChatHistory) TableName() string { return "chat_history" }
