package models

import "time"

// Memory keeps the analysis blobs (tags, embeddings, scores) as JSON-encoded
// TEXT columns so rows stay interoperable with stores written by earlier
// versions of the service.
type Memory struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Caption        string    `gorm:"column:caption;type:text;not null;index:idx_memories_caption"`
	Content        string    `gorm:"column:content;type:text;not null"`
	EmotionalTags  string    `gorm:"column:emotional_tags;type:text"`
	SuggestedTags  string    `gorm:"column:suggested_tags;type:text"`
	Timestamp      time.Time `gorm:"column:timestamp;not null;index:idx_memories_timestamp"`
	ImagePath      string    `gorm:"column:image_path;type:text"`
	TextEmbedding  string    `gorm:"column:text_embedding;type:text"`
	ImageEmbedding string    `gorm:"column:image_embedding;type:text"`
	SentimentScore string    `gorm:"column:sentiment_scores;type:text"`
}

func (Memory) TableName() string { return "memories" }
