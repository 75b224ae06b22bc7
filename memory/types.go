package memory

import (
	"encoding/json"
	"time"
)

// Record is the caller-facing projection of a stored memory. Embeddings stay
// inside the pipeline and are never returned.
type Record struct {
	ID              int64              `json:"id"`
	Caption         string             `json:"caption"`
	Content         string             `json:"content"`
	EmotionalTags   []string           `json:"emotional_tags"`
	SuggestedTags   []string           `json:"suggested_tags"`
	SentimentScores map[string]float64 `json:"sentiment_scores"`
	Timestamp       time.Time          `json:"timestamp"`
	ImagePath       string             `json:"image_path"`
}

// UploadInput carries one user-submitted moment. Image bytes have already
// been read off the transport by the caller.
type UploadInput struct {
	Caption       string
	Content       string
	EmotionalTags []string
	Image         []byte
	Filename      string
}

// RetrieveOptions selects exactly one retrieval mode; precedence is
// SimilarToID, then Emotion, then Query, then plain recency.
type RetrieveOptions struct {
	Query       string
	Emotion     string
	SimilarToID int64
	Limit       int
}

const DefaultRetrieveLimit = 10

func (o RetrieveOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultRetrieveLimit
	}
	return o.Limit
}

// JSON column codecs. The relational store keeps tags, scores and embeddings
// as JSON-encoded TEXT for interop with previously written rows; a decode
// failure yields the zero value rather than an error, matching how the
// original data was consumed.

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeScores(raw string) map[string]float64 {
	if raw == "" {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeEmbedding(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var out []float32
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
