// Package analyzer defines the contract with the emotion/embedding inference
// service and the rules for merging per-modality results.
//
// The models themselves (emotion classifier, text embedder, CLIP-style image
// encoder) run out of process; this package only speaks their request/response
// shapes and treats them as opaque.
package analyzer

import "context"

// TextAnalysis is the result of running text through the inference service:
// an emotion distribution plus a fixed-length embedding.
type TextAnalysis struct {
	EmotionTags   []string           `json:"emotion_tags"`
	EmotionScores map[string]float64 `json:"emotion_scores"`
	Embedding     []float32          `json:"text_embedding"`
}

// ImageAnalysis is the image-modality counterpart. PrimaryEmotions carries the
// labels the image model itself considers dominant; the pipeline still runs
// both modalities through Combine before tagging.
type ImageAnalysis struct {
	EmotionScores   map[string]float64 `json:"emotion_scores"`
	PrimaryEmotions []string           `json:"primary_emotions"`
	Embedding       []float32          `json:"image_embedding"`
}

// Combined is the cross-modality merge produced by Combine.
type Combined struct {
	PrimaryEmotions []string           `json:"primary_emotions"`
	EmotionScores   map[string]float64 `json:"emotion_scores"`
}

// Client is the boundary to the inference service. Implementations must be
// safe for concurrent use.
type Client interface {
	AnalyzeText(ctx context.Context, text string) (TextAnalysis, error)
	AnalyzeImage(ctx context.Context, imagePath string) (ImageAnalysis, error)
}

// DominantEmotion returns the first detected tag, or "neutral" when the
// classifier produced none.
func DominantEmotion(a TextAnalysis) string {
	for _, tag := range a.EmotionTags {
		if tag != "" {
			return tag
		}
	}
	return "neutral"
}
