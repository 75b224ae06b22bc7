// Package mock provides a deterministic analyzer for tests: embeddings are
// hash-seeded unit vectors, emotion scores come from keyword lookup tables.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/quailyquaily/emotionbank/analyzer"
)

const defaultDimensions = 384

// Analyzer implements analyzer.Client without any model dependency.
// Identical input always yields identical output, so similarity of two
// texts reduces to similarity of their keyword overlap plus hash vectors.
type Analyzer struct {
	Dimensions int

	// TextScores maps a keyword to the emotion scores reported when the
	// keyword occurs in the input text. Defaults cover the common labels.
	TextScores map[string]map[string]float64

	// ImageScores is keyed by filename substring.
	ImageScores map[string]map[string]float64

	// FailImages marks path substrings whose analysis should fail,
	// simulating corrupt payloads.
	FailImages map[string]bool
}

func New() *Analyzer {
	return &Analyzer{
		Dimensions: defaultDimensions,
		TextScores: map[string]map[string]float64{
			"happy":   {"joy": 0.9},
			"joy":     {"joy": 0.9},
			"sad":     {"sadness": 0.85},
			"angry":   {"anger": 0.8},
			"anxious": {"anxiety": 0.8},
			"grateful": {
				"gratitude": 0.85,
			},
			"love": {"love": 0.9},
		},
		ImageScores: map[string]map[string]float64{
			"sunset": {"peaceful": 0.7},
			"beach":  {"joy": 0.6},
		},
		FailImages: map[string]bool{},
	}
}

func (a *Analyzer) AnalyzeText(ctx context.Context, text string) (analyzer.TextAnalysis, error) {
	_ = ctx
	if strings.TrimSpace(text) == "" {
		return analyzer.TextAnalysis{}, fmt.Errorf("empty text")
	}

	scores := a.matchScores(a.TextScores, strings.ToLower(text))
	return analyzer.TextAnalysis{
		EmotionTags:   labelsByScore(scores),
		EmotionScores: scores,
		Embedding:     a.embed("text:" + text),
	}, nil
}

func (a *Analyzer) AnalyzeImage(ctx context.Context, imagePath string) (analyzer.ImageAnalysis, error) {
	_ = ctx
	for marker := range a.FailImages {
		if a.FailImages[marker] && strings.Contains(imagePath, marker) {
			return analyzer.ImageAnalysis{}, fmt.Errorf("unreadable image: %s", imagePath)
		}
	}
	if _, err := os.Stat(imagePath); err != nil {
		return analyzer.ImageAnalysis{}, fmt.Errorf("read image: %w", err)
	}

	scores := a.matchScores(a.ImageScores, strings.ToLower(imagePath))
	return analyzer.ImageAnalysis{
		EmotionScores:   scores,
		PrimaryEmotions: labelsByScore(scores),
		Embedding:       a.embed("image:" + imagePath),
	}, nil
}

func (a *Analyzer) matchScores(table map[string]map[string]float64, input string) map[string]float64 {
	out := make(map[string]float64)
	for keyword, scores := range table {
		if !strings.Contains(input, keyword) {
			continue
		}
		for label, s := range scores {
			if s > out[label] {
				out[label] = s
			}
		}
	}
	return out
}

func labelsByScore(scores map[string]float64) []string {
	labels := make([]string, 0, len(scores))
	for l := range scores {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] != scores[labels[j]] {
			return scores[labels[i]] > scores[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}

// embed produces a deterministic unit vector seeded by an fnv hash of the
// input, so equal inputs are maximally similar under cosine distance.
func (a *Analyzer) embed(input string) []float32 {
	dims := a.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	h := fnv.New64a()
	h.Write([]byte(input))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
