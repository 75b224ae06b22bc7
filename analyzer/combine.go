package analyzer

import "sort"

// CombineOptions holds the linear weights and the primary-emotion cutoff.
// Text dominates because captions are explicit self-report; the image score
// only nudges the result.
type CombineOptions struct {
	TextWeight       float64
	ImageWeight      float64
	PrimaryThreshold float64
}

func DefaultCombineOptions() CombineOptions {
	return CombineOptions{
		TextWeight:       0.6,
		ImageWeight:      0.4,
		PrimaryThreshold: 0.2,
	}
}

// Combine merges the two modality score maps over the union of labels.
// A label absent from one modality contributes 0 for that modality. An
// emotion is primary iff its weighted score exceeds the threshold.
// PrimaryEmotions is sorted by combined score descending, ties by label.
func Combine(text TextAnalysis, image ImageAnalysis, opt CombineOptions) Combined {
	if opt.TextWeight == 0 && opt.ImageWeight == 0 {
		opt = DefaultCombineOptions()
	}

	scores := make(map[string]float64, len(text.EmotionScores)+len(image.EmotionScores))
	for label, s := range text.EmotionScores {
		scores[label] += opt.TextWeight * s
	}
	for label, s := range image.EmotionScores {
		scores[label] += opt.ImageWeight * s
	}

	primary := make([]string, 0, len(scores))
	for label, s := range scores {
		if s > opt.PrimaryThreshold {
			primary = append(primary, label)
		}
	}
	sort.Slice(primary, func(i, j int) bool {
		si, sj := scores[primary[i]], scores[primary[j]]
		if si != sj {
			return si > sj
		}
		return primary[i] < primary[j]
	})

	return Combined{
		PrimaryEmotions: primary,
		EmotionScores:   scores,
	}
}
