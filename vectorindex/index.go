// Package vectorindex stores memory embeddings and answers nearest-neighbor
// queries. Two collections exist, one per modality, both keyed by the
// relational memory id.
package vectorindex

import (
	"context"
	"time"
)

const (
	TextCollection  = "text_memories"
	ImageCollection = "image_memories"
)

// Metadata rides along with each embedding so a hit can be displayed without
// a relational join.
type Metadata struct {
	Caption       string
	EmotionalTags []string
	Timestamp     time.Time
}

// Match is one ranked query hit. Similarity is cosine similarity in [-1, 1];
// results arrive best-first.
type Match struct {
	ID         int64
	Similarity float32
}

type Index interface {
	Add(ctx context.Context, collection string, id int64, embedding []float32, meta Metadata) error
	Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error)
	// Has reports whether an id is already present, used by startup
	// reconciliation to keep re-adds idempotent.
	Has(ctx context.Context, collection string, id int64) (bool, error)
	Delete(ctx context.Context, collection string, id int64) error
}
