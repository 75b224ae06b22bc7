package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex backs the Index interface with chromem-go, an embedded pure-Go
// vector database. Collections are created lazily on first use.
type ChromemIndex struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	known       map[string]map[int64]bool
}

// New returns an in-memory index.
func New() *ChromemIndex {
	return newIndex(chromem.NewDB())
}

// NewPersistent returns an index persisted under dir.
func NewPersistent(dir string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return newIndex(db), nil
}

func newIndex(db *chromem.DB) *ChromemIndex {
	return &ChromemIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		known:       make(map[string]map[int64]bool),
	}
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[name]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[name]; ok {
		return col, nil
	}
	col, err := x.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	x.collections[name] = col
	if x.known[name] == nil {
		x.known[name] = make(map[int64]bool)
	}
	return col, nil
}

func (x *ChromemIndex) Add(ctx context.Context, collection string, id int64, embedding []float32, meta Metadata) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for memory %d", id)
	}
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Content:   meta.Caption,
		Embedding: embedding,
		Metadata: map[string]string{
			"caption":        meta.Caption,
			"emotional_tags": strings.Join(meta.EmotionalTags, ","),
			"timestamp":      meta.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	// AddDocument upserts on id, so replaying an existing id (startup
	// reconciliation) is safe.
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index add %s/%d: %w", collection, id, err)
	}
	x.markKnown(collection, id)
	return nil
}

func (x *ChromemIndex) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	if topK <= 0 {
		topK = 10
	}
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if n := col.Count(); n < topK {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index query %s: %w", collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		matches = append(matches, Match{ID: id, Similarity: r.Similarity})
	}
	return matches, nil
}

func (x *ChromemIndex) Has(ctx context.Context, collection string, id int64) (bool, error) {
	_ = ctx
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.known[collection][id], nil
}

func (x *ChromemIndex) Delete(ctx context.Context, collection string, id int64) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("index delete %s/%d: %w", collection, id, err)
	}
	x.mu.Lock()
	delete(x.known[collection], id)
	x.mu.Unlock()
	return nil
}

func (x *ChromemIndex) markKnown(collection string, id int64) {
	x.mu.Lock()
	if x.known[collection] == nil {
		x.known[collection] = make(map[int64]bool)
	}
	x.known[collection][id] = true
	x.mu.Unlock()
}
