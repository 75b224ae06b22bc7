// Package memory implements the journal's core pipeline: it owns the write
// path into both the relational store and the vector index, and answers every
// retrieval mode over them.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/quailyquaily/emotionbank/analyzer"
	"github.com/quailyquaily/emotionbank/db/models"
	"github.com/quailyquaily/emotionbank/vectorindex"
)

type PipelineOptions struct {
	UploadsDir string
	Combine    analyzer.CombineOptions
	Logger     *slog.Logger
	// Now is injectable for deterministic file naming in tests.
	Now func() time.Time
}

type Pipeline struct {
	store      Store
	index      vectorindex.Index
	analyzer   analyzer.Client
	uploadsDir string
	combine    analyzer.CombineOptions
	logger     *slog.Logger
	now        func() time.Time
}

func NewPipeline(store Store, index vectorindex.Index, client analyzer.Client, opt PipelineOptions) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if index == nil {
		return nil, fmt.Errorf("nil vector index")
	}
	if client == nil {
		return nil, fmt.Errorf("nil analyzer client")
	}
	if strings.TrimSpace(opt.UploadsDir) == "" {
		opt.UploadsDir = "uploads/images"
	}
	if opt.Combine.TextWeight == 0 && opt.Combine.ImageWeight == 0 {
		opt.Combine = analyzer.DefaultCombineOptions()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Pipeline{
		store:      store,
		index:      index,
		analyzer:   client,
		uploadsDir: opt.UploadsDir,
		combine:    opt.Combine,
		logger:     opt.Logger,
		now:        opt.Now,
	}, nil
}

// Upload analyzes, persists and indexes one memory. All-or-nothing: an
// analysis failure persists nothing, and an index failure rolls the
// relational row back so no orphan survives.
func (p *Pipeline) Upload(ctx context.Context, in UploadInput) (Record, error) {
	if err := validateUpload(in); err != nil {
		return Record{}, err
	}

	now := p.now()
	imagePath, err := SaveImage(p.uploadsDir, in.Filename, in.Image, now)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	textAnalysis, err := p.analyzer.AnalyzeText(ctx, in.Content)
	if err != nil {
		p.discardImage(imagePath)
		return Record{}, fmt.Errorf("%w: text: %v", ErrAnalysis, err)
	}
	imageAnalysis, err := p.analyzer.AnalyzeImage(ctx, imagePath)
	if err != nil {
		p.discardImage(imagePath)
		return Record{}, fmt.Errorf("%w: image: %v", ErrAnalysis, err)
	}

	combined := analyzer.Combine(textAnalysis, imageAnalysis, p.combine)

	row := &models.Memory{
		Caption:        in.Caption,
		Content:        in.Content,
		EmotionalTags:  encodeJSON(in.EmotionalTags),
		SuggestedTags:  encodeJSON(combined.PrimaryEmotions),
		Timestamp:      now.UTC(),
		ImagePath:      imagePath,
		TextEmbedding:  encodeJSON(textAnalysis.Embedding),
		ImageEmbedding: encodeJSON(imageAnalysis.Embedding),
		SentimentScore: encodeJSON(combined.EmotionScores),
	}
	id, err := p.store.Create(ctx, row)
	if err != nil {
		p.discardImage(imagePath)
		return Record{}, fmt.Errorf("%w: create memory: %v", ErrStorage, err)
	}

	meta := vectorindex.Metadata{
		Caption:       in.Caption,
		EmotionalTags: in.EmotionalTags,
		Timestamp:     row.Timestamp,
	}
	if err := p.indexBoth(ctx, id, textAnalysis.Embedding, imageAnalysis.Embedding, meta); err != nil {
		// Compensating rollback: without it a failure here would leave either
		// a relational row invisible to similarity search or a phantom index
		// entry that keeps matching searches for a deleted row.
		if delErr := p.store.Delete(ctx, id); delErr != nil {
			p.logger.Error("rollback after index failure also failed",
				"memory_id", id, "error", delErr)
		}
		p.unindexBoth(ctx, id)
		p.discardImage(imagePath)
		return Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	p.logger.Info("memory uploaded",
		"memory_id", id,
		"caption", in.Caption,
		"suggested_tags", combined.PrimaryEmotions)
	return rowToRecord(*row), nil
}

// Retrieve honors exactly one selector, by precedence: SimilarToID, Emotion,
// Query, then plain insertion order.
func (p *Pipeline) Retrieve(ctx context.Context, opt RetrieveOptions) ([]Record, error) {
	switch {
	case opt.SimilarToID > 0:
		return p.retrieveSimilar(ctx, opt.SimilarToID, opt.limit())
	case strings.TrimSpace(opt.Emotion) != "":
		return p.retrieveByEmotion(ctx, opt.Emotion, opt.limit())
	case strings.TrimSpace(opt.Query) != "":
		return p.retrieveByQuery(ctx, opt.Query, opt.limit())
	default:
		rows, err := p.store.ListRecent(ctx, opt.limit())
		if err != nil {
			return nil, fmt.Errorf("%w: list memories: %v", ErrStorage, err)
		}
		return rowsToRecords(rows), nil
	}
}

func (p *Pipeline) retrieveSimilar(ctx context.Context, id int64, limit int) ([]Record, error) {
	row, ok, err := p.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get memory %d: %v", ErrStorage, id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	textMatches, err := p.index.Query(ctx, vectorindex.TextCollection, decodeEmbedding(row.TextEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: text similarity: %v", ErrStorage, err)
	}
	imageMatches, err := p.index.Query(ctx, vectorindex.ImageCollection, decodeEmbedding(row.ImageEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: image similarity: %v", ErrStorage, err)
	}

	ids := interleaveByRank(textMatches, imageMatches, limit)
	return p.fetchOrdered(ctx, ids)
}

func (p *Pipeline) retrieveByEmotion(ctx context.Context, label string, limit int) ([]Record, error) {
	rows, err := p.store.ListByEmotion(ctx, label, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: filter by emotion: %v", ErrStorage, err)
	}
	return rowsToRecords(rows), nil
}

func (p *Pipeline) retrieveByQuery(ctx context.Context, query string, limit int) ([]Record, error) {
	queryAnalysis, err := p.analyzer.AnalyzeText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrAnalysis, err)
	}
	matches, err := p.index.Query(ctx, vectorindex.TextCollection, queryAnalysis.Embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %v", ErrStorage, err)
	}
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return p.fetchOrdered(ctx, ids)
}

// fetchOrdered resolves ids against the relational store, preserving the
// given (index-reported) order.
func (p *Pipeline) fetchOrdered(ctx context.Context, ids []int64) ([]Record, error) {
	rows, err := p.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch memories: %v", ErrStorage, err)
	}
	byID := make(map[int64]models.Memory, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, rowToRecord(r))
		}
	}
	return out, nil
}

// Reconcile replays complete relational rows into the vector index. Adds are
// idempotent, so running it on every start keeps an ephemeral or rebuilt
// index consistent with sqlite.
func (p *Pipeline) Reconcile(ctx context.Context) (int, error) {
	rows, err := p.store.ListComplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list complete memories: %v", ErrStorage, err)
	}
	replayed := 0
	for _, row := range rows {
		ok, err := p.index.Has(ctx, vectorindex.TextCollection, row.ID)
		if err != nil {
			return replayed, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if ok {
			continue
		}
		meta := vectorindex.Metadata{
			Caption:       row.Caption,
			EmotionalTags: decodeStrings(row.EmotionalTags),
			Timestamp:     row.Timestamp,
		}
		err = p.indexBoth(ctx, row.ID,
			decodeEmbedding(row.TextEmbedding),
			decodeEmbedding(row.ImageEmbedding), meta)
		if err != nil {
			return replayed, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		replayed++
	}
	if replayed > 0 {
		p.logger.Info("vector index reconciled", "replayed", replayed)
	}
	return replayed, nil
}

// AppendChat records one companion turn. Append-only.
func (p *Pipeline) AppendChat(ctx context.Context, userInput, aiResponse, emotion string, relatedIDs []int64) error {
	row := &models.ChatHistory{
		UserInput:        userInput,
		AIResponse:       aiResponse,
		DetectedEmotion:  emotion,
		RelatedMemoryIDs: encodeJSON(relatedIDs),
		Timestamp:        p.now().UTC(),
	}
	if err := p.store.AppendChat(ctx, row); err != nil {
		return fmt.Errorf("%w: append chat: %v", ErrStorage, err)
	}
	return nil
}

func (p *Pipeline) indexBoth(ctx context.Context, id int64, textEmb, imageEmb []float32, meta vectorindex.Metadata) error {
	if err := p.index.Add(ctx, vectorindex.TextCollection, id, textEmb, meta); err != nil {
		return fmt.Errorf("index text embedding: %w", err)
	}
	if err := p.index.Add(ctx, vectorindex.ImageCollection, id, imageEmb, meta); err != nil {
		return fmt.Errorf("index image embedding: %w", err)
	}
	return nil
}

// unindexBoth removes whatever indexBoth managed to write before failing.
// Best effort: deleting an id a collection never saw is harmless.
func (p *Pipeline) unindexBoth(ctx context.Context, id int64) {
	for _, col := range []string{vectorindex.TextCollection, vectorindex.ImageCollection} {
		if err := p.index.Delete(ctx, col, id); err != nil {
			p.logger.Warn("failed to unindex after aborted upload",
				"collection", col, "memory_id", id, "error", err)
		}
	}
}

func (p *Pipeline) discardImage(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove image after aborted upload", "path", path, "error", err)
	}
}

func validateUpload(in UploadInput) error {
	if strings.TrimSpace(in.Caption) == "" {
		return fmt.Errorf("%w: caption is required", ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(in.Image) == 0 {
		return fmt.Errorf("%w: image payload is required", ErrValidation)
	}
	if strings.TrimSpace(in.Filename) == "" {
		return fmt.Errorf("%w: image filename is required", ErrValidation)
	}
	return nil
}

// interleaveByRank merges two ranked match lists deterministically: text
// rank 1, image rank 1, text rank 2, and so on, first occurrence wins.
func interleaveByRank(text, image []vectorindex.Match, limit int) []int64 {
	seen := make(map[int64]bool, len(text)+len(image))
	out := make([]int64, 0, limit)
	for i := 0; i < len(text) || i < len(image); i++ {
		if i < len(text) && !seen[text[i].ID] {
			seen[text[i].ID] = true
			out = append(out, text[i].ID)
			if len(out) == limit {
				return out
			}
		}
		if i < len(image) && !seen[image[i].ID] {
			seen[image[i].ID] = true
			out = append(out, image[i].ID)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func rowToRecord(row models.Memory) Record {
	return Record{
		ID:              row.ID,
		Caption:         row.Caption,
		Content:         row.Content,
		EmotionalTags:   decodeStrings(row.EmotionalTags),
		SuggestedTags:   decodeStrings(row.SuggestedTags),
		SentimentScores: decodeScores(row.SentimentScore),
		Timestamp:       row.Timestamp,
		ImagePath:       row.ImagePath,
	}
}

func rowsToRecords(rows []models.Memory) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRecord(r))
	}
	return out
}
