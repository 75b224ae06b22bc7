package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/quailyquaily/emotionbank/analyzer/mock"
	"github.com/quailyquaily/emotionbank/db"
	"github.com/quailyquaily/emotionbank/vectorindex"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.SQLite.WAL = false
	gdb, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("db.AutoMigrate() error = %v", err)
	}
	return gdb
}

func newTestPipeline(t *testing.T) (*Pipeline, *mock.Analyzer, *GormStore) {
	t.Helper()
	store := NewGormStore(newTestDB(t))
	client := mock.New()
	p, err := NewPipeline(store, vectorindex.New(), client, PipelineOptions{
		UploadsDir: filepath.Join(t.TempDir(), "uploads"),
		Logger:     slog.Default(),
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p, client, store
}

func mustUpload(t *testing.T, p *Pipeline, caption, content, filename string, tags ...string) Record {
	t.Helper()
	rec, err := p.Upload(context.Background(), UploadInput{
		Caption:       caption,
		Content:       content,
		EmotionalTags: tags,
		Image:         []byte("fake-image-bytes"),
		Filename:      filename,
	})
	if err != nil {
		t.Fatalf("Upload(%q) error = %v", caption, err)
	}
	return rec
}

func TestUpload_PopulatesAnalysisFields(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	rec := mustUpload(t, p, "Beach day", "a happy day at the beach", "beach.jpg", "joy")

	if rec.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if rec.ImagePath == "" {
		t.Fatal("expected stored image path")
	}
	// text joy 0.9*0.6 + image joy 0.6*0.4 = 0.78 > 0.2
	if len(rec.SuggestedTags) == 0 || rec.SuggestedTags[0] != "joy" {
		t.Fatalf("suggested tags = %v, want joy first", rec.SuggestedTags)
	}
	if rec.SentimentScores["joy"] == 0 {
		t.Fatalf("sentiment scores = %v, want joy present", rec.SentimentScores)
	}
	if len(rec.EmotionalTags) != 1 || rec.EmotionalTags[0] != "joy" {
		t.Fatalf("emotional tags = %v, want [joy]", rec.EmotionalTags)
	}
}

func TestUpload_ValidationErrors(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	cases := []struct {
		name string
		in   UploadInput
	}{
		{"missing caption", UploadInput{Content: "c", Image: []byte("x"), Filename: "a.jpg"}},
		{"missing content", UploadInput{Caption: "c", Image: []byte("x"), Filename: "a.jpg"}},
		{"missing image", UploadInput{Caption: "c", Content: "c", Filename: "a.jpg"}},
		{"missing filename", UploadInput{Caption: "c", Content: "c", Image: []byte("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Upload(context.Background(), tc.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Upload() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpload_UnreadableImageLeavesNoRow(t *testing.T) {
	p, client, store := newTestPipeline(t)
	client.FailImages["corrupt"] = true

	_, err := p.Upload(context.Background(), UploadInput{
		Caption:  "Broken",
		Content:  "a sad story",
		Image:    []byte("not-an-image"),
		Filename: "corrupt.jpg",
	})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("Upload() error = %v, want ErrAnalysis", err)
	}

	rows, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("store has %d rows after failed upload, want 0", len(rows))
	}
}

type failingIndex struct {
	vectorindex.Index
	failCollection string
}

func (f *failingIndex) Add(ctx context.Context, collection string, id int64, embedding []float32, meta vectorindex.Metadata) error {
	if collection == f.failCollection {
		return fmt.Errorf("index unavailable")
	}
	return f.Index.Add(ctx, collection, id, embedding, meta)
}

func TestUpload_IndexFailureRollsBackRow(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	idx := &failingIndex{Index: vectorindex.New(), failCollection: vectorindex.ImageCollection}
	p, err := NewPipeline(store, idx, mock.New(), PipelineOptions{
		UploadsDir: filepath.Join(t.TempDir(), "uploads"),
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Upload(context.Background(), UploadInput{
		Caption:  "Doomed",
		Content:  "a happy day",
		Image:    []byte("img"),
		Filename: "a.jpg",
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Upload() error = %v, want ErrStorage", err)
	}

	rows, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("store has %d rows after index failure, want 0 (rollback)", len(rows))
	}
}

func TestUpload_IndexFailureLeavesNoIndexOrphan(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	inner := vectorindex.New()
	idx := &failingIndex{Index: inner, failCollection: vectorindex.ImageCollection}
	client := mock.New()
	p, err := NewPipeline(store, idx, client, PipelineOptions{
		UploadsDir: filepath.Join(t.TempDir(), "uploads"),
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Upload(context.Background(), UploadInput{
		Caption:  "Doomed",
		Content:  "a happy day",
		Image:    []byte("img"),
		Filename: "a.jpg",
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Upload() error = %v, want ErrStorage", err)
	}

	// The text-collection write that preceded the image-collection failure
	// must be undone too, or its phantom id would keep matching searches.
	analysis, err := client.AnalyzeText(context.Background(), "a happy day")
	if err != nil {
		t.Fatalf("AnalyzeText() error = %v", err)
	}
	matches, err := inner.Query(context.Background(), vectorindex.TextCollection, analysis.Embedding, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("text index holds %d entries for a rolled-back upload, want 0", len(matches))
	}
	ok, err := inner.Has(context.Background(), vectorindex.TextCollection, 1)
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	if ok {
		t.Fatal("rolled-back id still tracked in text collection")
	}
}

func TestRetrieve_SimilarIncludesSelf(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	first := mustUpload(t, p, "Beach", "a happy day at the beach", "beach.jpg")
	mustUpload(t, p, "Rainy", "a sad afternoon", "rain.jpg")
	mustUpload(t, p, "Sunset", "a peaceful sunset walk", "sunset.jpg")

	got, err := p.Retrieve(context.Background(), RetrieveOptions{SimilarToID: first.ID})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	found := false
	for _, r := range got {
		if r.ID == first.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("self-similarity: id %d not in result set %v", first.ID, ids(got))
	}
	// Own embeddings rank first in both modalities, so self leads the merge.
	if got[0].ID != first.ID {
		t.Fatalf("first result = %d, want self id %d", got[0].ID, first.ID)
	}
}

func TestRetrieve_SimilarUnknownIDIsNotFound(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Retrieve(context.Background(), RetrieveOptions{SimilarToID: 999})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Retrieve() error = %v, want ErrNotFound", err)
	}
}

func TestRetrieve_EmotionTakesPrecedenceOverQuery(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	joyful := mustUpload(t, p, "Beach", "a happy day", "beach.jpg", "joy")
	mustUpload(t, p, "Rainy", "a sad afternoon", "rain.jpg", "sadness")

	got, err := p.Retrieve(context.Background(), RetrieveOptions{
		Query:   "a sad afternoon",
		Emotion: "joy",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != joyful.ID {
		t.Fatalf("results = %v, want only the joy-tagged memory %d", ids(got), joyful.ID)
	}
}

func TestRetrieve_EmotionDoesNotMatchSubstring(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	mustUpload(t, p, "Beach", "a happy day", "beach.jpg", "joyful")

	got, err := p.Retrieve(context.Background(), RetrieveOptions{Emotion: "joy"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("results = %v, want none: tag %q is not %q", ids(got), "joyful", "joy")
	}
}

func TestRetrieve_EmotionMatchesAwkwardLabels(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	slash := mustUpload(t, p, "Slash", "a happy day", "a.jpg", `back\slash`)
	quote := mustUpload(t, p, "Quote", "a happy day", "b.jpg", `quo"te`)
	mustUpload(t, p, "Plain", "a happy day", "c.jpg", "joy")

	got, err := p.Retrieve(context.Background(), RetrieveOptions{Emotion: `back\slash`})
	if err != nil {
		t.Fatalf("Retrieve(backslash label) error = %v", err)
	}
	if len(got) != 1 || got[0].ID != slash.ID {
		t.Fatalf("backslash label results = %v, want only %d", ids(got), slash.ID)
	}

	got, err = p.Retrieve(context.Background(), RetrieveOptions{Emotion: `quo"te`})
	if err != nil {
		t.Fatalf("Retrieve(quoted label) error = %v", err)
	}
	if len(got) != 1 || got[0].ID != quote.ID {
		t.Fatalf("quoted label results = %v, want only %d", ids(got), quote.ID)
	}

	// A bare wildcard is a literal, not a match-everything pattern.
	got, err = p.Retrieve(context.Background(), RetrieveOptions{Emotion: "%"})
	if err != nil {
		t.Fatalf("Retrieve(%%) error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("wildcard label results = %v, want none", ids(got))
	}
}

func TestRetrieve_QueryPreservesRankOrder(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	target := mustUpload(t, p, "Beach", "a happy day at the beach", "beach.jpg")
	mustUpload(t, p, "Rainy", "a sad afternoon", "rain.jpg")

	// Identical text hashes to an identical embedding, so the target must
	// rank first.
	got, err := p.Retrieve(context.Background(), RetrieveOptions{Query: "a happy day at the beach"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) == 0 || got[0].ID != target.ID {
		t.Fatalf("results = %v, want %d ranked first", ids(got), target.ID)
	}
}

func TestRetrieve_LimitBoundsEveryBranch(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	var firstID int64
	for i := 0; i < 5; i++ {
		rec := mustUpload(t, p,
			fmt.Sprintf("Memory %d", i),
			fmt.Sprintf("a happy day number %d", i),
			fmt.Sprintf("img%d.jpg", i),
			"joy")
		if i == 0 {
			firstID = rec.ID
		}
	}

	branches := []RetrieveOptions{
		{SimilarToID: firstID, Limit: 2},
		{Emotion: "joy", Limit: 2},
		{Query: "a happy day", Limit: 2},
		{Limit: 2},
	}
	for i, opt := range branches {
		got, err := p.Retrieve(context.Background(), opt)
		if err != nil {
			t.Fatalf("branch %d: Retrieve() error = %v", i, err)
		}
		if len(got) > 2 {
			t.Fatalf("branch %d: got %d records, want <= 2", i, len(got))
		}
	}
}

func TestRetrieve_NoSelectorUsesInsertionOrder(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	a := mustUpload(t, p, "First", "a happy day", "a.jpg")
	b := mustUpload(t, p, "Second", "a sad day", "b.jpg")

	got, err := p.Retrieve(context.Background(), RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("results = %v, want insertion order [%d %d]", ids(got), a.ID, b.ID)
	}
}

func TestRetrieve_Idempotent(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	first := mustUpload(t, p, "Beach", "a happy day at the beach", "beach.jpg")
	mustUpload(t, p, "Rainy", "a sad afternoon", "rain.jpg")
	mustUpload(t, p, "Sunset", "a peaceful sunset", "sunset.jpg")

	opt := RetrieveOptions{SimilarToID: first.ID, Limit: 5}
	one, err := p.Retrieve(context.Background(), opt)
	if err != nil {
		t.Fatalf("first Retrieve() error = %v", err)
	}
	two, err := p.Retrieve(context.Background(), opt)
	if err != nil {
		t.Fatalf("second Retrieve() error = %v", err)
	}
	if fmt.Sprint(ids(one)) != fmt.Sprint(ids(two)) {
		t.Fatalf("retrieve not idempotent: %v vs %v", ids(one), ids(two))
	}
}

func TestReconcile_ReplaysIntoFreshIndex(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	client := mock.New()
	uploads := filepath.Join(t.TempDir(), "uploads")

	p1, err := NewPipeline(store, vectorindex.New(), client, PipelineOptions{UploadsDir: uploads})
	if err != nil {
		t.Fatal(err)
	}
	mustUpload(t, p1, "Beach", "a happy day at the beach", "beach.jpg")
	mustUpload(t, p1, "Rainy", "a sad afternoon", "rain.jpg")

	// Same sqlite store, brand-new empty index: reconciliation must replay
	// both rows before similarity search works again.
	p2, err := NewPipeline(store, vectorindex.New(), client, PipelineOptions{UploadsDir: uploads})
	if err != nil {
		t.Fatal(err)
	}
	replayed, err := p2.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if replayed != 2 {
		t.Fatalf("replayed = %d, want 2", replayed)
	}

	got, err := p2.Retrieve(context.Background(), RetrieveOptions{Query: "a happy day at the beach"})
	if err != nil {
		t.Fatalf("Retrieve() after reconcile error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected similarity results after reconcile")
	}

	// A second run replays nothing.
	replayed, err = p2.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if replayed != 0 {
		t.Fatalf("second replayed = %d, want 0", replayed)
	}
}

func TestAppendChat_PersistsTurn(t *testing.T) {
	p, _, store := newTestPipeline(t)

	err := p.AppendChat(context.Background(), "hello", "hi there", "neutral", []int64{1, 2})
	if err != nil {
		t.Fatalf("AppendChat() error = %v", err)
	}
	rows, err := store.RecentChats(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentChats() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("chat rows = %d, want 1", len(rows))
	}
	if rows[0].RelatedMemoryIDs != "[1,2]" {
		t.Fatalf("related ids = %q, want [1,2]", rows[0].RelatedMemoryIDs)
	}
	if rows[0].DetectedEmotion != "neutral" {
		t.Fatalf("emotion = %q, want neutral", rows[0].DetectedEmotion)
	}
}

func TestInterleaveByRank(t *testing.T) {
	text := []vectorindex.Match{{ID: 1}, {ID: 2}, {ID: 3}}
	image := []vectorindex.Match{{ID: 2}, {ID: 4}}

	got := interleaveByRank(text, image, 10)
	want := []int64{1, 2, 4, 3}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("interleave = %v, want %v", got, want)
	}

	got = interleaveByRank(text, image, 2)
	if fmt.Sprint(got) != fmt.Sprint([]int64{1, 2}) {
		t.Fatalf("interleave with limit = %v, want [1 2]", got)
	}
}

func TestJSONColumnsRoundTrip(t *testing.T) {
	p, _, store := newTestPipeline(t)

	rec := mustUpload(t, p, "Beach", "a happy day", "beach.jpg", "joy", "nostalgia")

	row, ok, err := store.GetByID(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("GetByID() = %v, %v", ok, err)
	}
	if row.EmotionalTags != `["joy","nostalgia"]` {
		t.Fatalf("emotional_tags column = %q, want JSON array", row.EmotionalTags)
	}
	back := rowToRecord(row)
	if len(back.EmotionalTags) != 2 || back.EmotionalTags[1] != "nostalgia" {
		t.Fatalf("decoded tags = %v, want [joy nostalgia]", back.EmotionalTags)
	}
	if len(decodeEmbedding(row.TextEmbedding)) == 0 {
		t.Fatal("text embedding column did not round-trip")
	}
}

func ids(records []Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
