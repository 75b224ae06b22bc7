package companion

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/quailyquaily/emotionbank/analyzer"
	"github.com/quailyquaily/emotionbank/memory"
)

type stubAnalyzer struct {
	tags []string
	err  error
}

func (s *stubAnalyzer) AnalyzeText(_ context.Context, _ string) (analyzer.TextAnalysis, error) {
	if s.err != nil {
		return analyzer.TextAnalysis{}, s.err
	}
	return analyzer.TextAnalysis{
		EmotionTags: s.tags,
		Embedding:   []float32{0.1},
	}, nil
}

func (s *stubAnalyzer) AnalyzeImage(_ context.Context, _ string) (analyzer.ImageAnalysis, error) {
	return analyzer.ImageAnalysis{}, fmt.Errorf("not used")
}

type stubRetriever struct {
	records []memory.Record
	err     error
	lastOpt memory.RetrieveOptions
}

func (s *stubRetriever) Retrieve(_ context.Context, opt memory.RetrieveOptions) ([]memory.Record, error) {
	s.lastOpt = opt
	return s.records, s.err
}

func newTestResponder(t *testing.T, a *stubAnalyzer, r *stubRetriever, seed int64) *Responder {
	t.Helper()
	resp, err := NewResponder(a, r, DefaultPromptBank(), rand.New(rand.NewSource(seed)), slog.Default())
	if err != nil {
		t.Fatalf("NewResponder() error = %v", err)
	}
	return resp
}

func TestRespond_NeutralFallbackUsesGenericBank(t *testing.T) {
	a := &stubAnalyzer{tags: nil}
	r := &stubRetriever{}
	resp := newTestResponder(t, a, r, 1)

	got, err := resp.Respond(context.Background(), "the weather is fine")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.DetectedEmotion != "neutral" {
		t.Fatalf("detected emotion = %q, want neutral", got.DetectedEmotion)
	}
	if !contains(DefaultPromptBank().General, got.ReflectionPrompt) {
		t.Fatalf("reflection prompt %q not drawn from the generic bank", got.ReflectionPrompt)
	}
	for _, prompts := range DefaultPromptBank().ByEmotion {
		if contains(prompts, got.ReflectionPrompt) {
			t.Fatalf("reflection prompt %q came from an emotion-specific bank", got.ReflectionPrompt)
		}
	}
}

func TestRespond_MemoryMessageTemplateMembership(t *testing.T) {
	a := &stubAnalyzer{tags: []string{"joy"}}
	r := &stubRetriever{records: []memory.Record{
		{ID: 7, Caption: "the beach trip"},
		{ID: 9, Caption: "graduation"},
	}}
	resp := newTestResponder(t, a, r, 2)

	got, err := resp.Respond(context.Background(), "I feel so happy today")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(got.RelatedMemories) != 2 {
		t.Fatalf("related memories = %d, want 2", len(got.RelatedMemories))
	}
	if !matchesAnyTemplate(got.Message, MemoryMessageTemplates, "joy", "the beach trip", 2) {
		t.Fatalf("message %q does not match any memory template", got.Message)
	}
	if !contains(DefaultPromptBank().ByEmotion["joy"], got.ReflectionPrompt) {
		t.Fatalf("reflection prompt %q not drawn from the joy bank", got.ReflectionPrompt)
	}
}

func TestRespond_ExploratoryWhenNoMemories(t *testing.T) {
	a := &stubAnalyzer{tags: []string{"sadness"}}
	r := &stubRetriever{records: nil}
	resp := newTestResponder(t, a, r, 3)

	got, err := resp.Respond(context.Background(), "I feel down")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(got.RelatedMemories) != 0 {
		t.Fatalf("related memories = %v, want none", got.RelatedMemories)
	}
	if !matchesAnyTemplate(got.Message, ExploratoryMessageTemplates, "sadness", "", 0) {
		t.Fatalf("message %q does not match any exploratory template", got.Message)
	}
	if !strings.Contains(got.Message, "sadness") {
		t.Fatalf("message %q does not name the detected emotion", got.Message)
	}
}

func TestRespond_RetrievalFailureDegradesToEmpty(t *testing.T) {
	a := &stubAnalyzer{tags: []string{"joy"}}
	r := &stubRetriever{err: fmt.Errorf("index on fire")}
	resp := newTestResponder(t, a, r, 4)

	got, err := resp.Respond(context.Background(), "happy days")
	if err != nil {
		t.Fatalf("Respond() error = %v, want soft-fail", err)
	}
	if len(got.RelatedMemories) != 0 {
		t.Fatalf("related memories = %v, want empty on retrieval failure", got.RelatedMemories)
	}
	if !matchesAnyTemplate(got.Message, ExploratoryMessageTemplates, "joy", "", 0) {
		t.Fatalf("message %q should fall back to exploratory templates", got.Message)
	}
}

func TestRespond_AnalysisFailureIsHard(t *testing.T) {
	a := &stubAnalyzer{err: fmt.Errorf("model down")}
	resp := newTestResponder(t, a, &stubRetriever{}, 5)

	if _, err := resp.Respond(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when emotion analysis fails")
	}
}

func TestRespond_PassesQueryAndEmotionToRetriever(t *testing.T) {
	a := &stubAnalyzer{tags: []string{"joy"}}
	r := &stubRetriever{}
	resp := newTestResponder(t, a, r, 6)

	if _, err := resp.Respond(context.Background(), "what a great day"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if r.lastOpt.Query != "what a great day" {
		t.Fatalf("retriever query = %q, want the user text", r.lastOpt.Query)
	}
	if r.lastOpt.Emotion != "joy" {
		t.Fatalf("retriever emotion = %q, want joy", r.lastOpt.Emotion)
	}
	if r.lastOpt.Limit != 3 {
		t.Fatalf("retriever limit = %d, want 3", r.lastOpt.Limit)
	}
}

func TestRespond_SeededRandIsDeterministic(t *testing.T) {
	build := func() *Responder {
		return newTestResponder(t,
			&stubAnalyzer{tags: []string{"joy"}},
			&stubRetriever{records: []memory.Record{{ID: 1, Caption: "picnic"}}},
			42)
	}

	one, err := build().Respond(context.Background(), "so happy")
	if err != nil {
		t.Fatal(err)
	}
	two, err := build().Respond(context.Background(), "so happy")
	if err != nil {
		t.Fatal(err)
	}
	if one.Message != two.Message || one.ReflectionPrompt != two.ReflectionPrompt {
		t.Fatalf("same seed produced different output:\n%q vs %q\n%q vs %q",
			one.Message, two.Message, one.ReflectionPrompt, two.ReflectionPrompt)
	}
}

func TestRespond_EmptyInputIsValidationError(t *testing.T) {
	resp := newTestResponder(t, &stubAnalyzer{}, &stubRetriever{}, 7)
	if _, err := resp.Respond(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank input")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func matchesAnyTemplate(message string, templates []string, emotion, caption string, count int) bool {
	for _, tpl := range templates {
		if message == fmt.Sprintf(tpl, emotion, caption, count) {
			return true
		}
	}
	return false
}
