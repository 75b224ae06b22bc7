// Package companion is the scripted reflection chat: it detects the user's
// emotion, pulls related memories, and answers from fixed phrasing sets.
// It keeps no state of its own.
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/quailyquaily/emotionbank/analyzer"
	"github.com/quailyquaily/emotionbank/internal/strutil"
	"github.com/quailyquaily/emotionbank/memory"
)

// Retriever is the slice of the memory pipeline the companion needs.
type Retriever interface {
	Retrieve(ctx context.Context, opt memory.RetrieveOptions) ([]memory.Record, error)
}

// Response is one companion turn.
type Response struct {
	Message          string          `json:"message"`
	RelatedMemories  []memory.Record `json:"related_memories"`
	ReflectionPrompt string          `json:"reflection_prompt"`
	DetectedEmotion  string          `json:"detected_emotion"`
}

const relatedMemoryLimit = 3

type Responder struct {
	analyzer analyzer.Client
	memories Retriever
	bank     PromptBank
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewResponder wires the companion. The rand source is injected so tests can
// pin template selection; pass rand.New(rand.NewSource(time.Now().UnixNano()))
// for production variety.
func NewResponder(client analyzer.Client, retriever Retriever, bank PromptBank, rng *rand.Rand, logger *slog.Logger) (*Responder, error) {
	if client == nil {
		return nil, fmt.Errorf("nil analyzer client")
	}
	if retriever == nil {
		return nil, fmt.Errorf("nil retriever")
	}
	if rng == nil {
		return nil, fmt.Errorf("nil rand source")
	}
	if len(bank.General) == 0 && len(bank.ByEmotion) == 0 {
		bank = DefaultPromptBank()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		analyzer: client,
		memories: retriever,
		bank:     bank,
		rng:      rng,
		logger:   logger,
	}, nil
}

// Respond produces one chat turn. Retrieval failures degrade to an
// empty-memories reply instead of failing the turn; everything else is
// fail-fast.
func (r *Responder) Respond(ctx context.Context, userText string) (Response, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Response{}, fmt.Errorf("%w: empty user input", memory.ErrValidation)
	}

	emotion, err := r.detectEmotion(ctx, userText)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", memory.ErrAnalysis, err)
	}

	memories, err := r.memories.Retrieve(ctx, memory.RetrieveOptions{
		Query:   userText,
		Emotion: emotion,
		Limit:   relatedMemoryLimit,
	})
	if err != nil {
		// Chat stays available even when search is down.
		r.logger.Warn("memory retrieval failed, degrading to empty result", "error", err)
		memories = nil
	}

	resp := Response{
		RelatedMemories:  memories,
		DetectedEmotion:  emotion,
		ReflectionPrompt: r.pick(r.bank.promptsFor(emotion)),
	}
	if len(memories) > 0 {
		resp.Message = r.memoryMessage(emotion, memories)
	} else {
		resp.Message = r.exploratoryMessage(emotion)
		resp.RelatedMemories = []memory.Record{}
	}
	return resp, nil
}

func (r *Responder) detectEmotion(ctx context.Context, userText string) (string, error) {
	res, err := r.analyzer.AnalyzeText(ctx, userText)
	if err != nil {
		return "", err
	}
	return analyzer.DominantEmotion(res), nil
}

// MemoryMessageTemplates are the fixed phrasings used when related memories
// exist. %[1]s is the emotion, %[2]s the first memory's caption, %[3]d the
// match count. Exported so tests assert membership, not exact strings.
var MemoryMessageTemplates = []string{
	"I notice you're feeling %[1]s. This reminds me of a memory you shared about %[2]s.",
	"Your feeling of %[1]s connects with %[3]d memories you've shared with me.",
	"As we discuss this, I'm reminded of your memory about %[2]s. Would you like to reflect on it?",
	"I see a connection between your current feelings and your memory of %[2]s.",
}

// ExploratoryMessageTemplates are used when nothing related was found.
var ExploratoryMessageTemplates = []string{
	"I notice you're feeling %[1]s. Would you like to share more about what's on your mind?",
	"It sounds like you're experiencing %[1]s. I'm here to listen and reflect with you.",
	"Thank you for sharing these %[1]s feelings. Would you like to explore them together?",
	"I'm here to support you as you process these %[1]s emotions. What would be most helpful to discuss?",
}

// maxCaptionBytes keeps cited captions readable inside a chat message.
const maxCaptionBytes = 120

func (r *Responder) memoryMessage(emotion string, memories []memory.Record) string {
	tpl := r.pick(MemoryMessageTemplates)
	caption := strutil.TruncateUTF8(memories[0].Caption, maxCaptionBytes)
	return fmt.Sprintf(tpl, emotion, caption, len(memories))
}

func (r *Responder) exploratoryMessage(emotion string) string {
	return fmt.Sprintf(r.pick(ExploratoryMessageTemplates), emotion)
}

func (r *Responder) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[r.rng.Intn(len(options))]
}
