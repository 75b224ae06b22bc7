package companion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPromptBank_OverridesAndFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `by_emotion:
  joy:
    - "Custom joy prompt?"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bank, err := LoadPromptBank(path)
	if err != nil {
		t.Fatalf("LoadPromptBank() error = %v", err)
	}
	if len(bank.ByEmotion["joy"]) != 1 || bank.ByEmotion["joy"][0] != "Custom joy prompt?" {
		t.Fatalf("joy prompts = %v, want the custom prompt", bank.ByEmotion["joy"])
	}
	// Missing general bank falls back to defaults.
	if len(bank.General) == 0 {
		t.Fatal("general bank should fall back to defaults")
	}
}

func TestPromptsFor_UnknownEmotionUsesGeneral(t *testing.T) {
	bank := DefaultPromptBank()
	got := bank.promptsFor("melancholy")
	if len(got) != len(bank.General) {
		t.Fatalf("promptsFor(unknown) returned %d prompts, want the general bank", len(got))
	}
}

func TestDefaultPromptBank_CoversCoreEmotions(t *testing.T) {
	bank := DefaultPromptBank()
	for _, emotion := range []string{"joy", "sadness", "anger", "anxiety", "gratitude", "love"} {
		if len(bank.ByEmotion[emotion]) == 0 {
			t.Fatalf("no prompts for %q", emotion)
		}
	}
	if len(bank.Emotions()) != 6 {
		t.Fatalf("emotions = %v, want 6 labels", bank.Emotions())
	}
}
