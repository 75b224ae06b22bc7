package companion

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PromptBank maps an emotion label to its reflection prompts. The General
// bank serves unrecognized emotions (including "neutral").
type PromptBank struct {
	ByEmotion map[string][]string `yaml:"by_emotion"`
	General   []string            `yaml:"general"`
}

// DefaultPromptBank mirrors the journal's built-in reflection prompts.
func DefaultPromptBank() PromptBank {
	return PromptBank{
		ByEmotion: map[string][]string{
			"joy": {
				"What made this moment particularly special for you?",
				"How can you create more joyful moments like this in your life?",
				"Who were the people that contributed to this happiness?",
				"What does this happy memory teach you about what brings you joy?",
			},
			"sadness": {
				"What helped you cope with these feelings?",
				"What have you learned from this experience?",
				"How have you grown since this moment?",
				"What support systems were most helpful during this time?",
			},
			"anger": {
				"What triggered these feelings?",
				"How did you manage your response?",
				"What could be a more constructive way to handle similar situations?",
				"What does this memory teach you about your boundaries?",
			},
			"anxiety": {
				"What coping strategies worked best for you?",
				"What helped you feel more grounded in this moment?",
				"How can you better prepare for similar situations?",
				"What resources or support could help you next time?",
			},
			"gratitude": {
				"What makes this memory particularly meaningful?",
				"How has this experience shaped your perspective?",
				"Who would you like to thank for this moment?",
				"How can you cultivate more moments like this?",
			},
			"love": {
				"What makes this connection special to you?",
				"How has this relationship helped you grow?",
				"What values does this memory reflect?",
				"How can you nurture more connections like this?",
			},
		},
		General: []string{
			"Would you like to explore any similar memories?",
			"How do you feel reflecting on this memory now?",
			"What patterns do you notice in your emotional responses?",
			"What would you tell your past self about this experience?",
		},
	}
}

// LoadPromptBank reads a YAML prompt bank, filling gaps from the defaults.
func LoadPromptBank(path string) (PromptBank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptBank{}, fmt.Errorf("read prompt bank: %w", err)
	}
	var bank PromptBank
	if err := yaml.Unmarshal(raw, &bank); err != nil {
		return PromptBank{}, fmt.Errorf("parse prompt bank: %w", err)
	}
	def := DefaultPromptBank()
	if len(bank.General) == 0 {
		bank.General = def.General
	}
	if bank.ByEmotion == nil {
		bank.ByEmotion = def.ByEmotion
	}
	return bank, nil
}

// Emotions lists the labels the bank covers, sorted for stable output.
func (b PromptBank) Emotions() []string {
	out := make([]string, 0, len(b.ByEmotion))
	for k := range b.ByEmotion {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b PromptBank) promptsFor(emotion string) []string {
	if prompts, ok := b.ByEmotion[emotion]; ok && len(prompts) > 0 {
		return prompts
	}
	return b.General
}
