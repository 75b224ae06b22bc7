package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quailyquaily/emotionbank/internal/pathutil"
)

// SaveImage writes the uploaded bytes under dir using a timestamp-prefixed
// name, so concurrent uploads of the same filename cannot collide without
// any filename negotiation.
func SaveImage(dir string, filename string, data []byte, now time.Time) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	resolved, err := pathutil.EnsureDir(dir)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s",
		now.UTC().Format("20060102_150405.000000000"),
		pathutil.SanitizeFilename(filename))
	path := filepath.Join(resolved, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}
