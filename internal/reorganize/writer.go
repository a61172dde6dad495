package reorganize

import (
	"encoding/json"
	"fmt"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
)

// stepWriter writes JSON under the reorganized tree and counts what one
// step created.
type stepWriter struct {
	fs    billy.Filesystem
	stats api.StepStats
}

func (w *stepWriter) mkdir(p string) error {
	if err := w.fs.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("reorganize: create %s: %w", p, err)
	}
	w.stats.Folders++
	return nil
}

func (w *stepWriter) writeJSON(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("reorganize: encode %s: %w", p, err)
	}
	if err := artifact.WriteFile(w.fs, p, append(data, '\n')); err != nil {
		return err
	}
	w.stats.Files++
	return nil
}
