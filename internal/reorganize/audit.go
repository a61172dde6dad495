package reorganize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/figport/api"
)

// measure sums file sizes, files and folders under each root. Missing
// roots count as empty.
func measure(bfs billy.Filesystem, roots ...string) (api.TreeSize, error) {
	var ts api.TreeSize
	for _, root := range roots {
		err := util.Walk(bfs, root, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				ts.Folders++
				return nil
			}
			ts.Files++
			ts.Bytes += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ts, fmt.Errorf("reorganize: measure %s: %w", root, err)
		}
	}
	ts.Human = humanize.Bytes(uint64(ts.Bytes))
	return ts, nil
}

// compareSizes is informational only; it never fails a run.
func compareSizes(before, after api.TreeSize) api.SizeComparison {
	c := api.SizeComparison{Before: before, After: after, DeltaBytes: after.Bytes - before.Bytes}
	if before.Bytes > 0 {
		c.DeltaPercent = float64(c.DeltaBytes) / float64(before.Bytes) * 100
	}
	c.Summary = fmt.Sprintf("%s in %d files -> %s in %d files (%+.1f%%)",
		before.Human, before.Files, after.Human, after.Files, c.DeltaPercent)
	return c
}
