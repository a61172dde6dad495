// Package reorganize projects a reconciled export into per-layer folders,
// component groups and design tokens under reorganized/.
package reorganize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/graph"
	"github.com/agentic-research/figport/internal/ingest"
	"github.com/agentic-research/figport/internal/logging"
	"github.com/agentic-research/figport/internal/reconcile"
)

const (
	dirLayers     = "layers"
	dirComponents = "components"
	dirTokens     = "design-tokens"
	statsFile     = "stats.json"

	// stagingDir holds the tree of a run in progress.
	stagingDir = artifact.ReorganizedDir + ".tmp"
)

// Step names in ReorganizeStats.Steps.
const (
	StepLayers     = "layers"
	StepComponents = "components"
	StepTokens     = "designTokens"
)

// Reorganizer is a single-pass batch job over one artifact tree. It only
// ever writes below reorganized/.
type Reorganizer struct {
	store  *artifact.Store
	walker *ingest.JsonWalker
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Reorganizer.
type Option func(*Reorganizer)

// WithClock overrides time.Now for the execution time measurement.
func WithClock(now func() time.Time) Option {
	return func(r *Reorganizer) { r.now = now }
}

// New returns a reorganizer over store.
func New(store *artifact.Store, opts ...Option) *Reorganizer {
	r := &Reorganizer{
		store:  store,
		walker: ingest.NewJsonWalker(),
		log:    logging.New("reorganize"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// PostProcess runs a reorganization over store. It matches the export
// controller's finalize hook.
func PostProcess(ctx context.Context, store *artifact.Store) error {
	_, err := New(store).Run(ctx)
	return err
}

// Run rebuilds reorganized/ from the artifacts, including
// reorganized/stats.json. The tree is built in a sibling directory and
// swapped in only once every step succeeded, so a cancelled or failed run
// leaves the previous output in place.
func (r *Reorganizer) Run(ctx context.Context) (*api.ReorganizeStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := r.now()
	bfs := r.store.Filesystem()

	before, err := measure(bfs, categoryDirs()...)
	if err != nil {
		return nil, err
	}

	res, err := reconcile.New(r.store).Run()
	if err != nil {
		return nil, fmt.Errorf("reorganize: reconcile: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := removeTree(bfs, stagingDir); err != nil {
		return nil, err
	}
	if err := bfs.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("reorganize: create %s: %w", stagingDir, err)
	}
	stats, err := r.build(ctx, bfs, res, before, start)
	if err != nil {
		if cerr := removeTree(bfs, stagingDir); cerr != nil {
			r.log.Warn("staging directory left behind", "dir", stagingDir, "error", cerr)
		}
		return nil, err
	}

	if err := removeTree(bfs, artifact.ReorganizedDir); err != nil {
		return nil, err
	}
	if err := bfs.Rename(stagingDir, artifact.ReorganizedDir); err != nil {
		return nil, fmt.Errorf("reorganize: publish %s: %w", artifact.ReorganizedDir, err)
	}
	r.log.Info("reorganized export",
		"layers", stats.Steps[StepLayers].Files/5,
		"saved", stats.SavedNodes,
		"dataLoss", stats.DataLoss,
		"size", stats.SizeComparison.Summary,
		"took", stats.ExecutionTime)
	return stats, nil
}

func removeTree(bfs billy.Filesystem, dir string) error {
	if err := util.RemoveAll(bfs, dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reorganize: clear %s: %w", dir, err)
	}
	return nil
}

// build runs every step into stagingDir and writes its stats.json.
func (r *Reorganizer) build(ctx context.Context, bfs billy.Filesystem, res *reconcile.Result, before api.TreeSize, start time.Time) (*api.ReorganizeStats, error) {
	out, err := bfs.Chroot(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("reorganize: chroot: %w", err)
	}

	stats := &api.ReorganizeStats{
		OriginalNodes:  res.Nodes.Len(),
		Reconciliation: res.Summary,
		Steps:          make(map[string]api.StepStats),
		Warnings:       append([]string(nil), res.Warnings...),
	}
	saved := graph.NewIDSet()

	byID := make(map[string]reconcile.Component, len(res.Components))
	for _, c := range res.Components {
		byID[c.ID] = c
	}

	steps := []struct {
		name string
		run  func(*stepWriter) error
	}{
		{StepLayers, func(w *stepWriter) error { return r.writeLayers(w, res.Nodes, byID, saved) }},
		{StepComponents, func(w *stepWriter) error { return r.writeComponents(w, res.Components, saved) }},
		{StepTokens, func(w *stepWriter) error { return r.writeTokens(w, res.Nodes) }},
	}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := &stepWriter{fs: out}
		if err := st.run(w); err != nil {
			return nil, err
		}
		stats.Steps[st.name] = w.stats
		stats.CreatedFolders += w.stats.Folders
		stats.CreatedFiles += w.stats.Files
		r.log.Debug("step complete", "step", st.name, "folders", w.stats.Folders, "files", w.stats.Files)
	}

	stats.SavedNodes = saved.Len()
	if stats.OriginalNodes > stats.SavedNodes {
		stats.DataLoss = stats.OriginalNodes - stats.SavedNodes
		w := fmt.Sprintf("%d of %d reconciled nodes are not in any layer or component group", stats.DataLoss, stats.OriginalNodes)
		r.log.Warn(w)
		stats.Warnings = append(stats.Warnings, w)
	}

	after, err := measure(bfs, stagingDir)
	if err != nil {
		return nil, err
	}
	stats.TotalSize = after.Bytes
	stats.SizeComparison = compareSizes(before, after)
	stats.ExecutionTime = r.now().Sub(start).Round(time.Millisecond).String()

	// stats.json itself plus the reorganized/ root.
	stats.CreatedFolders++
	stats.CreatedFiles++
	w := &stepWriter{fs: out}
	if err := w.writeJSON(statsFile, stats); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// LoadStats reads the stats.json of the last run.
func LoadStats(store *artifact.Store) (*api.ReorganizeStats, error) {
	data, err := util.ReadFile(store.Filesystem(), path.Join(artifact.ReorganizedDir, statsFile))
	if err != nil {
		return nil, fmt.Errorf("reorganize: read stats: %w", err)
	}
	var st api.ReorganizeStats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("reorganize: decode stats: %w", err)
	}
	return &st, nil
}

func categoryDirs() []string {
	dirs := make([]string, len(artifact.Categories))
	for i, c := range artifact.Categories {
		dirs[i] = string(c)
	}
	return dirs
}

// writeLayers emits the five per-layer files. With no root frames only the
// empty layers/ folder is created.
func (r *Reorganizer) writeLayers(w *stepWriter, nodes *graph.Store, byID map[string]reconcile.Component, saved *graph.IDSet) error {
	if err := w.mkdir(dirLayers); err != nil {
		return err
	}
	for _, l := range buildLayers(nodes) {
		saved.AddAll(l.IDs)
		if err := w.mkdir(path.Join(dirLayers, l.Folder)); err != nil {
			return err
		}

		groups := l.components(byID)
		count := 0
		for _, g := range groups {
			count += len(g)
		}
		content := l.content(nodes)

		ex := newTokenExtractor(r.walker)
		for _, id := range l.IDs {
			if rec, err := nodes.Get(id); err == nil {
				ex.addNode(rec)
			}
		}

		files := []struct {
			name string
			v    any
		}{
			{"structure.json", l.structure(nodes)},
			{"components.json", groups},
			{"styles.json", ex.tokens()},
			{"content.json", content},
			{"metadata.json", l.metadata(nodes, count, len(content))},
		}
		for _, f := range files {
			if err := w.writeJSON(layerPath(l.Folder, f.name), f.v); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeComponents groups every classified component by category.
func (r *Reorganizer) writeComponents(w *stepWriter, components []reconcile.Component, saved *graph.IDSet) error {
	if err := w.mkdir(dirComponents); err != nil {
		return err
	}
	groups := make(map[reconcile.Category][]ComponentRef)
	for _, c := range components {
		groups[c.Category] = append(groups[c.Category], componentRef(c))
		if !c.Local {
			saved.Add(c.ID)
		}
	}
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		dir := path.Join(dirComponents, c)
		if err := w.mkdir(dir); err != nil {
			return err
		}
		if err := w.writeJSON(path.Join(dir, c+".json"), groups[reconcile.Category(c)]); err != nil {
			return err
		}
	}
	return nil
}

// writeTokens extracts the global token set from every node and the
// shared styles artifact.
func (r *Reorganizer) writeTokens(w *stepWriter, nodes *graph.Store) error {
	ex := newTokenExtractor(r.walker)
	for _, rec := range nodes.Records() {
		ex.addNode(rec)
	}
	var styles any
	if err := r.store.Load(artifact.Styles, "all_styles", &styles); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		r.log.Warn("skipping shared styles", "error", err)
	}
	ex.addStyles(styles)
	t := ex.tokens()

	if err := w.mkdir(dirTokens); err != nil {
		return err
	}
	files := []struct {
		name string
		v    any
	}{
		{"colors.json", t.Colors},
		{"typography.json", t.Typography},
		{"spacing.json", t.Spacing},
		{"shadows.json", t.Shadows},
	}
	for _, f := range files {
		if err := w.writeJSON(path.Join(dirTokens, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}
