// Package reconcile merges the overlapping node observations of an export
// into one canonical record per node id.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/graph"
	"github.com/agentic-research/figport/internal/ingest"
	"github.com/agentic-research/figport/internal/logging"
)

// Provenance says where a reconciled record came from.
type Provenance string

const (
	FromStructure Provenance = "structure"
	Enriched      Provenance = "structure+batch"
	BatchOnly     Provenance = "batch-only"
)

// Keys added to reconciled records.
const (
	KeyProvenance      = "provenance"
	KeyOriginalFills   = "originalFills"
	KeyOriginalStrokes = "originalStrokes"
	KeyDetailedFills   = "detailedFills"
	KeyDetailedStrokes = "detailedStrokes"
)

// Result is the reconciled node set plus everything derived from it.
type Result struct {
	Nodes      *graph.Store
	Components []Component
	Summary    api.ReconcileSummary
	Warnings   []string
}

// Pipeline reads artifacts from an export tree.
type Pipeline struct {
	store  *artifact.Store
	walker *ingest.JsonWalker
	log    *slog.Logger
}

// New returns a pipeline over store.
func New(store *artifact.Store) *Pipeline {
	return &Pipeline{store: store, walker: ingest.NewJsonWalker(), log: logging.New("reconcile")}
}

// Run loads structure dumps, overlays every batch fragment in sequence
// order, and classifies component-like nodes. Missing categories contribute
// nothing; only filesystem failures are returned as errors.
func (p *Pipeline) Run() (*Result, error) {
	res := &Result{Nodes: graph.NewStore()}
	if err := p.loadStructure(res); err != nil {
		return nil, err
	}
	if err := p.applyBatches(res); err != nil {
		return nil, err
	}
	locals, err := p.localComponents(res)
	if err != nil {
		return nil, err
	}
	res.Components = classifyAll(res.Nodes, locals)
	p.log.Info("reconciled nodes",
		"structure", res.Summary.StructureRecords,
		"duplicates", res.Summary.DuplicatesRemoved,
		"fragments", res.Summary.Fragments,
		"enriched", res.Summary.Enriched,
		"batchOnly", res.Summary.BatchOnly,
		"components", len(res.Components))
	return res, nil
}

func (p *Pipeline) warn(res *Result, msg string, args ...any) {
	w := fmt.Sprintf(msg, args...)
	p.log.Warn(w)
	res.Warnings = append(res.Warnings, w)
}

// loadStructure merges the per-type structure/nodes_*.json dumps with the
// raw document tree. The first occurrence of an id in the dumps is
// canonical, but insertion follows document order so that sibling lists
// keep the layer order of the source. Ids only the dumps know come last.
func (p *Pipeline) loadStructure(res *Result) error {
	names, err := p.store.List(artifact.Structure)
	if err != nil {
		return err
	}
	canonical := make(map[string]graph.Record)
	var dumpOrder []string
	for _, name := range names {
		if !strings.HasPrefix(name, "nodes_") {
			continue
		}
		var records []map[string]any
		if err := p.store.Load(artifact.Structure, name, &records); err != nil {
			p.warn(res, "skipping %s: %v", artifact.Path(artifact.Structure, name), err)
			continue
		}
		for _, r := range records {
			id, _ := r["id"].(string)
			if id == "" {
				continue
			}
			if _, dup := canonical[id]; dup {
				res.Summary.DuplicatesRemoved++
				continue
			}
			canonical[id] = graph.Record(r)
			dumpOrder = append(dumpOrder, id)
		}
	}

	put := func(rec graph.Record) {
		if res.Nodes.Has(rec.ID()) {
			return
		}
		rec[KeyProvenance] = string(FromStructure)
		res.Nodes.Put(rec)
	}

	raw, err := p.store.Read(artifact.Structure, "document_structure")
	switch {
	case errors.Is(err, artifact.ErrNotFound):
	case err != nil:
		return err
	default:
		roots, derr := ingest.Decode(raw)
		if derr != nil {
			p.warn(res, "skipping document_structure: %v", derr)
			break
		}
		for _, r := range roots.Flatten() {
			rec := graph.Record(r)
			if c, ok := canonical[rec.ID()]; ok {
				rec = c
			}
			put(rec)
		}
	}
	for _, id := range dumpOrder {
		put(canonical[id])
	}
	res.Summary.StructureRecords = res.Nodes.Len()
	return nil
}

// batchSeq extracts N from "batch_N". Non-matching names sort last.
func batchSeq(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "batch_"))
	if err != nil || !strings.HasPrefix(name, "batch_") {
		return int(^uint(0) >> 1)
	}
	return n
}

func (p *Pipeline) applyBatches(res *Result) error {
	names, err := p.store.List(artifact.Batches)
	if err != nil {
		return err
	}
	sort.SliceStable(names, func(i, j int) bool { return batchSeq(names[i]) < batchSeq(names[j]) })

	enriched := graph.NewIDSet()
	batchOnly := graph.NewIDSet()
	for _, name := range names {
		raw, err := p.store.Read(artifact.Batches, name)
		if err != nil {
			return err
		}
		roots, err := ingest.Decode(raw)
		if err != nil {
			p.warn(res, "skipping %s: %v", artifact.Path(artifact.Batches, name), err)
			continue
		}
		for _, frag := range roots.Flatten() {
			res.Summary.Fragments++
			switch Apply(res.Nodes, graph.Record(frag)) {
			case Enriched:
				enriched.Add(frag["id"].(string))
			case BatchOnly:
				batchOnly.Add(frag["id"].(string))
			}
		}
	}
	res.Summary.Enriched = enriched.Len()
	res.Summary.BatchOnly = batchOnly.Len()
	return nil
}

// Apply merges one fragment into nodes and returns the resulting
// provenance of the record.
func Apply(nodes *graph.Store, frag graph.Record) Provenance {
	id := frag.ID()
	base, err := nodes.Get(id)
	if err != nil {
		rec := frag.Clone()
		rec[KeyProvenance] = string(BatchOnly)
		nodes.Put(rec)
		return BatchOnly
	}
	merged := Overlay(base, frag)
	if base[KeyProvenance] == string(FromStructure) {
		merged[KeyProvenance] = string(Enriched)
	}
	nodes.Put(merged)
	return Provenance(merged[KeyProvenance].(string))
}

// Overlay shallow-merges frag over base; fragment fields win. Fill and
// stroke lists the fragment replaces stay recoverable under original*,
// and the fragment's own lists are also kept under detailed*.
func Overlay(base, frag graph.Record) graph.Record {
	out := base.Clone()
	preserve := []struct{ field, original, detailed string }{
		{"fills", KeyOriginalFills, KeyDetailedFills},
		{"strokes", KeyOriginalStrokes, KeyDetailedStrokes},
	}
	for _, k := range preserve {
		v, ok := frag[k.field]
		if !ok {
			continue
		}
		if old, had := base[k.field]; had {
			out[k.original] = old
		}
		out[k.detailed] = v
	}
	for k, v := range frag {
		if k == KeyProvenance {
			continue
		}
		out[k] = v
	}
	return out
}

// localComponents reads component definitions from the local components
// artifact. The plugin wraps them as {components: [...]}; a bare list is
// also accepted.
func (p *Pipeline) localComponents(res *Result) ([]graph.Record, error) {
	var raw any
	err := p.store.Load(artifact.Components, "local_components", &raw)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return nil, nil
	case err != nil:
		p.warn(res, "skipping local components: %v", err)
		return nil, nil
	}
	selector := "$.components[*]"
	if _, ok := raw.([]any); ok {
		selector = "$[*]"
	}
	objs, err := p.walker.Objects(raw, selector)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Record, 0, len(objs))
	for _, o := range objs {
		if id, _ := o["id"].(string); id != "" {
			out = append(out, graph.Record(o))
		}
	}
	return out, nil
}
