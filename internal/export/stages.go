package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/graph"
	"github.com/agentic-research/figport/internal/ingest"
)

// scanTypes are the node types requested from scan_nodes_by_type.
var scanTypes = []string{"COMPONENT", "COMPONENT_SET", "INSTANCE", "FRAME"}

// artifactFor maps a sub-command to the artifact its response is stored as.
var artifactFor = map[string]struct {
	category artifact.Category
	name     string
}{
	subStyles:      {artifact.Styles, "all_styles"},
	subComponents:  {artifact.Components, "local_components"},
	subDocument:    {artifact.Metadata, "document_info"},
	subAnnotations: {artifact.Annotations, "all_annotations"},
	subText:        {artifact.Nodes, "text_nodes"},
	subTypes:       {artifact.Nodes, "nodes_by_type"},
	subReactions:   {artifact.Interactions, "reactions"},
	subConnections: {artifact.Interactions, "connections"},
	subOverrides:   {artifact.Overrides, "instance_overrides"},
	subSelection:   {artifact.Metadata, "selection"},
}

// enter issues the commands of stage st and returns its expected count.
func (c *Controller) enter(s *Session, st Stage) (int, error) {
	c.log.Debug("entering stage", "session", s.ID, "stage", st)
	switch st {
	case StageInit:
		return 0, c.store.Save(artifact.Metadata, "session_info", map[string]any{
			"sessionId": s.ID,
			"channel":   s.Channel,
			"startedAt": s.startedAt.UTC().Format(time.RFC3339),
			"batchSize": c.opts.BatchSize,
		})

	case StageStructureFetch:
		_, err := c.send(s, NewCorrelationID(st, subStructure), api.CmdReadStructure, nil, c.opts.StructureTimeout)
		return 1, err

	case StageMetadataFanout:
		fanout := []struct {
			sub string
			cmd api.Command
		}{
			{subStyles, api.CmdGetStyles},
			{subComponents, api.CmdGetLocalComponents},
			{subDocument, api.CmdGetDocumentInfo},
			{subAnnotations, api.CmdGetAnnotations},
		}
		for _, f := range fanout {
			if _, err := c.send(s, NewCorrelationID(st, f.sub), f.cmd, nil, c.opts.CommandTimeout); err != nil {
				return 0, err
			}
		}
		return len(fanout), nil

	case StageRecursiveNodeBatches:
		n := s.dispatcher.PendingBatches()
		if n == 0 {
			return 0, nil
		}
		return n, c.dispatchBatch(s, st)

	case StageSpecializedScans:
		root := map[string]any{"nodeId": s.rootID}
		targets := s.rootFrames
		if len(targets) == 0 {
			targets = []string{s.rootID}
		}
		scans := []struct {
			sub    string
			cmd    api.Command
			params map[string]any
		}{
			{subText, api.CmdScanTextNodes, root},
			{subTypes, api.CmdScanNodesByType, map[string]any{"nodeId": s.rootID, "types": scanTypes}},
			{subReactions, api.CmdGetReactions, map[string]any{"nodeIds": targets}},
			{subOverrides, api.CmdGetInstanceOverrides, root},
		}
		for _, sc := range scans {
			if _, err := c.send(s, NewCorrelationID(st, sc.sub), sc.cmd, sc.params, c.opts.CommandTimeout); err != nil {
				return 0, err
			}
		}
		// create_connections is issued once reactions arrive.
		return len(scans) + 1, nil

	case StageSelectionAndImages:
		if _, err := c.send(s, NewCorrelationID(st, subSelection), api.CmdGetSelection, nil, c.opts.CommandTimeout); err != nil {
			return 0, err
		}
		images := s.rootFrames
		if c.opts.MaxImages >= 0 && len(images) > c.opts.MaxImages {
			images = images[:c.opts.MaxImages]
		}
		s.images = append([]string(nil), images...)
		if err := c.sendNextImage(s); err != nil {
			return 0, err
		}
		return 1 + len(images), nil

	case StageRecursiveRescan:
		if s.dispatcher.Pending() == 0 {
			return 0, nil
		}
		if s.rescanRounds >= c.opts.MaxRescanRounds {
			c.log.Warn("rescan round limit reached", "session", s.ID,
				"rounds", s.rescanRounds, "unfetched", s.dispatcher.Pending())
			return 0, nil
		}
		s.rescanRounds++
		n := s.dispatcher.PendingBatches()
		c.log.Info("rescanning discovered nodes", "session", s.ID, "round", s.rescanRounds, "batches", n)
		return n, c.dispatchBatch(s, st)

	case StageFinalizing:
		return 0, c.finalize(s)

	case StageIdle:
		c.log.Info("export session finished", "session", s.ID,
			"processed", s.result.Stats.ProcessedNodes, "duration", s.result.Stats.Duration)
		c.finish(s, nil)
		return 0, nil
	}
	return 0, nil
}

// next repeats the rescan stage while newly discovered ids remain and the
// round cap allows it.
func (c *Controller) next(s *Session, st Stage) Stage {
	if st == StageRecursiveRescan && s.dispatcher.Pending() > 0 && s.rescanRounds < c.opts.MaxRescanRounds {
		return StageRecursiveRescan
	}
	return DefaultNext(st)
}

// handle persists a response, applies its side effects, and only then
// counts it toward stage completion.
func (c *Controller) handle(s *Session, p *pendingCommand, result json.RawMessage, errMsg string, timedOut bool) error {
	st := p.id.Stage
	if st == StageStructureFetch {
		switch {
		case timedOut:
			return &FatalError{Stage: st, Err: ErrStructureTimeout}
		case errMsg != "":
			return &FatalError{Stage: st, Err: fmt.Errorf("%w: %s", ErrStructureFailed, errMsg)}
		}
		if err := c.ingestStructure(s, result); err != nil {
			return &FatalError{Stage: st, Err: err}
		}
		return c.record(s, st)
	}

	answered := !timedOut && errMsg == ""
	if errMsg != "" {
		c.log.Warn("command returned an error", "command", p.command, "id", p.id.String(), "error", errMsg)
	}
	if !answered || isEmptyResult(result) {
		s.empty[p.command]++
	}

	var decoded any
	if answered {
		if err := c.persist(s, p, result); err != nil {
			return err
		}
		if len(bytes.TrimSpace(result)) > 0 {
			if err := json.Unmarshal(result, &decoded); err != nil {
				c.log.Warn("undecodable result", "command", p.command, "error", err)
				decoded = nil
			}
		}
	}

	switch p.id.Sub {
	case subNodes:
		s.dispatcher.Resolve(p.batch)
		if n := s.dispatcher.Enqueue(ingest.ExtractIDs(decoded)); n > 0 {
			c.log.Debug("discovered nodes queued for rescan", "count", n)
		}
	case subText, subTypes, subSelection:
		s.dispatcher.Enqueue(c.discoverIDs(decoded))
	case subReactions:
		if err := c.sendConnections(s, decoded); err != nil {
			return err
		}
	}

	if err := c.record(s, st); err != nil {
		return err
	}

	cur := s.tracker.Current()
	if p.id.Sub == subImage && cur == StageSelectionAndImages {
		return c.sendNextImage(s)
	}
	return c.pumpBatches(s)
}

func (c *Controller) record(s *Session, st Stage) error {
	_, err := s.tracker.Record(st)
	return err
}

func (c *Controller) persist(s *Session, p *pendingCommand, result json.RawMessage) error {
	var err error
	switch p.id.Sub {
	case subNodes:
		err = c.store.SaveRaw(artifact.Batches, fmt.Sprintf("batch_%d", p.batch), result)
	case subImage:
		err = c.store.SaveRaw(artifact.Images, "image_"+sanitizeID(p.node), result)
	default:
		a, ok := artifactFor[p.id.Sub]
		if !ok {
			return nil
		}
		err = c.store.SaveRaw(a.category, a.name, result)
	}
	if err != nil {
		return &FatalError{Stage: p.id.Stage, Err: err}
	}
	return nil
}

// ingestStructure stores the structure tree and its per-type dumps, then
// seeds the dispatcher with every id in it.
func (c *Controller) ingestStructure(s *Session, result json.RawMessage) error {
	if err := c.store.SaveRaw(artifact.Structure, "document_structure", result); err != nil {
		return err
	}
	roots, err := ingest.Decode(result)
	if err != nil {
		return err
	}
	if len(roots.Nodes) == 0 {
		return ErrEmptyStructure
	}
	flat := roots.Flatten()
	keys, groups := ingest.GroupByType(flat)
	for _, k := range keys {
		if err := c.store.Save(artifact.Structure, "nodes_"+k, groups[k]); err != nil {
			return err
		}
	}

	ids := roots.IDs()
	if len(ids) > 0 {
		s.rootID = ids[0]
	}
	s.rootFrames = rootFrames(flat)
	n := s.dispatcher.Enqueue(ids)
	c.log.Info("structure received", "session", s.ID, "nodes", n,
		"types", len(keys), "rootFrames", len(s.rootFrames), "shape", roots.Shape)
	return nil
}

// rootFrames returns the root frame ids of a flattened structure.
func rootFrames(flat []map[string]any) []string {
	nodes := graph.NewStore()
	for _, r := range flat {
		nodes.Put(graph.Record(r))
	}
	return nodes.RootFrames()
}

// discoverIDs pulls node ids out of scan results, which come back either as
// node trees or as wrapped lists of {id, ...} objects.
func (c *Controller) discoverIDs(v any) []string {
	if v == nil {
		return nil
	}
	ids := ingest.ExtractIDs(v)
	if more, err := c.walker.Strings(v, "$..id"); err == nil {
		ids = append(ids, more...)
	}
	return ids
}

// sendConnections derives interaction connections from the reactions
// payload. With none to create, the connections slot completes as zero
// items.
func (c *Controller) sendConnections(s *Session, reactions any) error {
	conns := c.connectionsFrom(reactions)
	if len(conns) == 0 {
		s.empty[api.CmdCreateConnections]++
		return c.record(s, StageSpecializedScans)
	}
	p, err := c.send(s, NewCorrelationID(StageSpecializedScans, subConnections),
		api.CmdCreateConnections, map[string]any{"connections": conns}, c.opts.CommandTimeout)
	if err != nil {
		return err
	}
	c.log.Debug("connections requested", "count", len(conns), "id", p.id.String())
	return nil
}

func (c *Controller) connectionsFrom(v any) []map[string]any {
	if v == nil {
		return nil
	}
	nodes, err := c.walker.Objects(v, "$..nodes[*]")
	if err != nil || len(nodes) == 0 {
		if list, ok := v.([]any); ok {
			for _, e := range list {
				if m, ok := e.(map[string]any); ok {
					nodes = append(nodes, m)
				}
			}
		}
	}
	seen := make(map[string]bool)
	var out []map[string]any
	for _, n := range nodes {
		src, _ := n["id"].(string)
		if src == "" {
			continue
		}
		dests, _ := c.walker.Strings(n, "$.reactions[*].action.destinationId")
		more, _ := c.walker.Strings(n, "$.reactions[*].actions[*].destinationId")
		for _, d := range append(dests, more...) {
			key := src + "->" + d
			if d == "" || seen[key] {
				continue
			}
			seen[key] = true
			text, _ := n["name"].(string)
			out = append(out, map[string]any{"startNodeId": src, "endNodeId": d, "text": text})
		}
	}
	return out
}

// sendNextImage issues the next queued image export, one at a time.
func (c *Controller) sendNextImage(s *Session) error {
	if len(s.images) == 0 {
		return nil
	}
	node := s.images[0]
	s.images = s.images[1:]
	params := map[string]any{"nodeId": node, "format": c.opts.ImageFormat, "scale": c.opts.ImageScale}
	p, err := c.send(s, NewCorrelationID(StageSelectionAndImages, subImage), api.CmdExportNodeAsImage, params, c.opts.CommandTimeout)
	if err != nil {
		return err
	}
	p.node = node
	return nil
}

func (c *Controller) dispatchBatch(s *Session, st Stage) error {
	id := NewCorrelationID(st, subNodes)
	_, _, err := s.dispatcher.DispatchNext(id.String(), func(b Batch) error {
		p, err := c.send(s, id, api.CmdGetNodesInfo, map[string]any{"nodeIds": b.IDs}, c.opts.CommandTimeout)
		if err != nil {
			return err
		}
		p.batch = b.Seq
		return nil
	})
	return err
}

// pumpBatches keeps exactly one batch in flight while a batch stage is
// active. An exhausted queue completes the remaining slots as zero items.
func (c *Controller) pumpBatches(s *Session) error {
	for !s.finished && isBatchStage(s.tracker.Current()) {
		if _, busy := s.dispatcher.InFlight(); busy {
			return nil
		}
		if s.dispatcher.Pending() > 0 {
			return c.dispatchBatch(s, s.tracker.Current())
		}
		c.log.Warn("batch queue exhausted before stage completed", "stage", s.tracker.Current())
		if err := c.record(s, s.tracker.Current()); err != nil {
			return err
		}
	}
	return nil
}

// finalize writes session stats and runs the post-processing tail step.
func (c *Controller) finalize(s *Session) error {
	s.result.Stats = s.stats(c.now())
	if err := c.store.Save(artifact.Metadata, "session_stats", s.result.Stats); err != nil {
		return err
	}
	if c.postProcess == nil {
		return nil
	}
	if err := c.postProcess(s.ctx, c.store); err != nil {
		c.log.Error("post-processing failed", "session", s.ID, "error", err)
		s.result.PostProcessErr = err
	}
	return nil
}

func isEmptyResult(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sanitizeID makes a node id safe for use in a file name ("1:2" -> "1_2").
func sanitizeID(id string) string {
	return unsafeName.ReplaceAllString(id, "_")
}
