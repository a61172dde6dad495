package reorganize

import (
	"path"
	"regexp"
	"strings"

	"github.com/agentic-research/figport/internal/graph"
	"github.com/agentic-research/figport/internal/reconcile"
)

// Layer is the subtree of one root frame.
type Layer struct {
	Folder string
	Root   graph.Record
	// IDs is the subtree in breadth-first order, root first.
	IDs []string
}

// LayerStructure is layers/<folder>/structure.json.
type LayerStructure struct {
	Root      graph.Record        `json:"root"`
	Children  []graph.Record      `json:"children"`
	Adjacency map[string][]string `json:"adjacency"`
	Nodes     []string            `json:"nodes"`
}

// ComponentRef is one entry of a component group.
type ComponentRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parentId,omitempty"`
	Local    bool   `json:"local,omitempty"`
}

// ContentNode is one text node of a layer.
type ContentNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Characters string         `json:"characters"`
	Style      map[string]any `json:"style,omitempty"`
}

// LayerMetadata is layers/<folder>/metadata.json.
type LayerMetadata struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Folder         string         `json:"folder"`
	NodeCount      int            `json:"nodeCount"`
	DirectChildren int            `json:"directChildren"`
	ComponentCount int            `json:"componentCount"`
	TextCount      int            `json:"textCount"`
	TypeCounts     map[string]int `json:"typeCounts"`
	BoundingBox    any            `json:"absoluteBoundingBox,omitempty"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "unnamed"
	}
	return s
}

// buildLayers claims each root frame's subtree in order. A node reachable
// from several roots lands only in the first one.
func buildLayers(nodes *graph.Store) []Layer {
	claimed := graph.NewIDSet()
	used := make(map[string]bool)
	var layers []Layer
	for _, id := range nodes.RootFrames() {
		ids := nodes.Subtree(id, claimed)
		if len(ids) == 0 {
			continue
		}
		root, _ := nodes.Get(id)
		folder := "layer-" + slug(root.Name())
		if used[folder] {
			folder += "-" + slug(id)
		}
		used[folder] = true
		layers = append(layers, Layer{Folder: folder, Root: root, IDs: ids})
	}
	return layers
}

func (l Layer) structure(nodes *graph.Store) LayerStructure {
	s := LayerStructure{
		Root:      l.Root,
		Children:  []graph.Record{},
		Adjacency: nodes.Adjacency(l.IDs),
		Nodes:     l.IDs,
	}
	for _, c := range nodes.ListChildren(l.Root.ID()) {
		if r, err := nodes.Get(c); err == nil {
			s.Children = append(s.Children, r)
		}
	}
	return s
}

func (l Layer) components(byID map[string]reconcile.Component) map[reconcile.Category][]ComponentRef {
	out := make(map[reconcile.Category][]ComponentRef)
	for _, id := range l.IDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		out[c.Category] = append(out[c.Category], componentRef(c))
	}
	return out
}

func (l Layer) content(nodes *graph.Store) []ContentNode {
	out := []ContentNode{}
	for _, id := range l.IDs {
		r, err := nodes.Get(id)
		if err != nil || r.Type() != "TEXT" {
			continue
		}
		style, _ := r["style"].(map[string]any)
		chars, _ := r["characters"].(string)
		out = append(out, ContentNode{ID: id, Name: r.Name(), Characters: chars, Style: style})
	}
	return out
}

func (l Layer) metadata(nodes *graph.Store, components, texts int) LayerMetadata {
	m := LayerMetadata{
		ID:             l.Root.ID(),
		Name:           l.Root.Name(),
		Folder:         l.Folder,
		NodeCount:      len(l.IDs),
		DirectChildren: len(nodes.ListChildren(l.Root.ID())),
		ComponentCount: components,
		TextCount:      texts,
		TypeCounts:     make(map[string]int),
		BoundingBox:    l.Root["absoluteBoundingBox"],
	}
	for _, id := range l.IDs {
		if r, err := nodes.Get(id); err == nil {
			t := r.Type()
			if t == "" {
				t = "UNTYPED"
			}
			m.TypeCounts[t]++
		}
	}
	return m
}

func componentRef(c reconcile.Component) ComponentRef {
	return ComponentRef{ID: c.ID, Name: c.Name, Type: c.Type, ParentID: c.Record.ParentID(), Local: c.Local}
}

func layerPath(folder, file string) string {
	return path.Join(dirLayers, folder, file)
}
