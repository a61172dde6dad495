package ingest

import (
	"sort"
	"strings"

	"github.com/agentic-research/figport/api"
)

// Flatten turns the normalized roots into flat records, one per node with a
// string id. Children are replaced by parentId back-references and a
// childCount. The first occurrence of an id wins.
func (r Roots) Flatten() []map[string]any {
	seen := make(map[string]struct{})
	var out []map[string]any
	for _, root := range r.Nodes {
		walkNode(root, "", func(node map[string]any, parentID string) {
			id, ok := node["id"].(string)
			if !ok {
				return
			}
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}

			rec := make(map[string]any, len(node)+1)
			for k, v := range node {
				if k == "children" {
					continue
				}
				rec[k] = v
			}
			children, _ := node["children"].([]any)
			rec["childCount"] = len(children)
			if _, has := rec["parentId"]; !has && parentID != "" {
				rec["parentId"] = parentID
			}
			out = append(out, rec)
		})
	}
	return out
}

// ToNodeRecord maps a flat record onto the typed NodeRecord.
func ToNodeRecord(rec map[string]any) api.NodeRecord {
	n := api.NodeRecord{
		ID:         str(rec["id"]),
		Name:       str(rec["name"]),
		Type:       str(rec["type"]),
		ParentID:   str(rec["parentId"]),
		Characters: str(rec["characters"]),
		StyleID:    str(rec["styleId"]),
	}
	if box, ok := rec["absoluteBoundingBox"].(map[string]any); ok {
		n.AbsoluteBoundingBox = &api.Rect{
			X:      num(box["x"]),
			Y:      num(box["y"]),
			Width:  num(box["width"]),
			Height: num(box["height"]),
		}
	}
	if v, ok := rec["fills"].([]any); ok {
		n.Fills = v
	}
	if v, ok := rec["strokes"].([]any); ok {
		n.Strokes = v
	}
	if v, ok := rec["effects"].([]any); ok {
		n.Effects = v
	}
	if v, ok := rec["cornerRadius"].(float64); ok {
		n.CornerRadius = &v
	}
	if v, ok := rec["style"].(map[string]any); ok {
		n.Style = v
	}
	switch c := rec["childCount"].(type) {
	case int:
		n.ChildCount = c
	case float64:
		n.ChildCount = int(c)
	}
	return n
}

// GroupByType buckets records by lowercase type tag. Untyped records land
// under "untyped". Keys are returned sorted.
func GroupByType(records []map[string]any) ([]string, map[string][]api.NodeRecord) {
	groups := make(map[string][]api.NodeRecord)
	for _, rec := range records {
		t := strings.ToLower(str(rec["type"]))
		if t == "" {
			t = "untyped"
		}
		groups[t] = append(groups[t], ToNodeRecord(rec))
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, groups
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}
