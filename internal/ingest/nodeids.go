package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Shape tags the three response shapes the plugin uses for node
// enumeration. It is resolved once, right after decoding.
type Shape int

const (
	// ShapeEmpty is null, a scalar, or an object with nothing node-like in it.
	ShapeEmpty Shape = iota
	// ShapeRoot is a single object: a node, or a {document: ...} / {nodeId: ...} wrapper.
	ShapeRoot
	// ShapeList is an array whose elements are candidate roots.
	ShapeList
	// ShapeIndexed is an object keyed by numeric indices ("0", "1", ...).
	ShapeIndexed
)

func (s Shape) String() string {
	switch s {
	case ShapeRoot:
		return "root"
	case ShapeList:
		return "list"
	case ShapeIndexed:
		return "indexed"
	default:
		return "empty"
	}
}

// Roots is the normalized form of a node enumeration response.
type Roots struct {
	Shape Shape
	// Nodes are the resolved root nodes with wrappers removed.
	Nodes []map[string]any
}

// Decode parses raw JSON and normalizes it.
func Decode(raw []byte) (Roots, error) {
	if len(raw) == 0 {
		return Roots{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Roots{}, fmt.Errorf("decode node payload: %w", err)
	}
	return Normalize(v), nil
}

// Normalize resolves v into its root nodes. Each candidate is tried as a
// document wrapper, then a nodeId wrapper, then a direct node.
func Normalize(v any) Roots {
	switch t := v.(type) {
	case []any:
		r := Roots{Shape: ShapeList}
		for _, elem := range t {
			if n, ok := resolveRoot(elem); ok {
				r.Nodes = append(r.Nodes, n)
			}
		}
		return r
	case map[string]any:
		if keys, ok := indexedKeys(t); ok {
			r := Roots{Shape: ShapeIndexed}
			for _, k := range keys {
				if n, ok := resolveRoot(t[k]); ok {
					r.Nodes = append(r.Nodes, n)
				}
			}
			return r
		}
		if n, ok := resolveRoot(t); ok {
			return Roots{Shape: ShapeRoot, Nodes: []map[string]any{n}}
		}
	}
	return Roots{Shape: ShapeEmpty}
}

// resolveRoot unwraps one candidate element.
func resolveRoot(elem any) (map[string]any, bool) {
	m, ok := elem.(map[string]any)
	if !ok || m == nil {
		return nil, false
	}
	if doc, ok := m["document"].(map[string]any); ok && doc != nil {
		if _, hasID := doc["id"].(string); !hasID {
			if nodeID, ok := m["nodeId"].(string); ok {
				doc = shallowCopy(doc)
				doc["id"] = nodeID
			}
		}
		return doc, true
	}
	if nodeID, ok := m["nodeId"].(string); ok {
		n := shallowCopy(m)
		delete(n, "nodeId")
		n["id"] = nodeID
		return n, true
	}
	if _, ok := m["id"].(string); ok {
		return m, true
	}
	if _, ok := m["children"].([]any); ok {
		return m, true
	}
	return nil, false
}

// indexedKeys returns the keys of m in numeric order when every key is a
// non-negative integer.
func indexedKeys(m map[string]any) ([]string, bool) {
	if len(m) == 0 {
		return nil, false
	}
	type kv struct {
		key string
		idx int
	}
	keys := make([]kv, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return nil, false
		}
		keys = append(keys, kv{k, i})
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].idx < keys[b].idx })
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.key
	}
	return out, true
}

// ExtractIDs returns every distinct string id reachable from v through
// "children" arrays, in depth-first order.
func ExtractIDs(v any) []string {
	return Normalize(v).IDs()
}

// IDs walks the normalized roots.
func (r Roots) IDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range r.Nodes {
		walkNode(n, "", func(node map[string]any, _ string) {
			id, ok := node["id"].(string)
			if !ok {
				return
			}
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
			out = append(out, id)
		})
	}
	return out
}

// walkNode visits node and its descendants depth-first. parentID is the id
// of the nearest ancestor that had one.
func walkNode(node map[string]any, parentID string, visit func(node map[string]any, parentID string)) {
	if node == nil {
		return
	}
	visit(node, parentID)
	children, ok := node["children"].([]any)
	if !ok {
		return
	}
	next := parentID
	if id, ok := node["id"].(string); ok {
		next = id
	}
	for _, c := range children {
		if cm, ok := c.(map[string]any); ok {
			walkNode(cm, next, visit)
		}
	}
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
