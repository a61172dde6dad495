package reorganize

import (
	"encoding/json"
	"sort"

	"github.com/agentic-research/figport/internal/graph"
	"github.com/agentic-research/figport/internal/ingest"
)

// Token is one deduplicated style value and how often it was seen.
type Token struct {
	Value any `json:"value"`
	Count int `json:"count"`
	// Kind separates strokes from effects in the shadows set.
	Kind string `json:"kind,omitempty"`
	// Name is set for tokens that come from a named shared style.
	Name string `json:"name,omitempty"`
}

// tokenSet keeps first-seen order and dedupes by canonical JSON, which
// encoding/json produces with sorted map keys.
type tokenSet struct {
	index  map[string]int
	tokens []Token
}

func newTokenSet() *tokenSet {
	return &tokenSet{index: make(map[string]int)}
}

func (s *tokenSet) add(kind, name string, v any) {
	if v == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	key := kind + "\x00" + string(b)
	if i, ok := s.index[key]; ok {
		s.tokens[i].Count++
		if s.tokens[i].Name == "" {
			s.tokens[i].Name = name
		}
		return
	}
	s.index[key] = len(s.tokens)
	s.tokens = append(s.tokens, Token{Value: v, Count: 1, Kind: kind, Name: name})
}

func (s *tokenSet) list() []Token {
	if s.tokens == nil {
		return []Token{}
	}
	return s.tokens
}

// Tokens is the design token set of a node collection.
type Tokens struct {
	Colors     []Token   `json:"colors"`
	Typography []Token   `json:"typography"`
	Spacing    []float64 `json:"spacing"`
	Shadows    []Token   `json:"shadows"`
}

// tokenExtractor walks node records and shared styles with JSONPath.
type tokenExtractor struct {
	walker     *ingest.JsonWalker
	colors     *tokenSet
	typography *tokenSet
	shadows    *tokenSet
	spacing    map[float64]struct{}
}

func newTokenExtractor(w *ingest.JsonWalker) *tokenExtractor {
	return &tokenExtractor{
		walker:     w,
		colors:     newTokenSet(),
		typography: newTokenSet(),
		shadows:    newTokenSet(),
		spacing:    make(map[float64]struct{}),
	}
}

var spacingKeys = []string{"x", "y", "width", "height"}

// addNode collects fills/strokes colors, text styles, geometry and
// stroke/effect definitions from one record.
func (e *tokenExtractor) addNode(r graph.Record) {
	node := map[string]any(r)
	for _, sel := range []string{"$.fills[*].color", "$.strokes[*].color"} {
		colors, _ := e.walker.Query(node, sel)
		for _, c := range colors {
			e.colors.add("", "", c)
		}
	}
	if style, ok := r["style"].(map[string]any); ok && r.Type() == "TEXT" {
		e.typography.add("", "", style)
	}
	strokes, _ := e.walker.Query(node, "$.strokes[*]")
	for _, s := range strokes {
		e.shadows.add("stroke", "", s)
	}
	effects, _ := e.walker.Query(node, "$.effects[*]")
	for _, fx := range effects {
		e.shadows.add("effect", "", fx)
	}

	box, _ := r["absoluteBoundingBox"].(map[string]any)
	for _, k := range spacingKeys {
		if v, ok := box[k].(float64); ok {
			e.spacing[v] = struct{}{}
		}
		if v, ok := r.Float(k); ok {
			e.spacing[v] = struct{}{}
		}
	}
}

// addStyles folds in the shared styles artifact: paint styles become
// colors, text styles typography, effect styles shadows.
func (e *tokenExtractor) addStyles(styles any) {
	if styles == nil {
		return
	}
	paints, _ := e.walker.Objects(styles, "$.colors[*]")
	for _, p := range paints {
		name, _ := p["name"].(string)
		colors, _ := e.walker.Query(p, "$..color")
		for _, c := range colors {
			e.colors.add("", name, c)
		}
	}
	texts, _ := e.walker.Objects(styles, "$.texts[*]")
	for _, t := range texts {
		name, _ := t["name"].(string)
		e.typography.add("", name, withoutKeys(t, "id", "key", "name"))
	}
	fx, _ := e.walker.Objects(styles, "$.effects[*]")
	for _, f := range fx {
		name, _ := f["name"].(string)
		e.shadows.add("effect", name, withoutKeys(f, "id", "key", "name"))
	}
}

func (e *tokenExtractor) tokens() Tokens {
	spacing := make([]float64, 0, len(e.spacing))
	for v := range e.spacing {
		spacing = append(spacing, v)
	}
	sort.Float64s(spacing)
	return Tokens{
		Colors:     e.colors.list(),
		Typography: e.typography.list(),
		Spacing:    spacing,
		Shadows:    e.shadows.list(),
	}
}

func withoutKeys(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
