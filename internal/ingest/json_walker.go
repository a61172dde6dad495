package ingest

import (
	"fmt"
	"sync"

	"github.com/ohler55/ojg/jp"
)

// JsonWalker runs JSONPath selectors over decoded JSON (maps, slices,
// scalars). Parsed expressions are cached per selector.
type JsonWalker struct {
	mu    sync.Mutex
	exprs map[string]jp.Expr
}

func NewJsonWalker() *JsonWalker {
	return &JsonWalker{exprs: make(map[string]jp.Expr)}
}

// Query returns every value selected from root.
func (w *JsonWalker) Query(root any, selector string) ([]any, error) {
	x, err := w.compile(selector)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	return x.Get(root), nil
}

// Strings returns the string values selected from root, skipping others.
func (w *JsonWalker) Strings(root any, selector string) ([]string, error) {
	vals, err := w.Query(root, selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Objects returns the object values selected from root, skipping others.
func (w *JsonWalker) Objects(root any, selector string) ([]map[string]any, error) {
	vals, err := w.Query(root, selector)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(vals))
	for _, v := range vals {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (w *JsonWalker) compile(selector string) (jp.Expr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if x, ok := w.exprs[selector]; ok {
		return x, nil
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	w.exprs[selector] = x
	return x, nil
}
