package connection

import (
	"fmt"

	"graphql-sqlfilter/internal/cursor"
)

// page holds the validated Relay arguments of one connection field.
type page struct {
	first, last         int
	hasFirst, hasLast   bool
	after, before       int
	hasAfter, hasBefore bool
}

// window is the slice [start, end) of the ordered rows a page returns.
type window struct {
	start, end       int
	hasPrev, hasNext bool
}

func (f *Factory) parsePage(args map[string]any, typeName, key string) (page, error) {
	var p page
	var err error
	if p.first, p.hasFirst, err = f.limitArg(args, "first"); err != nil {
		return page{}, err
	}
	if p.last, p.hasLast, err = f.limitArg(args, "last"); err != nil {
		return page{}, err
	}
	if !p.hasFirst && !p.hasLast {
		p.first, p.hasFirst = f.defaultLimit, true
	}
	if p.after, p.hasAfter, err = cursorArg(args, "after", typeName, key); err != nil {
		return page{}, err
	}
	if p.before, p.hasBefore, err = cursorArg(args, "before", typeName, key); err != nil {
		return page{}, err
	}
	return p, nil
}

func (f *Factory) limitArg(args map[string]any, name string) (int, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	var v int
	switch n := raw.(type) {
	case int:
		v = n
	case float64:
		v = int(n)
	default:
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
	if v < 0 {
		return 0, false, fmt.Errorf("%s must be non-negative", name)
	}
	if v > f.maxLimit {
		v = f.maxLimit
	}
	return v, true, nil
}

func cursorArg(args map[string]any, name, typeName, key string) (int, bool, error) {
	raw, ok := args[name].(string)
	if !ok || raw == "" {
		return 0, false, nil
	}
	offset, err := cursor.Offset(typeName, key, raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return offset, true, nil
}

// window places the page over count ordered rows.
func (p page) window(count int) window {
	lower := 0
	if p.hasAfter {
		lower = min(p.after+1, count)
	}
	upper := count
	if p.hasBefore && p.before < count {
		upper = p.before
	}

	start, end := lower, upper
	if p.hasFirst && start+p.first < end {
		end = start + p.first
	}
	if p.hasLast && end-p.last > start {
		start = end - p.last
	}
	if end < start {
		end = start
	}
	return window{
		start:   start,
		end:     end,
		hasPrev: p.hasLast && start > lower,
		hasNext: p.hasFirst && end < upper,
	}
}

// result renders rows, which are the rows of w, as a connection value.
func result(rows []map[string]any, w window, total int, typeName, key string) map[string]any {
	edges := make([]any, len(rows))
	var startCursor, endCursor any
	for i, row := range rows {
		c := cursor.EncodeCursor(typeName, key, w.start+i)
		edges[i] = map[string]any{"node": row, "cursor": c}
		if i == 0 {
			startCursor = c
		}
		endCursor = c
	}
	return map[string]any{
		"edges": edges,
		"pageInfo": map[string]any{
			"hasNextPage":     w.hasNext,
			"hasPreviousPage": w.hasPrev,
			"startCursor":     startCursor,
			"endCursor":       endCursor,
		},
		"totalCount": total,
	}
}
