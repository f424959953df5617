package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/jacentio/bomberhub/store"
)

type order struct {
	field string
	dir   store.Direction
}

// query evaluates filters, then ordering, cursors, offset and limit.
// Each element of filters is a disjunction; the elements are conjoined.
type query struct {
	s          *Store
	path       string
	group      bool
	filters    [][]store.Filter
	orders     []order
	limit      int
	offset     int
	startAfter *store.Snapshot
	endBefore  *store.Snapshot
}

func (q *query) clone() *query {
	c := *q
	c.filters = slices.Clone(q.filters)
	c.orders = slices.Clone(q.orders)
	return &c
}

func (q *query) Where(field string, op store.Operator, value any) store.BackendQuery {
	c := q.clone()
	c.filters = append(c.filters, []store.Filter{{Field: field, Operator: op, Value: normalize(value)}})
	return c
}

func (q *query) WhereAny(filters []store.Filter) store.BackendQuery {
	c := q.clone()
	group := make([]store.Filter, len(filters))
	for i, f := range filters {
		group[i] = store.Filter{Field: f.Field, Operator: f.Operator, Value: normalize(f.Value)}
	}
	c.filters = append(c.filters, group)
	return c
}

func (q *query) OrderBy(field string, dir store.Direction) store.BackendQuery {
	c := q.clone()
	c.orders = append(c.orders, order{field: field, dir: dir})
	return c
}

func (q *query) Limit(n int) store.BackendQuery {
	c := q.clone()
	c.limit = n
	return c
}

func (q *query) Offset(n int) store.BackendQuery {
	c := q.clone()
	c.offset = n
	return c
}

func (q *query) StartAfter(cursor *store.Snapshot) store.BackendQuery {
	c := q.clone()
	c.startAfter = cursor
	return c
}

func (q *query) EndBefore(cursor *store.Snapshot) store.BackendQuery {
	c := q.clone()
	c.endBefore = cursor
	return c
}

func (q *query) Documents(ctx context.Context) ([]*store.Snapshot, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	if err := q.s.call("query"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*store.Snapshot
	for path, d := range q.s.docs {
		parent := parentPath(path)
		if q.group {
			if collectionID(parent) != q.path {
				continue
			}
		} else if parent != q.path {
			continue
		}
		if !q.matches(d.data) || !q.ordered(d.data) {
			continue
		}
		out = append(out, &store.Snapshot{
			Path:       path,
			ID:         path[len(parent)+1:],
			Exists:     true,
			Data:       copyData(d.data),
			CreateTime: d.createTime,
			UpdateTime: d.updateTime,
		})
	}

	slices.SortFunc(out, q.compare)
	if q.startAfter != nil {
		out = slices.DeleteFunc(out, func(s *store.Snapshot) bool { return q.compare(s, q.startAfter) <= 0 })
	}
	if q.endBefore != nil {
		out = slices.DeleteFunc(out, func(s *store.Snapshot) bool { return q.compare(s, q.endBefore) >= 0 })
	}
	if q.offset > 0 {
		out = out[min(q.offset, len(out)):]
	}
	if q.limit >= 0 && q.limit < len(out) {
		out = out[:q.limit]
	}
	return out, nil
}

// ordered drops documents missing an order field.
func (q *query) ordered(data map[string]any) bool {
	for _, o := range q.orders {
		if _, ok := lookup(data, o.field); !ok {
			return false
		}
	}
	return true
}

// compare orders by the order fields, then by document id in the direction
// of the last order field.
func (q *query) compare(a, b *store.Snapshot) int {
	for _, o := range q.orders {
		av, _ := lookup(a.Data, o.field)
		bv, _ := lookup(b.Data, o.field)
		c := compareValues(av, bv)
		if o.dir == store.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	c := strings.Compare(a.ID, b.ID)
	if len(q.orders) > 0 && q.orders[len(q.orders)-1].dir == store.Desc {
		c = -c
	}
	return c
}

func (q *query) matches(data map[string]any) bool {
	for _, group := range q.filters {
		ok := false
		for _, f := range group {
			if match(data, f) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func match(data map[string]any, f store.Filter) bool {
	v, exists := lookup(data, f.Field)
	if !exists {
		return false
	}
	switch f.Operator {
	case store.OpEqual:
		return equalValues(v, f.Value)
	case store.OpNotEqual:
		return v != nil && !equalValues(v, f.Value)
	case store.OpLess, store.OpLessEqual, store.OpGreater, store.OpGreaterEqual:
		if rank(v) != rank(f.Value) {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Operator {
		case store.OpLess:
			return c < 0
		case store.OpLessEqual:
			return c <= 0
		case store.OpGreater:
			return c > 0
		}
		return c >= 0
	case store.OpArrayContains:
		arr, ok := v.([]any)
		return ok && containsValue(arr, f.Value)
	case store.OpIn:
		values, _ := f.Value.([]any)
		return containsValue(values, v)
	case store.OpNotIn:
		values, _ := f.Value.([]any)
		return v != nil && !containsValue(values, v)
	case store.OpArrayContainsAny:
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		values, _ := f.Value.([]any)
		for _, want := range values {
			if containsValue(arr, want) {
				return true
			}
		}
	}
	return false
}
