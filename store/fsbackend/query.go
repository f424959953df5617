package fsbackend

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"

	"github.com/jacentio/bomberhub/store"
)

type query struct {
	q      firestore.Query
	orders []string
}

func (q *query) with(fq firestore.Query) *query {
	return &query{q: fq, orders: q.orders}
}

func (q *query) Where(field string, op store.Operator, value any) store.BackendQuery {
	return q.with(q.q.Where(field, string(op), toFirestore(value)))
}

func (q *query) WhereAny(filters []store.Filter) store.BackendQuery {
	ors := make([]firestore.EntityFilter, len(filters))
	for i, f := range filters {
		ors[i] = firestore.PropertyFilter{Path: f.Field, Operator: string(f.Operator), Value: toFirestore(f.Value)}
	}
	return q.with(q.q.WhereEntity(firestore.OrFilter{Filters: ors}))
}

func (q *query) OrderBy(field string, dir store.Direction) store.BackendQuery {
	d := firestore.Asc
	if dir == store.Desc {
		d = firestore.Desc
	}
	return &query{q: q.q.OrderBy(field, d), orders: append(slices.Clip(q.orders), field)}
}

func (q *query) Limit(n int) store.BackendQuery {
	return q.with(q.q.Limit(n))
}

func (q *query) Offset(n int) store.BackendQuery {
	return q.with(q.q.Offset(n))
}

func (q *query) StartAfter(cursor *store.Snapshot) store.BackendQuery {
	return q.with(q.q.StartAfter(q.cursor(cursor)...))
}

func (q *query) EndBefore(cursor *store.Snapshot) store.BackendQuery {
	return q.with(q.q.EndBefore(q.cursor(cursor)...))
}

func (q *query) Documents(ctx context.Context) ([]*store.Snapshot, error) {
	snaps, err := q.q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("while running query: %w", mapError(err))
	}
	out := make([]*store.Snapshot, len(snaps))
	for i, snap := range snaps {
		out[i] = toSnapshot(relativeParent(snap.Ref), snap)
	}
	return out, nil
}

// cursor returns the Firestore snapshot behind c when it was read by this
// backend, or else c's values for the order fields.
func (q *query) cursor(c *store.Snapshot) []any {
	if snap, ok := c.Native.(*firestore.DocumentSnapshot); ok {
		return []any{snap}
	}
	values := make([]any, 0, len(q.orders))
	for _, field := range q.orders {
		v, _ := lookup(c.Data, field)
		values = append(values, toFirestore(v))
	}
	return values
}
