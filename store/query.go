package store

import (
	"context"
	"errors"
	"fmt"
)

// ConstraintKind tags a query constraint.
type ConstraintKind int

const (
	ConstraintWhere ConstraintKind = iota + 1
	ConstraintOrderBy
	ConstraintLimit
	ConstraintOffset
	ConstraintStartAfter
	ConstraintEndBefore
	ConstraintOr
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintWhere:
		return "where"
	case ConstraintOrderBy:
		return "orderBy"
	case ConstraintLimit:
		return "limit"
	case ConstraintOffset:
		return "offset"
	case ConstraintStartAfter:
		return "startAfter"
	case ConstraintEndBefore:
		return "endBefore"
	case ConstraintOr:
		return "or"
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// Constraint is one step of a query. Build constraints with Where, OrderBy,
// Limit, Offset, StartAfter, EndBefore and Or.
type Constraint struct {
	Kind ConstraintKind

	Field     string
	Operator  Operator
	Value     any
	Direction Direction

	// N is the limit or offset.
	N int

	// CursorID is the document id of a StartAfter or EndBefore cursor.
	CursorID string

	// Filters are the alternatives of an Or constraint.
	Filters []Filter
}

// Where keeps documents whose field compares to value with op.
func Where(field string, op Operator, value any) Constraint {
	return Constraint{Kind: ConstraintWhere, Field: field, Operator: op, Value: value}
}

// OrderBy sorts results by field.
func OrderBy(field string, dir Direction) Constraint {
	return Constraint{Kind: ConstraintOrderBy, Field: field, Direction: dir}
}

// Limit caps the number of results.
func Limit(n int) Constraint {
	return Constraint{Kind: ConstraintLimit, N: n}
}

// Offset skips the first n results.
func Offset(n int) Constraint {
	return Constraint{Kind: ConstraintOffset, N: n}
}

// StartAfter starts results after the document id of the scope's top-level
// collection.
func StartAfter(id string) Constraint {
	return Constraint{Kind: ConstraintStartAfter, CursorID: id}
}

// EndBefore ends results before the document id of the scope's top-level
// collection.
func EndBefore(id string) Constraint {
	return Constraint{Kind: ConstraintEndBefore, CursorID: id}
}

// Or keeps documents matching any of filters.
func Or(filters ...Filter) Constraint {
	return Constraint{Kind: ConstraintOr, Filters: filters}
}

// Compile applies constraints left to right to a query over scope.
// Cursor documents are read from the scope's top-level collection; a missing
// cursor fails with ErrCursorNotFound.
func Compile(ctx context.Context, b Backend, scope Address, constraints []Constraint) (BackendQuery, error) {
	if err := scope.validateScope(); err != nil {
		return nil, err
	}
	q := b.Collection(scope.CollectionPath())
	for _, c := range constraints {
		var err error
		switch c.Kind {
		case ConstraintStartAfter, ConstraintEndBefore:
			var cursor *Snapshot
			cursor, err = readCursor(ctx, b, scope.Collection, c.CursorID)
			if err != nil {
				return nil, err
			}
			if c.Kind == ConstraintStartAfter {
				q = q.StartAfter(cursor)
			} else {
				q = q.EndBefore(cursor)
			}
		default:
			q, err = apply(q, c)
		}
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

// CompileGroup applies constraints to a collection group query. Only where,
// orderBy, limit and offset constraints are allowed.
func CompileGroup(b Backend, sub Subcollection, constraints []Constraint) (BackendQuery, error) {
	if sub == SubcollectionNone {
		return nil, fmt.Errorf("%w: collection group needs a subcollection", ErrInvalidAddress)
	}
	q := b.CollectionGroup(string(sub))
	for _, c := range constraints {
		switch c.Kind {
		case ConstraintWhere, ConstraintOrderBy, ConstraintLimit, ConstraintOffset:
		default:
			return nil, fmt.Errorf("%w: %s in a collection group query", ErrUnsupportedConstraint, c.Kind)
		}
		var err error
		if q, err = apply(q, c); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func apply(q BackendQuery, c Constraint) (BackendQuery, error) {
	switch c.Kind {
	case ConstraintWhere:
		if !c.Operator.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, c.Operator)
		}
		return q.Where(c.Field, c.Operator, Pack(c.Value)), nil
	case ConstraintOrderBy:
		dir := c.Direction
		if dir != Desc {
			dir = Asc
		}
		return q.OrderBy(c.Field, dir), nil
	case ConstraintLimit:
		return q.Limit(c.N), nil
	case ConstraintOffset:
		return q.Offset(c.N), nil
	case ConstraintOr:
		filters := make([]Filter, len(c.Filters))
		for i, f := range c.Filters {
			if !f.Operator.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, f.Operator)
			}
			filters[i] = Filter{Field: f.Field, Operator: f.Operator, Value: Pack(f.Value)}
		}
		return q.WhereAny(filters), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedConstraint, c.Kind)
}

func readCursor(ctx context.Context, b Backend, c Collection, id string) (*Snapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty cursor id", ErrCursorNotFound)
	}
	snap, err := b.Doc(string(c), id).Get(ctx)
	if errors.Is(err, ErrNotFound) || (err == nil && !snap.Exists) {
		return nil, fmt.Errorf("%w: %s/%s", ErrCursorNotFound, c, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor %s/%s: %w", c, id, err)
	}
	return snap, nil
}
