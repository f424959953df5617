package store

import (
	"context"
	"fmt"
	"time"
)

// Backend is the document store the Client talks to. Paths are slash
// separated: "sessions", "sessions/abc" or "sessions/abc/moves/m1".
//
// Values handed to a Backend are already packed (see Pack) and values it
// returns are still packed; implementations translate Sentinel values into
// their native field transforms.
type Backend interface {
	// Doc returns a reference to the document id in collectionPath. An empty
	// id asks the backend to generate one.
	Doc(collectionPath, id string) DocRef

	// Collection returns a query over every document of a collection.
	Collection(path string) BackendQuery

	// CollectionGroup returns a query over every collection named id,
	// regardless of its parent document.
	CollectionGroup(id string) BackendQuery

	// Batch returns an empty atomic write batch.
	Batch() WriteBatch

	// RunTransaction runs fn inside a read-write transaction. The
	// transaction commits when fn returns nil and is rolled back otherwise.
	// fn may be called more than once on contention.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx BackendTx) error) error

	// Watch calls fn for every change to the documents of collectionPath
	// until ctx is done or fn returns an error.
	Watch(ctx context.Context, collectionPath string, fn func(Change) error) error

	Close() error
}

// DocRef references a single document.
type DocRef interface {
	ID() string
	Path() string

	// Get returns ErrNotFound, possibly wrapped, when the document is missing.
	Get(ctx context.Context) (*Snapshot, error)

	// Create fails with ErrAlreadyExists when the document exists.
	Create(ctx context.Context, data map[string]any) error

	// Set writes data, merging it into the stored document when merge is set.
	Set(ctx context.Context, data map[string]any, merge bool) error

	// Update merges data into an existing document. Keys may be dotted field
	// paths. It fails with ErrNotFound when the document is missing.
	Update(ctx context.Context, data map[string]any, pre ...Precondition) error

	Delete(ctx context.Context, pre ...Precondition) error
}

// BackendQuery is an immutable query under construction; every method
// returns a new BackendQuery.
type BackendQuery interface {
	Where(field string, op Operator, value any) BackendQuery
	WhereAny(filters []Filter) BackendQuery
	OrderBy(field string, dir Direction) BackendQuery
	Limit(n int) BackendQuery
	Offset(n int) BackendQuery
	StartAfter(cursor *Snapshot) BackendQuery
	EndBefore(cursor *Snapshot) BackendQuery
	Documents(ctx context.Context) ([]*Snapshot, error)
}

// WriteBatch accumulates mutations committed atomically.
type WriteBatch interface {
	Create(ref DocRef, data map[string]any)
	Set(ref DocRef, data map[string]any, merge bool)
	Update(ref DocRef, data map[string]any, pre ...Precondition)
	Delete(ref DocRef, pre ...Precondition)
	Commit(ctx context.Context) error
}

// BackendTx is a running backend transaction. Reads must precede writes.
type BackendTx interface {
	// Get returns a snapshot with Exists false for a missing document.
	Get(ref DocRef) (*Snapshot, error)

	// GetAll reads refs in one call. A non-empty mask limits the returned
	// fields. Missing documents yield snapshots with Exists false.
	GetAll(refs []DocRef, mask ...string) ([]*Snapshot, error)

	Create(ref DocRef, data map[string]any) error
	Set(ref DocRef, data map[string]any, merge bool) error
	Update(ref DocRef, data map[string]any, pre ...Precondition) error
	Delete(ref DocRef, pre ...Precondition) error
}

// Snapshot is a document read at a point in time. Data holds packed values.
type Snapshot struct {
	Path       string
	ID         string
	Exists     bool
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time

	// Native is the backend's own snapshot, when it has one.
	Native any
}

// Raw returns the unpacked document data with "id" set to the document id.
// It returns nil for a missing document.
func (s *Snapshot) Raw() map[string]any {
	if s == nil || !s.Exists {
		return nil
	}
	out := UnpackMap(s.Data)
	out["id"] = s.ID
	return out
}

// Precondition guards an Update or Delete.
type Precondition struct {
	// Exists requires the document to exist.
	Exists bool

	// LastUpdateTime, when non-zero, requires the document's update time to
	// match exactly.
	LastUpdateTime time.Time
}

// Exists requires the target document to exist.
func Exists() Precondition {
	return Precondition{Exists: true}
}

// LastUpdateTime requires the target document to be unchanged since t.
func LastUpdateTime(t time.Time) Precondition {
	return Precondition{LastUpdateTime: t}
}

// ChangeKind classifies a watched change.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota + 1
	ChangeDelete
	ChangeUpdate
	// ChangeImport is reported for documents present when a watch starts.
	ChangeImport
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeDelete:
		return "delete"
	case ChangeUpdate:
		return "update"
	case ChangeImport:
		return "import"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is a single watched document change. For ChangeDelete the snapshot
// holds the last known data.
type Change struct {
	Kind     ChangeKind
	Snapshot *Snapshot
}

// Filter is one where clause of an Or constraint.
type Filter struct {
	Field    string
	Operator Operator
	Value    any
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota + 1
	Desc
)

// Operator is a where clause comparison.
type Operator string

const (
	OpLess             Operator = "<"
	OpLessEqual        Operator = "<="
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpGreaterEqual     Operator = ">="
	OpGreater          Operator = ">"
	OpArrayContains    Operator = "array-contains"
	OpIn               Operator = "in"
	OpArrayContainsAny Operator = "array-contains-any"
	OpNotIn            Operator = "not-in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpLess, OpLessEqual, OpEqual, OpNotEqual, OpGreaterEqual, OpGreater,
		OpArrayContains, OpIn, OpArrayContainsAny, OpNotIn:
		return true
	}
	return false
}
