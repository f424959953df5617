// Package memstore is an in-memory store.Backend.
//
// It follows the production document store closely enough to stand in for it
// in tests and local runs: merge writes, dotted update paths, field
// transforms, preconditions, cross-type ordering, cursors, collection groups,
// serialized transactions and change watching. Nothing is persisted.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/bomberhub/store"
)

type document struct {
	data       map[string]any
	createTime time.Time
	updateTime time.Time
}

// Store is an in-memory document store. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	docs  map[string]*document
	calls map[string]int
	fail  map[string][]error
	subs  map[*subscriber]struct{}
	now   func() time.Time

	// txMu serializes transactions.
	txMu sync.Mutex
}

var _ store.Backend = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:  map[string]*document{},
		calls: map[string]int{},
		fail:  map[string][]error{},
		subs:  map[*subscriber]struct{}{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Calls returns how many times op was invoked. Ops are "get", "create",
// "set", "update", "delete", "query", "commit", "transaction" and "getAll".
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FailNext makes the next len(errs) invocations of op fail with errs, in
// order.
func (s *Store) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = append(s.fail[op], errs...)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// call records an invocation of op and returns its injected failure.
// The caller holds s.mu.
func (s *Store) call(op string) error {
	s.calls[op]++
	if queued := s.fail[op]; len(queued) > 0 {
		s.fail[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *Store) Doc(collectionPath, id string) store.DocRef {
	if id == "" {
		id = uuid.NewString()
	}
	return &docRef{s: s, collection: collectionPath, id: id}
}

func (s *Store) Collection(path string) store.BackendQuery {
	return &query{s: s, path: path, limit: -1}
}

func (s *Store) CollectionGroup(id string) store.BackendQuery {
	return &query{s: s, path: id, group: true, limit: -1}
}

func (s *Store) Batch() store.WriteBatch {
	return &writeBatch{s: s}
}

// RunTransaction runs fn with exclusive access to transactions. Reads see
// committed data and writes apply atomically when fn returns nil.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BackendTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	err := s.call("transaction")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	tx := &transaction{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply(tx.writes)
}

type docRef struct {
	s          *Store
	collection string
	id         string
}

func (r *docRef) ID() string {
	return r.id
}

func (r *docRef) Path() string {
	return r.collection + "/" + r.id
}

func (r *docRef) Get(ctx context.Context) (*store.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.call("get"); err != nil {
		return nil, err
	}
	snap := r.s.snapshot(r)
	if !snap.Exists {
		return snap, fmt.Errorf("%s: %w", r.Path(), store.ErrNotFound)
	}
	return snap, nil
}

func (r *docRef) Create(ctx context.Context, data map[string]any) error {
	return r.s.write("create", mutation{kind: opCreate, ref: r, data: data})
}

func (r *docRef) Set(ctx context.Context, data map[string]any, merge bool) error {
	return r.s.write("set", mutation{kind: opSet, ref: r, data: data, merge: merge})
}

func (r *docRef) Update(ctx context.Context, data map[string]any, pre ...store.Precondition) error {
	return r.s.write("update", mutation{kind: opUpdate, ref: r, data: data, pre: pre})
}

func (r *docRef) Delete(ctx context.Context, pre ...store.Precondition) error {
	return r.s.write("delete", mutation{kind: opDelete, ref: r, pre: pre})
}

func (s *Store) write(op string, m mutation) error {
	s.mu.Lock()
	err := s.call(op)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.apply([]mutation{m})
}

// snapshot reads the document behind ref. The caller holds s.mu.
func (s *Store) snapshot(ref *docRef) *store.Snapshot {
	snap := &store.Snapshot{Path: ref.Path(), ID: ref.id}
	if d, ok := s.docs[ref.Path()]; ok {
		snap.Exists = true
		snap.Data = copyData(d.data)
		snap.CreateTime = d.createTime
		snap.UpdateTime = d.updateTime
	}
	return snap
}

type opKind int

const (
	opCreate opKind = iota + 1
	opSet
	opUpdate
	opDelete
)

type mutation struct {
	kind  opKind
	ref   *docRef
	data  map[string]any
	merge bool
	pre   []store.Precondition
}

func asDocRef(ref store.DocRef) *docRef {
	r, ok := ref.(*docRef)
	if !ok {
		panic(fmt.Sprintf("memstore: foreign document reference %T", ref))
	}
	return r
}

// apply checks every mutation against the current state and then applies
// them all, or none.
func (s *Store) apply(muts []mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate against the state as it evolves within the group.
	exists := map[string]*document{}
	state := func(path string) *document {
		if d, ok := exists[path]; ok {
			return d
		}
		return s.docs[path]
	}
	for _, m := range muts {
		path := m.ref.Path()
		cur := state(path)
		switch m.kind {
		case opCreate:
			if cur != nil {
				return fmt.Errorf("%s: %w", path, store.ErrAlreadyExists)
			}
		case opUpdate:
			if cur == nil {
				return fmt.Errorf("%s: %w", path, store.ErrNotFound)
			}
		}
		if err := checkPreconditions(path, cur, m.pre); err != nil {
			return err
		}
		if m.kind == opDelete {
			exists[path] = nil
		} else {
			exists[path] = &document{}
		}
	}

	now := s.now()
	var changes []changeAt
	for _, m := range muts {
		path := m.ref.Path()
		cur := s.docs[path]
		switch m.kind {
		case opDelete:
			if cur != nil {
				delete(s.docs, path)
				changes = append(changes, changeAt{m.ref, store.Change{
					Kind:     store.ChangeDelete,
					Snapshot: &store.Snapshot{Path: path, ID: m.ref.id, Data: copyData(cur.data), CreateTime: cur.createTime, UpdateTime: cur.updateTime},
				}})
			}
			continue
		case opCreate:
			cur = &document{data: replace(m.data, now), createTime: now}
		case opSet:
			if cur == nil || !m.merge {
				created := now
				if cur != nil {
					created = cur.createTime
				}
				cur = &document{data: replace(m.data, now), createTime: created}
			} else {
				merge(cur.data, m.data, now)
			}
		case opUpdate:
			for k, v := range m.data {
				assign(cur.data, k, v, now)
			}
		}
		kind := store.ChangeUpdate
		if _, ok := s.docs[path]; !ok {
			kind = store.ChangeCreate
		}
		cur.updateTime = now
		s.docs[path] = cur
		changes = append(changes, changeAt{m.ref, store.Change{Kind: kind, Snapshot: s.snapshot(m.ref)}})
	}
	s.publish(changes)
	return nil
}

func checkPreconditions(path string, cur *document, pre []store.Precondition) error {
	for _, p := range pre {
		if p.Exists && cur == nil {
			return fmt.Errorf("%s: %w", path, store.ErrNotFound)
		}
		if !p.LastUpdateTime.IsZero() {
			if cur == nil || !cur.updateTime.Equal(p.LastUpdateTime) {
				return fmt.Errorf("%s: last update time mismatch: %w", path, store.ErrFailedPrecondition)
			}
		}
	}
	return nil
}

type writeBatch struct {
	s      *Store
	writes []mutation
}

func (b *writeBatch) Create(ref store.DocRef, data map[string]any) {
	b.writes = append(b.writes, mutation{kind: opCreate, ref: asDocRef(ref), data: data})
}

func (b *writeBatch) Set(ref store.DocRef, data map[string]any, merge bool) {
	b.writes = append(b.writes, mutation{kind: opSet, ref: asDocRef(ref), data: data, merge: merge})
}

func (b *writeBatch) Update(ref store.DocRef, data map[string]any, pre ...store.Precondition) {
	b.writes = append(b.writes, mutation{kind: opUpdate, ref: asDocRef(ref), data: data, pre: pre})
}

func (b *writeBatch) Delete(ref store.DocRef, pre ...store.Precondition) {
	b.writes = append(b.writes, mutation{kind: opDelete, ref: asDocRef(ref), pre: pre})
}

func (b *writeBatch) Commit(ctx context.Context) error {
	b.s.mu.Lock()
	err := b.s.call("commit")
	b.s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.s.apply(b.writes)
}

var errReadAfterWrite = errors.New("memstore: transaction reads must precede writes")

type transaction struct {
	s      *Store
	writes []mutation
}

func (t *transaction) Get(ref store.DocRef) (*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.call("get"); err != nil {
		return nil, err
	}
	return t.s.snapshot(asDocRef(ref)), nil
}

func (t *transaction) GetAll(refs []store.DocRef, mask ...string) ([]*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.call("getAll"); err != nil {
		return nil, err
	}
	out := make([]*store.Snapshot, len(refs))
	for i, ref := range refs {
		snap := t.s.snapshot(asDocRef(ref))
		if snap.Exists && len(mask) > 0 {
			snap.Data = project(snap.Data, mask)
		}
		out[i] = snap
	}
	return out, nil
}

// project keeps only the dotted field paths of mask.
func project(data map[string]any, mask []string) map[string]any {
	out := map[string]any{}
	for _, path := range mask {
		if v, ok := lookup(data, path); ok {
			assign(out, path, v, time.Time{})
		}
	}
	return out
}

func (t *transaction) Create(ref store.DocRef, data map[string]any) error {
	t.writes = append(t.writes, mutation{kind: opCreate, ref: asDocRef(ref), data: data})
	return nil
}

func (t *transaction) Set(ref store.DocRef, data map[string]any, merge bool) error {
	t.writes = append(t.writes, mutation{kind: opSet, ref: asDocRef(ref), data: data, merge: merge})
	return nil
}

func (t *transaction) Update(ref store.DocRef, data map[string]any, pre ...store.Precondition) error {
	t.writes = append(t.writes, mutation{kind: opUpdate, ref: asDocRef(ref), data: data, pre: pre})
	return nil
}

func (t *transaction) Delete(ref store.DocRef, pre ...store.Precondition) error {
	t.writes = append(t.writes, mutation{kind: opDelete, ref: asDocRef(ref), pre: pre})
	return nil
}

// parentPath returns the collection path of a document path.
func parentPath(docPath string) string {
	i := strings.LastIndex(docPath, "/")
	if i < 0 {
		return ""
	}
	return docPath[:i]
}

// collectionID returns the last segment of a collection path.
func collectionID(collectionPath string) string {
	return collectionPath[strings.LastIndex(collectionPath, "/")+1:]
}
