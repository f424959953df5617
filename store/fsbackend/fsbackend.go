// Package fsbackend implements store.Backend on Cloud Firestore.
package fsbackend

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jacentio/bomberhub/store"
)

// maxInFilter is the largest value list Firestore accepts for "in".
const maxInFilter = 30

// Backend is a store.Backend on a Firestore client.
type Backend struct {
	client    *firestore.Client
	projectID string
}

var _ store.Backend = (*Backend)(nil)

// Open connects to the Firestore database of projectID. When
// FIRESTORE_EMULATOR_HOST is set the client talks to the emulator.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Backend, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("while creating firestore client: %w", err)
	}
	return &Backend{client: client, projectID: projectID}, nil
}

// New wraps an existing Firestore client.
func New(client *firestore.Client, projectID string) *Backend {
	return &Backend{client: client, projectID: projectID}
}

// Client returns the underlying Firestore client.
func (b *Backend) Client() *firestore.Client {
	return b.client
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) Doc(collectionPath, id string) store.DocRef {
	coll := b.client.Collection(collectionPath)
	if id == "" {
		return &docRef{ref: coll.NewDoc(), path: collectionPath}
	}
	return &docRef{ref: coll.Doc(id), path: collectionPath}
}

func (b *Backend) Collection(path string) store.BackendQuery {
	return &query{q: b.client.Collection(path).Query}
}

func (b *Backend) CollectionGroup(id string) store.BackendQuery {
	return &query{q: b.client.CollectionGroup(id).Query}
}

func (b *Backend) Batch() store.WriteBatch {
	return &writeBatch{wb: b.client.Batch()}
}

func (b *Backend) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BackendTx) error) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &transaction{tx: tx})
	})
	return mapError(err)
}

// Watch streams the changes of a collection. The first snapshot is reported
// as ChangeImport.
func (b *Backend) Watch(ctx context.Context, collectionPath string, fn func(store.Change) error) error {
	it := b.client.Collection(collectionPath).Snapshots(ctx)
	defer it.Stop()

	first := true
	for {
		qs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("while watching %s: %w", collectionPath, mapError(err))
		}
		for _, ch := range qs.Changes {
			kind := store.ChangeUpdate
			switch {
			case first:
				kind = store.ChangeImport
			case ch.Kind == firestore.DocumentAdded:
				kind = store.ChangeCreate
			case ch.Kind == firestore.DocumentRemoved:
				kind = store.ChangeDelete
			}
			if err := fn(store.Change{Kind: kind, Snapshot: toSnapshot(collectionPath, ch.Doc)}); err != nil {
				return err
			}
		}
		first = false
	}
}

type docRef struct {
	ref  *firestore.DocumentRef
	path string
}

func (r *docRef) ID() string {
	return r.ref.ID
}

func (r *docRef) Path() string {
	return r.path + "/" + r.ref.ID
}

func (r *docRef) Get(ctx context.Context) (*store.Snapshot, error) {
	snap, err := r.ref.Get(ctx)
	if err != nil {
		return &store.Snapshot{Path: r.Path(), ID: r.ref.ID}, mapError(err)
	}
	return toSnapshot(r.path, snap), nil
}

func (r *docRef) Create(ctx context.Context, data map[string]any) error {
	_, err := r.ref.Create(ctx, toFirestoreMap(data))
	return mapError(err)
}

func (r *docRef) Set(ctx context.Context, data map[string]any, merge bool) error {
	var err error
	if merge {
		_, err = r.ref.Set(ctx, toFirestoreMap(data), firestore.MergeAll)
	} else {
		_, err = r.ref.Set(ctx, toFirestoreMap(data))
	}
	return mapError(err)
}

func (r *docRef) Update(ctx context.Context, data map[string]any, pre ...store.Precondition) error {
	_, err := r.ref.Update(ctx, toUpdates(data), toPreconditions(pre)...)
	return mapError(err)
}

func (r *docRef) Delete(ctx context.Context, pre ...store.Precondition) error {
	_, err := r.ref.Delete(ctx, toPreconditions(pre)...)
	return mapError(err)
}

func unwrap(ref store.DocRef) *firestore.DocumentRef {
	r, ok := ref.(*docRef)
	if !ok {
		panic(fmt.Sprintf("fsbackend: foreign document reference %T", ref))
	}
	return r.ref
}

type writeBatch struct {
	wb *firestore.WriteBatch
}

func (b *writeBatch) Create(ref store.DocRef, data map[string]any) {
	b.wb.Create(unwrap(ref), toFirestoreMap(data))
}

func (b *writeBatch) Set(ref store.DocRef, data map[string]any, merge bool) {
	if merge {
		b.wb.Set(unwrap(ref), toFirestoreMap(data), firestore.MergeAll)
		return
	}
	b.wb.Set(unwrap(ref), toFirestoreMap(data))
}

func (b *writeBatch) Update(ref store.DocRef, data map[string]any, pre ...store.Precondition) {
	b.wb.Update(unwrap(ref), toUpdates(data), toPreconditions(pre)...)
}

func (b *writeBatch) Delete(ref store.DocRef, pre ...store.Precondition) {
	b.wb.Delete(unwrap(ref), toPreconditions(pre)...)
}

func (b *writeBatch) Commit(ctx context.Context) error {
	_, err := b.wb.Commit(ctx)
	return mapError(err)
}

type transaction struct {
	tx *firestore.Transaction
}

func (t *transaction) Get(ref store.DocRef) (*store.Snapshot, error) {
	r := ref.(*docRef)
	snap, err := t.tx.Get(r.ref)
	if status.Code(err) == codes.NotFound {
		return &store.Snapshot{Path: r.Path(), ID: r.ref.ID}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return toSnapshot(r.path, snap), nil
}

// GetAll reads refs in one call. With a mask and refs sharing one parent
// collection, the read is a projected "in" query on the document ids;
// otherwise the documents are read whole and projected locally.
func (t *transaction) GetAll(refs []store.DocRef, mask ...string) ([]*store.Snapshot, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	drs := make([]*firestore.DocumentRef, len(refs))
	for i, ref := range refs {
		drs[i] = unwrap(ref)
	}

	if len(mask) > 0 && len(drs) <= maxInFilter && sameParent(drs) {
		return t.getMasked(refs, drs, mask)
	}

	snaps, err := t.tx.GetAll(drs)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*store.Snapshot, len(snaps))
	for i, snap := range snaps {
		r := refs[i].(*docRef)
		if snap == nil || !snap.Exists() {
			out[i] = &store.Snapshot{Path: r.Path(), ID: r.ref.ID}
			continue
		}
		out[i] = toSnapshot(r.path, snap)
		if len(mask) > 0 {
			out[i].Data = project(out[i].Data, mask)
		}
	}
	return out, nil
}

func (t *transaction) getMasked(refs []store.DocRef, drs []*firestore.DocumentRef, mask []string) ([]*store.Snapshot, error) {
	q := drs[0].Parent.Select(mask...).Where(firestore.DocumentID, "in", drs)
	found, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	byID := make(map[string]*firestore.DocumentSnapshot, len(found))
	for _, snap := range found {
		byID[snap.Ref.ID] = snap
	}
	out := make([]*store.Snapshot, len(refs))
	for i, ref := range refs {
		r := ref.(*docRef)
		if snap, ok := byID[r.ref.ID]; ok {
			out[i] = toSnapshot(r.path, snap)
			continue
		}
		out[i] = &store.Snapshot{Path: r.Path(), ID: r.ref.ID}
	}
	return out, nil
}

func sameParent(drs []*firestore.DocumentRef) bool {
	for _, dr := range drs[1:] {
		if dr.Parent.Path != drs[0].Parent.Path {
			return false
		}
	}
	return true
}

func (t *transaction) Create(ref store.DocRef, data map[string]any) error {
	return mapError(t.tx.Create(unwrap(ref), toFirestoreMap(data)))
}

func (t *transaction) Set(ref store.DocRef, data map[string]any, merge bool) error {
	if merge {
		return mapError(t.tx.Set(unwrap(ref), toFirestoreMap(data), firestore.MergeAll))
	}
	return mapError(t.tx.Set(unwrap(ref), toFirestoreMap(data)))
}

func (t *transaction) Update(ref store.DocRef, data map[string]any, pre ...store.Precondition) error {
	return mapError(t.tx.Update(unwrap(ref), toUpdates(data), toPreconditions(pre)...))
}

func (t *transaction) Delete(ref store.DocRef, pre ...store.Precondition) error {
	return mapError(t.tx.Delete(unwrap(ref), toPreconditions(pre)...))
}

// mapError translates gRPC status codes into store errors, keeping the
// original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %w", store.ErrAlreadyExists, err)
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %w", store.ErrFailedPrecondition, err)
	}
	return err
}
