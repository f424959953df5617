package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/jacentio/bomberhub/store"
)

type subscriber struct {
	collection string

	mu     sync.Mutex
	queue  []store.Change
	notify chan struct{}
}

type changeAt struct {
	ref    *docRef
	change store.Change
}

func (sub *subscriber) push(c store.Change) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, c)
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *subscriber) drain() []store.Change {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := sub.queue
	sub.queue = nil
	return out
}

// publish queues changes for the subscribers of their collections. The
// caller holds s.mu.
func (s *Store) publish(changes []changeAt) {
	for _, c := range changes {
		for sub := range s.subs {
			if sub.collection == c.ref.collection {
				sub.push(c.change)
			}
		}
	}
}

// Watch reports the documents present in collectionPath as ChangeImport,
// then every later change, until ctx is done or fn fails. It returns the
// error of fn or ctx.
func (s *Store) Watch(ctx context.Context, collectionPath string, fn func(store.Change) error) error {
	sub := &subscriber{collection: collectionPath, notify: make(chan struct{}, 1)}

	s.mu.Lock()
	var initial []*store.Snapshot
	for path := range s.docs {
		if parentPath(path) == collectionPath {
			initial = append(initial, s.snapshot(&docRef{s: s, collection: collectionPath, id: path[len(collectionPath)+1:]}))
		}
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()

	slices.SortFunc(initial, func(a, b *store.Snapshot) int {
		return compareValues(a.ID, b.ID)
	})
	for _, snap := range initial {
		if err := fn(store.Change{Kind: store.ChangeImport, Snapshot: snap}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.notify:
		}
		for _, c := range sub.drain() {
			if err := fn(c); err != nil {
				return err
			}
		}
	}
}
