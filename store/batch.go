package store

import (
	"context"
	"fmt"
)

// BatchState is the lifecycle state of a Batch.
type BatchState int

const (
	BatchOpen BatchState = iota + 1
	// BatchFlushing is held while a full batch is being committed.
	BatchFlushing
	BatchClosed
)

func (s BatchState) String() string {
	switch s {
	case BatchOpen:
		return "open"
	case BatchFlushing:
		return "flushing"
	case BatchClosed:
		return "closed"
	}
	return fmt.Sprintf("BatchState(%d)", int(s))
}

// Batch accumulates writes and commits them in atomic groups of at most
// Config.BatchLimit mutations. Atomicity holds within a group only. Batch
// writes are not stamped with timestamp fields.
//
// A Batch is owned by a single goroutine and is closed by Commit.
type Batch struct {
	client  *Client
	current WriteBatch
	limit   int
	count   int
	commits int
	state   BatchState
}

// Batch returns an empty open batch.
func (c *Client) Batch() *Batch {
	return &Batch{
		client:  c,
		current: c.backend.Batch(),
		limit:   c.config.BatchLimit,
		state:   BatchOpen,
	}
}

// State returns the batch state.
func (b *Batch) State() BatchState {
	return b.state
}

// Count returns the number of mutations accepted so far.
func (b *Batch) Count() int {
	return b.count
}

// Commits returns the number of groups committed so far.
func (b *Batch) Commits() int {
	return b.commits
}

// Create adds a create of data at addr. A missing terminal id is generated.
func (b *Batch) Create(ctx context.Context, data map[string]any, addr Address) error {
	if err := b.check("create", addr, true); err != nil {
		return err
	}
	ref := b.client.ref(addr)
	b.current.Create(ref, PackMap(data))
	return b.mutated(ctx)
}

// Set adds a write of data at addr that replaces the whole document.
func (b *Batch) Set(ctx context.Context, data map[string]any, addr Address) error {
	if err := b.check("set", addr, false); err != nil {
		return err
	}
	b.current.Set(b.client.ref(addr), PackMap(data), false)
	return b.mutated(ctx)
}

// Update adds an update of the existing document at addr.
func (b *Batch) Update(ctx context.Context, data map[string]any, addr Address, pre ...Precondition) error {
	if err := b.check("update", addr, false); err != nil {
		return err
	}
	b.current.Update(b.client.ref(addr), PackMap(data), pre...)
	return b.mutated(ctx)
}

// Delete adds a delete of the document at addr.
func (b *Batch) Delete(ctx context.Context, addr Address, pre ...Precondition) error {
	if err := b.check("delete", addr, false); err != nil {
		return err
	}
	b.current.Delete(b.client.ref(addr), pre...)
	return b.mutated(ctx)
}

func (b *Batch) check(op string, addr Address, allowGenerated bool) error {
	if b.state == BatchClosed {
		b.client.fail("batch."+op, addr, ErrBatchClosed)
		return ErrBatchClosed
	}
	if err := addr.validate(allowGenerated); err != nil {
		b.client.fail("batch."+op, addr, err)
		return err
	}
	return nil
}

// mutated counts a mutation and commits the current group when it is full.
func (b *Batch) mutated(ctx context.Context) error {
	b.count++
	if b.count%b.limit != 0 {
		return nil
	}
	b.state = BatchFlushing
	err := b.flush(ctx)
	b.current = b.client.backend.Batch()
	b.state = BatchOpen
	return err
}

func (b *Batch) flush(ctx context.Context) error {
	if err := b.current.Commit(ctx); err != nil {
		BatchCommits.WithLabelValues("error").Inc()
		b.client.logger.Error("batch commit failed", "mutations", b.count, "commits", b.commits, "error", err)
		return fmt.Errorf("commit batch: %w", err)
	}
	BatchCommits.WithLabelValues("ok").Inc()
	b.commits++
	return nil
}

// Commit commits the pending mutations and closes the batch. A group that
// was already flushed on the limit boundary is not committed again.
func (b *Batch) Commit(ctx context.Context) error {
	if b.state == BatchClosed {
		b.client.logger.Error("batch commit failed", "error", ErrBatchClosed)
		return ErrBatchClosed
	}
	defer func() {
		b.state = BatchClosed
		b.current = nil
	}()
	if b.count%b.limit == 0 {
		return nil
	}
	return b.flush(ctx)
}
