package store

import "context"

// Tx stages writes inside a running transaction. Data is packed like Client
// writes but not stamped.
type Tx struct {
	client *Client
	tx     BackendTx
}

// Get reads the document at addr. A missing document yields a snapshot
// with Exists false.
func (t *Tx) Get(addr Address) (*Snapshot, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return t.tx.Get(t.client.ref(addr))
}

// Create stages the creation of data at addr and returns the document id.
// A missing terminal id is generated.
func (t *Tx) Create(data map[string]any, addr Address) (string, error) {
	if err := addr.validate(true); err != nil {
		return "", err
	}
	ref := t.client.ref(addr)
	return ref.ID(), t.tx.Create(ref, PackMap(data))
}

// Set stages a merge upsert of data at addr.
func (t *Tx) Set(data map[string]any, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	return t.tx.Set(t.client.ref(addr), PackMap(data), true)
}

// Update stages an update of the existing document at addr.
func (t *Tx) Update(data map[string]any, addr Address, pre ...Precondition) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	return t.tx.Update(t.client.ref(addr), PackMap(data), pre...)
}

// Delete stages the deletion of the document at addr.
func (t *Tx) Delete(addr Address, pre ...Precondition) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	return t.tx.Delete(t.client.ref(addr), pre...)
}

// Transaction reads the document at addr inside a transaction and calls fn
// with the snapshot, which may not exist.
//
// An error from fn is logged and Transaction returns false, but the writes
// fn staged are still committed. A transaction that cannot run or commit is
// logged and returns false.
func Transaction[T any](ctx context.Context, c *Client, addr Address, fn func(ctx context.Context, tx *Tx, snap *Snapshot) (T, error)) (T, bool) {
	var zero T
	if err := addr.Validate(); err != nil {
		c.fail("transaction", addr, err)
		observe("transaction", false)
		return zero, false
	}

	var (
		result T
		fnErr  error
	)
	err := c.backend.RunTransaction(ctx, func(ctx context.Context, btx BackendTx) error {
		result, fnErr = zero, nil
		snap, err := btx.Get(c.ref(addr))
		if err != nil {
			return err
		}
		result, fnErr = fn(ctx, &Tx{client: c, tx: btx}, snap)
		return nil
	})
	if err != nil {
		c.fail("transaction", addr, err)
		observe("transaction", false)
		return zero, false
	}
	if fnErr != nil {
		c.fail("transaction", addr, fnErr, "stage", "procedure")
		observe("transaction", false)
		return zero, false
	}
	observe("transaction", true)
	return result, true
}

// TransactionMultiple reads every address in one call, limited to the mask
// fields when given, and calls fn with the snapshots in address order.
// An error from fn rolls the transaction back.
func TransactionMultiple[T any](ctx context.Context, c *Client, addrs []Address, fn func(ctx context.Context, tx *Tx, snaps []*Snapshot) (T, error), mask ...string) (T, bool) {
	var zero T
	refs := make([]DocRef, len(addrs))
	for i, addr := range addrs {
		if err := addr.Validate(); err != nil {
			c.fail("transactionMultiple", addr, err)
			observe("transactionMultiple", false)
			return zero, false
		}
		refs[i] = c.ref(addr)
	}

	var result T
	err := c.backend.RunTransaction(ctx, func(ctx context.Context, btx BackendTx) error {
		snaps, err := btx.GetAll(refs, mask...)
		if err != nil {
			return err
		}
		result, err = fn(ctx, &Tx{client: c, tx: btx}, snaps)
		return err
	})
	if err != nil {
		c.logger.Error("store operation failed",
			"operation", "transactionMultiple",
			"addresses", addrs,
			"error", err,
		)
		observe("transactionMultiple", false)
		return zero, false
	}
	observe("transactionMultiple", true)
	return result, true
}
