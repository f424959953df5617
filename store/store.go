package store

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client maps typed domain objects onto a document Backend.
//
// Client operations never return backend errors. Failures are logged with the
// operation and the full address, and the operation returns an empty id,
// false, or no results.
type Client struct {
	backend  Backend
	config   Config
	logger   *slog.Logger
	registry *Registry
}

// New creates a new Client instance.
func New(backend Backend, config Config) *Client {
	config.validate()
	return &Client{
		backend: backend,
		config:  config,
		logger:  config.Logger,
	}
}

// NewWithRegistry creates a new Client instance with a relationship registry.
func NewWithRegistry(backend Backend, config Config, registry *Registry) *Client {
	c := New(backend, config)
	c.registry = registry
	return c
}

// SetRegistry sets the relationship registry for cascade operations.
func (c *Client) SetRegistry(registry *Registry) {
	c.registry = registry
}

// Registry returns the relationship registry, or nil if not set.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Backend returns the underlying document store.
func (c *Client) Backend() Backend {
	return c.backend
}

// Config returns the validated configuration.
func (c *Client) Config() Config {
	return c.config
}

// Logger returns the logger failures are reported to.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) ref(addr Address) DocRef {
	return c.backend.Doc(addr.CollectionPath(), addr.ID())
}

func (c *Client) fail(op string, addr Address, err error, attrs ...any) {
	c.logger.Error("store operation failed",
		append([]any{"operation", op, "address", addr, "error", err}, attrs...)...,
	)
}

// stamp returns a copy of data with field set to the current time.
func (c *Client) stamp(data map[string]any, field string) map[string]any {
	out := make(map[string]any, len(data)+1)
	maps.Copy(out, data)
	out[field] = c.config.Now()
	return out
}

// Create writes data as a new document, replacing any document at addr.
// An address without a terminal id gets a generated one. It stamps the
// created field and returns the document id, or "" on failure.
func (c *Client) Create(ctx context.Context, data map[string]any, addr Address) string {
	if err := addr.validate(true); err != nil {
		c.fail("create", addr, err)
		observe("create", false)
		return ""
	}
	ref := c.ref(addr)
	if err := ref.Set(ctx, PackMap(c.stamp(data, c.config.CreatedField)), false); err != nil {
		c.fail("create", addr.WithID(ref.ID()), err)
		observe("create", false)
		return ""
	}
	observe("create", true)
	return ref.ID()
}

// Set merges data into the document at addr, creating it when missing. It
// stamps the modified field and returns the document id, or "" on failure.
func (c *Client) Set(ctx context.Context, data map[string]any, addr Address) string {
	if err := addr.Validate(); err != nil {
		c.fail("set", addr, err)
		observe("set", false)
		return ""
	}
	if err := c.ref(addr).Set(ctx, PackMap(c.stamp(data, c.config.ModifiedField)), true); err != nil {
		c.fail("set", addr, err)
		observe("set", false)
		return ""
	}
	observe("set", true)
	return addr.ID()
}

// SetMerge merges data into the document at addr, creating it when missing.
// It stamps the refreshed field.
func (c *Client) SetMerge(ctx context.Context, data map[string]any, addr Address) bool {
	if err := addr.Validate(); err != nil {
		c.fail("setMerge", addr, err)
		observe("setMerge", false)
		return false
	}
	if err := c.ref(addr).Set(ctx, PackMap(c.stamp(data, c.config.RefreshedField)), true); err != nil {
		c.fail("setMerge", addr, err)
		observe("setMerge", false)
		return false
	}
	observe("setMerge", true)
	return true
}

// UpdateOption configures Update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	validateIfExists bool
	retryCount       int
	wait             time.Duration
}

// ValidateIfExists makes Update a successful no-op when the document is
// missing.
func ValidateIfExists() UpdateOption {
	return func(o *updateOptions) {
		o.validateIfExists = true
	}
}

// WithRetry overrides the configured retry count and fixed wait.
func WithRetry(count int, wait time.Duration) UpdateOption {
	return func(o *updateOptions) {
		o.retryCount = max(count, 0)
		o.wait = max(wait, 0)
	}
}

// Update merges data into the existing document at addr and stamps the
// refreshed field. Failed attempts, including the existence check of
// ValidateIfExists, are retried with a fixed wait.
func (c *Client) Update(ctx context.Context, data map[string]any, addr Address, opts ...UpdateOption) bool {
	if err := addr.Validate(); err != nil {
		c.fail("update", addr, err)
		observe("update", false)
		return false
	}
	o := updateOptions{retryCount: c.config.UpdateRetryCount, wait: c.config.UpdateWait}
	for _, opt := range opts {
		opt(&o)
	}

	ref := c.ref(addr)
	packed := PackMap(c.stamp(data, c.config.RefreshedField))
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			UpdateRetries.Inc()
		}
		if o.validateIfExists {
			_, err := ref.Get(ctx)
			if errors.Is(err, ErrNotFound) {
				c.logger.Info("document does not exist, skipping update", "address", addr)
				return nil
			}
			if err != nil {
				return err
			}
		}
		return ref.Update(ctx, packed)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.wait), uint64(o.retryCount)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		c.fail("update", addr, err, "attempts", attempt)
		observe("update", false)
		return false
	}
	observe("update", true)
	return true
}

// Delete removes the document at addr. Deleting a missing document succeeds.
func (c *Client) Delete(ctx context.Context, addr Address) bool {
	if err := addr.Validate(); err != nil {
		c.fail("delete", addr, err)
		observe("delete", false)
		return false
	}
	if err := c.ref(addr).Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		c.fail("delete", addr, err)
		observe("delete", false)
		return false
	}
	observe("delete", true)
	return true
}

// GetRaw returns the unpacked document at addr with its "id".
func (c *Client) GetRaw(ctx context.Context, addr Address) (map[string]any, bool) {
	snap, ok := c.getSnapshot(ctx, "getRaw", addr)
	if !ok {
		return nil, false
	}
	return snap.Raw(), true
}

func (c *Client) getSnapshot(ctx context.Context, op string, addr Address) (*Snapshot, bool) {
	if err := addr.Validate(); err != nil {
		c.fail(op, addr, err)
		observe(op, false)
		return nil, false
	}
	snap, err := c.ref(addr).Get(ctx)
	if errors.Is(err, ErrNotFound) || (err == nil && !snap.Exists) {
		observe(op, true)
		return nil, false
	}
	if err != nil {
		c.fail(op, addr, err)
		observe(op, false)
		return nil, false
	}
	observe(op, true)
	return snap, true
}

// Get reads the document at addr into a T. It returns false when the
// document is missing or cannot be decoded.
func Get[T any](ctx context.Context, c *Client, schema *Schema[T], addr Address) (T, bool) {
	var zero T
	snap, ok := c.getSnapshot(ctx, "get", addr)
	if !ok {
		return zero, false
	}
	v, err := schema.ToDomain(snap.Raw())
	if err != nil {
		c.fail("get", addr, err)
		return zero, false
	}
	return v, true
}

// DecodeSnapshot decodes an already read snapshot, such as one obtained in a
// transaction.
func DecodeSnapshot[T any](c *Client, schema *Schema[T], snap *Snapshot) (T, bool) {
	var zero T
	if snap == nil || !snap.Exists {
		return zero, false
	}
	v, err := schema.ToDomain(snap.Raw())
	if err != nil {
		c.logger.Error("decode snapshot", "path", snap.Path, "error", err)
		return zero, false
	}
	return v, true
}

// QueryRaw returns the unpacked documents of scope matching constraints,
// each with its "id".
func (c *Client) QueryRaw(ctx context.Context, scope Address, constraints ...Constraint) []map[string]any {
	snaps, ok := c.run(ctx, "queryRaw", scope, constraints)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Raw())
	}
	return out
}

func (c *Client) run(ctx context.Context, op string, scope Address, constraints []Constraint) ([]*Snapshot, bool) {
	q, err := Compile(ctx, c.backend, scope, constraints)
	if errors.Is(err, ErrCursorNotFound) {
		c.logger.Warn("query cursor not found", "operation", op, "address", scope, "error", err)
		observe(op, true)
		return nil, false
	}
	if err != nil {
		c.fail(op, scope, err)
		observe(op, false)
		return nil, false
	}
	snaps, err := q.Documents(ctx)
	if err != nil {
		c.fail(op, scope, err)
		observe(op, false)
		return nil, false
	}
	observe(op, true)
	return snaps, true
}

// Query returns the documents of scope matching constraints as T values.
// Documents that cannot be decoded are skipped.
func Query[T any](ctx context.Context, c *Client, schema *Schema[T], scope Address, constraints ...Constraint) []T {
	snaps, ok := c.run(ctx, "query", scope, constraints)
	if !ok {
		return nil
	}
	return decodeAll(c, schema, snaps)
}

// CollectionGroupQuery queries every subcollection named sub.
func CollectionGroupQuery[T any](ctx context.Context, c *Client, schema *Schema[T], sub Subcollection, constraints ...Constraint) []T {
	q, err := CompileGroup(c.backend, sub, constraints)
	if err != nil {
		c.logger.Error("store operation failed", "operation", "collectionGroupQuery", "subcollection", sub, "error", err)
		observe("collectionGroupQuery", false)
		return nil
	}
	snaps, err := q.Documents(ctx)
	if err != nil {
		c.logger.Error("store operation failed", "operation", "collectionGroupQuery", "subcollection", sub, "error", err)
		observe("collectionGroupQuery", false)
		return nil
	}
	observe("collectionGroupQuery", true)
	return decodeAll(c, schema, snaps)
}

func decodeAll[T any](c *Client, schema *Schema[T], snaps []*Snapshot) []T {
	out := make([]T, 0, len(snaps))
	for _, s := range snaps {
		v, err := schema.ToDomain(s.Raw())
		if err != nil {
			c.logger.Warn("skipping undecodable document", "path", s.Path, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// Copy copies the stored data of from into toCollection under toID. An empty
// toID generates an id and CollectionMissing keeps the source collection.
// It returns the new id, or "" when the source is missing or the copy fails.
func (c *Client) Copy(ctx context.Context, from Address, toID string, toCollection Collection) string {
	snap, ok := c.getSnapshot(ctx, "copy", from)
	if !ok {
		return ""
	}
	if toCollection == CollectionMissing {
		toCollection = from.Collection
	}
	to := Doc(toCollection, toID)
	if err := to.validate(true); err != nil {
		c.fail("copy", to, err)
		return ""
	}
	ref := c.ref(to)
	if err := ref.Set(ctx, snap.Data, false); err != nil {
		c.fail("copy", to.WithID(ref.ID()), err, "source", from)
		return ""
	}
	return ref.ID()
}
