// Package stream provides change watchers for cascade operations.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/bomberhub/store"
)

// Handler deletes the children of removed parent documents, following the
// relationships of the client's registry.
type Handler struct {
	client *store.Client
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(c *store.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: c,
		logger: logger,
	}
}

// Run watches every parent collection of the registry until ctx is done or
// a watch fails.
func (h *Handler) Run(ctx context.Context) error {
	registry := h.client.Registry()
	if registry == nil {
		return errors.New("stream: client has no registry")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, parent := range registry.Parents() {
		g.Go(func() error {
			h.logger.Info("watching parent collection", "collection", parent)
			err := h.client.Backend().Watch(ctx, string(parent), func(change store.Change) error {
				return h.HandleChange(ctx, parent, change)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// HandleChange processes a single change of the parent collection. Only
// deletes are cascaded; other changes are ignored.
func (h *Handler) HandleChange(ctx context.Context, parent store.Collection, change store.Change) error {
	if change.Kind != store.ChangeDelete || change.Snapshot == nil {
		return nil
	}
	parentID := change.Snapshot.ID

	rels := h.client.Registry().ChildrenOf(parent)
	if len(rels) == 0 {
		return nil
	}

	h.logger.Info("processing cascade delete",
		"collection", parent,
		"documentId", parentID,
	)

	batch := h.client.Batch()
	children := 0
	for _, rel := range rels {
		ids := h.childIDs(ctx, rel, parentID)
		for _, id := range ids {
			if err := batch.Delete(ctx, store.Doc(rel.ChildCollection, id)); err != nil {
				h.logger.Warn("failed to delete child",
					"collection", rel.ChildCollection,
					"documentId", id,
					"error", err,
				)
				// Continue - remaining children are still deleted
				continue
			}
			children++
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("cascade %s/%s: %w", parent, parentID, err)
	}

	h.logger.Info("cascade delete completed",
		"collection", parent,
		"documentId", parentID,
		"childrenProcessed", children,
	)
	return nil
}

func (h *Handler) childIDs(ctx context.Context, rel store.Relationship, parentID string) []string {
	docs := h.client.QueryRaw(ctx, store.Scope(rel.ChildCollection),
		store.Where(rel.ParentKeyField, store.OpEqual, parentID),
	)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if id, ok := d["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
