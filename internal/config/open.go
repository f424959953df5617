package config

import (
	"context"
	"fmt"

	"github.com/jacentio/bomberhub/store"
	"github.com/jacentio/bomberhub/store/fsbackend"
	"github.com/jacentio/bomberhub/store/memstore"
)

// Opener returns the function store.Init uses to open the configured backend.
// The firestore backend honours FIRESTORE_EMULATOR_HOST.
func (c Config) Opener() func(ctx context.Context) (store.Backend, error) {
	return func(ctx context.Context) (store.Backend, error) {
		switch c.Backend {
		case BackendMemory:
			return memstore.New(), nil
		case BackendFirestore:
			b, err := fsbackend.Open(ctx, c.ProjectID)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
}
