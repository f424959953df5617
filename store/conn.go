package store

import (
	"context"
	"errors"
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// ErrNotInitialized is returned by Default before Init.
var ErrNotInitialized = errors.New("bomberhub: store not initialized")

// Init installs the process-wide client. open is called only by the first
// Init; later calls return the existing client.
func Init(ctx context.Context, config Config, open func(ctx context.Context) (Backend, error)) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return defaultClient, nil
	}
	backend, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defaultClient = New(backend, config)
	return defaultClient, nil
}

// Default returns the process-wide client installed by Init.
func Default() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient == nil {
		return nil, ErrNotInitialized
	}
	return defaultClient, nil
}

// Reset closes and forgets the process-wide client.
func Reset() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient == nil {
		return nil
	}
	err := defaultClient.Close()
	defaultClient = nil
	return err
}
