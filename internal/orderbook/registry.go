package orderbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polymarket-mm/internal/venue"
)

// Registry manages one Replica per token, so a single account session can
// trade many markets without each caller wiring its own REST-bootstrap/WS
// fallback plumbing. Grounded on original_source/orderbook_manager.py's
// MultiTokenOrderbookManager.
type Registry struct {
	client  *venue.Client
	timeout time.Duration

	mu        sync.Mutex
	replicas  map[string]*Replica
}

// NewRegistry creates an empty registry bound to one account's venue client.
func NewRegistry(client *venue.Client, watchdogTimeout time.Duration) *Registry {
	return &Registry{
		client:   client,
		timeout:  watchdogTimeout,
		replicas: make(map[string]*Replica),
	}
}

// AddToken creates (or returns the existing) replica for a token and starts
// it if it is new.
func (r *Registry) AddToken(ctx context.Context, assetID string, onUpdate func(Snapshot)) (*Replica, error) {
	r.mu.Lock()
	if existing, ok := r.replicas[assetID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	replica := NewReplica(r.client, assetID, r.timeout, onUpdate)
	r.replicas[assetID] = replica
	r.mu.Unlock()

	if err := replica.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.replicas, assetID)
		r.mu.Unlock()
		return nil, fmt.Errorf("start replica for %s: %w", assetID, err)
	}
	return replica, nil
}

// Get returns the replica for a token, or nil if it hasn't been added.
func (r *Registry) Get(assetID string) *Replica {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replicas[assetID]
}

// RemoveToken stops and forgets a token's replica.
func (r *Registry) RemoveToken(assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if replica, ok := r.replicas[assetID]; ok {
		replica.Stop()
		delete(r.replicas, assetID)
	}
}

// Dispatch routes a decoded WS depth-diff message to the right replica by
// asset ID, ignoring messages for tokens this registry hasn't been asked to
// track.
func (r *Registry) Dispatch(ctx context.Context, payload venue.DepthDiffPayload) error {
	replica := r.Get(payload.AssetID)
	if replica == nil {
		return nil
	}
	return replica.ApplyDiff(ctx, payload)
}

// StopAll stops every tracked replica's watchdog.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, replica := range r.replicas {
		replica.Stop()
	}
}
