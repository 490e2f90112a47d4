// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const favoritesIDsField = "ids"

// localFavoritesScope is the LocalStore scope used when no user is signed in.
const localFavoritesScope = "anonymous"

// FavoritesEngine owns the reconciled favorite-game-id set for one scope
// (user id, or the anonymous local-only scope). The locally observable value
// is always the union of last-known-local and last-known-remote sets until an
// explicit removal; removals are local-origin only. Local state is the source
// of truth for callers; remote writes are best-effort.
type FavoritesEngine struct {
	store  LocalStore
	remote RemoteStore // nil for a purely local deployment
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	scope       string
	epoch       int64 // bumped on every scope change; stale async results are discarded
	current     map[string]struct{}
	channel     DocumentChannel
	sub         Subscription
	lastSyncErr error

	bc *broadcaster[[]string]
}

// NewFavoritesEngine creates an engine bound to a local store and an optional
// remote store. Pass remote == nil to run local-only.
func NewFavoritesEngine(store LocalStore, remote RemoteStore, logger *slog.Logger) *FavoritesEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &FavoritesEngine{
		store:   store,
		remote:  remote,
		logger:  logger,
		current: make(map[string]struct{}),
		bc:      newBroadcaster[[]string](),
	}
}

// Subscribe registers fn to receive the published favorite-id slice (sorted)
// on every change. Returns a cancel function.
func (e *FavoritesEngine) Subscribe(fn func(ids []string)) func() {
	return e.bc.Subscribe(fn)
}

// Current returns the currently published favorite ids, sorted.
func (e *FavoritesEngine) Current() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return idSlice(e.current)
}

// Contains reports whether id is currently a favorite.
func (e *FavoritesEngine) Contains(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.current[id]
	return ok
}

// LastSyncError returns the most recent remote synchronization failure, or
// nil. Remote failures never surface to Toggle callers; this is the
// diagnostics channel for them.
func (e *FavoritesEngine) LastSyncError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncErr
}

// Init loads the scope's local set, publishes it, and, when a remote store is
// bound and the scope is a signed-in user, starts a one-shot reconciliation
// pass and a live subscription.
//
// Idempotent for an already-initialized scope. Initializing a different scope
// tears the previous one down first.
func (e *FavoritesEngine) Init(ctx context.Context, scopeID string) error {
	e.mu.Lock()
	if e.initialized && e.scope == scopeID {
		e.mu.Unlock()
		return nil
	}
	e.teardownLocked()

	set, err := e.loadLocal(scopeID)
	if err != nil {
		// Leave the engine uninitialized so a retried Init runs in full.
		e.initialized = false
		e.scope = ""
		e.mu.Unlock()
		return err
	}
	e.scope = scopeID
	e.initialized = true
	e.current = set
	epoch := e.epoch
	remoteBound := e.remote != nil && scopeID != ""
	if remoteBound {
		e.channel = e.remote.Document(FavoritesCollection, scopeID)
	}
	channel := e.channel
	published := idSlice(e.current)
	e.mu.Unlock()

	e.bc.Publish(published)

	if !remoteBound {
		return nil
	}

	go e.reconcile(ctx, epoch, channel)

	sub, err := channel.Subscribe(func(fields Fields, deleted bool) {
		e.onRemoteSnapshot(epoch, fields, deleted)
	})
	if err != nil {
		// Degrade to local-only; the set still works without live updates.
		e.logger.Warn("Failed to attach favorites subscription", "scope", scopeID, "error", err)
		e.setSyncError(err)
		return nil
	}

	e.mu.Lock()
	if e.epoch != epoch {
		// Scope changed while we were subscribing.
		e.mu.Unlock()
		sub.Cancel()
		return nil
	}
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Toggle adds id to the set if absent or removes it if present. The new set
// is published and persisted locally before any remote I/O; a bound remote
// document then receives a best-effort write of the full set.
func (e *FavoritesEngine) Toggle(ctx context.Context, id string) {
	e.mu.Lock()
	next := unionSets(e.current, nil)
	if _, ok := next[id]; ok {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	e.current = next
	scope := e.scope
	epoch := e.epoch
	channel := e.channel
	published := idSlice(next)
	e.mu.Unlock()

	e.bc.Publish(published)

	if err := e.saveLocal(scope, next); err != nil {
		e.logger.Warn("Failed to persist favorites locally", "scope", scope, "error", err)
	}

	if channel == nil {
		return
	}
	// Fire-and-forget: remote failure degrades to local-only semantics and
	// the next reconciliation pass re-attempts convergence. The caller's
	// context may be cancelled once the optimistic value is published; the
	// write should still complete.
	go func() {
		err := channel.Merge(context.WithoutCancel(ctx), Fields{favoritesIDsField: published})
		if err != nil {
			e.logger.Warn("Remote favorites write failed", "scope", scope, "error", err)
			e.setSyncErrorAt(epoch, err)
			return
		}
		e.setSyncErrorAt(epoch, nil)
	}()
}

// Teardown cancels the live subscription, clears the set, and releases the
// scope. The empty set is published so observers drop stale state.
func (e *FavoritesEngine) Teardown() {
	e.mu.Lock()
	e.teardownLocked()
	e.initialized = false
	e.scope = ""
	e.mu.Unlock()
	e.bc.Publish(nil)
}

// reconcile runs the one-shot reconciliation pass: bootstrap the remote
// document from local state when absent, otherwise converge both sides to
// local ∪ remote.
func (e *FavoritesEngine) reconcile(ctx context.Context, epoch int64, channel DocumentChannel) {
	fields, err := channel.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return
		}
		local := idSlice(e.current)
		e.mu.Unlock()
		if err := channel.Merge(ctx, Fields{favoritesIDsField: local}); err != nil {
			e.logger.Warn("Failed to bootstrap remote favorites", "error", err)
			e.setSyncErrorAt(epoch, err)
		}
		return
	}
	if err != nil {
		e.logger.Warn("Favorites reconciliation read failed", "error", err)
		e.setSyncErrorAt(epoch, err)
		return
	}

	remoteSet := decodeFavoritesFields(fields)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return
	}
	merged := unionSets(e.current, remoteSet)
	changed := !equalSets(merged, e.current)
	repairRemote := len(remoteSet) < len(merged)
	if changed {
		e.current = merged
	}
	scope := e.scope
	published := idSlice(merged)
	e.mu.Unlock()

	if changed {
		e.bc.Publish(published)
		if err := e.saveLocal(scope, merged); err != nil {
			e.logger.Warn("Failed to persist reconciled favorites", "scope", scope, "error", err)
		}
	}
	if repairRemote && len(published) > 0 {
		// The remote document is missing ids we hold locally (it may have
		// lost data); push the union back.
		if err := channel.Merge(ctx, Fields{favoritesIDsField: published}); err != nil {
			e.logger.Warn("Failed to repair remote favorites", "error", err)
			e.setSyncErrorAt(epoch, err)
			return
		}
	}
	e.setSyncErrorAt(epoch, nil)
}

// onRemoteSnapshot merges a live remote snapshot into the current value.
// A snapshot is never authoritative by itself: it can race behind an
// in-flight local toggle, so it is always unioned with current state.
func (e *FavoritesEngine) onRemoteSnapshot(epoch int64, fields Fields, deleted bool) {
	var snapshot map[string]struct{}
	if !deleted {
		snapshot = decodeFavoritesFields(fields)
	}

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return
	}
	merged := unionSets(snapshot, e.current)
	if equalSets(merged, e.current) {
		e.mu.Unlock()
		return
	}
	e.current = merged
	scope := e.scope
	published := idSlice(merged)
	e.mu.Unlock()

	e.bc.Publish(published)
	if err := e.saveLocal(scope, merged); err != nil {
		e.logger.Warn("Failed to persist favorites snapshot", "scope", scope, "error", err)
	}
}

func (e *FavoritesEngine) teardownLocked() {
	if e.sub != nil {
		e.sub.Cancel()
		e.sub = nil
	}
	e.channel = nil
	e.lastSyncErr = nil
	// Drop the previous scope's set so it can never leak into the next scope.
	e.current = make(map[string]struct{})
	e.epoch++
}

func (e *FavoritesEngine) loadLocal(scope string) (map[string]struct{}, error) {
	data, ok, err := e.store.Load(favoritesKey(scope))
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[string]struct{}), nil
	}
	return decodeIDSet(data)
}

func (e *FavoritesEngine) saveLocal(scope string, set map[string]struct{}) error {
	data, err := encodeIDSet(set)
	if err != nil {
		return err
	}
	return e.store.Save(favoritesKey(scope), data)
}

// setSyncErrorAt records err only if the engine is still in the given epoch.
func (e *FavoritesEngine) setSyncErrorAt(epoch int64, err error) {
	e.mu.Lock()
	if e.epoch == epoch {
		e.lastSyncErr = err
	}
	e.mu.Unlock()
}

func (e *FavoritesEngine) setSyncError(err error) {
	e.mu.Lock()
	e.lastSyncErr = err
	e.mu.Unlock()
}

// favoritesKey is the LocalStore key for a scope's favorite set.
func favoritesKey(scope string) string {
	if scope == "" {
		scope = localFavoritesScope
	}
	return "favorites/" + scope
}

// decodeFavoritesFields extracts the id set from a favorites document.
// A JSON round-trip yields []any; the in-memory store yields []string.
func decodeFavoritesFields(fields Fields) map[string]struct{} {
	set := make(map[string]struct{})
	switch ids := fields[favoritesIDsField].(type) {
	case []string:
		for _, id := range ids {
			set[id] = struct{}{}
		}
	case []any:
		for _, v := range ids {
			if id, ok := v.(string); ok {
				set[id] = struct{}{}
			}
		}
	}
	return set
}
