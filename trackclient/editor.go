// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"context"
	"log/slog"
	"sync"
)

// RecordAggregate is the slice of aggregate behavior an edit needs: lookup
// and in-place replacement by stable key. Pager and GroupedPager both
// implement it.
type RecordAggregate interface {
	Get(key string) (Record, bool)
	Replace(key string, rec Record) bool
}

// Editor applies optimistic in-place edits to one record inside an
// aggregate, then propagates the mutable fields to the corresponding remote
// document. It borrows the aggregate it mutates and never owns it.
type Editor struct {
	remote     RemoteStore
	collection string
	logger     *slog.Logger

	mu          sync.Mutex
	lastSyncErr error

	// wg tracks in-flight remote propagation, so tests can wait for it.
	wg sync.WaitGroup
}

// NewEditor creates an editor for records of one remote collection
// (ReportsCollection or CommentsCollection). remote may be nil, in which case
// edits stay local.
func NewEditor(remote RemoteStore, collection string, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{remote: remote, collection: collection, logger: logger}
}

// Apply replaces the mutable payload of the record identified by stableKey
// inside aggregate with proposed, keeping the provenance block verbatim from
// the existing record. The local replacement is published immediately; the
// remote write happens asynchronously and is best-effort.
//
// Returns ErrNotFound when no such record is loaded, ErrUnauthorized when
// actingIdentity is not the record's author. In both cases nothing changes.
func (e *Editor) Apply(ctx context.Context, aggregate RecordAggregate, stableKey string, proposed Fields, actingIdentity string) error {
	existing, ok := aggregate.Get(stableKey)
	if !ok {
		return ErrNotFound
	}
	if existing.Provenance.AuthorID != actingIdentity {
		return ErrUnauthorized
	}

	updated := existing
	updated.Fields = MutableFields(proposed)
	aggregate.Replace(stableKey, updated)

	if e.remote == nil {
		return nil
	}
	// Propagate outside the caller's critical path. The caller's context
	// may be cancelled once the optimistic update is on screen; the write
	// should still complete.
	e.wg.Add(1)
	go e.propagate(context.WithoutCancel(ctx), existing, updated.Fields)
	return nil
}

// LastSyncError returns the most recent remote propagation failure, or nil.
func (e *Editor) LastSyncError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncErr
}

// Wait blocks until in-flight remote propagation completes. Intended for
// tests and orderly shutdown.
func (e *Editor) Wait() {
	e.wg.Wait()
}

// propagate locates the record's remote document and issues a field-level
// update of exactly the mutable fields. Lookup goes by server-assigned id
// when known, else by the compound (author, creation time) filter the
// original data shape requires for legacy records. Zero matches means the
// edit stays local-only: no retry, no rollback, logged and recorded in
// LastSyncError so the divergence is at least observable.
func (e *Editor) propagate(ctx context.Context, existing Record, mutable Fields) {
	defer e.wg.Done()

	docID := existing.RemoteID
	if docID == "" {
		id, err := e.locate(ctx, existing)
		if err != nil {
			e.logger.Warn("Remote record lookup failed",
				"collection", e.collection, "key", existing.Key, "error", err)
			e.setSyncError(err)
			return
		}
		if id == "" {
			e.logger.Warn("Remote record not found, edit remains local-only",
				"collection", e.collection, "key", existing.Key)
			e.setSyncError(ErrNotFound)
			return
		}
		docID = id
	}

	err := e.remote.Document(e.collection, docID).Merge(ctx, mutable)
	if err != nil {
		e.logger.Warn("Remote record update failed",
			"collection", e.collection, "doc_id", docID, "error", err)
		e.setSyncError(err)
		return
	}
	e.setSyncError(nil)
}

// locate finds the remote document id for a record without a known RemoteID.
func (e *Editor) locate(ctx context.Context, rec Record) (string, error) {
	page, err := e.remote.Collection(e.collection).Page(ctx, PageQuery{
		Filters: map[string]any{
			fieldAuthorID:  rec.Provenance.AuthorID,
			fieldCreatedAt: rec.Provenance.CreatedAt.UnixMilli(),
		},
		OrderField: fieldCreatedAt,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", err
	}
	if len(page.Records) == 0 {
		return "", nil
	}
	return page.Records[0].RemoteID, nil
}

func (e *Editor) setSyncError(err error) {
	e.mu.Lock()
	e.lastSyncErr = err
	e.mu.Unlock()
}
