// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import "context"

// Remote document collections used by the engine. The remote store owns the
// serialization; the engine only sees Fields maps.
const (
	FavoritesCollection = "user_favorites"
	ReportsCollection   = "test_reports"
	CommentsCollection  = "comments"
)

// Cursor is an opaque pointer to the last fetched item of a page. The empty
// cursor means "from the beginning".
type Cursor string

// PageQuery describes one page fetch over a filtered, ordered collection.
type PageQuery struct {
	Filters    map[string]any // equality filters on document fields
	OrderField string         // numeric document field to order by
	Descending bool
	Limit      int
	After      Cursor // resume point from the previous page, "" for first
}

// PageResult is one fetched page. HasMore is not part of the wire contract;
// callers derive it from len(Records) versus the requested limit.
type PageResult struct {
	Records []Record
	Next    Cursor // cursor pointing past the last returned item
}

// Subscription is a live change feed attached to one remote document.
type Subscription interface {
	// Cancel detaches the subscription. Safe to call more than once; no
	// callbacks are delivered after Cancel returns.
	Cancel()
}

// SnapshotFunc receives remote document snapshots. deleted is true when the
// document was removed remotely, in which case fields is nil.
type SnapshotFunc func(fields Fields, deleted bool)

// DocumentChannel is one addressable remote document.
type DocumentChannel interface {
	// Get reads the current document fields. Returns ErrNotFound when the
	// document does not exist.
	Get(ctx context.Context) (Fields, error)

	// Merge writes the given fields into the document, creating it if
	// absent. Fields not named are left untouched.
	Merge(ctx context.Context, fields Fields) error

	// Subscribe attaches a change listener. Attaching a new listener for
	// the same document should be preceded by cancelling the previous one;
	// the engine enforces this per (scope, document) pair.
	Subscribe(fn SnapshotFunc) (Subscription, error)
}

// CollectionQuery is a filtered, ordered, paginated view over one remote
// collection.
type CollectionQuery interface {
	Page(ctx context.Context, q PageQuery) (PageResult, error)
}

// RemoteStore bundles the remote capabilities the engine consumes: addressable
// documents and paginated collection queries. Implementations in this package
// are MemoryStore (tests, demos, offline) and HTTPStore (trackserver API).
type RemoteStore interface {
	Document(collection, id string) DocumentChannel
	Collection(name string) CollectionQuery
}
