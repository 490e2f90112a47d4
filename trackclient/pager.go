// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"context"
	"log/slog"
	"sync"
)

// PageState is the observable state of a Pager.
type PageState struct {
	Items   []Record
	HasMore bool
	Loading bool
}

// Pager assembles one growing, deduplicated, recency-ordered view of a remote
// collection from repeated page fetches. It exclusively owns its contents and
// cursor; fetch failures never disturb already-loaded items.
type Pager struct {
	query    CollectionQuery
	pageSize int
	logger   *slog.Logger

	mu      sync.Mutex
	gen     int64 // bumped on every first-page reset; stale fetches are discarded
	items   []Record
	cursor  Cursor
	hasMore bool
	loading bool
	loaded  bool // first page requested at least once
	filters map[string]any

	bc *broadcaster[PageState]
}

// DefaultPageSize matches the page size the original client requested from
// the remote store.
const DefaultPageSize = 10

// NewPager creates a pager over one remote collection query. pageSize <= 0
// falls back to DefaultPageSize.
func NewPager(query CollectionQuery, pageSize int, logger *slog.Logger) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{
		query:    query,
		pageSize: pageSize,
		logger:   logger,
		bc:       newBroadcaster[PageState](),
	}
}

// Subscribe registers fn to receive the pager state on every publish.
// Returns a cancel function.
func (p *Pager) Subscribe(fn func(PageState)) func() {
	return p.bc.Subscribe(fn)
}

// State returns a snapshot of the current pager state.
func (p *Pager) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// LoadFirstPage resets contents and cursor, then fetches the first page for
// the given equality filters (e.g. {"game_id": id}), ordered newest first.
// A fetch failure leaves the collection empty with HasMore=false so callers
// do not spin on retries; the failure is logged, not returned.
func (p *Pager) LoadFirstPage(ctx context.Context, filters map[string]any) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.items = nil
	p.cursor = ""
	p.hasMore = false
	p.loading = true
	p.loaded = true
	p.filters = filters
	state := p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)

	page, err := p.fetch(ctx, filters, "")

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.loading = false
	if err != nil {
		p.logger.Warn("First page fetch failed", "filters", filters, "error", err)
		p.hasMore = false
		state = p.stateLocked()
		p.mu.Unlock()
		p.bc.Publish(state)
		return
	}
	p.items = mergeRecords(p.items, page.Records)
	p.cursor = page.Next
	p.hasMore = len(page.Records) == p.pageSize
	state = p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)
}

// LoadNextPage fetches the page after the stored cursor and merges it into
// the collection, deduplicating by stable key. No-op while a fetch is in
// flight, when HasMore is false, or before the first page was ever requested.
// A failure preserves items, cursor and HasMore so the caller may retry.
func (p *Pager) LoadNextPage(ctx context.Context) {
	p.mu.Lock()
	if p.loading || !p.hasMore || !p.loaded {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	cursor := p.cursor
	filters := p.filters
	p.loading = true
	state := p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)

	page, err := p.fetch(ctx, filters, cursor)

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.loading = false
	if err != nil {
		p.logger.Warn("Next page fetch failed", "filters", filters, "error", err)
		state = p.stateLocked()
		p.mu.Unlock()
		p.bc.Publish(state)
		return
	}
	p.items = mergeRecords(p.items, page.Records)
	p.cursor = page.Next
	// hasMore is derived from the raw returned count, before deduplication.
	p.hasMore = len(page.Records) == p.pageSize
	state = p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)
}

// Insert optimistically adds a locally created record ahead of any server
// page that may later repeat it; the merge step deduplicates by key. The
// record interleaves into recency order immediately.
func (p *Pager) Insert(rec Record) {
	p.mu.Lock()
	p.items = mergeRecords(p.items, []Record{rec})
	state := p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)
}

// Get returns the record with the given stable key, if present.
func (p *Pager) Get(key string) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range p.items {
		if rec.Key == key {
			return rec, true
		}
	}
	return Record{}, false
}

// Replace swaps the record with the given stable key for rec and republishes.
// Returns false when no such record exists.
func (p *Pager) Replace(key string, rec Record) bool {
	p.mu.Lock()
	idx := -1
	for i := range p.items {
		if p.items[i].Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	p.items[idx] = rec
	sortRecordsDesc(p.items)
	state := p.stateLocked()
	p.mu.Unlock()
	p.bc.Publish(state)
	return true
}

func (p *Pager) fetch(ctx context.Context, filters map[string]any, after Cursor) (PageResult, error) {
	return p.query.Page(ctx, PageQuery{
		Filters:    filters,
		OrderField: fieldCreatedAt,
		Descending: true,
		Limit:      p.pageSize,
		After:      after,
	})
}

func (p *Pager) stateLocked() PageState {
	items := make([]Record, len(p.items))
	copy(items, p.items)
	return PageState{Items: items, HasMore: p.hasMore, Loading: p.loading}
}
