package trackclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedQuery returns pre-scripted pages (or errors) in call order.
type scriptedQuery struct {
	mu      sync.Mutex
	pages   []PageResult
	errs    []error
	queries []PageQuery
}

func (q *scriptedQuery) Page(ctx context.Context, pq PageQuery) (PageResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	call := len(q.queries)
	q.queries = append(q.queries, pq)
	if call < len(q.errs) && q.errs[call] != nil {
		return PageResult{}, q.errs[call]
	}
	if call >= len(q.pages) {
		return PageResult{}, nil
	}
	return q.pages[call], nil
}

func pageOf(base time.Time, cursor Cursor, keys ...string) PageResult {
	page := PageResult{Next: cursor}
	for i, key := range keys {
		// Later keys in the page are older, matching descending order.
		page.Records = append(page.Records, testRecord(key, base.Add(-time.Duration(i)*time.Minute)))
	}
	return page
}

func itemKeys(items []Record) []string {
	keys := make([]string, 0, len(items))
	for _, rec := range items {
		keys = append(keys, rec.Key)
	}
	return keys
}

func TestPagerFirstPage(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2", "k3", "k4", "k5"),
	}}
	pager := NewPager(query, 5, nil)

	pager.LoadFirstPage(context.Background(), map[string]any{"game_id": "game-1"})

	state := pager.State()
	require.False(t, state.Loading)
	require.True(t, state.HasMore) // full page returned
	require.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, itemKeys(state.Items))

	query.mu.Lock()
	defer query.mu.Unlock()
	require.Equal(t, map[string]any{"game_id": "game-1"}, query.queries[0].Filters)
	require.Equal(t, "created_at_ms", query.queries[0].OrderField)
	require.True(t, query.queries[0].Descending)
	require.Equal(t, Cursor(""), query.queries[0].After)
}

func TestPagerNextPageDedupAndHasMore(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2", "k3", "k4", "k5"),
		// k5 repeats: a concurrent insert shifted the pages.
		pageOf(base.Add(-4*time.Minute), "c2", "k5", "k6", "k7"),
	}}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	pager.LoadFirstPage(ctx, nil)
	pager.LoadNextPage(ctx)

	state := pager.State()
	require.Equal(t, []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"}, itemKeys(state.Items))
	// Raw second page count 3 < 5, so the collection is exhausted.
	require.False(t, state.HasMore)

	// Further loads are no-ops.
	pager.LoadNextPage(ctx)
	require.Len(t, pager.State().Items, 7)
	query.mu.Lock()
	defer query.mu.Unlock()
	require.Len(t, query.queries, 2)
}

func TestPagerShortFirstPageStopsPaging(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2"),
	}}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	pager.LoadFirstPage(ctx, nil)
	require.False(t, pager.State().HasMore)

	pager.LoadNextPage(ctx)
	require.Equal(t, []string{"k1", "k2"}, itemKeys(pager.State().Items))
	query.mu.Lock()
	defer query.mu.Unlock()
	require.Len(t, query.queries, 1)
}

func TestPagerNextPageBeforeFirstIsNoop(t *testing.T) {
	query := &scriptedQuery{}
	pager := NewPager(query, 5, nil)

	pager.LoadNextPage(context.Background())

	query.mu.Lock()
	defer query.mu.Unlock()
	require.Empty(t, query.queries)
}

func TestPagerFirstPageFailure(t *testing.T) {
	query := &scriptedQuery{errs: []error{ErrUnavailable}}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	pager.LoadFirstPage(ctx, nil)

	state := pager.State()
	require.Empty(t, state.Items)
	require.False(t, state.Loading)
	// First-page failure stops paging so callers do not spin.
	require.False(t, state.HasMore)

	pager.LoadNextPage(ctx)
	query.mu.Lock()
	defer query.mu.Unlock()
	require.Len(t, query.queries, 1)
}

func TestPagerNextPageFailurePreservesState(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{
		pages: []PageResult{
			pageOf(base, "c1", "k1", "k2", "k3", "k4", "k5"),
			{},
			pageOf(base.Add(-5*time.Minute), "c2", "k6"),
		},
		errs: []error{nil, ErrUnavailable, nil},
	}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	pager.LoadFirstPage(ctx, nil)
	pager.LoadNextPage(ctx)

	// The failed fetch left everything as it was, including hasMore.
	state := pager.State()
	require.Len(t, state.Items, 5)
	require.True(t, state.HasMore)

	// So the caller may retry.
	pager.LoadNextPage(ctx)
	require.Equal(t, []string{"k1", "k2", "k3", "k4", "k5", "k6"}, itemKeys(pager.State().Items))
}

func TestPagerOptimisticInsertInterleaves(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2", "k3", "k4", "k5"),
	}}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	// A record created locally before any page fetch.
	fresh := testRecord("fresh", base.Add(time.Minute))
	pager.Insert(fresh)
	require.Equal(t, []string{"fresh"}, itemKeys(pager.State().Items))

	// Server pages fetched afterwards interleave below it; an older local
	// insert sorts into place, and a key repeated by the server is not
	// duplicated.
	pager.LoadFirstPage(ctx, nil)
	pager.Insert(fresh)
	older := testRecord("old", base.Add(-10*time.Minute))
	pager.Insert(older)

	require.Equal(t, []string{"fresh", "k1", "k2", "k3", "k4", "k5", "old"},
		itemKeys(pager.State().Items))
}

func TestPagerFirstPageResetsContents(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2", "k3", "k4", "k5"),
		pageOf(base, "c2", "k9"),
	}}
	pager := NewPager(query, 5, nil)
	ctx := context.Background()

	pager.LoadFirstPage(ctx, map[string]any{"game_id": "game-1"})
	require.Len(t, pager.State().Items, 5)

	// Switching the foreign key fully resets cursor and contents.
	pager.LoadFirstPage(ctx, map[string]any{"game_id": "game-2"})
	state := pager.State()
	require.Equal(t, []string{"k9"}, itemKeys(state.Items))
	require.False(t, state.HasMore)

	query.mu.Lock()
	defer query.mu.Unlock()
	require.Equal(t, Cursor(""), query.queries[1].After)
}

func TestPagerReplace(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1", "k2"),
	}}
	pager := NewPager(query, 5, nil)
	pager.LoadFirstPage(context.Background(), nil)

	rec, ok := pager.Get("k2")
	require.True(t, ok)
	rec.Fields = Fields{"note": "edited"}
	require.True(t, pager.Replace("k2", rec))

	got, ok := pager.Get("k2")
	require.True(t, ok)
	require.Equal(t, "edited", got.Fields["note"])

	require.False(t, pager.Replace("missing", rec))
}

func TestPagerPublishesStateToSubscribers(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	query := &scriptedQuery{pages: []PageResult{
		pageOf(base, "c1", "k1"),
	}}
	pager := NewPager(query, 5, nil)

	var mu sync.Mutex
	var states []PageState
	cancel := pager.Subscribe(func(s PageState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	defer cancel()

	pager.LoadFirstPage(context.Background(), nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 2)
	require.True(t, states[0].Loading)
	require.False(t, states[1].Loading)
	require.Equal(t, []string{"k1"}, itemKeys(states[1].Items))
}
