package trackclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkarpov/playtrack/trackserver"
)

func testToken(ctx context.Context) (string, error) { return "test-token", nil }

func newTestHTTPStore(t *testing.T, handler http.Handler) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := NewHTTPStore(srv.URL, testToken, &HTTPConfig{
		PollInterval: 5 * time.Millisecond,
		BackoffMin:   5 * time.Millisecond,
		BackoffMax:   20 * time.Millisecond,
	}, nil)
	return store
}

func TestHTTPDocumentGet(t *testing.T) {
	var gotAuth string
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/documents/user_favorites/user-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"ids": []string{"a", "b"}})
	}))

	fields, err := store.Document(FavoritesCollection, "user-1").Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, fields["ids"])
	require.Equal(t, "Bearer test-token", gotAuth)
}

func TestHTTPDocumentGetNotFound(t *testing.T) {
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"document not found"}`, http.StatusNotFound)
	}))

	_, err := store.Document(FavoritesCollection, "user-1").Get(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPDocumentMerge(t *testing.T) {
	var gotBody Fields
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(trackserver.MergeResponse{Seq: 7})
	}))

	err := store.Document(FavoritesCollection, "user-1").Merge(context.Background(),
		Fields{"ids": []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, []any{"a"}, gotBody["ids"])
}

func TestHTTPCollectionPage(t *testing.T) {
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/collections/test_reports/query", r.URL.Path)
		var req trackserver.QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "created_at_ms", req.OrderField)
		require.True(t, req.Descending)
		require.Equal(t, 2, req.Limit)
		json.NewEncoder(w).Encode(trackserver.QueryResponse{
			Documents: []trackserver.DocumentEnvelope{
				{ID: "doc-2", Fields: map[string]any{
					"key": "user-1_200", "game_id": "game-1", "author_id": "user-1",
					"created_at_ms": 200, "note": "second",
				}},
				{ID: "doc-1", Fields: map[string]any{
					"key": "user-1_100", "game_id": "game-1", "author_id": "user-1",
					"created_at_ms": 100, "note": "first",
				}},
			},
			NextCursor: "next-cursor",
			HasMore:    true,
		})
	}))

	page, err := store.Collection(ReportsCollection).Page(context.Background(), PageQuery{
		Filters:    map[string]any{"game_id": "game-1"},
		OrderField: "created_at_ms",
		Descending: true,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, "user-1_200", page.Records[0].Key)
	require.Equal(t, "doc-2", page.Records[0].RemoteID)
	require.Equal(t, time.UnixMilli(200), page.Records[0].Provenance.CreatedAt)
	require.Equal(t, Cursor("next-cursor"), page.Next)
}

func TestHTTPTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	store := NewHTTPStore(srv.URL, nil, nil, nil)

	_, err := store.Document(FavoritesCollection, "user-1").Get(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = store.Collection(ReportsCollection).Page(context.Background(), PageQuery{Limit: 1})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPDocumentSubscribePollsChangeFeed(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/documents/user_favorites/user-1/changes", r.URL.Path)
		mu.Lock()
		polls++
		first := polls == 1
		mu.Unlock()
		if first {
			require.Equal(t, "0", r.URL.Query().Get("after"))
			json.NewEncoder(w).Encode(trackserver.ChangesResponse{
				Changed: true,
				Seq:     42,
				Fields:  map[string]any{"ids": []any{"a"}},
			})
			return
		}
		// Watermark advanced after the first delivery.
		require.Equal(t, "42", r.URL.Query().Get("after"))
		json.NewEncoder(w).Encode(trackserver.ChangesResponse{Changed: false, Seq: 42})
	}))

	var snapMu sync.Mutex
	var snapshots []Fields
	sub, err := store.Document(FavoritesCollection, "user-1").Subscribe(func(fields Fields, deleted bool) {
		snapMu.Lock()
		snapshots = append(snapshots, fields)
		snapMu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	sub.Cancel() // blocks until the loop exits

	snapMu.Lock()
	defer snapMu.Unlock()
	require.Len(t, snapshots, 1)
	require.Equal(t, []any{"a"}, snapshots[0]["ids"])
}
