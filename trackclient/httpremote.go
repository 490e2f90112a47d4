// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mkarpov/playtrack/trackserver"
)

// HTTPStore is the RemoteStore implementation speaking the trackserver REST
// API. Change subscriptions poll the per-document change feed with the
// configured interval and exponential backoff on errors.
type HTTPStore struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT
	HTTP    *http.Client

	config *HTTPConfig
	logger *slog.Logger
}

// HTTPConfig holds configuration for the HTTP remote store.
type HTTPConfig struct {
	PollInterval time.Duration // change-feed poll cadence, e.g. 2s
	BackoffMin   time.Duration // 1s
	BackoffMax   time.Duration // 60s
}

// DefaultHTTPConfig returns the default HTTP remote store configuration.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		PollInterval: 2 * time.Second,
		BackoffMin:   1 * time.Second,
		BackoffMax:   60 * time.Second,
	}
}

// NewHTTPStore creates an HTTP remote store client. nil config/logger get
// defaults.
func NewHTTPStore(baseURL string, token func(context.Context) (string, error), config *HTTPConfig, logger *slog.Logger) *HTTPStore {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPStore{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		config:  config,
		logger:  logger,
	}
}

// Document implements RemoteStore.
func (s *HTTPStore) Document(collection, id string) DocumentChannel {
	return &httpDocument{store: s, collection: collection, id: id}
}

// Collection implements RemoteStore.
func (s *HTTPStore) Collection(name string) CollectionQuery {
	return &httpCollection{store: s, name: name}
}

type httpDocument struct {
	store      *HTTPStore
	collection string
	id         string
}

func (d *httpDocument) path() string {
	return fmt.Sprintf("/api/v1/documents/%s/%s", url.PathEscape(d.collection), url.PathEscape(d.id))
}

func (d *httpDocument) Get(ctx context.Context) (Fields, error) {
	var fields Fields
	status, err := d.store.do(ctx, http.MethodGet, d.path(), nil, &fields)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: document get returned status %d", ErrUnavailable, status)
	}
	return fields, nil
}

func (d *httpDocument) Merge(ctx context.Context, fields Fields) error {
	var resp trackserver.MergeResponse
	status, err := d.store.do(ctx, http.MethodPatch, d.path(), fields, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: document merge returned status %d", ErrUnavailable, status)
	}
	return nil
}

// Subscribe starts a polling loop over the document's change feed. Each
// delivered snapshot is the full current document; tombstones are delivered
// with deleted=true. Cancel stops the loop.
func (d *httpDocument) Subscribe(fn SnapshotFunc) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &httpSub{cancel: cancel, done: make(chan struct{})}
	go d.pollLoop(ctx, sub, fn)
	return sub, nil
}

type httpSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *httpSub) Cancel() {
	s.cancel()
	<-s.done
}

func (d *httpDocument) pollLoop(ctx context.Context, sub *httpSub, fn SnapshotFunc) {
	defer close(sub.done)

	after := int64(0)
	backoff := d.store.config.BackoffMin
	for {
		var resp trackserver.ChangesResponse
		path := fmt.Sprintf("%s/changes?after=%d", d.path(), after)
		status, err := d.store.do(ctx, http.MethodGet, path, nil, &resp)
		if err == nil && status != http.StatusOK {
			err = fmt.Errorf("%w: change feed returned status %d", ErrUnavailable, status)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.store.logger.Debug("Change feed poll failed",
				"collection", d.collection, "doc_id", d.id, "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			// Exponential backoff on error
			backoff = backoff * 2
			if backoff > d.store.config.BackoffMax {
				backoff = d.store.config.BackoffMax
			}
			continue
		}
		backoff = d.store.config.BackoffMin

		if resp.Changed {
			after = resp.Seq
			if ctx.Err() != nil {
				return
			}
			fn(Fields(resp.Fields), resp.Deleted)
		}
		if !sleepWithContext(ctx, d.store.config.PollInterval) {
			return
		}
	}
}

type httpCollection struct {
	store *HTTPStore
	name  string
}

func (c *httpCollection) Page(ctx context.Context, q PageQuery) (PageResult, error) {
	req := trackserver.QueryRequest{
		Filters:    q.Filters,
		OrderField: q.OrderField,
		Descending: q.Descending,
		Limit:      q.Limit,
		After:      string(q.After),
	}
	var resp trackserver.QueryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(c.name))
	status, err := c.store.do(ctx, http.MethodPost, path, req, &resp)
	if err != nil {
		return PageResult{}, err
	}
	if status != http.StatusOK {
		return PageResult{}, fmt.Errorf("%w: collection query returned status %d", ErrUnavailable, status)
	}

	result := PageResult{Next: Cursor(resp.NextCursor)}
	for _, doc := range resp.Documents {
		result.Records = append(result.Records, RecordFromFields(doc.ID, Fields(doc.Fields)))
	}
	return result, nil
}

// do performs one authenticated JSON round-trip. Transport-level failures are
// wrapped in ErrUnavailable; HTTP status handling is left to callers, except
// that bodies of non-2xx responses are drained and discarded.
func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != nil {
		token, err := s.Token(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response body: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// sleepWithContext waits for d, returning false when ctx is cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
