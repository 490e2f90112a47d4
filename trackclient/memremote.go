// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a complete in-process RemoteStore. It backs tests and demos
// and doubles as the offline store: documents live in maps, subscriptions are
// delivered synchronously from the writing goroutine.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]Fields // collection -> doc id -> fields
	subs map[string][]*memSub         // "collection/id" -> listeners
}

// NewMemoryStore creates an empty in-memory remote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Fields),
		subs: make(map[string][]*memSub),
	}
}

type memSub struct {
	store *MemoryStore
	addr  string
	fn    SnapshotFunc

	mu       sync.Mutex
	canceled bool
}

func (s *memSub) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()

	s.store.mu.Lock()
	list := s.store.subs[s.addr]
	for i, sub := range list {
		if sub == s {
			s.store.subs[s.addr] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.store.mu.Unlock()
}

func (s *memSub) deliver(fields Fields, deleted bool) {
	s.mu.Lock()
	canceled := s.canceled
	s.mu.Unlock()
	if !canceled {
		s.fn(fields, deleted)
	}
}

// Document implements RemoteStore.
func (m *MemoryStore) Document(collection, id string) DocumentChannel {
	return &memDocument{store: m, collection: collection, id: id}
}

// Collection implements RemoteStore.
func (m *MemoryStore) Collection(name string) CollectionQuery {
	return &memCollection{store: m, name: name}
}

// Put creates or replaces a document wholesale and notifies subscribers.
// Test and demo helper simulating an external writer.
func (m *MemoryStore) Put(collection, id string, fields Fields) {
	m.mu.Lock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Fields)
	}
	m.docs[collection][id] = fields.Clone()
	snapshot := fields.Clone()
	subs := m.subscribersLocked(collection, id)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot, false)
	}
}

// PutRecord stores a record as a document under a fresh server-assigned id
// and returns that id. Test and demo helper.
func (m *MemoryStore) PutRecord(collection string, rec Record) string {
	id := rec.RemoteID
	if id == "" {
		id = uuid.New().String()
	}
	m.Put(collection, id, rec.DocumentFields())
	return id
}

// Delete removes a document and delivers a tombstone to subscribers.
func (m *MemoryStore) Delete(collection, id string) {
	m.mu.Lock()
	delete(m.docs[collection], id)
	subs := m.subscribersLocked(collection, id)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(nil, true)
	}
}

func (m *MemoryStore) subscribersLocked(collection, id string) []*memSub {
	list := m.subs[collection+"/"+id]
	out := make([]*memSub, len(list))
	copy(out, list)
	return out
}

type memDocument struct {
	store      *MemoryStore
	collection string
	id         string
}

func (d *memDocument) Get(ctx context.Context) (Fields, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	fields, ok := d.store.docs[d.collection][d.id]
	if !ok {
		return nil, ErrNotFound
	}
	return fields.Clone(), nil
}

func (d *memDocument) Merge(ctx context.Context, fields Fields) error {
	d.store.mu.Lock()
	if d.store.docs[d.collection] == nil {
		d.store.docs[d.collection] = make(map[string]Fields)
	}
	current := d.store.docs[d.collection][d.id]
	if current == nil {
		current = Fields{}
	} else {
		current = current.Clone()
	}
	for k, v := range fields {
		current[k] = v
	}
	d.store.docs[d.collection][d.id] = current
	snapshot := current.Clone()
	subs := d.store.subscribersLocked(d.collection, d.id)
	d.store.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot, false)
	}
	return nil
}

func (d *memDocument) Subscribe(fn SnapshotFunc) (Subscription, error) {
	addr := d.collection + "/" + d.id
	sub := &memSub{store: d.store, addr: addr, fn: fn}
	d.store.mu.Lock()
	d.store.subs[addr] = append(d.store.subs[addr], sub)
	d.store.mu.Unlock()
	return sub, nil
}

type memCollection struct {
	store *MemoryStore
	name  string
}

func (c *memCollection) Page(ctx context.Context, q PageQuery) (PageResult, error) {
	c.store.mu.Lock()
	type entry struct {
		id     string
		fields Fields
		ord    int64
	}
	var matched []entry
	for id, fields := range c.store.docs[c.name] {
		if !matchesFilters(fields, q.Filters) {
			continue
		}
		matched = append(matched, entry{id: id, fields: fields.Clone(), ord: numericField(fields, q.OrderField)})
	}
	c.store.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ord != matched[j].ord {
			if q.Descending {
				return matched[i].ord > matched[j].ord
			}
			return matched[i].ord < matched[j].ord
		}
		if q.Descending {
			return matched[i].id > matched[j].id
		}
		return matched[i].id < matched[j].id
	})

	// Keyset resume: skip everything up to and including the cursor position.
	start := 0
	if q.After != "" {
		afterOrd, afterID, err := decodeMemCursor(q.After)
		if err != nil {
			return PageResult{}, err
		}
		for i, e := range matched {
			if e.ord == afterOrd && e.id == afterID {
				start = i + 1
				break
			}
			var past bool
			if q.Descending {
				past = e.ord < afterOrd || (e.ord == afterOrd && e.id < afterID)
			} else {
				past = e.ord > afterOrd || (e.ord == afterOrd && e.id > afterID)
			}
			if past {
				start = i
				break
			}
			start = i + 1
		}
	}

	var result PageResult
	for i := start; i < len(matched) && len(result.Records) < q.Limit; i++ {
		e := matched[i]
		result.Records = append(result.Records, RecordFromFields(e.id, e.fields))
		result.Next = encodeMemCursor(e.ord, e.id)
	}
	if result.Next == "" {
		result.Next = q.After
	}
	return result, nil
}

func matchesFilters(fields Fields, filters map[string]any) bool {
	for key, want := range filters {
		if !looseEqual(fields[key], want) {
			return false
		}
	}
	return true
}

// looseEqual compares field values across the numeric type drift a JSON
// round-trip introduces (int64 vs float64).
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func numericField(fields Fields, key string) int64 {
	f, ok := asFloat(fields[key])
	if !ok {
		return 0
	}
	return int64(f)
}

func encodeMemCursor(ord int64, id string) Cursor {
	return Cursor(strconv.FormatInt(ord, 10) + "|" + id)
}

func decodeMemCursor(c Cursor) (int64, string, error) {
	ordStr, id, ok := strings.Cut(string(c), "|")
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor %q", c)
	}
	ord, err := strconv.ParseInt(ordStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor %q: %w", c, err)
	}
	return ord, id, nil
}
