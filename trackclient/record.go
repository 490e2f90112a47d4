// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"fmt"
	"sort"
	"time"
)

// Fields is the mutable payload of a record or document: flat scalar fields
// keyed by name. Values are whatever the remote store serialization yields
// (string, bool, float64/int64, nil).
type Fields map[string]any

// Provenance identifies who created a record and when. It is immutable once
// set: edits carry it over verbatim and never take it from a proposal.
type Provenance struct {
	AuthorID    string    // opaque user identifier of the author
	AuthorName  string    // display name captured at creation time
	CreatedAt   time.Time // creation time, also the recency sort key
	FromAccount bool      // true when created from an authenticated account
}

// Record is one user-authored item: a playtest report for a game, or a
// comment attached to a report. Many records belong to one game; a comment
// additionally belongs to one parent report.
type Record struct {
	// Key is the stable identifier used for deduplication across pages.
	// Composite of author id and a millisecond timestamp, assigned at
	// creation time on the writing client.
	Key string

	// RemoteID is the server-assigned document id, blank until the record
	// has been observed in a server response. Legacy records fetched
	// through older API shapes may never have one.
	RemoteID string

	GameID    string // foreign key to the reference catalog
	ReportKey string // parent report key for comments, blank for reports

	// ReportedAt is the parent report's timestamp, carried on comments.
	// Used only to derive a legacy grouping key when ReportKey is blank.
	ReportedAt time.Time

	Provenance Provenance
	Fields     Fields
}

// NewRecord creates a record with a freshly composed stable key.
func NewRecord(gameID, authorID, authorName string, fromAccount bool, createdAt time.Time, fields Fields) Record {
	return Record{
		Key:    NewRecordKey(authorID, createdAt),
		GameID: gameID,
		Provenance: Provenance{
			AuthorID:    authorID,
			AuthorName:  authorName,
			CreatedAt:   createdAt,
			FromAccount: fromAccount,
		},
		Fields: fields.Clone(),
	}
}

// NewRecordKey composes a stable record key from the author id and a
// millisecond timestamp. The key survives across fetches and pages.
func NewRecordKey(authorID string, t time.Time) string {
	return fmt.Sprintf("%s_%d", authorID, t.UnixMilli())
}

// Clone returns a shallow copy of the fields map. Clone of nil is an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Reserved document field names that carry record identity and provenance.
// They are written once at creation and never taken from an edit proposal.
const (
	fieldKey         = "key"
	fieldGameID      = "game_id"
	fieldReportKey   = "report_key"
	fieldReportedAt  = "reported_at_ms"
	fieldAuthorID    = "author_id"
	fieldAuthorName  = "author_name"
	fieldCreatedAt   = "created_at_ms"
	fieldFromAccount = "from_account"
)

var protectedFields = map[string]bool{
	fieldKey:         true,
	fieldGameID:      true,
	fieldReportKey:   true,
	fieldReportedAt:  true,
	fieldAuthorID:    true,
	fieldAuthorName:  true,
	fieldCreatedAt:   true,
	fieldFromAccount: true,
}

// MutableFields strips protected identity/provenance keys from a proposal,
// returning only the fields an edit is allowed to replace.
func MutableFields(proposed Fields) Fields {
	out := make(Fields, len(proposed))
	for k, v := range proposed {
		if protectedFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// DocumentFields flattens a record into the wire representation shared by the
// remote store implementations: reserved keys for identity and provenance,
// mutable payload fields at top level.
func (r Record) DocumentFields() Fields {
	out := MutableFields(r.Fields)
	out[fieldKey] = r.Key
	out[fieldGameID] = r.GameID
	out[fieldAuthorID] = r.Provenance.AuthorID
	out[fieldAuthorName] = r.Provenance.AuthorName
	out[fieldCreatedAt] = r.Provenance.CreatedAt.UnixMilli()
	out[fieldFromAccount] = r.Provenance.FromAccount
	if r.ReportKey != "" {
		out[fieldReportKey] = r.ReportKey
	}
	if !r.ReportedAt.IsZero() {
		out[fieldReportedAt] = r.ReportedAt.UnixMilli()
	}
	return out
}

// RecordFromFields rebuilds a record from its wire representation.
// remoteID is the server-assigned document id ("" when unknown).
func RecordFromFields(remoteID string, fields Fields) Record {
	r := Record{
		RemoteID:  remoteID,
		Key:       fieldString(fields, fieldKey),
		GameID:    fieldString(fields, fieldGameID),
		ReportKey: fieldString(fields, fieldReportKey),
		Provenance: Provenance{
			AuthorID:    fieldString(fields, fieldAuthorID),
			AuthorName:  fieldString(fields, fieldAuthorName),
			CreatedAt:   fieldTime(fields, fieldCreatedAt),
			FromAccount: fieldBool(fields, fieldFromAccount),
		},
		Fields: MutableFields(fields),
	}
	r.ReportedAt = fieldTime(fields, fieldReportedAt)
	// Legacy documents predate client-composed keys; fall back to the
	// server id so deduplication still has something stable to hold on to.
	if r.Key == "" {
		r.Key = remoteID
	}
	return r
}

func fieldString(f Fields, key string) string {
	s, _ := f[key].(string)
	return s
}

func fieldBool(f Fields, key string) bool {
	b, _ := f[key].(bool)
	return b
}

// fieldTime reads a millisecond timestamp that may arrive as int64 or, after
// a JSON round-trip, as float64.
func fieldTime(f Fields, key string) time.Time {
	switch v := f[key].(type) {
	case int64:
		return time.UnixMilli(v)
	case float64:
		return time.UnixMilli(int64(v))
	case int:
		return time.UnixMilli(int64(v))
	}
	return time.Time{}
}

// sortRecordsDesc orders records by recency, newest first. Ties on the
// creation timestamp are broken by key so the order is deterministic.
func sortRecordsDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Provenance.CreatedAt, records[j].Provenance.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].Key > records[j].Key
	})
}

// mergeRecords appends incoming records to existing, deduplicating by stable
// key (a record already present is not re-added), and returns the combined
// slice sorted newest first. A record that is already present but gains a
// RemoteID from the incoming copy keeps the existing payload and adopts the id.
func mergeRecords(existing, incoming []Record) []Record {
	seen := make(map[string]int, len(existing))
	out := make([]Record, len(existing))
	copy(out, existing)
	for i := range out {
		seen[out[i].Key] = i
	}
	for _, rec := range incoming {
		if idx, ok := seen[rec.Key]; ok {
			if out[idx].RemoteID == "" && rec.RemoteID != "" {
				out[idx].RemoteID = rec.RemoteID
			}
			continue
		}
		seen[rec.Key] = len(out)
		out = append(out, rec)
	}
	sortRecordsDesc(out)
	return out
}

// EnrichTitles annotates records with display metadata from the reference
// catalog. lookup returns the title for a game id, or false when the id is
// not in the catalog; unknown ids are left untouched.
func EnrichTitles(records []Record, lookup func(gameID string) (string, bool)) {
	for i := range records {
		if title, ok := lookup(records[i].GameID); ok {
			if records[i].Fields == nil {
				records[i].Fields = Fields{}
			}
			records[i].Fields["game_title"] = title
		}
	}
}
