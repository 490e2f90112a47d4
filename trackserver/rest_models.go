// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

// REST/JSON models for the document store HTTP API.

// MergeResponse acknowledges a document merge or delete with the change
// sequence number the write was assigned.
type MergeResponse struct {
	Seq int64 `json:"seq"`
}

// ChangesResponse reports whether (and how) a document changed past a
// client-supplied sequence watermark.
type ChangesResponse struct {
	Changed bool           `json:"changed"`           // true when seq advanced past 'after'
	Seq     int64          `json:"seq"`               // current document change sequence
	Deleted bool           `json:"deleted"`           // document tombstone status
	Fields  map[string]any `json:"fields,omitempty"`  // current fields, nil when deleted or unchanged
}

// QueryRequest describes one page fetch over a collection.
type QueryRequest struct {
	Filters    map[string]any `json:"filters,omitempty"` // equality filters on document fields
	OrderField string         `json:"order_field"`       // numeric field to order by
	Descending bool           `json:"descending"`
	Limit      int            `json:"limit"`
	After      string         `json:"after,omitempty"` // opaque cursor from the previous page
}

// DocumentEnvelope is one document in a query response.
type DocumentEnvelope struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// QueryResponse is one page of a collection query.
type QueryResponse struct {
	Documents  []DocumentEnvelope `json:"documents"`
	NextCursor string             `json:"next_cursor"` // cursor past the last returned document
	HasMore    bool               `json:"has_more"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status  string `json:"status"`   // healthy, degraded, unhealthy
	AppName string `json:"app_name"` // application name
	Version string `json:"version"`  // API version
}
