// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDocumentNotFound is returned when an addressed document does not exist
// (or has been deleted).
var ErrDocumentNotFound = errors.New("document not found")

// DocStore provides the remote document store capabilities the playtrack
// client consumes: addressable document read/merge, a per-document change
// feed, and cursor-paginated collection queries.
type DocStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	config *StoreConfig
}

// StoreConfig holds configuration for the document store service.
type StoreConfig struct {
	AppName     string // application name for the status endpoint
	MaxPageSize int    // hard cap on query page size (0 = default 100)
}

// Document is the current state of one stored document.
type Document struct {
	Fields  map[string]any
	Seq     int64
	Deleted bool
}

// NewDocStore creates a document store service on an existing pool and
// initializes its schema. nil config/logger get defaults.
func NewDocStore(pool *pgxpool.Pool, config *StoreConfig, logger *slog.Logger) (*DocStore, error) {
	if config == nil {
		config = &StoreConfig{AppName: "playtrack-docstore"}
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &DocStore{pool: pool, logger: logger, config: config}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	return s, nil
}

// Pool returns the underlying connection pool for advanced callers.
func (s *DocStore) Pool() *pgxpool.Pool {
	return s.pool
}

// AppName returns the configured application name.
func (s *DocStore) AppName() string {
	return s.config.AppName
}

// GetDocument reads the current document. Deleted documents read as absent.
func (s *DocStore) GetDocument(ctx context.Context, collection, docID string) (*Document, error) {
	var fieldsJSON []byte
	var seq int64
	var deleted bool
	err := s.pool.QueryRow(ctx, `
		SELECT fields, seq, deleted FROM docstore.documents
		WHERE collection = @collection AND doc_id = @doc_id
	`, pgx.NamedArgs{"collection": collection, "doc_id": docID}).Scan(&fieldsJSON, &seq, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if deleted {
		return nil, ErrDocumentNotFound
	}

	var fields map[string]any
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return &Document{Fields: fields, Seq: seq, Deleted: deleted}, nil
}

// MergeDocument writes the given fields into the document, creating it if
// absent and reviving it if deleted. Fields not named keep their values
// (jsonb field-level merge). Returns the change sequence assigned.
func (s *DocStore) MergeDocument(ctx context.Context, collection, docID string, fields map[string]any) (int64, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("failed to encode merge fields: %w", err)
	}

	var seq int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO docstore.documents (collection, doc_id, fields, seq)
		VALUES (@collection, @doc_id, @fields::jsonb, nextval('docstore.change_seq'))
		ON CONFLICT (collection, doc_id) DO UPDATE SET
			fields     = docstore.documents.fields || EXCLUDED.fields,
			seq        = nextval('docstore.change_seq'),
			deleted    = FALSE,
			updated_at = now()
		RETURNING seq
	`, pgx.NamedArgs{"collection": collection, "doc_id": docID, "fields": string(fieldsJSON)}).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to merge document: %w", err)
	}
	return seq, nil
}

// DeleteDocument marks the document deleted and advances its change
// sequence so subscribers observe the tombstone.
func (s *DocStore) DeleteDocument(ctx context.Context, collection, docID string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		UPDATE docstore.documents
		SET deleted = TRUE, seq = nextval('docstore.change_seq'), updated_at = now()
		WHERE collection = @collection AND doc_id = @doc_id
		RETURNING seq
	`, pgx.NamedArgs{"collection": collection, "doc_id": docID}).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDocumentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	return seq, nil
}

// DocumentChanges reports the document state if its change sequence has
// advanced past after. Unchanged documents (and absent ones) report
// Changed=false; polling clients keep their watermark.
func (s *DocStore) DocumentChanges(ctx context.Context, collection, docID string, after int64) (*ChangesResponse, error) {
	var fieldsJSON []byte
	var seq int64
	var deleted bool
	err := s.pool.QueryRow(ctx, `
		SELECT fields, seq, deleted FROM docstore.documents
		WHERE collection = @collection AND doc_id = @doc_id
	`, pgx.NamedArgs{"collection": collection, "doc_id": docID}).Scan(&fieldsJSON, &seq, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ChangesResponse{Changed: false, Seq: after}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document changes: %w", err)
	}
	if seq <= after {
		return &ChangesResponse{Changed: false, Seq: seq, Deleted: deleted}, nil
	}

	resp := &ChangesResponse{Changed: true, Seq: seq, Deleted: deleted}
	if !deleted {
		if err := json.Unmarshal(fieldsJSON, &resp.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode document fields: %w", err)
		}
	}
	return resp, nil
}

// QueryPage runs one cursor-paginated collection query. Ordering is keyset
// on (order field, doc_id); has_more is computed by fetching limit+1 rows.
func (s *DocStore) QueryPage(ctx context.Context, collection string, req *QueryRequest) (*QueryResponse, error) {
	if !isValidFieldName(req.OrderField) {
		return nil, fmt.Errorf("invalid order field: %s", req.OrderField)
	}
	limit := req.Limit
	if limit <= 0 || limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}

	filtersJSON, err := json.Marshal(req.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	if req.Filters == nil {
		filtersJSON = []byte(`{}`)
	}

	var cursorOrd *int64
	var cursorID *string
	if req.After != "" {
		ord, id, err := decodeCursor(req.After)
		if err != nil {
			return nil, err
		}
		cursorOrd, cursorID = &ord, &id
	}

	dir, cmp := "DESC", "<"
	if !req.Descending {
		dir, cmp = "ASC", ">"
	}
	// Order direction and row-comparison operator are derived above from a
	// boolean; the order field itself is passed as a jsonb key parameter.
	q := fmt.Sprintf(`
		SELECT doc_id, fields, COALESCE((fields->>@order_field)::numeric, 0)::bigint AS ord
		FROM docstore.documents
		WHERE collection = @collection
		  AND NOT deleted
		  AND fields @> @filters::jsonb
		  AND (@cursor_ord::bigint IS NULL
		       OR (COALESCE((fields->>@order_field)::numeric, 0)::bigint, doc_id) %s (@cursor_ord::bigint, @cursor_id::text))
		ORDER BY ord %s, doc_id %s
		LIMIT @limit_plus_one
	`, cmp, dir, dir)

	rows, err := s.pool.Query(ctx, q, pgx.NamedArgs{
		"collection":     collection,
		"order_field":    req.OrderField,
		"filters":        string(filtersJSON),
		"cursor_ord":     cursorOrd,
		"cursor_id":      cursorID,
		"limit_plus_one": limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection page: %w", err)
	}
	defer rows.Close()

	resp := &QueryResponse{Documents: []DocumentEnvelope{}}
	var lastOrd int64
	var lastID string
	count := 0
	for rows.Next() {
		var docID string
		var fieldsJSON []byte
		var ord int64
		if err := rows.Scan(&docID, &fieldsJSON, &ord); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		count++
		if count > limit {
			resp.HasMore = true
			break
		}
		var fields map[string]any
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode document fields: %w", err)
		}
		resp.Documents = append(resp.Documents, DocumentEnvelope{ID: docID, Fields: fields})
		lastOrd, lastID = ord, docID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query rows: %w", err)
	}

	if len(resp.Documents) > 0 {
		resp.NextCursor = encodeCursor(lastOrd, lastID)
	} else {
		resp.NextCursor = req.After
	}
	return resp, nil
}

// isValidFieldName checks if a document field name matches ^[a-z0-9_]+$
func isValidFieldName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return true
}

// isValidCollectionName checks if a collection name matches ^[a-z0-9_]+$
func isValidCollectionName(name string) bool {
	return isValidFieldName(name)
}
