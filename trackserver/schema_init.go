// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the document store tables within an existing
// transaction.
func (s *DocStore) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema for the document store
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS docstore`,

		// Monotonic change sequence shared by all documents; drives the
		// per-document change feed clients poll.
		/*language=postgresql*/ `CREATE SEQUENCE IF NOT EXISTS docstore.change_seq`,

		// One row per addressable document. fields is the full current
		// value; merges are field-level (jsonb concatenation).
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS docstore.documents (
			collection  TEXT        NOT NULL,
			doc_id      TEXT        NOT NULL,
			fields      JSONB       NOT NULL DEFAULT '{}'::jsonb,
			seq         BIGINT      NOT NULL,
			deleted     BOOLEAN     NOT NULL DEFAULT FALSE,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, doc_id)
		)`,

		// Equality filters in collection queries go through containment
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS idx_documents_fields
			ON docstore.documents USING GIN (fields jsonb_path_ops)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
