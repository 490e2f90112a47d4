// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads the static game reference catalog: a read-only
// mapping from game id to display metadata, shipped as a SQLite file and
// loaded once at process start.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is the display metadata for one game.
type Entry struct {
	ID       string
	Title    string
	ImageURL string
}

// Catalog is an immutable in-memory index over the reference data set.
type Catalog struct {
	byID map[string]Entry
}

// Load reads the full catalog from the SQLite file at path. The file is only
// read during Load; the returned catalog holds no database handle.
func Load(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, title, image_url FROM games`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog rows: %w", err)
	}

	return &Catalog{byID: byID}, nil
}

// Lookup returns the entry for a game id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Title returns the display title for a game id. Suitable as the lookup
// function for trackclient.EnrichTitles.
func (c *Catalog) Title(id string) (string, bool) {
	e, ok := c.byID[id]
	return e.Title, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.byID)
}
