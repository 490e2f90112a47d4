// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Query cursors are opaque to clients: a base64url-encoded keyset position
// (order-field value of the last returned document plus its id). Keyset
// paging keeps pages stable under concurrent inserts, unlike offsets.

type cursorPayload struct {
	Ord int64  `json:"o"`
	ID  string `json:"id"`
}

func encodeCursor(ord int64, id string) string {
	data, _ := json.Marshal(cursorPayload{Ord: ord, ID: id})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string) (ord int64, id string, err error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor: %w", err)
	}
	var p cursorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, "", fmt.Errorf("malformed cursor: %w", err)
	}
	return p.Ord, p.ID, nil
}
