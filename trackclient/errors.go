// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import "errors"

var (
	// ErrNotFound is returned when an expected document or record is
	// missing. Caller-visible and non-fatal.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the acting identity does not match
	// the record's author on an edit. Caller-visible and non-fatal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates the remote store is unreachable. Engines
	// degrade to local-only behavior instead of failing the caller; the
	// condition is observable through LastSyncError.
	ErrUnavailable = errors.New("remote unavailable")
)
