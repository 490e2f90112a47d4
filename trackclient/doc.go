// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

// Package trackclient provides the local-first synchronization and
// paginated-aggregation engine of the playtrack client.
//
// It keeps a locally persisted, optimistically-mutated snapshot of per-user
// state (favorite games, playtest reports, comments) consistent with an
// eventually-consistent remote document store that multiple clients may write
// to concurrently, and pages large remote collections into bounded in-memory
// views without duplication or loss.
package trackclient
