// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🎲 playtrack - Local-First Game Tracking Library")
	fmt.Println("================================================")
	fmt.Println()
	fmt.Println("playtrack keeps a player's favorites, playtest reports and comments")
	fmt.Println("responsive while offline and converged while online: optimistic local")
	fmt.Println("updates, union-merge reconciliation, and cursor-paginated aggregation.")
	fmt.Println()

	fmt.Println("📚 Packages:")
	fmt.Println()
	fmt.Println("1. 📱 trackclient - the client engine")
	fmt.Println("   Favorites sync, paged report/comment aggregation, in-place edits")
	fmt.Println("   Remote stores: HTTP (trackserver API), in-memory (tests/demos)")
	fmt.Println()

	fmt.Println("2. 🗄️  trackserver - the Postgres document store")
	fmt.Println("   Field-merge documents, change feeds, keyset-paginated queries")
	fmt.Println("   JWT-authenticated REST API on net/http")
	fmt.Println()

	fmt.Println("3. 🎮 catalog - the read-only game reference catalog (SQLite)")
	fmt.Println()

	fmt.Println("▶ Demo: cd examples/localdemo && go run .")
	fmt.Println()
}
