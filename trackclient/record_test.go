package trackclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRecord(key string, createdAt time.Time) Record {
	return Record{
		Key:    key,
		GameID: "game-1",
		Provenance: Provenance{
			AuthorID:  "user-1",
			CreatedAt: createdAt,
		},
		Fields: Fields{"note": "n-" + key},
	}
}

func TestNewRecordKey(t *testing.T) {
	createdAt := time.UnixMilli(1700000000000)
	key := NewRecordKey("user-1", createdAt)
	require.Equal(t, "user-1_1700000000000", key)

	rec := NewRecord("game-1", "user-1", "User One", true, createdAt, Fields{"note": "hi"})
	require.Equal(t, key, rec.Key)
	require.Equal(t, "user-1", rec.Provenance.AuthorID)
	require.True(t, rec.Provenance.FromAccount)
}

func TestMergeRecordsDedupAndOrder(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	existing := []Record{
		testRecord("k3", base.Add(3*time.Minute)),
		testRecord("k2", base.Add(2*time.Minute)),
	}
	incoming := []Record{
		testRecord("k2", base.Add(2*time.Minute)), // duplicate, must not be re-added
		testRecord("k4", base.Add(4*time.Minute)),
		testRecord("k1", base.Add(1*time.Minute)),
	}

	merged := mergeRecords(existing, incoming)
	require.Len(t, merged, 4)

	keys := make([]string, 0, len(merged))
	for _, rec := range merged {
		keys = append(keys, rec.Key)
	}
	require.Equal(t, []string{"k4", "k3", "k2", "k1"}, keys)
}

func TestMergeRecordsAdoptsRemoteID(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	local := testRecord("k1", base)
	remote := testRecord("k1", base)
	remote.RemoteID = "server-doc-1"
	remote.Fields = Fields{"note": "server copy"}

	merged := mergeRecords([]Record{local}, []Record{remote})
	require.Len(t, merged, 1)
	require.Equal(t, "server-doc-1", merged[0].RemoteID)
	// Existing payload wins; only the id is adopted.
	require.Equal(t, "n-k1", merged[0].Fields["note"])
}

func TestDocumentFieldsRoundTrip(t *testing.T) {
	createdAt := time.UnixMilli(1700000000000)
	rec := Record{
		Key:        "user-1_1700000000000",
		GameID:     "game-7",
		ReportKey:  "user-2_1690000000000",
		ReportedAt: time.UnixMilli(1690000000000),
		Provenance: Provenance{
			AuthorID:    "user-1",
			AuthorName:  "User One",
			CreatedAt:   createdAt,
			FromAccount: true,
		},
		Fields: Fields{"note": "works on my machine", "rating": int64(4)},
	}

	got := RecordFromFields("server-doc-9", rec.DocumentFields())
	require.Equal(t, "server-doc-9", got.RemoteID)
	require.Equal(t, rec.Key, got.Key)
	require.Equal(t, rec.GameID, got.GameID)
	require.Equal(t, rec.ReportKey, got.ReportKey)
	require.True(t, rec.ReportedAt.Equal(got.ReportedAt))
	require.Equal(t, rec.Provenance.AuthorID, got.Provenance.AuthorID)
	require.True(t, rec.Provenance.CreatedAt.Equal(got.Provenance.CreatedAt))
	require.True(t, got.Provenance.FromAccount)
	require.Equal(t, "works on my machine", got.Fields["note"])
	// Provenance keys never leak into the mutable payload.
	require.NotContains(t, got.Fields, "author_id")
	require.NotContains(t, got.Fields, "created_at_ms")
}

func TestRecordFromFieldsLegacyFallsBackToRemoteID(t *testing.T) {
	got := RecordFromFields("legacy-doc", Fields{"note": "old data"})
	require.Equal(t, "legacy-doc", got.Key)
}

func TestMutableFieldsStripsProtected(t *testing.T) {
	mutable := MutableFields(Fields{
		"note":           "edited",
		"author_id":      "someone-else",
		"created_at_ms":  int64(1),
		"from_account":   false,
		"key":            "forged",
		"game_id":        "forged-game",
		"report_key":     "forged-report",
		"reported_at_ms": int64(2),
		"author_name":    "Mallory",
	})
	require.Equal(t, Fields{"note": "edited"}, mutable)
}

func TestEnrichTitles(t *testing.T) {
	records := []Record{
		{Key: "k1", GameID: "game-1"},
		{Key: "k2", GameID: "unknown"},
	}
	EnrichTitles(records, func(id string) (string, bool) {
		if id == "game-1" {
			return "Spacewar", true
		}
		return "", false
	})
	require.Equal(t, "Spacewar", records[0].Fields["game_title"])
	require.Nil(t, records[1].Fields["game_title"])
}
