package protocol_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"work/pkg/protocol"
)

// openTestDB creates an in-memory SQLite database with schema applied.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}
	return db
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		if _, err := db.Exec(protocol.SchemaDDL); err != nil {
			t.Fatalf("re-apply schema (%d): %v", i, err)
		}
	}

	for _, table := range []string{"workers", "events", "sessions", "messages", "completions"} {
		if _, err := db.Exec("SELECT * FROM " + table + " LIMIT 1"); err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		}
	}
}

func TestSchemaSessionsIndexExists(t *testing.T) {
	db := openTestDB(t)

	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sessions_worker'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("idx_sessions_worker missing: %v", err)
	}
}

func TestSchemaRejectsSecondActiveSession(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number) VALUES (1, 1)"); err != nil {
		t.Fatalf("insert first session: %v", err)
	}
	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number) VALUES (1, 2)"); err == nil {
		t.Fatal("expected unique violation for a second open session")
	}

	// Closing the first session frees the slot.
	if _, err := db.Exec("UPDATE sessions SET ended_at = datetime('now') WHERE worker_id = 1"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number) VALUES (1, 2)"); err != nil {
		t.Fatalf("insert after close: %v", err)
	}
	// Other workers are independent.
	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number) VALUES (2, 1)"); err != nil {
		t.Fatalf("insert for another worker: %v", err)
	}
}

func TestSchemaRejectsDuplicateSessionNumber(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number, ended_at) VALUES (1, 1, datetime('now'))"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec("INSERT INTO sessions (worker_id, session_number) VALUES (1, 1)"); err == nil {
		t.Fatal("expected unique violation for repeated session_number")
	}
}
