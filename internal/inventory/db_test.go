package inventory

import (
	"testing"
	"time"

	"github.com/metorial/bluefox"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(t.TempDir() + "/inventory.db")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	return db
}

func parseServer(t *testing.T, payload string) *bluefox.Server {
	t.Helper()

	s, err := bluefox.ParseServer([]byte(payload))
	if err != nil {
		t.Fatalf("ParseServer() error: %v", err)
	}
	return s
}

func TestNewDB(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if db.conn == nil {
		t.Fatal("Database connection is nil")
	}
}

func TestRecordServers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	servers := []*bluefox.Server{
		parseServer(t, `{"attributes":{"identifier":"abc","name":"Alpha","uuid":"1a7ce997-259b-452e-8b4e-cecc464142ca","limits":{"memory":1024,"disk":2048,"cpu":100}}}`),
		parseServer(t, `{"attributes":{"identifier":"def","name":"Beta","is_suspended":true}}`),
		parseServer(t, `{"attributes":{"name":"no id"}}`),
	}

	n, err := db.RecordServers(servers, time.Now())
	if err != nil {
		t.Fatalf("RecordServers() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 recorded snapshots, got %d", n)
	}

	history, err := db.History("abc", 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(history))
	}

	snap := history[0]
	if snap.Name != "Alpha" || snap.MemoryMB != 1024 || snap.DiskMB != 2048 || snap.CPUPercent != 100 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.UUID != "1a7ce997-259b-452e-8b4e-cecc464142ca" {
		t.Errorf("Unexpected uuid %s", snap.UUID)
	}

	history, err = db.History("def", 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 || !history[0].Suspended {
		t.Errorf("Expected suspended snapshot for def, got %+v", history)
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first", "second", "third"} {
		s := parseServer(t, `{"attributes":{"identifier":"abc","name":"`+name+`"}}`)
		if _, err := db.RecordServers([]*bluefox.Server{s}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordServers() error: %v", err)
		}
	}

	history, err := db.History("abc", 2)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(history))
	}
	if history[0].Name != "third" || history[1].Name != "second" {
		t.Errorf("Expected newest first, got %s, %s", history[0].Name, history[1].Name)
	}
}

func TestLatest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	old := time.Now().Add(-time.Hour)
	recent := time.Now()

	if _, err := db.RecordServers([]*bluefox.Server{
		parseServer(t, `{"attributes":{"identifier":"abc","name":"old"}}`),
		parseServer(t, `{"attributes":{"identifier":"def","name":"only"}}`),
	}, old); err != nil {
		t.Fatalf("RecordServers() error: %v", err)
	}
	if _, err := db.RecordServers([]*bluefox.Server{
		parseServer(t, `{"attributes":{"identifier":"abc","name":"new"}}`),
	}, recent); err != nil {
		t.Fatalf("RecordServers() error: %v", err)
	}

	latest, err := db.Latest()
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(latest))
	}
	if latest[0].Identifier != "abc" || latest[0].Name != "new" {
		t.Errorf("Expected newest abc snapshot, got %+v", latest[0])
	}
	if latest[1].Identifier != "def" || latest[1].Name != "only" {
		t.Errorf("Unexpected def snapshot %+v", latest[1])
	}
}

func TestPrune(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	s := parseServer(t, `{"attributes":{"identifier":"abc"}}`)
	if _, err := db.RecordServers([]*bluefox.Server{s}, time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordServers() error: %v", err)
	}
	if _, err := db.RecordServers([]*bluefox.Server{s}, time.Now()); err != nil {
		t.Fatalf("RecordServers() error: %v", err)
	}

	removed, err := db.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned snapshot, got %d", removed)
	}

	history, err := db.History("abc", 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 remaining snapshot, got %d", len(history))
	}
}
