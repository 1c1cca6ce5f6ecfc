package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (rooms + index)", result.Version)
	}
	if result.Dirty {
		t.Error("migration left database dirty")
	}
}

func TestRecordOpen(t *testing.T) {
	db := testDB(t)

	if err := db.RecordOpen("alice_bob", []string{"alice", "bob"}, base); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordOpen("alice_bob", []string{"alice", "bob"}, base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRoom("alice_bob")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatal("room not found")
	}
	if r.OpenCount != 2 {
		t.Errorf("open_count = %d, want 2", r.OpenCount)
	}
	if r.LastOpenedAt != base.Add(time.Minute).UnixMilli() {
		t.Errorf("last_opened_at = %d", r.LastOpenedAt)
	}
	if len(r.Participants) != 2 || r.Participants[0] != "alice" {
		t.Errorf("participants = %v", r.Participants)
	}
}

func TestRecordMessage(t *testing.T) {
	db := testDB(t)

	if err := db.RecordOpen("r1", nil, base); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := db.RecordMessage("r1", base.Add(time.Duration(i+1)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	// An out-of-order older timestamp must not move activity backwards.
	if err := db.RecordMessage("r1", base); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRoom("r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.MessageCount != 4 {
		t.Errorf("message_count = %d, want 4", r.MessageCount)
	}
	if r.LastActivityAt != base.Add(3*time.Second).UnixMilli() {
		t.Errorf("last_activity_at = %d, want %d", r.LastActivityAt, base.Add(3*time.Second).UnixMilli())
	}
	if r.Participants != nil {
		t.Errorf("participants = %v, want nil", r.Participants)
	}
}

func TestListRoomsOrder(t *testing.T) {
	db := testDB(t)

	_ = db.RecordOpen("old", nil, base)
	_ = db.RecordOpen("new", nil, base.Add(time.Hour))
	_ = db.RecordOpen("mid", nil, base.Add(time.Minute))

	rooms, err := db.ListRooms(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"new", "mid", "old"}
	if len(rooms) != len(want) {
		t.Fatalf("got %d rooms, want %d", len(rooms), len(want))
	}
	for i, w := range want {
		if rooms[i].RoomID != w {
			t.Errorf("rooms[%d] = %s, want %s", i, rooms[i].RoomID, w)
		}
	}

	page, err := db.ListRooms(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].RoomID != "mid" {
		t.Errorf("page = %v", page)
	}
}

func TestGetRoomMissing(t *testing.T) {
	db := testDB(t)
	r, err := db.GetRoom("missing")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Errorf("expected nil for missing room, got %+v", r)
	}
}

func TestPruneRooms(t *testing.T) {
	db := testDB(t)
	_ = db.RecordOpen("stale", nil, base)
	_ = db.RecordOpen("fresh", nil, base.Add(48*time.Hour))

	n, err := db.PruneRooms(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if r, _ := db.GetRoom("stale"); r != nil {
		t.Error("stale room survived prune")
	}
	if r, _ := db.GetRoom("fresh"); r == nil {
		t.Error("fresh room pruned")
	}
}
