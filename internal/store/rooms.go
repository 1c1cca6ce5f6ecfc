package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Room is one row of the room directory. Times are unix milliseconds.
type Room struct {
	RoomID         string
	Participants   []string
	OpenCount      int
	MessageCount   int
	LastOpenedAt   int64
	LastActivityAt int64
}

// RecordOpen inserts the room or bumps its open counter.
func (db *DB) RecordOpen(roomID string, participants []string, at time.Time) error {
	ts := at.UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (room_id, participants, open_count, last_opened_at, last_activity_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			participants = excluded.participants,
			open_count = rooms.open_count + 1,
			last_opened_at = excluded.last_opened_at,
			last_activity_at = MAX(rooms.last_activity_at, excluded.last_activity_at)`,
		roomID, strings.Join(participants, ","), ts, ts)
	return err
}

// RecordMessage counts one message in the room and refreshes its activity
// time. Unknown rooms are created.
func (db *DB) RecordMessage(roomID string, at time.Time) error {
	ts := at.UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (room_id, message_count, last_activity_at)
		VALUES (?, 1, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			message_count = rooms.message_count + 1,
			last_activity_at = MAX(rooms.last_activity_at, excluded.last_activity_at)`,
		roomID, ts)
	return err
}

// ListRooms returns rooms sorted by last activity, newest first.
func (db *DB) ListRooms(limit, offset int) ([]Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT room_id, participants, open_count, message_count, last_opened_at, last_activity_at
		FROM rooms
		ORDER BY last_activity_at DESC, room_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

// GetRoom returns one room, or nil when it is not in the directory.
func (db *DB) GetRoom(roomID string) (*Room, error) {
	row := db.QueryRow(`
		SELECT room_id, participants, open_count, message_count, last_opened_at, last_activity_at
		FROM rooms WHERE room_id = ?`, roomID)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// PruneRooms deletes rooms idle since before cutoff and returns how many.
func (db *DB) PruneRooms(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM rooms WHERE last_activity_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*Room, error) {
	var r Room
	var participants string
	if err := s.Scan(&r.RoomID, &participants, &r.OpenCount, &r.MessageCount, &r.LastOpenedAt, &r.LastActivityAt); err != nil {
		return nil, err
	}
	if participants != "" {
		r.Participants = strings.Split(participants, ",")
	}
	return &r, nil
}
