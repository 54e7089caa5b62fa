package storage

import (
	"errors"
	"time"
)

var ErrUnavailable = errors.New("storage unavailable")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free JSON snapshot
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Federation is one registered federation chat. ID is the Telegram chat id
// and the primary key; listing order is registration order.
type Federation struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	AddedAt time.Time `json:"added_at"`
}

// Approver is an allow-listed user who may run federation actions.
type Approver struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}
