package storage

import (
	"context"
	"errors"
	"strings"

	"fedbot/pkg/logx"
)

// Store is the persistence API behind the federation registry and the
// approver allow-list.
type Store interface {
	UpsertFederation(ctx context.Context, f Federation) error
	DeleteFederation(ctx context.Context, id int64) (bool, error)
	DeleteAllFederations(ctx context.Context) error
	// ListFederations returns a full snapshot in registration order.
	ListFederations(ctx context.Context) ([]Federation, error)

	UpsertApprover(ctx context.Context, a Approver) error
	DeleteApprover(ctx context.Context, id int64) (bool, error)
	IsApprover(ctx context.Context, id int64) (bool, error)
	ListApprovers(ctx context.Context) ([]Approver, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
