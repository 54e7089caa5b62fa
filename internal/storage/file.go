package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fedbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend: a single JSON snapshot
// rewritten atomically on every mutation. Collections here are tiny (tens of
// rows), so a full rewrite is cheaper than journaling.
type fileStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	data fileData
}

type fileData struct {
	Federations []Federation `json:"federations"`
	Approvers   []Approver   `json:"approvers"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh store
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &s.data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) UpsertFederation(ctx context.Context, f Federation) error {
	_ = ctx
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Federations {
		if s.data.Federations[i].ID == f.ID {
			// keep the original position and registration time
			s.data.Federations[i].Name = f.Name
			s.data.Federations[i].Kind = f.Kind
			return s.flushLocked()
		}
	}
	s.data.Federations = append(s.data.Federations, f)
	return s.flushLocked()
}

func (s *fileStore) DeleteFederation(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Federations {
		if s.data.Federations[i].ID == id {
			s.data.Federations = append(s.data.Federations[:i], s.data.Federations[i+1:]...)
			return true, s.flushLocked()
		}
	}
	return false, nil
}

func (s *fileStore) DeleteAllFederations(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Federations = nil
	return s.flushLocked()
}

func (s *fileStore) ListFederations(ctx context.Context) ([]Federation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Federation(nil), s.data.Federations...), nil
}

func (s *fileStore) UpsertApprover(ctx context.Context, a Approver) error {
	_ = ctx
	if a.AddedAt.IsZero() {
		a.AddedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Approvers {
		if s.data.Approvers[i].ID == a.ID {
			s.data.Approvers[i].Name = a.Name
			return s.flushLocked()
		}
	}
	s.data.Approvers = append(s.data.Approvers, a)
	return s.flushLocked()
}

func (s *fileStore) DeleteApprover(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Approvers {
		if s.data.Approvers[i].ID == id {
			s.data.Approvers = append(s.data.Approvers[:i], s.data.Approvers[i+1:]...)
			return true, s.flushLocked()
		}
	}
	return false, nil
}

func (s *fileStore) IsApprover(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Approvers {
		if s.data.Approvers[i].ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *fileStore) ListApprovers(ctx context.Context) ([]Approver, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Approver(nil), s.data.Approvers...), nil
}
