package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"restakeLedger/internal/model"
)

// SnapshotStore persists the latest ledger snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) (model.LedgerSnapshot, bool, error)
	Save(ctx context.Context, snap model.LedgerSnapshot) error
}

// FileSnapshotStore stores the snapshot in a local JSON file. An empty path disables it.
type FileSnapshotStore struct {
	Path string
}

type snapshotFile struct {
	Snapshot  model.LedgerSnapshot `json:"snapshot"`
	UpdatedAt string               `json:"updated_at"`
}

func (s *FileSnapshotStore) Load(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.LedgerSnapshot{}, false, nil
	}

	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return model.LedgerSnapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var rec snapshotFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return rec.Snapshot, true, nil
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	rec := snapshotFile{
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
