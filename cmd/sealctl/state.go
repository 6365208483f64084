package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// draftState is the local handle to the draft sealctl is working on.
type draftState struct {
	BaseURL    string    `json:"base_url"`
	DraftID    string    `json:"draft_id"`
	EvidenceID string    `json:"evidence_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sealctl", "state.json")
	}
	return ".sealctl.json"
}

func loadState(path string) (draftState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return draftState{}, fmt.Errorf("no open draft; run 'sealctl draft create' first")
		}
		return draftState{}, err
	}
	var st draftState
	if err := json.Unmarshal(raw, &st); err != nil {
		return draftState{}, fmt.Errorf("read state %s: %w", path, err)
	}
	if st.DraftID == "" {
		return draftState{}, fmt.Errorf("state %s has no draft id", path)
	}
	return st, nil
}

// saveState writes through a temp file so a crash never leaves a torn
// state file behind.
func saveState(path string, st draftState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
