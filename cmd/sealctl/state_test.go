package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := draftState{BaseURL: "http://seald", DraftID: "d-1", UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := saveState(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := loadState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.BaseURL != want.BaseURL || got.DraftID != want.DraftID || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("state mismatch: %+v vs %+v", got, want)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLoadStateWithoutDraft(t *testing.T) {
	_, err := loadState(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "draft create") {
		t.Fatalf("expected hint to create a draft, got %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"sealctl", "frobnicate"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
