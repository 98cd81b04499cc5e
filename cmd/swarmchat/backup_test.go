package main

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/registry"
	"github.com/mtzanidakis/swarmchat/internal/store"
)

func TestSplitArchivePath(t *testing.T) {
	tests := []struct {
		input   string
		wantRel string
		wantOK  bool
	}{
		{"swarmchat/swarmchat.db", "swarmchat.db", true},
		{"./swarmchat/manifest.json", "manifest.json", true},
		{"swarmchat/", "", true},
		{"swarmchat", "", true},
		{"other/swarmchat.db", "", false},
		{"swarmchat/../etc/passwd", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		rel, ok := splitArchivePath(tt.input)
		if rel != tt.wantRel || ok != tt.wantOK {
			t.Errorf("splitArchivePath(%q) = (%q, %v), want (%q, %v)", tt.input, rel, ok, tt.wantRel, tt.wantOK)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		got := formatSize(tt.input)
		if got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func createTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}

	tw := tar.NewWriter(zw)
	for name, content := range entries {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	zw.Close()

	return path
}

func TestScanArchive(t *testing.T) {
	path := createTestArchive(t, map[string]string{
		"swarmchat/swarmchat.db":  "sqlite",
		"swarmchat/manifest.json": "{}",
		"unrelated/file.txt":      "x",
	})

	names, err := scanArchive(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(names), names)
	}
}

func TestScanArchive_InvalidFile(t *testing.T) {
	if _, err := scanArchive("/nonexistent/file.tar.zst"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestScanArchive_InvalidZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.zst")
	os.WriteFile(path, []byte("not zstd data"), 0644)

	if _, err := scanArchive(path); err == nil {
		t.Error("expected error for invalid zstd data")
	}
}

func TestRestoreRequiresDatabase(t *testing.T) {
	path := createTestArchive(t, map[string]string{"swarmchat/manifest.json": "{}"})
	dest := filepath.Join(t.TempDir(), "swarmchat.db")

	if err := restoreStore(path, dest, false); err == nil {
		t.Error("expected error for archive without database")
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(dir, "data", "swarmchat.db")}

	db, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMessage(&store.Message{UserID: "u1", Username: "alice", Content: "keep me", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	archive := filepath.Join(dir, "backup.tar.zst")
	size, err := backupStore(cfg, archive)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if size == 0 {
		t.Error("expected non-empty archive")
	}

	names, err := scanArchive(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("expected manifest and database entries, got %v", names)
	}

	// refuse to clobber without -overwrite
	if err := restoreStore(archive, cfg.Path, false); err == nil {
		t.Error("expected error when store exists without overwrite")
	}

	dest := filepath.Join(dir, "restored", "swarmchat.db")
	if err := restoreStore(archive, dest, false); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := store.New(config.StoreConfig{Path: dest})
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()

	entries, err := restored.RecentHistory(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Text != "keep me" {
		t.Errorf("expected restored message, got %+v", entries)
	}

	if err := restoreStore(archive, dest, true); err != nil {
		t.Errorf("expected overwrite restore to succeed, got %v", err)
	}
}

func TestSyncAgents(t *testing.T) {
	db, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_ = db.SaveAgent(&store.Agent{ID: "agent-stale", Name: "Old"})

	reg := registry.FromDefinitions(config.DefaultAgents())
	if err := syncAgents(db, reg); err != nil {
		t.Fatalf("sync agents: %v", err)
	}

	agents, err := db.ListAgents()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 4 {
		t.Fatalf("expected 4 agents, got %d", len(agents))
	}
	for _, a := range agents {
		if a.ID == "agent-stale" {
			t.Error("expected stale agent to be removed")
		}
	}
}
