package simlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func listBackups(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("reading backup dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBackupEveryN(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "simulation_log_test.json")
	backupDir := filepath.Join(tmpDir, "backups")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.SetBackupEvery(2, backupDir)

	for i := 0; i < 5; i++ {
		if err := s.Append(sampleEntry(fmt.Sprintf("09-01 10:%02d", i*15), "member_1")); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	backups := listBackups(t, backupDir)
	if len(backups) != 2 {
		t.Fatalf("backups after 5 appends with every=2: got %d (%v), want 2", len(backups), backups)
	}

	// Latest backup holds the log state at the 4th append.
	latest := backups[len(backups)-1]
	data, err := os.ReadFile(filepath.Join(backupDir, latest))
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	var entries []*InteractionLog
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("backup is not a valid log: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("latest backup holds %d entries, want 4", len(entries))
	}
	for _, name := range backups {
		if !strings.HasPrefix(name, "simulation_log_test-") {
			t.Errorf("backup name %q does not carry the log base name", name)
		}
	}
}

func TestBackupDisabledByDefault(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := Open(filepath.Join(tmpDir, "simulation_log_test.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Append(sampleEntry(fmt.Sprintf("09-01 10:%02d", i*15), "member_1")); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}
	if got := listBackups(t, filepath.Join(tmpDir, "backups")); got != nil {
		t.Errorf("backups created without SetBackupEvery: %v", got)
	}
}

func TestBackupRotation(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	s, err := Open(filepath.Join(tmpDir, "simulation_log_test.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.SetBackupEvery(1, backupDir)

	total := defaultBackupKeep + 5
	for i := 0; i < total; i++ {
		if err := s.Append(sampleEntry(fmt.Sprintf("09-01 %02d:00", i), "member_1")); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	backups := listBackups(t, backupDir)
	if len(backups) != defaultBackupKeep {
		t.Fatalf("rotation kept %d backups, want %d", len(backups), defaultBackupKeep)
	}
	// The survivors are the most recent ones: the oldest kept copy carries
	// the append counter of run total-keep+1.
	want := fmt.Sprintf("-%06d.json", total-defaultBackupKeep+1)
	if !strings.HasSuffix(backups[0], want) {
		t.Errorf("oldest kept backup = %q, want suffix %q", backups[0], want)
	}
}
