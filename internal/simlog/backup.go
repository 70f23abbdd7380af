package simlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// defaultBackupKeep bounds how many backup copies rotation retains.
const defaultBackupKeep = 10

// SetBackupEvery enables periodic backup copies of the log: after every
// `every` appended records the freshly flushed file is copied into dir
// under a timestamped name, and older copies beyond defaultBackupKeep are
// rotated out. every <= 0 disables backups.
func (s *Store) SetBackupEvery(every int, dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupEvery = every
	s.backupDir = dir
}

// backup copies the current log file into the backup directory. Caller
// holds s.mu and has already flushed.
func (s *Store) backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading log for backup: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	ts := time.Now().Format("20060102-150405")
	name := fmt.Sprintf("%s-%s-%06d.json", base, ts, s.appends)
	if err := os.WriteFile(filepath.Join(s.backupDir, name), data, 0644); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}

	return rotateBackups(s.backupDir, base, defaultBackupKeep)
}

// rotateBackups keeps only the most recent keepN backups for the given log
// base name, deleting older ones. The timestamp and append counter in the
// file name make lexicographic order chronological within a run.
func rotateBackups(dir, base string, keepN int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), base+"-") && filepath.Ext(e.Name()) == ".json" {
			backups = append(backups, e.Name())
		}
	}

	// Newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	if len(backups) > keepN {
		for _, name := range backups[keepN:] {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return fmt.Errorf("removing old backup %s: %w", name, err)
			}
		}
	}
	return nil
}
