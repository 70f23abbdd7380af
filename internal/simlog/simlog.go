// Package simlog persists the per-slot interaction records a simulation
// run produces. The log file is a single ordered JSON array, rewritten
// atomically after every processed event so a crash loses at most the
// in-flight slot.
package simlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evalgap/homesim/internal/env"
)

// Status is the terminal state an event reached.
type Status string

const (
	StatusSkippedAway      Status = "skipped_away"
	StatusSkippedSleep     Status = "skipped_sleep"
	StatusSkippedNoCommand Status = "skipped_no_command"
	StatusMatrixExecuted   Status = "matrix_executed"
)

// InteractionResult is one matrix cell: the command the assistant heard,
// what it said and did, and how the interaction was rated. Observer fields
// stay nil until the separate evaluation pass fills them in.
type InteractionResult struct {
	Command           string            `json:"command"`
	VAResponse        string            `json:"va_response"`
	StateChanges      []env.StateChange `json:"state_changes"`
	ChangeDescription string            `json:"change_description"`
	SelfRating        int               `json:"self_rating"`
	SelfReason        string            `json:"self_reason"`
	ObserverRating    *int              `json:"observer_rating"`
	ObserverReason    string            `json:"observer_reason,omitempty"`
}

// InteractionLog is one record per (member, 15-minute slot). The four cell
// pointers are all nil when no voice interaction occurred at the slot.
type InteractionLog struct {
	Time              string `json:"time"` // "MM-DD HH:MM"
	MemberID          string `json:"member_id"`
	MemberName        string `json:"member_name"`
	Location          string `json:"location"`
	Activity          string `json:"activity"`
	QuarterlyActivity string `json:"quarterly_activity"`
	IsAtHome          bool   `json:"is_at_home"`
	Status            Status `json:"status"`
	SeedCommand       string `json:"seed_command,omitempty"`

	// Matrix cells: (with/without context) x (generative/rule executor).
	WCVAC  *InteractionResult `json:"wc_vac"`
	WCVAR  *InteractionResult `json:"wc_var"`
	WOCVAC *InteractionResult `json:"woc_vac"`
	WOCVAR *InteractionResult `json:"woc_var"`
}

// Cells returns the non-nil matrix cells keyed by their log field name, in
// a fixed order.
func (l *InteractionLog) Cells() []NamedCell {
	all := []NamedCell{
		{"wc_vac", l.WCVAC},
		{"wc_var", l.WCVAR},
		{"woc_vac", l.WOCVAC},
		{"woc_var", l.WOCVAR},
	}
	cells := make([]NamedCell, 0, 4)
	for _, c := range all {
		if c.Result != nil {
			cells = append(cells, c)
		}
	}
	return cells
}

// NamedCell pairs a matrix cell with its log key.
type NamedCell struct {
	Key    string
	Result *InteractionResult
}

// LoadError records a log entry that failed to parse on resume. Bad
// entries are dropped but counted, not silently lost.
type LoadError struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// Store holds the full log in memory and rewrites the file on every
// append. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []*InteractionLog

	// Periodic backup copies; disabled until SetBackupEvery.
	backupEvery int
	backupDir   string
	appends     int

	// LoadErrors tracks entries dropped while loading an existing log.
	LoadErrors []LoadError
}

// Open loads the log at path, tolerating a missing file. Entries that no
// longer parse against the current schema are dropped and recorded in
// LoadErrors; a file that is not a JSON array at all is an error.
func Open(path string) (*Store, error) {
	s := &Store{
		path:       path,
		entries:    make([]*InteractionLog, 0),
		LoadErrors: make([]LoadError, 0),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading log %s: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("log %s is not a JSON array: %w", path, err)
	}

	for i, msg := range raw {
		var entry InteractionLog
		if err := json.Unmarshal(msg, &entry); err != nil || entry.Time == "" || entry.MemberID == "" {
			reason := "missing time or member_id"
			if err != nil {
				reason = err.Error()
			}
			s.LoadErrors = append(s.LoadErrors, LoadError{
				Index:   i,
				Content: truncateForError(string(msg)),
				Error:   reason,
			})
			continue
		}
		s.entries = append(s.entries, &entry)
	}
	return s, nil
}

// Append adds an entry and flushes the whole log to disk. When periodic
// backups are enabled, every Nth append also copies the flushed file into
// the backup directory.
func (s *Store) Append(entry *InteractionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if err := s.flush(); err != nil {
		return err
	}
	s.appends++
	if s.backupEvery > 0 && s.appends%s.backupEvery == 0 {
		return s.backup()
	}
	return nil
}

// Flush rewrites the log file from the in-memory entries. Append calls it
// implicitly; callers only need it after mutating entries in place.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding log: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}

	// Write-then-rename so a crash never leaves a truncated log behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing log: %w", err)
	}
	return nil
}

// HasSlot reports whether a record for (timeKey, memberID) already exists,
// which lets a resumed run skip already-processed events.
func (s *Store) HasSlot(timeKey, memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Time == timeKey && e.MemberID == memberID {
			return true
		}
	}
	return false
}

// Entries returns the in-memory records in log order. The slice is shared;
// callers that mutate records must Flush afterwards.
func (s *Store) Entries() []*InteractionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// Len returns the number of loaded records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func truncateForError(content string) string {
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
