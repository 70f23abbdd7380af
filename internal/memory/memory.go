// Package memory implements the per-member, append-only, weighted event log
// shared across the household. Items decay at hour-boundary crossings of the
// merged timeline and retrieval is bounded by top-K, not storage.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LogType distinguishes plain activity notes from voice interactions.
type LogType string

const (
	LogTypeAction      LogType = "action"
	LogTypeInteraction LogType = "interaction"
)

// NoContext is the digest returned when a member has no memory yet.
const NoContext = "관찰된 맥락 없음"

// Item is one remembered event. Weight starts at 1.0 and only decreases,
// clamped at the configured floor; items are never deleted within a run.
type Item struct {
	Timestamp string  `json:"timestamp"`
	LogType   LogType `json:"log_type"`
	Content   string  `json:"content"`
	Weight    float64 `json:"weight"`
}

// HistoryEntry is the flattened export row for memory_history.json.
type HistoryEntry struct {
	MemberID  string  `json:"member_id"`
	Timestamp string  `json:"timestamp"`
	LogType   LogType `json:"log_type"`
	Content   string  `json:"content"`
	Weight    float64 `json:"weight"`
}

// Store holds every member's memory for one family run. It is exclusively
// owned by the engine; no concurrent writers are admitted.
type Store struct {
	decayStep float64
	floor     float64
	topK      int

	items   map[string][]*Item // member id -> append-only log
	members []string           // insertion order, for deterministic export
}

// NewStore creates a Store with the given decay step, weight floor and
// retrieval bound.
func NewStore(decayStep, floor float64, topK int) *Store {
	return &Store{
		decayStep: decayStep,
		floor:     floor,
		topK:      topK,
		items:     make(map[string][]*Item),
	}
}

// Add appends one item with initial weight 1.0 to a single member's log.
func (s *Store) Add(timestamp, memberID string, logType LogType, content string) {
	if _, ok := s.items[memberID]; !ok {
		s.members = append(s.members, memberID)
	}
	s.items[memberID] = append(s.items[memberID], &Item{
		Timestamp: timestamp,
		LogType:   logType,
		Content:   content,
		Weight:    1.0,
	})
}

// AddShared fans the same content out as independent items, one per
// recipient. Memory is per-recipient so weights can diverge later if access
// patterns differ; there is deliberately no single shared object.
func (s *Store) AddShared(timestamp string, logType LogType, content string, memberIDs []string) {
	for _, id := range memberIDs {
		s.Add(timestamp, id, logType, content)
	}
}

// Decay reduces every item's weight by the decay step, clamped at the floor.
// Called once per hour-boundary crossing of the merged timeline, never per
// sub-slot. Decaying an already-floored item is a no-op; nothing is removed.
func (s *Store) Decay() {
	for _, log := range s.items {
		for _, item := range log {
			item.Weight -= s.decayStep
			if item.Weight < s.floor {
				item.Weight = s.floor
			}
		}
	}
}

// ContextFor returns the member's top-K items by descending weight rendered
// as a short textual digest, or the NoContext sentinel when the member has
// no memory. Ties keep append order so the digest is deterministic.
func (s *Store) ContextFor(memberID string) string {
	log := s.items[memberID]
	if len(log) == 0 {
		return NoContext
	}

	ranked := make([]*Item, len(log))
	copy(ranked, log)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})

	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	var b strings.Builder
	for _, item := range ranked {
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", item.Timestamp, item.LogType, item.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Len reports the total number of stored items across all members.
func (s *Store) Len() int {
	n := 0
	for _, log := range s.items {
		n += len(log)
	}
	return n
}

// History flattens every member's log into export rows, members in
// first-seen order, items in append order.
func (s *Store) History() []HistoryEntry {
	var out []HistoryEntry
	for _, id := range s.members {
		for _, item := range s.items[id] {
			out = append(out, HistoryEntry{
				MemberID:  id,
				Timestamp: item.Timestamp,
				LogType:   item.LogType,
				Content:   item.Content,
				Weight:    item.Weight,
			})
		}
	}
	return out
}

// WriteHistory writes the flattened history as indented JSON. Written once
// at the end of a run.
func (s *Store) WriteHistory(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	history := s.History()
	if history == nil {
		history = []HistoryEntry{}
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling memory history: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing memory history: %w", err)
	}
	return nil
}
