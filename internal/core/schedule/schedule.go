// Package schedule persists recurring task definitions over a storage
// backend. Firing schedules is out of scope for this package; it only
// validates, stores, and enumerates them.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tamalebot/tamalebot-core/internal/core/storage"
)

const prefix = "schedules/"

// Entry is one persisted schedule definition.
type Entry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cron       string    `json:"cron"`
	Task       string    `json:"task"`
	AgentName  string    `json:"agentName,omitempty"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt"`
	LastRun    time.Time `json:"lastRun,omitempty"`
	LastResult string    `json:"lastResult,omitempty"`
}

// Store wraps a storage.Backend scoped to the "schedules/" prefix.
type Store struct {
	backend storage.Backend
}

// NewStore returns a Store over backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

func pathFor(id string) string {
	return prefix + id + ".json"
}

func newID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("schedule: generate id: %w", err)
	}
	return id.String()[:8], nil
}

// Create validates cron, assigns a new ID, and persists the entry enabled.
func (s *Store) Create(name, cron, task, agentName string) (Entry, error) {
	if err := ValidateCron(cron); err != nil {
		return Entry{}, err
	}
	id, err := newID()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        id,
		Name:      name,
		Cron:      cron,
		Task:      task,
		AgentName: agentName,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.put(entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Store) put(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("schedule: marshal entry: %w", err)
	}
	if err := s.backend.Put(context.Background(), pathFor(entry.ID), data); err != nil {
		return fmt.Errorf("schedule: store entry %q: %w", entry.ID, err)
	}
	return nil
}

func (s *Store) get(id string) (Entry, error) {
	data, err := s.backend.Get(context.Background(), pathFor(id))
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("schedule: unmarshal entry %q: %w", id, err)
	}
	return entry, nil
}

// List returns every persisted schedule, skipping corrupt entries.
func (s *Store) List() ([]Entry, error) {
	keys, err := s.backend.List(context.Background(), prefix)
	if err != nil {
		return nil, fmt.Errorf("schedule: list entries: %w", err)
	}
	var out []Entry
	for _, key := range keys {
		data, err := s.backend.Get(context.Background(), key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Delete removes the schedule with the given ID. Deleting an absent ID is
// not an error.
func (s *Store) Delete(id string) error {
	if err := s.backend.Delete(context.Background(), pathFor(id)); err != nil {
		return fmt.Errorf("schedule: delete %q: %w", id, err)
	}
	return nil
}

// Pause marks the schedule with the given ID disabled.
func (s *Store) Pause(id string) error {
	return s.setEnabled(id, false)
}

// Resume marks the schedule with the given ID enabled.
func (s *Store) Resume(id string) error {
	return s.setEnabled(id, true)
}

func (s *Store) setEnabled(id string, enabled bool) error {
	entry, err := s.get(id)
	if err != nil {
		return fmt.Errorf("schedule: load %q: %w", id, err)
	}
	entry.Enabled = enabled
	return s.put(entry)
}

// fieldPattern matches one cron field: "*", "n", with optional "/n" step and
// "-n" range, repeated via ",n" lists.
var fieldPattern = regexp.MustCompile(`^(\*|\d+)(/\d+)?(-\d+)?(,(\*|\d+)(/\d+)?(-\d+)?)*$`)

// ValidateCron checks that cron is exactly five whitespace-separated fields,
// each matching the grammar (*|n)(/n)?(-n)?(,n)*.
func ValidateCron(cron string) error {
	fields := strings.Fields(cron)
	if len(fields) != 5 {
		return fmt.Errorf("schedule: cron expression must have exactly 5 fields, got %d", len(fields))
	}
	for i, f := range fields {
		if !fieldPattern.MatchString(f) {
			return fmt.Errorf("schedule: invalid cron field %d (%q)", i, f)
		}
	}
	return nil
}
