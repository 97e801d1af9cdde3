// Package memory holds map-backed stores used by the CLI file mode and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution"
	"lineageforge/internal/validation"
)

// Document is the JSON shape of a snapshot file.
type Document struct {
	Persons []claimgraph.Person `json:"persons"`
	Claims  []claimgraph.Claim  `json:"claims"`
}

// SnapshotStore keeps one claim graph plus everything runs have written
// about it. LoadSnapshot always hands out an independent copy.
type SnapshotStore struct {
	mu      sync.RWMutex
	persons []claimgraph.Person
	claims  []claimgraph.Claim
	merges  []resolution.MergeEvent
	flags   []validation.Flag
}

// NewSnapshotStore validates the records up front so a bad document fails at
// load time rather than on the first run.
func NewSnapshotStore(persons []claimgraph.Person, claims []claimgraph.Claim) (*SnapshotStore, error) {
	if _, err := claimgraph.NewSnapshot(persons, claims); err != nil {
		return nil, err
	}
	return &SnapshotStore{
		persons: append([]claimgraph.Person(nil), persons...),
		claims:  append([]claimgraph.Claim(nil), claims...),
	}, nil
}

// LoadJSON reads a Document.
func LoadJSON(r io.Reader) (*SnapshotStore, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot document: %w", err)
	}
	return NewSnapshotStore(doc.Persons, doc.Claims)
}

// WriteJSON writes the current graph as a Document.
func (s *SnapshotStore) WriteJSON(w io.Writer) error {
	s.mu.RLock()
	doc := Document{Persons: s.persons, Claims: s.claims}
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot document: %w", err)
	}
	return nil
}

// Document returns a copy of the current graph.
func (s *SnapshotStore) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Document{
		Persons: append([]claimgraph.Person(nil), s.persons...),
		Claims:  append([]claimgraph.Claim(nil), s.claims...),
	}
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context) (*claimgraph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return claimgraph.NewSnapshot(s.persons, s.claims)
}

// SaveResolution replaces the stored graph with the snapshot's final state.
func (s *SnapshotStore) SaveResolution(_ context.Context, snapshot *claimgraph.Snapshot, result *resolution.Result) error {
	if snapshot == nil || result == nil {
		return fmt.Errorf("snapshot and result are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persons = snapshot.Persons()
	s.claims = snapshot.Claims()
	s.merges = append(s.merges, result.Events...)
	return nil
}

func (s *SnapshotStore) SaveValidation(_ context.Context, result *validation.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags = append(s.flags, result.Flags...)
	return nil
}

func (s *SnapshotStore) MergeEvents() []resolution.MergeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]resolution.MergeEvent(nil), s.merges...)
}

func (s *SnapshotStore) Flags() []validation.Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]validation.Flag(nil), s.flags...)
}
