// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory holds prior research so later runs can build on it.
//
// A Store keeps two independent maps, research records and per-task results,
// both keyed by session and then by exact query text. It is created once per
// process and passed to whatever needs it. Persisters save and restore the
// whole store as one serialized blob.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Store is a concurrency-safe session memory.
type Store struct {
	mu       sync.RWMutex
	research map[string]map[string]types.ResearchRecord
	tasks    map[string]map[string]map[string]types.TaskResult
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		research: make(map[string]map[string]types.ResearchRecord),
		tasks:    make(map[string]map[string]map[string]types.TaskResult),
	}
}

// Put stores a copy of rec under (session, query), replacing any earlier
// record. Reads also return copies, so stored records never change.
func (s *Store) Put(session, query string, rec types.ResearchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuery := s.research[session]
	if byQuery == nil {
		byQuery = make(map[string]types.ResearchRecord)
		s.research[session] = byQuery
	}
	byQuery[query] = rec.Clone()
	s.updateGauge()
}

// Get returns the record stored under (session, query).
func (s *Store) Get(session, query string) (types.ResearchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.research[session][query]
	return rec.Clone(), ok
}

// PutTaskResult stores res under (session, query, task).
func (s *Store) PutTaskResult(session, query, task string, res types.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuery := s.tasks[session]
	if byQuery == nil {
		byQuery = make(map[string]map[string]types.TaskResult)
		s.tasks[session] = byQuery
	}
	byTask := byQuery[query]
	if byTask == nil {
		byTask = make(map[string]types.TaskResult)
		byQuery[query] = byTask
	}
	byTask[task] = res.Clone()
}

// GetTaskResult returns the result stored under (session, query, task).
func (s *Store) GetTaskResult(session, query, task string) (types.TaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.tasks[session][query][task]
	return res.Clone(), ok
}

// AllTaskResults returns a copy of every task result for (session, query),
// keyed by task. The map is empty, never nil, when nothing is stored.
func (s *Store) AllTaskResults(session, query string) map[string]types.TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.TaskResult, len(s.tasks[session][query]))
	for task, res := range s.tasks[session][query] {
		out[task] = res.Clone()
	}
	return out
}

// Clear removes every record and task result for session.
func (s *Store) Clear(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.research, session)
	delete(s.tasks, session)
	s.updateGauge()
}

// Sessions returns every session with a record or task result, sorted.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for session := range s.research {
		seen[session] = true
	}
	for session := range s.tasks {
		seen[session] = true
	}
	out := make([]string, 0, len(seen))
	for session := range seen {
		out = append(out, session)
	}
	sort.Strings(out)
	return out
}

// Queries returns the queries with a stored record in session, sorted.
func (s *Store) Queries(session string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.research[session]))
	for q := range s.research[session] {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored research records across all sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *Store) countLocked() int {
	n := 0
	for _, byQuery := range s.research {
		n += len(byQuery)
	}
	return n
}

func (s *Store) updateGauge() {
	metrics.MemoryRecords.Set(float64(s.countLocked()))
}

// snapshot is the serialized form of a Store.
type snapshot struct {
	ResearchStore map[string]map[string]types.ResearchRecord        `json:"research_store" yaml:"research_store"`
	TaskStore     map[string]map[string]map[string]types.TaskResult `json:"task_store" yaml:"task_store"`
}

// Serialize renders the whole store as one JSON blob.
func (s *Store) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.Marshal(snapshot{ResearchStore: s.research, TaskStore: s.tasks})
	if err != nil {
		return nil, fmt.Errorf("serializing memory: %w", err)
	}
	return data, nil
}

// Deserialize replaces the store's contents with data produced by
// Serialize. On error the store is left unchanged.
func (s *Store) Deserialize(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("deserializing memory: %w", err)
	}
	if snap.ResearchStore == nil {
		snap.ResearchStore = make(map[string]map[string]types.ResearchRecord)
	}
	if snap.TaskStore == nil {
		snap.TaskStore = make(map[string]map[string]map[string]types.TaskResult)
	}
	for session, byQuery := range snap.ResearchStore {
		if byQuery == nil {
			delete(snap.ResearchStore, session)
		}
	}
	for session, byQuery := range snap.TaskStore {
		for query, byTask := range byQuery {
			if byTask == nil {
				delete(byQuery, query)
			}
		}
		if len(byQuery) == 0 {
			delete(snap.TaskStore, session)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.research = snap.ResearchStore
	s.tasks = snap.TaskStore
	s.updateGauge()
	return nil
}

// withSnapshot calls fn with the store contents under the read lock.
func (s *Store) withSnapshot(fn func(snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(snapshot{ResearchStore: s.research, TaskStore: s.tasks})
}
