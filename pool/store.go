package pool

import (
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// entry is one driver config plus its availability flag
type entry struct {
	id         int
	generation uint64
	config     types.DriverConfig
	idle       bool
}

// Store holds the loaded driver configs and their idle/busy flags.
// It does no locking of its own; Pool serialises every call.
type Store struct {
	generation uint64
	entries    []*entry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Reset replaces the contents with cfgs, all idle, under a new generation
func (s *Store) Reset(generation uint64, cfgs []types.DriverConfig) {
	s.generation = generation
	s.entries = make([]*entry, 0, len(cfgs))
	for i, cfg := range cfgs {
		s.entries = append(s.entries, &entry{
			id:         i,
			generation: generation,
			config:     cfg,
			idle:       true,
		})
	}
}

// Generation returns the generation of the current contents
func (s *Store) Generation() uint64 {
	return s.generation
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.entries)
}

// IdleCount returns the number of entries available for locking
func (s *Store) IdleCount() int {
	n := 0
	for _, e := range s.entries {
		if e.idle {
			n++
		}
	}
	return n
}

// BusyCount returns the number of locked entries
func (s *Store) BusyCount() int {
	return len(s.entries) - s.IdleCount()
}

// acquireFirstIdle marks the first idle entry busy and returns it, or nil
func (s *Store) acquireFirstIdle() *entry {
	for _, e := range s.entries {
		if e.idle {
			e.idle = false
			return e
		}
	}
	return nil
}

// release marks an entry idle. stale is set when the entry does not belong to
// the current generation; released is false when nothing changed.
func (s *Store) release(id int, generation uint64) (stale bool, released bool) {
	if generation != s.generation || id < 0 || id >= len(s.entries) {
		return true, false
	}
	e := s.entries[id]
	if e.idle {
		return false, false
	}
	e.idle = true
	return false, true
}

// Snapshot returns a copy of the configs together with their idle flags
func (s *Store) Snapshot() []EntryStatus {
	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, EntryStatus{
			Key:        e.config.Key(),
			ConfigType: e.config.ConfigType,
			Idle:       e.idle,
		})
	}
	return out
}

// EntryStatus is a read-only view of one pool entry
type EntryStatus struct {
	Key        string           `json:"key"`
	ConfigType types.ConfigType `json:"configType"`
	Idle       bool             `json:"idle"`
}
