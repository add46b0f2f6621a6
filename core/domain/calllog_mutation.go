package domain

import (
	"fmt"
	"sort"

	"calllog_server/pkg/apperr"
)

// MutationSet is the insert/update/delete diff threaded through one refresh
// cycle. An id lives in at most one of the three maps at any time.
//
// Override rules:
//   - Insert on a deleted id replaces the deletion; apply writes the full row.
//   - Insert on an updated id is a contract violation.
//   - Update on an inserted id merges into the insert.
//   - Update on a deleted id is a contract violation.
//   - Delete drops any pending insert or update and marks the id deleted.
//
// Not safe for concurrent use.
type MutationSet struct {
	inserts map[int64]Fields
	updates map[int64]Fields
	deletes map[int64]struct{}
}

// NewMutationSet returns an empty set.
func NewMutationSet() *MutationSet {
	return &MutationSet{
		inserts: make(map[int64]Fields),
		updates: make(map[int64]Fields),
		deletes: make(map[int64]struct{}),
	}
}

// Insert records a new row or merges fields into a pending insert.
func (m *MutationSet) Insert(id int64, fields Fields) error {
	if _, ok := m.updates[id]; ok {
		return apperr.ContractViolation("mutation_set", fmt.Sprintf("insert of id %d already marked for update", id))
	}
	delete(m.deletes, id)

	existing, ok := m.inserts[id]
	if !ok {
		existing = make(Fields, len(fields))
		m.inserts[id] = existing
	}
	existing.Merge(fields)
	return nil
}

// Update merges fields into the pending insert or update for id.
func (m *MutationSet) Update(id int64, fields Fields) error {
	if _, ok := m.deletes[id]; ok {
		return apperr.ContractViolation("mutation_set", fmt.Sprintf("update of id %d already marked for delete", id))
	}
	if ins, ok := m.inserts[id]; ok {
		ins.Merge(fields)
		return nil
	}

	existing, ok := m.updates[id]
	if !ok {
		existing = make(Fields, len(fields))
		m.updates[id] = existing
	}
	existing.Merge(fields)
	return nil
}

// Delete marks id deleted, dropping any pending insert or update.
func (m *MutationSet) Delete(id int64) {
	delete(m.inserts, id)
	delete(m.updates, id)
	m.deletes[id] = struct{}{}
}

// Inserts returns the ids pending insert, sorted.
func (m *MutationSet) Inserts() []int64 {
	return sortedKeys(m.inserts)
}

// Updates returns the ids pending update, sorted.
func (m *MutationSet) Updates() []int64 {
	return sortedKeys(m.updates)
}

// Deletes returns the ids pending delete, sorted.
func (m *MutationSet) Deletes() []int64 {
	ids := make([]int64, 0, len(m.deletes))
	for id := range m.deletes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InsertFields returns the pending insert for id. The returned map is a copy.
func (m *MutationSet) InsertFields(id int64) (Fields, bool) {
	f, ok := m.inserts[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// UpdateFields returns the pending update for id. The returned map is a copy.
func (m *MutationSet) UpdateFields(id int64) (Fields, bool) {
	f, ok := m.updates[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// IsInserted reports whether id is pending insert.
func (m *MutationSet) IsInserted(id int64) bool {
	_, ok := m.inserts[id]
	return ok
}

// IsUpdated reports whether id is pending update.
func (m *MutationSet) IsUpdated(id int64) bool {
	_, ok := m.updates[id]
	return ok
}

// IsDeleted reports whether id is pending delete.
func (m *MutationSet) IsDeleted(id int64) bool {
	_, ok := m.deletes[id]
	return ok
}

// Contains reports whether id appears in any of the three maps.
func (m *MutationSet) Contains(id int64) bool {
	return m.IsInserted(id) || m.IsUpdated(id) || m.IsDeleted(id)
}

// Len is the total number of ids touched.
func (m *MutationSet) Len() int {
	return len(m.inserts) + len(m.updates) + len(m.deletes)
}

// IsEmpty reports whether the set carries no mutation.
func (m *MutationSet) IsEmpty() bool {
	return m.Len() == 0
}

// Counts returns the size of each map.
func (m *MutationSet) Counts() (inserts, updates, deletes int) {
	return len(m.inserts), len(m.updates), len(m.deletes)
}

func sortedKeys(m map[int64]Fields) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
