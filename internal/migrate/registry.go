package migrate

// Registry maps (table, original identifier) pairs to the surrogate keys
// assigned during this run. Surrogates form a contiguous sequence from 1
// per table, in the exact order records are transformed. Nothing is
// persisted across runs.
type Registry struct {
	next map[string]int64
	keys map[string]map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{
		next: make(map[string]int64),
		keys: make(map[string]map[string]int64),
	}
}

// Assign returns the surrogate key for the original identifier, minting a
// new one on first sight. Repeat calls with the same pair return the same
// key without advancing the sequence.
func (r *Registry) Assign(table, originalID string) int64 {
	ids, ok := r.keys[table]
	if !ok {
		ids = make(map[string]int64)
		r.keys[table] = ids
	}

	if key, ok := ids[originalID]; ok {
		return key
	}

	r.next[table]++
	ids[originalID] = r.next[table]
	return r.next[table]
}

// Lookup resolves an original identifier without assigning. The false
// return means the referenced parent has not been seen this run.
func (r *Registry) Lookup(table, originalID string) (int64, bool) {
	key, ok := r.keys[table][originalID]
	return key, ok
}

// Count returns how many surrogates have been assigned for a table.
func (r *Registry) Count(table string) int64 {
	return r.next[table]
}
