// Package dirty implements attribute change tracking and the write
// lifecycle substrate: the Record type that decides what changed and
// needs writing, and the Persist helper that runs a model's callbacks in
// the fixed order defined by model.CallbackOrder around the actual I/O,
// per §4.15.
package dirty

// change is one column's (old, new) value pair.
type change struct {
	Old interface{}
	New interface{}
}

// Record tracks one instance's attribute changes against its originally
// loaded values.
type Record struct {
	original     map[string]interface{}
	changed      map[string]change
	savedChanges map[string]change
}

// NewRecord constructs a Record for an instance freshly loaded (or newly
// built) with the given original attribute values.
func NewRecord(original map[string]interface{}) *Record {
	cp := make(map[string]interface{}, len(original))
	for k, v := range original {
		cp[k] = v
	}
	return &Record{original: cp, changed: make(map[string]change)}
}

// Set records col's new value. Setting a column back to its original
// value removes it from the changed set, so Changed() reflects the net
// effect, not the history of assignments.
func (r *Record) Set(col string, value interface{}) {
	orig, hadOriginal := r.original[col]
	if hadOriginal && equal(orig, value) {
		delete(r.changed, col)
		return
	}
	r.changed[col] = change{Old: orig, New: value}
}

// Changed reports whether any column differs from its original value.
func (r *Record) Changed() bool {
	return len(r.changed) > 0
}

// Changes returns every changed column's (old, new) pair.
func (r *Record) Changes() map[string][2]interface{} {
	out := make(map[string][2]interface{}, len(r.changed))
	for col, c := range r.changed {
		out[col] = [2]interface{}{c.Old, c.New}
	}
	return out
}

// ChangedAttributes returns the names of every changed column.
func (r *Record) ChangedAttributes() []string {
	cols := make([]string, 0, len(r.changed))
	for col := range r.changed {
		cols = append(cols, col)
	}
	return cols
}

// RestoreAttributes reverts cols to their original values, discarding
// any pending change. With no columns given, it restores every changed
// column.
func (r *Record) RestoreAttributes(cols ...string) {
	if len(cols) == 0 {
		for col := range r.changed {
			cols = append(cols, col)
		}
	}
	for _, col := range cols {
		delete(r.changed, col)
	}
}

// CurrentValue returns col's effective value: the pending change if one
// exists, otherwise the original.
func (r *Record) CurrentValue(col string) interface{} {
	if c, ok := r.changed[col]; ok {
		return c.New
	}
	return r.original[col]
}

// SavedChanges returns the change set captured by the most recent call
// to MarkSaved, or an empty map before the first save.
func (r *Record) SavedChanges() map[string][2]interface{} {
	out := make(map[string][2]interface{}, len(r.savedChanges))
	for col, c := range r.savedChanges {
		out[col] = [2]interface{}{c.Old, c.New}
	}
	return out
}

// PreviousChanges is an alias for SavedChanges: the snapshot taken by
// the last MarkSaved, kept under the name §4.15 uses for the
// "what just got written" view after the fact.
func (r *Record) PreviousChanges() map[string][2]interface{} {
	return r.SavedChanges()
}

// MarkSaved snapshots the current change set into SavedChanges, folds
// every changed value into original, and clears the pending change set.
// Persist invokes this once the write and its after callbacks have
// succeeded -- not on every attempted save, since an aborted or failed
// write must leave Changed() and Changes() exactly as they were.
func (r *Record) MarkSaved() {
	r.savedChanges = r.changed
	for col, c := range r.changed {
		r.original[col] = c.New
	}
	r.changed = make(map[string]change)
}

func equal(a, b interface{}) bool {
	return a == b
}
