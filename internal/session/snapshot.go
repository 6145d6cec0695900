package session

import "fmt"

// Snapshot is one immutable point-in-time view of the tracked
// workspace. Operations return a new snapshot and never mutate the
// receiver; collections the operation does not touch are shared between
// the old and new value.
type Snapshot struct {
	editable []PathFragment
	readonly []PathFragment
	virtual  []VirtualFragment
	history  []TaskEntry
}

// NewSnapshot returns the empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// EditableFiles returns the editable file set in insertion order.
func (s *Snapshot) EditableFiles() []PathFragment {
	out := make([]PathFragment, len(s.editable))
	copy(out, s.editable)
	return out
}

// ReadonlyFiles returns the readonly file set in insertion order.
func (s *Snapshot) ReadonlyFiles() []PathFragment {
	out := make([]PathFragment, len(s.readonly))
	copy(out, s.readonly)
	return out
}

// VirtualFragments returns the virtual fragments in insertion order.
func (s *Snapshot) VirtualFragments() []VirtualFragment {
	out := make([]VirtualFragment, len(s.virtual))
	copy(out, s.virtual)
	return out
}

// TaskHistory returns the task history in sequence order.
func (s *Snapshot) TaskHistory() []TaskEntry {
	out := make([]TaskEntry, len(s.history))
	copy(out, s.history)
	return out
}

// AddEditableFiles returns a snapshot with the given files in the
// editable set. Files already editable are skipped; a file previously
// readonly is promoted out of the readonly set.
func (s *Snapshot) AddEditableFiles(files ...PathFragment) *Snapshot {
	editable := cloneFragments(s.editable)
	readonly := s.readonly
	changedReadonly := false

	for _, f := range files {
		if containsFragment(editable, f) {
			continue
		}
		if containsFragment(readonly, f) {
			if !changedReadonly {
				readonly = cloneFragments(readonly)
				changedReadonly = true
			}
			readonly = removeFragment(readonly, f)
		}
		editable = append(editable, f)
	}

	return &Snapshot{editable: editable, readonly: readonly, virtual: s.virtual, history: s.history}
}

// AddReadonlyFiles returns a snapshot with the given files in the
// readonly set. Files already present in either set are skipped; an
// editable file stays editable.
func (s *Snapshot) AddReadonlyFiles(files ...PathFragment) *Snapshot {
	readonly := cloneFragments(s.readonly)
	for _, f := range files {
		if containsFragment(readonly, f) || containsFragment(s.editable, f) {
			continue
		}
		readonly = append(readonly, f)
	}
	return &Snapshot{editable: s.editable, readonly: readonly, virtual: s.virtual, history: s.history}
}

// AddVirtualFragment returns a snapshot with the fragment appended.
func (s *Snapshot) AddVirtualFragment(f VirtualFragment) *Snapshot {
	virtual := make([]VirtualFragment, len(s.virtual), len(s.virtual)+1)
	copy(virtual, s.virtual)
	virtual = append(virtual, f)
	return &Snapshot{editable: s.editable, readonly: s.readonly, virtual: virtual, history: s.history}
}

// AddHistoryEntry returns a snapshot with the entry appended. The
// sequence must be strictly greater than the last recorded one.
func (s *Snapshot) AddHistoryEntry(entry TaskEntry) (*Snapshot, error) {
	if n := len(s.history); n > 0 && entry.Sequence <= s.history[n-1].Sequence {
		return nil, fmt.Errorf("history sequence %d not after %d", entry.Sequence, s.history[n-1].Sequence)
	}
	history := make([]TaskEntry, len(s.history), len(s.history)+1)
	copy(history, s.history)
	history = append(history, entry)
	return &Snapshot{editable: s.editable, readonly: s.readonly, virtual: s.virtual, history: history}, nil
}

// WithCompressedHistory returns a snapshot whose history is replaced by
// entries, typically the output of CompressHistory. Sequences must be
// strictly increasing.
func (s *Snapshot) WithCompressedHistory(entries []TaskEntry) (*Snapshot, error) {
	for i := 1; i < len(entries); i++ {
		if entries[i].Sequence <= entries[i-1].Sequence {
			return nil, fmt.Errorf("history sequence %d not after %d", entries[i].Sequence, entries[i-1].Sequence)
		}
	}
	history := make([]TaskEntry, len(entries))
	copy(history, entries)
	return &Snapshot{editable: s.editable, readonly: s.readonly, virtual: s.virtual, history: history}, nil
}

// Equal reports structural equality over all four collections.
func (s *Snapshot) Equal(other *Snapshot) bool {
	return fragmentsEqual(s.editable, other.editable) &&
		fragmentsEqual(s.readonly, other.readonly) &&
		virtualsEqual(s.virtual, other.virtual) &&
		entriesEqual(s.history, other.history)
}

// Diff describes how one snapshot differs from another.
type Diff struct {
	AddedEditable   []PathFragment
	RemovedEditable []PathFragment
	AddedReadonly   []PathFragment
	RemovedReadonly []PathFragment
	AddedVirtual    []VirtualFragment
	RemovedVirtual  []VirtualFragment
	AddedHistory    []TaskEntry
	RemovedHistory  []TaskEntry
}

// Empty reports whether the diff records no change.
func (d *Diff) Empty() bool {
	return len(d.AddedEditable) == 0 && len(d.RemovedEditable) == 0 &&
		len(d.AddedReadonly) == 0 && len(d.RemovedReadonly) == 0 &&
		len(d.AddedVirtual) == 0 && len(d.RemovedVirtual) == 0 &&
		len(d.AddedHistory) == 0 && len(d.RemovedHistory) == 0
}

// DiffFrom returns the structural diff from prev to s.
func (s *Snapshot) DiffFrom(prev *Snapshot) *Diff {
	d := &Diff{}

	for _, f := range s.editable {
		if !containsFragment(prev.editable, f) {
			d.AddedEditable = append(d.AddedEditable, f)
		}
	}
	for _, f := range prev.editable {
		if !containsFragment(s.editable, f) {
			d.RemovedEditable = append(d.RemovedEditable, f)
		}
	}
	for _, f := range s.readonly {
		if !containsFragment(prev.readonly, f) {
			d.AddedReadonly = append(d.AddedReadonly, f)
		}
	}
	for _, f := range prev.readonly {
		if !containsFragment(s.readonly, f) {
			d.RemovedReadonly = append(d.RemovedReadonly, f)
		}
	}
	for _, v := range s.virtual {
		if !containsVirtual(prev.virtual, v) {
			d.AddedVirtual = append(d.AddedVirtual, v)
		}
	}
	for _, v := range prev.virtual {
		if !containsVirtual(s.virtual, v) {
			d.RemovedVirtual = append(d.RemovedVirtual, v)
		}
	}
	for _, e := range s.history {
		if !containsEntry(prev.history, e) {
			d.AddedHistory = append(d.AddedHistory, e)
		}
	}
	for _, e := range prev.history {
		if !containsEntry(s.history, e) {
			d.RemovedHistory = append(d.RemovedHistory, e)
		}
	}
	return d
}

func cloneFragments(in []PathFragment) []PathFragment {
	out := make([]PathFragment, len(in))
	copy(out, in)
	return out
}

func containsFragment(set []PathFragment, f PathFragment) bool {
	for _, x := range set {
		if x == f {
			return true
		}
	}
	return false
}

func removeFragment(set []PathFragment, f PathFragment) []PathFragment {
	out := set[:0]
	for _, x := range set {
		if x != f {
			out = append(out, x)
		}
	}
	return out
}

func fragmentsEqual(a, b []PathFragment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func virtualsEqual(a, b []VirtualFragment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !virtualEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func containsVirtual(set []VirtualFragment, f VirtualFragment) bool {
	for _, x := range set {
		if virtualEqual(x, f) {
			return true
		}
	}
	return false
}

func containsEntry(set []TaskEntry, e TaskEntry) bool {
	for _, x := range set {
		if entryEqual(x, e) {
			return true
		}
	}
	return false
}
