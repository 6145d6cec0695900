package session

import "testing"

func TestSnapshotTransitionsDoNotMutatePrior(t *testing.T) {
	base := NewSnapshot()
	foo := ProjectFile{Root: "/repo", RelPath: "Foo.java"}
	bar := ProjectFile{Root: "/repo", RelPath: "test/Bar.java"}

	s1 := base.AddEditableFiles(foo)
	s2 := s1.AddReadonlyFiles(bar)
	s3 := s2.AddVirtualFragment(FreeText{Text: "note"})

	if len(base.EditableFiles()) != 0 {
		t.Error("base snapshot gained editable files")
	}
	if len(s1.ReadonlyFiles()) != 0 {
		t.Error("s1 gained readonly files")
	}
	if len(s2.VirtualFragments()) != 0 {
		t.Error("s2 gained virtual fragments")
	}
	if len(s3.EditableFiles()) != 1 || len(s3.ReadonlyFiles()) != 1 || len(s3.VirtualFragments()) != 1 {
		t.Error("s3 missing accumulated state")
	}
}

func TestAddEditableDeduplicatesAndPromotes(t *testing.T) {
	foo := ProjectFile{Root: "/repo", RelPath: "Foo.java"}

	s := NewSnapshot().AddReadonlyFiles(foo).AddEditableFiles(foo, foo)
	if n := len(s.EditableFiles()); n != 1 {
		t.Errorf("editable count = %d, want 1", n)
	}
	if n := len(s.ReadonlyFiles()); n != 0 {
		t.Errorf("promoted file still readonly, count = %d", n)
	}

	// An editable file is not demoted by a later readonly add.
	s = s.AddReadonlyFiles(foo)
	if len(s.EditableFiles()) != 1 || len(s.ReadonlyFiles()) != 0 {
		t.Error("readonly add demoted an editable file")
	}
}

func TestHistorySequenceMustIncrease(t *testing.T) {
	log := &TaskLog{SessionName: "s", Messages: []Message{{Role: "user", Content: "hi"}}}
	e1, err := NewFullEntry(1, log)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewCompressedEntry(2, "did a thing")
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewSnapshot().AddHistoryEntry(e1)
	if err != nil {
		t.Fatal(err)
	}
	if s, err = s.AddHistoryEntry(e2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddHistoryEntry(e1); err == nil {
		t.Error("expected error for non-increasing sequence")
	}
	if _, err := s.WithCompressedHistory([]TaskEntry{e2, e1}); err == nil {
		t.Error("expected error for out-of-order compressed history")
	}
}

func TestCompressHistoryKeepsRecentFullEntries(t *testing.T) {
	mk := func(seq int) TaskEntry {
		e, err := NewFullEntry(seq, &TaskLog{
			SessionName: "s",
			Messages:    []Message{{Role: "user", Content: "task"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		return e
	}

	entries := []TaskEntry{mk(1), mk(2), mk(3), mk(4)}
	compressed := CompressHistory(entries, 2, func(l TaskLog) string { return "summary of " + l.SessionName })

	if len(compressed) != 4 {
		t.Fatalf("entry count changed: %d", len(compressed))
	}
	for i, e := range compressed {
		wantCompressed := i < 2
		if e.IsCompressed() != wantCompressed {
			t.Errorf("entry %d compressed = %v, want %v", i, e.IsCompressed(), wantCompressed)
		}
		if e.Sequence != entries[i].Sequence {
			t.Errorf("entry %d sequence changed", i)
		}
	}
	if compressed[0].Summary != "summary of s" {
		t.Errorf("summary = %q", compressed[0].Summary)
	}
}

func TestSnapshotDiff(t *testing.T) {
	foo := ProjectFile{Root: "/repo", RelPath: "Foo.java"}
	bar := ProjectFile{Root: "/repo", RelPath: "test/Bar.java"}

	s1 := NewSnapshot().AddEditableFiles(foo).AddReadonlyFiles(bar)
	s2 := s1.AddEditableFiles(bar).AddVirtualFragment(FreeText{Text: "note"})

	d := s2.DiffFrom(s1)
	if len(d.AddedEditable) != 1 || d.AddedEditable[0] != PathFragment(bar) {
		t.Errorf("AddedEditable = %v", d.AddedEditable)
	}
	if len(d.RemovedReadonly) != 1 || d.RemovedReadonly[0] != PathFragment(bar) {
		t.Errorf("RemovedReadonly = %v", d.RemovedReadonly)
	}
	if len(d.AddedVirtual) != 1 {
		t.Errorf("AddedVirtual = %v", d.AddedVirtual)
	}

	if !s1.DiffFrom(s1).Empty() {
		t.Error("self diff not empty")
	}
	if !s1.Equal(s1) {
		t.Error("snapshot not equal to itself")
	}
	if s1.Equal(s2) {
		t.Error("distinct snapshots compare equal")
	}
}

func TestTaskEntryInvariant(t *testing.T) {
	log := &TaskLog{SessionName: "s", Messages: []Message{{Role: "user", Content: "hi"}}}

	if _, err := NewEntry(1, log, "also a summary"); err == nil {
		t.Error("expected error with both log and summary")
	} else if _, ok := err.(*ValidationError); !ok {
		t.Errorf("expected *ValidationError, got %T", err)
	}

	if _, err := NewEntry(1, nil, ""); err == nil {
		t.Error("expected error with neither log nor summary")
	} else if _, ok := err.(*ValidationError); !ok {
		t.Errorf("expected *ValidationError, got %T", err)
	}

	if _, err := NewFullEntry(1, log); err != nil {
		t.Errorf("full entry rejected: %v", err)
	}
	if _, err := NewCompressedEntry(1, "summary"); err != nil {
		t.Errorf("compressed entry rejected: %v", err)
	}
}

func TestDescriptionResolveBlocksOnPending(t *testing.T) {
	ch := make(chan string, 1)
	d := PendingDescription(ch)

	if d.IsResolved() {
		t.Error("pending description reports resolved")
	}
	ch <- "computed"
	if got := d.Resolve(); got != "computed" {
		t.Errorf("Resolve = %q", got)
	}
	if !d.IsResolved() {
		t.Error("description not resolved after Resolve")
	}
	// Cached, not re-read from the channel.
	if got := d.Resolve(); got != "computed" {
		t.Errorf("second Resolve = %q", got)
	}
}
