package session

// TaskEntry is one entry in a snapshot's task history: either the full
// log of a task or a compressed one-line summary of it. Exactly one of
// Log and Summary is populated; use the constructors, which enforce
// this.
type TaskEntry struct {
	Sequence int
	Log      *TaskLog
	Summary  string
}

// NewEntry constructs a task entry, validating that exactly one of log
// and summary is populated.
func NewEntry(sequence int, log *TaskLog, summary string) (TaskEntry, error) {
	if log != nil && summary != "" {
		return TaskEntry{}, &ValidationError{Kind: "taskEntry", Field: "log/summary", Reason: "both populated"}
	}
	if log == nil && summary == "" {
		return TaskEntry{}, &ValidationError{Kind: "taskEntry", Field: "log/summary", Reason: "neither populated"}
	}
	return TaskEntry{Sequence: sequence, Log: log, Summary: summary}, nil
}

// NewFullEntry constructs an entry carrying the full task log.
func NewFullEntry(sequence int, log *TaskLog) (TaskEntry, error) {
	return NewEntry(sequence, log, "")
}

// NewCompressedEntry constructs an entry carrying only a summary.
func NewCompressedEntry(sequence int, summary string) (TaskEntry, error) {
	return NewEntry(sequence, nil, summary)
}

// IsCompressed reports whether the entry holds a summary instead of the
// full log.
func (e TaskEntry) IsCompressed() bool {
	return e.Log == nil
}

func entryEqual(a, b TaskEntry) bool {
	if a.Sequence != b.Sequence || a.Summary != b.Summary {
		return false
	}
	if (a.Log == nil) != (b.Log == nil) {
		return false
	}
	if a.Log == nil {
		return true
	}
	return virtualEqual(*a.Log, *b.Log)
}

func entriesEqual(a, b []TaskEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// CompressHistory folds all but the last keepFull full entries into
// compressed entries via summarize. Already-compressed entries pass
// through unchanged; sequences are preserved.
func CompressHistory(entries []TaskEntry, keepFull int, summarize func(TaskLog) string) []TaskEntry {
	fullSeen := 0
	for _, e := range entries {
		if !e.IsCompressed() {
			fullSeen++
		}
	}

	out := make([]TaskEntry, 0, len(entries))
	remaining := fullSeen
	for _, e := range entries {
		if !e.IsCompressed() && remaining > keepFull {
			out = append(out, TaskEntry{Sequence: e.Sequence, Summary: summarize(*e.Log)})
			remaining--
			continue
		}
		out = append(out, e)
	}
	return out
}
