// Package change classifies file-level deltas between a persisted graph
// manifest and the current state of a source tree.
package change

// Kind classifies a single file delta.
type Kind int

const (
	Added Kind = iota
	Modified
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// FileChange is one classified delta. Derived, never persisted.
type FileChange struct {
	Kind Kind
	Path string
}

// Detect compares two path -> digest manifests and returns the classified
// change list. Result order is unspecified (set semantics). An empty
// existing manifest classifies every current file as Added.
func Detect(existing, current map[string]string) []FileChange {
	var changes []FileChange

	for path, digest := range current {
		old, ok := existing[path]
		switch {
		case !ok:
			changes = append(changes, FileChange{Kind: Added, Path: path})
		case old != digest:
			changes = append(changes, FileChange{Kind: Modified, Path: path})
		}
	}
	for path := range existing {
		if _, ok := current[path]; !ok {
			changes = append(changes, FileChange{Kind: Removed, Path: path})
		}
	}
	return changes
}

// Partition splits a change list into the paths the builder must parse
// (added and modified) and the paths the pruner must clear (removed and
// modified).
func Partition(changes []FileChange) (toBuild, toPrune []string) {
	for _, c := range changes {
		switch c.Kind {
		case Added:
			toBuild = append(toBuild, c.Path)
		case Modified:
			toBuild = append(toBuild, c.Path)
			toPrune = append(toPrune, c.Path)
		case Removed:
			toPrune = append(toPrune, c.Path)
		}
	}
	return toBuild, toPrune
}

// Apply replays a change list produced by Detect(existing, current) onto
// existing, returning a manifest equal to current. current supplies the
// digests for added and modified entries.
func Apply(existing map[string]string, changes []FileChange, current map[string]string) map[string]string {
	result := make(map[string]string, len(existing))
	for k, v := range existing {
		result[k] = v
	}
	for _, c := range changes {
		switch c.Kind {
		case Added, Modified:
			result[c.Path] = current[c.Path]
		case Removed:
			delete(result, c.Path)
		}
	}
	return result
}
