// Package session implements the immutable context snapshot tracked for
// a downstream agent: the editable and readonly file sets, derived
// virtual fragments, and a bounded task history. Snapshots are values;
// every operation returns a new snapshot and shares the collections it
// did not touch, so a session manager can keep old snapshots alive for
// undo without copies.
package session

// PathFragment is a file-backed unit of context. Identity is
// structural: the path, plus the revision where one applies. All
// variants are comparable value types, so fragments can be compared
// with == and used as map keys.
type PathFragment interface {
	pathFragment()

	// Display is the human-facing name used in listings.
	Display() string
}

// ProjectFile is a file inside the indexed source tree, identified by
// its root and slash-separated relative path.
type ProjectFile struct {
	Root    string
	RelPath string
}

func (ProjectFile) pathFragment() {}

func (f ProjectFile) Display() string {
	return f.RelPath
}

// ExternalFile is a file outside the project tree.
type ExternalFile struct {
	AbsPath string
}

func (ExternalFile) pathFragment() {}

func (f ExternalFile) Display() string {
	return f.AbsPath
}

// ImageFile is an image referenced by absolute path.
type ImageFile struct {
	AbsPath   string
	MediaType string
}

func (ImageFile) pathFragment() {}

func (f ImageFile) Display() string {
	return f.AbsPath
}

// GitRevisionFile is a project file pinned to a git revision. Content
// is captured at construction so the fragment stays readable after the
// working tree moves on.
type GitRevisionFile struct {
	Root     string
	RelPath  string
	Revision string
	Content  string
}

func (GitRevisionFile) pathFragment() {}

func (f GitRevisionFile) Display() string {
	rev := f.Revision
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return f.RelPath + "@" + rev
}
