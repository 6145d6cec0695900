package session

import "bytes"

// CodeUnitKind classifies a declaration referenced from a fragment.
type CodeUnitKind string

const (
	UnitClass    CodeUnitKind = "class"
	UnitFunction CodeUnitKind = "function"
	UnitField    CodeUnitKind = "field"
)

// CodeUnit references one declaration for provenance display. Identity
// is structural over (kind, package, short name, file); the graph and
// the snapshot are deliberately decoupled, so there is no node ID here.
type CodeUnit struct {
	File        PathFragment
	Kind        CodeUnitKind
	PackageName string
	ShortName   string
}

// FullName returns the dotted fully qualified name.
func (u CodeUnit) FullName() string {
	if u.PackageName == "" {
		return u.ShortName
	}
	return u.PackageName + "." + u.ShortName
}

// Message is one turn of recorded conversation.
type Message struct {
	Role    string
	Content string
}

// VirtualFragment is a non-file-backed unit of context. The variant set
// is closed: the codec switches exhaustively over it, so adding a
// variant forces updates to both encode and decode.
type VirtualFragment interface {
	virtualFragment()
}

// TaskLog is the full message transcript of one task.
type TaskLog struct {
	SessionName string
	Messages    []Message
}

func (TaskLog) virtualFragment() {}

// FreeText is arbitrary text added to the context.
type FreeText struct {
	Text        string
	Description *Description
	SyntaxStyle string
}

func (FreeText) virtualFragment() {}

// SearchResult captures a code search and the units it surfaced.
type SearchResult struct {
	Query       string
	Explanation string
	Sources     []CodeUnit
	Messages    []Message
}

func (SearchResult) virtualFragment() {}

// SkeletonSet maps source identifiers to rendered skeleton text.
type SkeletonSet struct {
	Skeletons map[string]string
}

func (SkeletonSet) virtualFragment() {}

// UsageSet lists the usages found for one identifier.
type UsageSet struct {
	TargetIdentifier string
	Sources          []CodeUnit
	RenderedText     string
}

func (UsageSet) virtualFragment() {}

// PastedText is text pasted by the user.
type PastedText struct {
	Text        string
	Description *Description
}

func (PastedText) virtualFragment() {}

// PastedImage is an image pasted by the user.
type PastedImage struct {
	ImageBytes  []byte
	Description *Description
}

func (PastedImage) virtualFragment() {}

// Stacktrace is a parsed exception trace with the code it implicates.
type Stacktrace struct {
	Sources          []CodeUnit
	Original         string
	ExceptionSummary string
	Code             string
}

func (Stacktrace) virtualFragment() {}

// CallGraphKind distinguishes caller and callee graphs.
type CallGraphKind string

const (
	Callers CallGraphKind = "callers"
	Callees CallGraphKind = "callees"
)

// CallGraph is the rendered call graph around one identifier.
type CallGraph struct {
	Kind             CallGraphKind
	TargetIdentifier string
	Sources          []CodeUnit
	Code             string
}

func (CallGraph) virtualFragment() {}

// CompressedHistory carries task entries folded out of the live
// history.
type CompressedHistory struct {
	Entries []TaskEntry
}

func (CompressedHistory) virtualFragment() {}

// virtualEqual compares two fragments structurally. The switch is
// exhaustive over the variant set.
func virtualEqual(a, b VirtualFragment) bool {
	switch av := a.(type) {
	case TaskLog:
		bv, ok := b.(TaskLog)
		return ok && av.SessionName == bv.SessionName && messagesEqual(av.Messages, bv.Messages)
	case FreeText:
		bv, ok := b.(FreeText)
		return ok && av.Text == bv.Text && av.SyntaxStyle == bv.SyntaxStyle && descEqual(av.Description, bv.Description)
	case SearchResult:
		bv, ok := b.(SearchResult)
		return ok && av.Query == bv.Query && av.Explanation == bv.Explanation &&
			unitsEqual(av.Sources, bv.Sources) && messagesEqual(av.Messages, bv.Messages)
	case SkeletonSet:
		bv, ok := b.(SkeletonSet)
		if !ok || len(av.Skeletons) != len(bv.Skeletons) {
			return false
		}
		for k, v := range av.Skeletons {
			if bv.Skeletons[k] != v {
				return false
			}
		}
		return true
	case UsageSet:
		bv, ok := b.(UsageSet)
		return ok && av.TargetIdentifier == bv.TargetIdentifier &&
			av.RenderedText == bv.RenderedText && unitsEqual(av.Sources, bv.Sources)
	case PastedText:
		bv, ok := b.(PastedText)
		return ok && av.Text == bv.Text && descEqual(av.Description, bv.Description)
	case PastedImage:
		bv, ok := b.(PastedImage)
		return ok && bytes.Equal(av.ImageBytes, bv.ImageBytes) && descEqual(av.Description, bv.Description)
	case Stacktrace:
		bv, ok := b.(Stacktrace)
		return ok && av.Original == bv.Original && av.ExceptionSummary == bv.ExceptionSummary &&
			av.Code == bv.Code && unitsEqual(av.Sources, bv.Sources)
	case CallGraph:
		bv, ok := b.(CallGraph)
		return ok && av.Kind == bv.Kind && av.TargetIdentifier == bv.TargetIdentifier &&
			av.Code == bv.Code && unitsEqual(av.Sources, bv.Sources)
	case CompressedHistory:
		bv, ok := b.(CompressedHistory)
		return ok && entriesEqual(av.Entries, bv.Entries)
	default:
		return false
	}
}

func messagesEqual(a, b []Message) bool {
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

func unitsEqual(a, b []CodeUnit) bool {
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
