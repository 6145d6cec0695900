package session

import "fmt"

// ValidationError reports a decoded value that violates a required
// field invariant for its declared kind. It is surfaced to the caller,
// never swallowed: a fragment that cannot be fully populated is an
// error, not a silent drop.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: field %q %s", e.Kind, e.Field, e.Reason)
}

// Discriminator values for path fragment DTOs.
const (
	kindProjectFile     = "projectFile"
	kindExternalFile    = "externalFile"
	kindImageFile       = "imageFile"
	kindGitRevisionFile = "gitRevisionFile"
)

// Discriminator values for virtual fragment DTOs.
const (
	kindTaskLog           = "taskLog"
	kindFreeText          = "freeText"
	kindSearchResult      = "searchResult"
	kindSkeletonSet       = "skeletonSet"
	kindUsageSet          = "usageSet"
	kindPastedText        = "pastedText"
	kindPastedImage       = "pastedImage"
	kindStacktrace        = "stacktrace"
	kindCallGraph         = "callGraph"
	kindCompressedHistory = "compressedHistory"
)

// pathDTO is the persisted form of a PathFragment, one flat record for
// every variant with the kind discriminator selecting the live fields.
type pathDTO struct {
	Kind      string `json:"kind"`
	Root      string `json:"root,omitempty"`
	RelPath   string `json:"relPath,omitempty"`
	AbsPath   string `json:"absPath,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Content   string `json:"content,omitempty"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type codeUnitDTO struct {
	File        pathDTO `json:"file"`
	Kind        string  `json:"kind"`
	PackageName string  `json:"packageName,omitempty"`
	ShortName   string  `json:"shortName"`
}

// virtualDTO is the persisted form of a VirtualFragment.
type virtualDTO struct {
	Kind             string            `json:"kind"`
	SessionName      string            `json:"sessionName,omitempty"`
	Messages         []messageDTO      `json:"messages,omitempty"`
	Text             string            `json:"text,omitempty"`
	Description      string            `json:"description,omitempty"`
	SyntaxStyle      string            `json:"syntaxStyle,omitempty"`
	Query            string            `json:"query,omitempty"`
	Explanation      string            `json:"explanation,omitempty"`
	Sources          []codeUnitDTO     `json:"sources,omitempty"`
	Skeletons        map[string]string `json:"skeletons,omitempty"`
	TargetIdentifier string            `json:"targetIdentifier,omitempty"`
	RenderedText     string            `json:"renderedText,omitempty"`
	ImageBytes       []byte            `json:"imageBytes,omitempty"`
	Original         string            `json:"original,omitempty"`
	ExceptionSummary string            `json:"exceptionSummary,omitempty"`
	Code             string            `json:"code,omitempty"`
	GraphKind        string            `json:"graphKind,omitempty"`
	Entries          []taskEntryDTO    `json:"entries,omitempty"`
}

type taskEntryDTO struct {
	Sequence int         `json:"sequence"`
	Log      *virtualDTO `json:"log,omitempty"`
	Summary  string      `json:"summary,omitempty"`
}

// snapshotDTO is the top-level persisted document.
type snapshotDTO struct {
	EditableFiles    []pathDTO      `json:"editableFiles"`
	ReadonlyFiles    []pathDTO      `json:"readonlyFiles"`
	VirtualFragments []virtualDTO   `json:"virtualFragments"`
	TaskHistory      []taskEntryDTO `json:"taskHistory"`
}
