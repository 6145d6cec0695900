// Package build orchestrates one index build cycle: detect changes,
// prune stale subgraphs, parse the delta, merge it, relink, persist.
//
// The cycle never touches the persisted graph directly. It works on a
// private copy of the database file and atomically renames the copy
// over the original only after every phase has succeeded, so a failed
// or cancelled build leaves the prior graph untouched.
package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"codegraph/internal/change"
	"codegraph/internal/graph"
	"codegraph/internal/hashio"
	"codegraph/internal/ignore"
	"codegraph/internal/lang"
	"codegraph/internal/link"
	"codegraph/internal/prune"
	"codegraph/internal/stage"
)

// Phase identifies where in the cycle a build currently is.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseDetectingChanges    Phase = "detecting-changes"
	PhasePruningStale        Phase = "pruning-stale"
	PhaseBuildingAdded       Phase = "building-added"
	PhaseBuildingFromScratch Phase = "building-from-scratch"
	PhaseRelinking           Phase = "relinking"
	PhasePersisted           Phase = "persisted"
)

// Options configures a Builder.
type Options struct {
	// SourceRoot is the directory tree being indexed.
	SourceRoot string
	// GraphPath is the persisted database file. Created on first build.
	GraphPath string
	// Registry supplies the language frontends. DefaultRegistry when nil.
	Registry *lang.Registry
	// Ignore filters the manifest walk.
	Ignore *ignore.Matcher
	// Cache is an optional digest cache for the manifest walk.
	Cache *hashio.DigestCache
	// Workers bounds the hashing pool. Defaults inside hashio.
	Workers int
	// StagingBase overrides os.TempDir for staging directories.
	StagingBase string
	// OnPhase, when set, is invoked at every phase transition.
	OnPhase func(Phase)
}

// Report summarizes one completed build cycle.
type Report struct {
	FromScratch  bool
	Changes      []change.FileChange
	FilesPruned  int
	NodesDeleted int
	FilesParsed  int
	Link         link.Stats
}

// Builder runs build cycles against one source tree and graph file.
type Builder struct {
	opts  Options
	phase Phase
}

// New creates a Builder. SourceRoot and GraphPath are required.
func New(opts Options) (*Builder, error) {
	if opts.SourceRoot == "" {
		return nil, fmt.Errorf("build: SourceRoot is required")
	}
	if opts.GraphPath == "" {
		return nil, fmt.Errorf("build: GraphPath is required")
	}
	if opts.Registry == nil {
		opts.Registry = lang.DefaultRegistry()
	}
	return &Builder{opts: opts, phase: PhaseIdle}, nil
}

// Phase returns the phase of the build in progress, or the phase the
// last build ended in.
func (b *Builder) Phase() Phase {
	return b.phase
}

func (b *Builder) setPhase(p Phase) {
	b.phase = p
	if b.opts.OnPhase != nil {
		b.opts.OnPhase(p)
	}
}

// Run executes one full build cycle. On success the graph file at
// GraphPath reflects the current source tree; on error or cancellation
// the file is exactly what it was before the call.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	workPath := b.opts.GraphPath + ".build-" + uuid.NewString()
	hadExisting, err := copyIfExists(b.opts.GraphPath, workPath)
	if err != nil {
		return nil, fmt.Errorf("copying graph for build: %w", err)
	}
	defer os.Remove(workPath)

	db, err := graph.Open(workPath)
	if err != nil {
		return nil, fmt.Errorf("opening work graph: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			db.Close()
		}
	}()

	b.setPhase(PhaseDetectingChanges)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing := map[string]string{}
	if hadExisting {
		existing, err = db.FileManifest()
		if err != nil {
			return nil, fmt.Errorf("reading persisted manifest: %w", err)
		}
	}
	current, err := hashio.HashTree(b.opts.SourceRoot, hashio.TreeOptions{
		Ignore:     b.opts.Ignore,
		Workers:    b.opts.Workers,
		Cache:      b.opts.Cache,
		Extensions: b.opts.Registry.Extensions(),
	})
	if err != nil {
		return nil, fmt.Errorf("hashing source tree: %w", err)
	}

	report.Changes = change.Detect(existing, current)
	report.FromScratch = len(existing) == 0
	toBuild, toPrune := change.Partition(report.Changes)

	slog.Info("change detection complete",
		"changes", len(report.Changes),
		"toBuild", len(toBuild),
		"toPrune", len(toPrune),
		"fromScratch", report.FromScratch)

	if len(report.Changes) == 0 {
		// Nothing to do; keep the persisted graph as-is.
		b.setPhase(PhasePersisted)
		return report, nil
	}

	if len(toPrune) > 0 {
		b.setPhase(PhasePruningStale)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pruned, err := prune.Prune(db, toPrune)
		if err != nil {
			return nil, fmt.Errorf("pruning stale files: %w", err)
		}
		report.FilesPruned = pruned.FilesPruned
		report.NodesDeleted = pruned.NodesDeleted
	}

	if len(toBuild) > 0 {
		if report.FromScratch {
			b.setPhase(PhaseBuildingFromScratch)
		} else {
			b.setPhase(PhaseBuildingAdded)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st, err := stage.Materialize(b.opts.SourceRoot, b.opts.StagingBase, toBuild)
		if err != nil {
			return nil, fmt.Errorf("staging build delta: %w", err)
		}
		defer st.Discard()

		asts, err := b.opts.Registry.ParseAll(st.Root, st.Paths)
		if err != nil {
			return nil, fmt.Errorf("parsing staged files: %w", err)
		}
		for _, ast := range asts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := lang.Merge(db, ast, current[ast.Path]); err != nil {
				return nil, fmt.Errorf("merging %s: %w", ast.Path, err)
			}
		}
		report.FilesParsed = len(asts)
	}

	b.setPhase(PhaseRelinking)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := link.Run(db)
	if err != nil {
		return nil, fmt.Errorf("linking: %w", err)
	}
	report.Link = *stats

	// Checkpoint and close before the rename so the work file is a
	// complete standalone database.
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("closing work graph: %w", err)
	}
	closed = true

	if err := os.Rename(workPath, b.opts.GraphPath); err != nil {
		return nil, fmt.Errorf("publishing graph: %w", err)
	}
	b.setPhase(PhasePersisted)

	slog.Info("build persisted",
		"parsed", report.FilesParsed,
		"pruned", report.FilesPruned,
		"graph", b.opts.GraphPath)
	return report, nil
}

// copyIfExists copies src to dst byte for byte. Returns false with no
// error when src does not exist.
func copyIfExists(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return false, err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return false, err
	}
	return true, nil
}
