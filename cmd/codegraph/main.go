// Package main provides the codegraph CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/build"
	"codegraph/internal/change"
	"codegraph/internal/config"
	"codegraph/internal/graph"
	"codegraph/internal/hashio"
	"codegraph/internal/ignore"
	"codegraph/internal/lang"
	"codegraph/internal/query"
	"codegraph/internal/session"
	"codegraph/internal/watch"
)

var rootFlag string

var rootCmd = &cobra.Command{
	Use:   "codegraph",
	Short: "Incremental code-property-graph index",
	Long:  `codegraph maintains an incremental graph index over a source tree: content-hash change detection, per-file subgraph rebuilds, and idempotent relinking, persisted as a single SQLite file.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config in the source root",
	RunE:  runInit,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or incrementally update the graph",
	RunE:  runIndex,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes against the persisted graph",
	RunE:  runStatus,
}

var skeletonCmd = &cobra.Command{
	Use:   "skeleton <fully-qualified-name>",
	Short: "Print the skeleton of a declaration",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkeleton,
}

var declsCmd = &cobra.Command{
	Use:   "decls <file>",
	Short: "List the declarations of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecls,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild incrementally as the tree changes",
	RunE:  runWatch,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session snapshot tools",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Summarize a saved session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert a snapshot between JSON and binary form",
	Long:  `Converts by extension: a .json output gets the interchange document, anything else the compressed resume blob.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionConvert,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", ".", "source root")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionConvertCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(skeletonCmd)
	rootCmd.AddCommand(declsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sessionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(root)
}

// registryFor builds the frontend registry, restricted to the
// configured languages when any are named.
func registryFor(languages []string) (*lang.Registry, error) {
	if len(languages) == 0 {
		return lang.DefaultRegistry(), nil
	}

	available := map[string]lang.Builder{
		"java":       lang.NewJavaBuilder(),
		"javascript": lang.NewJavaScriptBuilder(),
		"python":     lang.NewPythonBuilder(),
	}
	r := lang.NewRegistry()
	for _, name := range languages {
		b, ok := available[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown language %q", name)
		}
		r.Register(b)
	}
	return r, nil
}

func ignoreFor(cfg *config.Config) *ignore.Matcher {
	m := ignore.NewMatcher()
	m.LoadDefaults()
	_ = m.LoadFile(filepath.Join(cfg.SourceRoot, ".gitignore"))
	m.AddPatterns(cfg.IgnorePatterns)
	return m
}

func builderFor(cfg *config.Config) (*build.Builder, *hashio.DigestCache, error) {
	registry, err := registryFor(cfg.Languages)
	if err != nil {
		return nil, nil, err
	}

	var cache *hashio.DigestCache
	if cfg.CachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0755); err != nil {
			return nil, nil, err
		}
		cache, err = hashio.OpenCache(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
	}

	b, err := build.New(build.Options{
		SourceRoot:  cfg.SourceRoot,
		GraphPath:   cfg.GraphPath,
		Registry:    registry,
		Ignore:      ignoreFor(cfg),
		Cache:       cache,
		Workers:     cfg.Workers,
		StagingBase: cfg.StagingDir,
	})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, nil, err
	}
	return b, cache, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return err
	}

	path := filepath.Join(root, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Default(root).Save(path); err != nil {
		return err
	}
	fmt.Printf("Initialized %s\n", path)
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.GraphPath), 0755); err != nil {
		return err
	}

	b, cache, err := builderFor(cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	start := time.Now()
	report, err := b.Run(signalContext())
	if err != nil {
		return err
	}

	if len(report.Changes) == 0 {
		fmt.Println("Graph is up to date.")
		return nil
	}
	fmt.Printf("Indexed %d file(s), pruned %d, %d node(s) removed in %s\n",
		report.FilesParsed, report.FilesPruned, report.NodesDeleted, time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := registryFor(cfg.Languages)
	if err != nil {
		return err
	}

	existing := map[string]string{}
	if _, err := os.Stat(cfg.GraphPath); err == nil {
		db, err := graph.Open(cfg.GraphPath)
		if err != nil {
			return err
		}
		existing, err = db.FileManifest()
		db.Close()
		if err != nil {
			return err
		}
	}

	current, err := hashio.HashTree(cfg.SourceRoot, hashio.TreeOptions{
		Ignore:     ignoreFor(cfg),
		Workers:    cfg.Workers,
		Extensions: registry.Extensions(),
	})
	if err != nil {
		return err
	}

	changes := change.Detect(existing, current)
	if len(changes) == 0 {
		fmt.Println("Graph is up to date.")
		return nil
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	for _, c := range changes {
		fmt.Printf("%-9s %s\n", c.Kind, c.Path)
	}
	fmt.Printf("%d change(s)\n", len(changes))
	return nil
}

func runSkeleton(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ix, err := query.Open(cfg.GraphPath, cfg.SourceRoot)
	if err != nil {
		return err
	}
	defer ix.Close()

	skeleton, ok, err := ix.Skeleton(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no declaration named %q", args[0])
	}
	fmt.Println(skeleton)
	return nil
}

func runDecls(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ix, err := query.Open(cfg.GraphPath, cfg.SourceRoot)
	if err != nil {
		return err
	}
	defer ix.Close()

	units, err := ix.DeclarationsInFile(filepath.ToSlash(args[0]))
	if err != nil {
		return err
	}
	if units == nil {
		return fmt.Errorf("file %q not in graph", args[0])
	}
	for _, u := range units {
		fmt.Printf("%-8s %s\n", u.Kind, u.FullName())
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.GraphPath), 0755); err != nil {
		return err
	}

	b, cache, err := builderFor(cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	ctx := signalContext()

	// Catch up before watching.
	if _, err := b.Run(ctx); err != nil {
		return err
	}

	registry, err := registryFor(cfg.Languages)
	if err != nil {
		return err
	}
	w, err := watch.New(b, watch.Options{
		Root:       cfg.SourceRoot,
		Debounce:   time.Duration(cfg.DebounceMs) * time.Millisecond,
		Ignore:     ignoreFor(cfg),
		Extensions: registry.Extensions(),
	})
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %s\n", cfg.SourceRoot)
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	snapshot, err := readSnapshot(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("editable files:    %d\n", len(snapshot.EditableFiles()))
	for _, f := range snapshot.EditableFiles() {
		fmt.Printf("  %s\n", f.Display())
	}
	fmt.Printf("readonly files:    %d\n", len(snapshot.ReadonlyFiles()))
	for _, f := range snapshot.ReadonlyFiles() {
		fmt.Printf("  %s\n", f.Display())
	}
	fmt.Printf("virtual fragments: %d\n", len(snapshot.VirtualFragments()))
	fmt.Printf("task history:      %d\n", len(snapshot.TaskHistory()))
	return nil
}

func runSessionConvert(cmd *cobra.Command, args []string) error {
	snapshot, err := readSnapshot(args[0])
	if err != nil {
		return err
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(args[1]), ".json") {
		data, err = session.EncodeJSON(snapshot)
	} else {
		data, err = session.EncodeBinary(snapshot)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", args[1], len(data))
	return nil
}

// readSnapshot sniffs the zstd magic to pick the decoder.
func readSnapshot(path string) (*session.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD {
		return session.DecodeBinary(data)
	}
	return session.DecodeJSON(data)
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
