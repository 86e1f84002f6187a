// Command dzip lists, extracts, verifies, and packs .dz/.dzip archives.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/meigma/dzip"
	"github.com/meigma/dzip/internal/jobfile"
	"github.com/meigma/dzip/internal/pathutil"
)

var version = "dev"

type cli struct {
	Verbose bool `help:"Enable debug logging." short:"v"`
	Workers int  `help:"Worker pool size (0 = number of CPUs)." default:"0"`

	List    listCmd    `cmd:"" help:"List archive entries without extracting."`
	Extract extractCmd `cmd:"" help:"Extract entries to a directory."`
	Pack    packCmd    `cmd:"" help:"Pack files into a new archive from a TOML job file."`
	Verify  verifyCmd  `cmd:"" help:"Decode every entry and report content digests."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

type appContext struct {
	ctx     context.Context
	logger  *slog.Logger
	workers int
}

func main() {
	var c cli
	k := kong.Parse(&c,
		kong.Name("dzip"),
		kong.Description("Tool for the SDK's multi-volume .dz/.dzip resource containers."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := k.Run(&appContext{ctx: ctx, logger: logger, workers: c.Workers})
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type listCmd struct {
	Archive string `arg:"" help:"Archive base volume." type:"existingfile"`
}

func (c *listCmd) Run(app *appContext) error {
	a, err := dzip.Open(c.Archive, dzip.OpenWithLogger(app.logger), dzip.OpenWithWorkers(app.workers))
	if err != nil {
		return err
	}
	defer a.Close()

	printRepair(a.RepairReport())
	fmt.Printf("%-5s  %-10s  %-10s  %-7s  %s\n", "Idx", "Size", "Packed", "Method", "Path")
	for _, info := range a.Entries() {
		fmt.Printf("%-5d  %-10d  %-10d  %-7s  %s\n",
			info.Index, info.UncompressedSize, info.CompressedSize, info.Method, info.Path)
	}
	return nil
}

type extractCmd struct {
	Archive string   `arg:"" help:"Archive base volume." type:"existingfile"`
	Entries []string `arg:"" optional:"" help:"Entry paths to extract (default: all)."`
	Output  string   `help:"Output directory." short:"o" default:"."`
}

func (c *extractCmd) Run(app *appContext) error {
	a, err := dzip.Open(c.Archive, dzip.OpenWithLogger(app.logger), dzip.OpenWithWorkers(app.workers))
	if err != nil {
		return err
	}
	defer a.Close()
	printRepair(a.RepairReport())

	indices, err := selectEntries(a, c.Entries)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return err
	}
	sink := &dirSink{root: c.Output, logger: app.logger}
	results, err := a.Extract(app.ctx, indices, sink)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAILED  %s: %v\n", res.Info.Path, res.Err)
		}
	}
	app.logger.Info("extraction finished", "entries", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(results))
	}
	return nil
}

// selectEntries maps entry path arguments to indices. Arguments accept host
// separators; matching happens in the archive's convention.
func selectEntries(a *dzip.Archive, paths []string) ([]int, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	infos := a.Entries()
	indices := make([]int, 0, len(paths))
	for _, p := range paths {
		want := pathutil.ToArchive(p)
		found := -1
		for _, info := range infos {
			if bytes.Equal(info.Path, want) {
				found = info.Index
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("entry %q not found in archive", p)
		}
		indices = append(indices, found)
	}
	return indices, nil
}

// dirSink writes extracted entries under a root directory, translating raw
// archive paths to safe host paths.
type dirSink struct {
	root   string
	logger *slog.Logger
}

func (s *dirSink) Create(info dzip.EntryInfo) (io.WriteCloser, error) {
	rel, err := pathutil.FromArchive(info.Path)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	s.logger.Debug("extracting entry", "path", rel, "size", info.UncompressedSize)
	return os.Create(full)
}

type packCmd struct {
	JobFile string `arg:"" help:"TOML pack job specification." type:"existingfile"`
}

func (c *packCmd) Run(app *appContext) error {
	spec, err := jobfile.Load(c.JobFile)
	if err != nil {
		return err
	}
	job, err := buildJob(spec, c.JobFile)
	if err != nil {
		return err
	}

	result, err := dzip.Pack(app.ctx, *job,
		dzip.PackWithLogger(app.logger),
		dzip.PackWithWorkers(app.workers),
		dzip.PackWithProgress(func(ev dzip.ProgressEvent) {
			if ev.Stage == dzip.StageCompressing {
				app.logger.Debug("compressed", "path", string(ev.Path), "done", ev.FilesDone, "total", ev.FilesTotal)
			}
		}),
	)
	if err != nil {
		return err
	}
	for _, vp := range result.Volumes {
		fmt.Println(vp)
	}
	app.logger.Info("pack finished",
		"entries", len(result.Entries),
		"uncompressed", result.UncompressedTotal,
		"compressed", result.CompressedTotal)
	return nil
}

// buildJob turns the decoded job file into an engine job: resolves the base
// directory, walks it when no files are listed, and converts host paths to
// the archive convention.
func buildJob(spec *jobfile.Job, jobPath string) (*dzip.Job, error) {
	baseDir := spec.BaseDir
	if baseDir == "" {
		baseDir = filepath.Dir(jobPath)
	}
	if spec.Output == "" {
		return nil, fmt.Errorf("job file sets no output path")
	}

	defaultMethod, err := jobfile.ParseMethod(spec.Method)
	if err != nil {
		return nil, err
	}

	files := spec.Files
	if len(files) == 0 {
		files, err = walkSources(baseDir)
		if err != nil {
			return nil, err
		}
	}

	sources := make([]dzip.Source, 0, len(files))
	for _, f := range files {
		method := defaultMethod
		if f.Method != "" {
			if method, err = jobfile.ParseMethod(f.Method); err != nil {
				return nil, err
			}
		}
		sources = append(sources, dzip.Source{
			Path:   pathutil.ToArchive(f.Path),
			File:   filepath.Join(baseDir, filepath.FromSlash(f.Path)),
			Method: method,
		})
	}

	return &dzip.Job{
		Output:     spec.Output,
		Sources:    sources,
		ChunkSize:  spec.ChunkSize,
		VolumeSize: spec.VolumeSize,
	}, nil
}

// walkSources enumerates regular files under dir, in sorted order for
// deterministic archives.
func walkSources(dir string) ([]jobfile.File, error) {
	var files []jobfile.File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, jobfile.File{Path: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

type verifyCmd struct {
	Archive string `arg:"" help:"Archive base volume." type:"existingfile"`
}

func (c *verifyCmd) Run(app *appContext) error {
	a, err := dzip.Open(c.Archive, dzip.OpenWithLogger(app.logger), dzip.OpenWithWorkers(app.workers))
	if err != nil {
		return err
	}
	defer a.Close()
	printRepair(a.RepairReport())

	results, err := a.Verify(app.ctx)
	if err != nil {
		return err
	}

	failed := 0
	fmt.Printf("%-5s  %-7s  %-10s  %s\n", "Idx", "Status", "Size", "Path")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "CORRUPT"
			failed++
		}
		fmt.Printf("%-5d  %-7s  %-10d  %s\n", res.Info.Index, status, res.Info.UncompressedSize, res.Info.Path)
		if res.Err == nil {
			app.logger.Debug("entry digest", "path", string(res.Info.Path), "digest", res.Digest.String())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed verification", failed, len(results))
	}
	return nil
}

func printRepair(report dzip.RepairReport) {
	for _, c := range report.Corrections {
		if c.ChunkIndex < 0 {
			fmt.Fprintf(os.Stderr, "repaired entry %d: %s %d -> %d\n", c.EntryIndex, c.Field, c.Declared, c.Computed)
		} else {
			fmt.Fprintf(os.Stderr, "repaired entry %d chunk %d: %s %d -> %d\n", c.EntryIndex, c.ChunkIndex, c.Field, c.Declared, c.Computed)
		}
	}
}
