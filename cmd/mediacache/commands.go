package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"media-cache/internal/filesystem"
	"media-cache/internal/handlers"
	"media-cache/internal/indexer"
	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
	"media-cache/internal/memory"
	"media-cache/internal/pipeline"
	"media-cache/internal/playlist"
	"media-cache/internal/startup"
)

type fetchResult struct {
	Source   string `json:"source"`
	Path     string `json:"path,omitempty"`
	Category string `json:"category,omitempty"`
	From     string `json:"from,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (a *app) fetchCommand() *cobra.Command {
	var (
		decode    bool
		playlists []string
	)

	cmd := &cobra.Command{
		Use:   "fetch <src>...",
		Short: "Resolve sources into the cache and print their cached paths",
		Long: `Resolve each source (URL, local path or res:<id>) into the cache root.
Sources already cached or indexed are not fetched again. --playlist adds
every entry of a WPL or M3U playlist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range playlists {
				pl, err := playlist.Parse(path)
				if err != nil {
					return err
				}
				args = append(args, pl.Sources...)
			}
			if len(args) == 0 {
				return errors.New("no sources given")
			}

			ctx := cmd.Context()
			pipe, release, err := a.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer release()

			results := make([]fetchResult, 0, len(args))
			failed := 0
			for _, src := range args {
				task := pipe.Request(ctx, media.ParseRef(src), pipeline.RequestOptions{SkipDecode: !decode})
				r := track(a.out, task, src)

				res := fetchResult{Source: src, Path: r.Path, From: string(r.Source)}
				if r.Path != "" {
					res.Category = r.Category.String()
				}
				if r.Err != nil {
					res.Error = r.Err.Error()
					if r.Path == "" {
						failed++
					}
				}
				results = append(results, res)

				if !a.jsonOutput {
					a.printFetchResult(res)
				}
			}

			if a.jsonOutput {
				if err := a.printJSON(results); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&decode, "decode", false, "also decode images into the RAM cache")
	cmd.Flags().StringArrayVarP(&playlists, "playlist", "p", nil, "fetch the entries of a WPL or M3U playlist")
	return cmd
}

func (a *app) printFetchResult(r fetchResult) {
	switch {
	case r.Path == "":
		fmt.Fprintf(a.out, "%s: %s\n", r.Source, r.Error)
	case r.Error != "":
		fmt.Fprintf(a.out, "%s -> %s (%s, %s; %s)\n", r.Source, r.Path, r.Category, r.From, r.Error)
	default:
		fmt.Fprintf(a.out, "%s -> %s (%s, %s)\n", r.Source, r.Path, r.Category, r.From)
	}
}

func (a *app) classifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <name>...",
		Short: "Show the category, cache folder and extension for file names or MIME types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			results := make([]handlers.ClassifyResponse, 0, len(args))
			for _, name := range args {
				results = append(results, handlers.ClassifyName(name))
			}
			if a.jsonOutput {
				return a.printJSON(results)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tFOLDER\tEXTENSION\tMIME TYPE")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Category, r.Folder, r.Extension, r.MimeType)
			}
			return tw.Flush()
		},
	}
}

type folderStats struct {
	Folder string `json:"folder"`
	Files  int    `json:"files"`
	Bytes  int64  `json:"bytes"`
}

type cacheStats struct {
	CacheDir  string        `json:"cacheDir"`
	Files     int           `json:"files"`
	Bytes     int64         `json:"bytes"`
	Indexed   int           `json:"indexed"`
	LastPurge *time.Time    `json:"lastPurge,omitempty"`
	Folders   []folderStats `json:"folders"`
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show disk usage of the cache and the size of its index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stats := cacheStats{CacheDir: a.cfg.CacheDir}
			if stats.Indexed, err = db.CountEntries(ctx); err != nil {
				return fmt.Errorf("count index entries: %w", err)
			}
			if last, err := db.LastPurge(ctx); err == nil && !last.IsZero() {
				stats.LastPurge = &last
			}

			for _, folder := range mediatypes.Folders {
				size, files, err := filesystem.TreeSize(filepath.Join(a.cfg.CacheDir, folder))
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("scan %s: %w", folder, err)
				}
				stats.Files += files
				stats.Bytes += size
				if files > 0 {
					stats.Folders = append(stats.Folders, folderStats{Folder: folder, Files: files, Bytes: size})
				}
			}

			if a.jsonOutput {
				return a.printJSON(stats)
			}
			fmt.Fprintf(a.out, "Cache:   %s\n", stats.CacheDir)
			fmt.Fprintf(a.out, "Files:   %d (%s)\n", stats.Files, memory.FormatBytes(stats.Bytes))
			fmt.Fprintf(a.out, "Indexed: %d\n", stats.Indexed)
			if stats.LastPurge != nil {
				fmt.Fprintf(a.out, "Purged:  %s\n", stats.LastPurge.Format(time.RFC3339))
			}
			if len(stats.Folders) > 0 {
				fmt.Fprintln(a.out)
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				for _, f := range stats.Folders {
					fmt.Fprintf(tw, "  %s\t%d\t%s\n", f.Folder, f.Files, memory.FormatBytes(f.Bytes))
				}
				return tw.Flush()
			}
			return nil
		},
	}
}

func (a *app) purgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <src>...",
		Short: "Delete the cached image files of sources and their index entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pipe, release, err := a.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer release()

			refs := make([]*media.Ref, 0, len(args))
			for _, src := range args {
				ref := media.ParseRef(src)
				if info := pipe.Inspect(ctx, ref); !info.StoredLocally {
					fmt.Fprintf(a.out, "%s: not cached\n", src)
				}
				refs = append(refs, ref)
			}

			deleted, err := pipe.Purge(ctx, refs)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %d of %d cached files\n", deleted, len(args))
			return nil
		},
	}
}

func (a *app) reconcileCommand() *cobra.Command {
	var opts indexer.Options

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check the index against the files in the cache root",
		Long: `Drop index entries whose cached file is missing or changed, and report
cached files no entry points at. Orphans are only deleted with --remove-orphans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := indexer.New(db, a.cfg.CacheDir, 0, opts).Reconcile(ctx, opts)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(report)
			}
			a.printReport(report)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.DryRun, "dry-run", false, "report without changing anything")
	flags.BoolVar(&opts.Verify, "verify", false, "compare checksums, not just sizes")
	flags.BoolVar(&opts.RemoveOrphans, "remove-orphans", false, "delete cached files with no index entry")
	flags.DurationVar(&opts.OrphanAge, "orphan-age", indexer.DefaultOrphanAge, "ignore unindexed files younger than this")
	return cmd
}

func (a *app) printReport(r *indexer.Report) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(a.out, "Reconciled %s in %v%s\n", a.cfg.CacheDir, r.Duration.Round(time.Millisecond), mode)
	fmt.Fprintf(a.out, "  files:    %d\n", r.Files)
	fmt.Fprintf(a.out, "  entries:  %d\n", r.Entries)

	for _, group := range []struct {
		name  string
		items []string
	}{
		{"stale", r.Stale},
		{"corrupt", r.Corrupt},
		{"orphans", r.Orphans},
		{"misfiled", r.Misfiled},
	} {
		fmt.Fprintf(a.out, "  %-9s %d\n", group.name+":", len(group.items))
		for _, item := range group.items {
			fmt.Fprintf(a.out, "    %s\n", item)
		}
	}
	if !r.DryRun {
		fmt.Fprintf(a.out, "Removed %d entries and %d files\n", r.RemovedEntries, r.RemovedFiles)
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := startup.GetBuildInfo()
			if a.jsonOutput {
				return a.printJSON(info)
			}
			fmt.Fprintf(a.out, "mediacache %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
			fmt.Fprintf(a.out, "%s %s/%s\n", info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
