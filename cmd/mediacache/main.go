package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-cache/internal/database"
	"media-cache/internal/fetch"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/pipeline"
	"media-cache/internal/ramcache"
	"media-cache/internal/resources"
	"media-cache/internal/startup"
	"media-cache/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the state shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	cacheDir    string
	databaseDir string
	timeout     time.Duration
	verbose     bool
	jsonOutput  bool

	cfg *startup.Config
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "mediacache",
		Short:         "Fetch, inspect and maintain a media cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.configure()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cacheDir, "cache-dir", "", "cache root (default: CACHE_DIR or /cache)")
	flags.StringVar(&a.databaseDir, "database-dir", "", "index directory (default: DATABASE_DIR or /database)")
	flags.DurationVar(&a.timeout, "timeout", 0, "fetch timeout (default: FETCH_TIMEOUT or 30s)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log cache activity to stderr")
	flags.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		a.fetchCommand(),
		a.classifyCommand(),
		a.statsCommand(),
		a.purgeCommand(),
		a.reconcileCommand(),
		a.versionCommand(),
	)

	return root
}

// configure resolves the server configuration and applies flag overrides.
func (a *app) configure() error {
	cfg, err := startup.ReadConfig()
	if err != nil {
		return err
	}
	if a.cacheDir != "" {
		cfg.CacheDir = a.cacheDir
	}
	if a.databaseDir != "" {
		cfg.DatabaseDir = a.databaseDir
		cfg.DatabasePath = filepath.Join(a.databaseDir, startup.DatabaseFile)
	}
	if a.timeout > 0 {
		cfg.FetchTimeout = a.timeout
	}
	a.cfg = cfg

	if a.verbose {
		logging.SetLevel(logging.LevelDebug)
	} else {
		logging.SetLevel(logging.LevelError)
	}
	return nil
}

// openIndex opens the SQLite index, creating its directory if needed.
func (a *app) openIndex(ctx context.Context) (*database.Database, error) {
	if err := os.MkdirAll(a.cfg.DatabaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := database.New(ctx, a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", a.cfg.DatabasePath, err)
	}
	return db, nil
}

// openPipeline builds a pipeline over the configured cache root. The
// returned release func closes the pipeline and the index.
func (a *app) openPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	db, err := a.openIndex(ctx)
	if err != nil {
		return nil, nil, err
	}

	cfg := pipeline.DefaultConfig(a.cfg.CacheDir)
	cfg.Prefix = a.cfg.CachePrefix
	cfg.Shrink = a.cfg.DecodeShrink
	cfg.CopyLocal = a.cfg.CopyLocal
	if a.cfg.FetchWorkers > 0 {
		cfg.Workers = a.cfg.FetchWorkers
	}

	pipe, err := pipeline.New(cfg, pipeline.Deps{
		Fetcher: &fetch.Router{
			HTTP:     fetch.NewHTTPProvider(a.cfg.FetchTimeout),
			File:     fetch.NewFileProvider(),
			Resource: fetch.NewResourceProvider(resources.FS(), resources.Names),
		},
		Persister: storage.New(storage.DefaultOptions()),
		Decoder:   media.NewDecoder(),
		Cache:     ramcache.New(),
		Index:     db,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	release := func() {
		pipe.Close()
		if err := db.Close(); err != nil {
			fmt.Fprintf(a.errOut, "Warning: failed to close index: %v\n", err)
		}
	}
	return pipe, release, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
