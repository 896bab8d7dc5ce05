package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/cargoaudit/unmaintained/internal/archival"
	"github.com/cargoaudit/unmaintained/internal/auditlog"
	"github.com/cargoaudit/unmaintained/internal/cargo"
	"github.com/cargoaudit/unmaintained/internal/classify"
	"github.com/cargoaudit/unmaintained/internal/cliutil"
	"github.com/cargoaudit/unmaintained/internal/config"
	"github.com/cargoaudit/unmaintained/internal/diskcache"
	"github.com/cargoaudit/unmaintained/internal/gitrepo"
	"github.com/cargoaudit/unmaintained/internal/manifest"
	"github.com/cargoaudit/unmaintained/internal/membership"
	"github.com/cargoaudit/unmaintained/internal/outdated"
	"github.com/cargoaudit/unmaintained/internal/result"
	"github.com/cargoaudit/unmaintained/internal/scheduler"

	"github.com/cargoaudit/unmaintained/client"
)

// run builds and executes the root cobra command, returning the process
// exit code rather than calling os.Exit itself so main stays a one-liner.
func run(args []string) int {
	var (
		manifestPath string
		maxAgeDays   uint32
		failFast     bool
		noCache      bool
		jsonMode     bool
		noExitCode   bool
		verbose      bool
		ignore       []string
	)

	exitCode := result.ExitFatal

	root := &cobra.Command{
		Use:          "cargo-unmaintained",
		Short:        "Find unmaintained dependencies in a Cargo project",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			logger := cliutil.NewLogger(os.Stderr, level)

			cfg := config.DefaultConfig()
			cfg.MaxAgeDays = maxAgeDays
			cfg.FailFast = failFast
			cfg.UseCache = !noCache
			cfg.NoExitCode = noExitCode
			cfg.Ignore = ignore
			if jsonMode {
				cfg.Mode = config.JSON
			}
			if token, ok := archival.LoadToken(); ok {
				cfg.GithubToken = token
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			code, err := execute(ctx, manifestPath, cfg, logger)
			exitCode = code
			return err
		},
	}

	root.Flags().StringVar(&manifestPath, "manifest-path", "Cargo.toml", "path to the project's Cargo.toml")
	root.Flags().Uint32Var(&maxAgeDays, "max-age-days", 365, "minimum staleness, in days, before a package is flagged")
	root.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining work on the first unmaintained finding")
	root.Flags().BoolVar(&noCache, "no-cache", false, "bypass the on-disk repository cache")
	root.Flags().BoolVar(&jsonMode, "json", false, "emit findings as JSON instead of human-readable text")
	root.Flags().BoolVar(&noExitCode, "no-exit-code", false, "always exit 0 regardless of findings")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.Flags().StringSliceVar(&ignore, "ignore", nil, "package names to exclude from classification")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode
	}
	return exitCode
}

// execute wires every component together and runs one audit, returning the
// exit code and a non-nil error only for fatal failures (spec.md §7).
func execute(ctx context.Context, manifestPath string, cfg config.Config, logger *charmlog.Logger) (int, error) {
	warn := auditlog.New(logger)

	cacheRoot := cfg.CacheRoot
	if cacheRoot == "" {
		cacheRoot = defaultCacheRoot()
	}
	coordinator := diskcache.New(cacheRoot, cfg.UseCache)
	if !coordinator.Bypass() {
		if err := coordinator.Ensure(); err != nil {
			return result.ExitFatal, fmt.Errorf("preparing cache root: %w", err)
		}
	}

	httpClient := client.NewClient(client.WithTimeout(30 * time.Second))
	registry := cargo.New(cargo.DefaultURL, httpClient)
	store := gitrepo.NewStore(cacheRoot)
	oracle := archival.New(httpClient, cfg.GithubToken)
	memberChecker := membership.New(store, warn.Warn)
	analyzer := outdated.New(registry, time.Duration(cfg.MaxAgeDays)*24*time.Hour)

	materializer := coordinator.Guard(scheduler.NewDedupMaterializer(store))
	classifier := classify.New(
		materializer,
		store,
		oracle,
		memberChecker,
		analyzer,
		registry,
		registry,
		time.Duration(cfg.MaxAgeDays)*24*time.Hour,
		classify.WithIgnoreList(cfg.Ignore),
	)

	graph, err := manifest.Load(ctx, manifestPath)
	if err != nil {
		return result.ExitFatal, err
	}

	opts := []scheduler.Option{}
	if cfg.FailFast {
		opts = append(opts, scheduler.WithFailFast())
	}
	sched := scheduler.New(classifier, registry, opts...)

	verdicts, err := sched.Run(ctx, graph)
	if err != nil {
		return result.ExitFatal, err
	}

	report := result.New(verdicts)

	var writeErr error
	if cfg.Mode == config.JSON {
		writeErr = report.WriteJSON(os.Stdout)
	} else {
		writeErr = report.WriteHuman(os.Stdout)
	}
	if writeErr != nil {
		return result.ExitFatal, writeErr
	}

	return report.ExitCode(false, cfg.NoExitCode), nil
}

// defaultCacheRoot resolves $XDG_CACHE_HOME/cargo-unmaintained, falling back
// to the platform user cache directory, per spec.md §6.
func defaultCacheRoot() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "cargo-unmaintained")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "cargo-unmaintained")
	}
	return filepath.Join(os.TempDir(), "cargo-unmaintained")
}
