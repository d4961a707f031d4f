// Command store-upgrade runs the installed schema-pack upgrade steps against
// the configured model store and reports each step's outcome. Storage and
// archive backends are selected through GRIDCORE_* environment variables,
// optionally loaded from a .env file first.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gridcore/internal/blob"
	"gridcore/internal/core"
	"gridcore/plugins/mvnet"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("store-upgrade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		envFile    string
		doArchive  bool
		archiveKey string
	)
	fs.StringVar(&envFile, "env", "", "path to a .env file loaded before startup")
	fs.BoolVar(&doArchive, "archive", false, "archive a JSON snapshot export after a clean upgrade")
	fs.StringVar(&archiveKey, "archive-key", "", "explicit archive key (default generated under exports/)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(stderr, "load env file: %v\n", err)
			return 1
		}
	} else {
		_ = godotenv.Load()
	}

	if err := run(stdout, doArchive, archiveKey); err != nil {
		fmt.Fprintf(stderr, "Store upgrade failed: %v\n", err)
		return 1
	}
	return 0
}

func run(stdout io.Writer, doArchive bool, archiveKey string) error {
	ctx := context.Background()

	zlog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	store, err := core.OpenModelStore()
	if err != nil {
		return fmt.Errorf("open model store: %w", err)
	}
	defer store.Close()

	opts := []core.ServiceOption{core.WithLogger(core.NewZapLogger(zlog))}
	if doArchive {
		archive, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open archive store: %w", err)
		}
		opts = append(opts, core.WithArchive(archive))
	}

	svc, err := core.NewService(store, opts...)
	if err != nil {
		return err
	}
	if _, err := svc.InstallPlugin(mvnet.New()); err != nil {
		return fmt.Errorf("install mvnet: %w", err)
	}

	report, err := svc.UpgradeStore(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Run %s: %s -> %s\n", report.RunID, report.FromVersion, report.ToVersion)
	for _, result := range report.Results {
		line := fmt.Sprintf("  %-9s %s (target %s)", result.Status, result.Name, result.TargetVersion)
		if result.Err != nil {
			line += fmt.Sprintf(": %v", result.Err)
		}
		fmt.Fprintln(stdout, line)
	}

	if !report.OK() {
		return fmt.Errorf("%d of %d steps did not apply cleanly", len(report.Results)-len(cleanResults(report)), len(report.Results))
	}

	if doArchive {
		info, err := svc.ArchiveSnapshot(ctx, archiveKey)
		if err != nil {
			return fmt.Errorf("archive snapshot: %w", err)
		}
		fmt.Fprintf(stdout, "Archived snapshot to %s (%d bytes)\n", info.Key, info.Size)
	}
	return nil
}

func cleanResults(report core.UpgradeReport) []string {
	var clean []string
	for _, result := range report.Results {
		if result.Err == nil {
			clean = append(clean, result.Name)
		}
	}
	return clean
}
