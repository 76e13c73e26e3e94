package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagExt string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze files and report diagnostics",
	Long:  "Analyzes the given files, or every source file under the configured roots, and prints their diagnostics. Exits nonzero when any file has errors.",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagExt, "ext", ".kl", "source file extension")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	files, err := targetFiles(cfg, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found")
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := newDriver(cfg, store)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	start := time.Now()
	d.Start(ctx)

	reports := make([]fileReport, 0, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for range files {
			select {
			case res := <-d.Results():
				if res == nil {
					return fmt.Errorf("driver stopped early")
				}
				reports = append(reports, reportOf(res))
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for _, f := range files {
		d.AddFile(f)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	cancel()

	if flagFormat == "json" {
		if err := formatReportsJSON(os.Stdout, reports); err != nil {
			return err
		}
	} else {
		formatReportsText(os.Stdout, reports)
	}
	fmt.Fprintf(os.Stderr, "Analyzed %d files in %s\n", len(files), time.Since(start).Round(time.Millisecond))

	if hasFailures(reports) {
		return fmt.Errorf("analysis reported errors")
	}
	return nil
}

// targetFiles resolves the files to analyze: the explicit arguments, or every
// file with the configured extension under the configured roots.
func targetFiles(cfg *Config, args []string) ([]string, error) {
	if len(args) > 0 {
		files := make([]string, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, err
			}
			files = append(files, abs)
		}
		return files, nil
	}

	var files []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, flagExt) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
