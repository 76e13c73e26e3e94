package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/keel"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the configured roots and re-analyze on change",
	Long:  "Analyzes every source file under the configured roots, then watches the file system and re-analyzes affected files as they change. Runs until interrupted.",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagExt, "ext", ".kl", "source file extension")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	files, err := targetFiles(cfg, nil)
	if err != nil {
		return err
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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	for _, root := range cfg.Roots {
		if err := watchTree(watcher, root); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	d.Start(ctx)
	for _, f := range files {
		d.AddFile(f)
	}
	fmt.Fprintf(os.Stderr, "Watching %d files under %d roots\n", len(files), len(cfg.Roots))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return printResults(d) })
	g.Go(func() error { return dispatchEvents(gctx, d, watcher) })
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// printResults streams diagnostics to stdout until the driver shuts down.
func printResults(d *keel.Driver) error {
	for res := range d.Results() {
		r := reportOf(res)
		if len(r.Errors) == 0 {
			fmt.Fprintf(os.Stdout, "%s: ok\n", r.Path)
			continue
		}
		formatReportsText(os.Stdout, []fileReport{r})
	}
	return nil
}

// dispatchEvents translates watcher events into driver operations. A created
// directory is added to the watch set; a created or written source file is
// (re)analyzed; a removed or renamed file leaves the explicit set.
func dispatchEvents(ctx context.Context, d *keel.Driver, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Op.Has(fsnotify.Create):
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, ev.Name); err != nil {
						fmt.Fprintf(os.Stderr, "watch %s: %s\n", ev.Name, err)
					}
					continue
				}
				if strings.HasSuffix(ev.Name, flagExt) {
					d.AddFile(ev.Name)
				}
			case ev.Op.Has(fsnotify.Write):
				if strings.HasSuffix(ev.Name, flagExt) {
					d.ChangeFile(ev.Name)
				}
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				d.RemoveFile(ev.Name)
				d.ChangeFile(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch: %s\n", err)
		}
	}
}

// watchTree adds dir and every directory below it to the watch set.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
