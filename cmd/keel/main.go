package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/keel"
	"github.com/jward/keel/internal/bytestore"
	"github.com/jward/keel/internal/perflog"
	"github.com/jward/keel/internal/source"
)

var (
	flagConfig string
	flagFormat string
	flagPerf   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "keel",
	Short:         "Incremental analysis of library graphs",
	Long:          "Keel analyzes source files against their import graph, caching unlinked and linked summaries in a byte store so unchanged work is never redone.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat != "json" && flagFormat != "text" {
			return fmt.Errorf("unknown format %q (want json or text)", flagFormat)
		}
		return nil
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "keel.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVar(&flagPerf, "perf", false, "write phase timings to stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the configured keel.yaml, falling back to defaults rooted
// at the working directory when the default config file does not exist.
func loadConfig() (*Config, error) {
	if _, err := os.Stat(flagConfig); os.IsNotExist(err) && flagConfig == "keel.yaml" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return DefaultConfig(wd), nil
	}
	return LoadConfig(flagConfig)
}

// openStore creates the configured byte-store backend. The returned closer is
// a no-op for the in-memory store.
func openStore(cfg *Config) (bytestore.Store, io.Closer, error) {
	switch cfg.Store.Backend {
	case "memory":
		return bytestore.NewMemory(), nopCloser{}, nil
	case "sqlite":
		s, err := bytestore.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return s, s, nil
	case "badger":
		s, err := bytestore.NewBadger(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newDriver assembles a driver from the configuration.
func newDriver(cfg *Config, store bytestore.Store) (*keel.Driver, error) {
	log := perflog.Nop()
	if flagPerf {
		log = perflog.New(os.Stderr)
	}
	provider := source.OSProvider{}
	factory := source.NewFactory(provider, cfg.Roots)
	opts := keel.Options{StrongMode: cfg.Strong}
	if len(cfg.Rules) > 0 {
		opts.RuleScripts = cfg.Rules
		opts.ScriptFS = os.DirFS(cfg.dir)
	}
	return keel.New(log, provider, store, nil, factory, nil, opts)
}
