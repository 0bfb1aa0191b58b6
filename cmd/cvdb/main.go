// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the cvdb CLI. It exposes the author
// identity cache: lookups, upserts, sighting ingestion, consolidation, and
// export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cvdb/internal/authorcache"
	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the merged configuration, loaded before every command runs.
	cfg types.Config

	logger = zerolog.Nop()

	registry = prometheus.NewRegistry()
	metrics  = observability.NewMetrics(registry)
)

// rootCmd is the base command for the cvdb CLI.
var rootCmd = &cobra.Command{
	Use:   "cvdb",
	Short: "Author identity cache for a researcher CV database",
	Long: `cvdb maintains a cache of author identities seen on publications. It
resolves raw author names and identifiers to one record per person, folds
new sightings into existing records, and merges duplicates.

Sync jobs feed sightings through "cvdb author ingest"; operators inspect and
repair the cache with the other author subcommands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		logger = observability.NewLogger(cfg.Logging)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("metrics-file")
		if path == "" {
			return nil
		}
		if err := prometheus.WriteToTextfile(path, registry); err != nil {
			return fmt.Errorf("writing metrics to %s: %w", path, err)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./cvdb.yaml or ~/.config/cvdb/cvdb.yaml)")
	flags.String("db", "", "SQLite database path (default: cvdb.db)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	viper.BindPFlag("store.path", flags.Lookup("db"))
	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	setDefaults()
}

// setDefaults registers every configuration key so that environment
// variables reach viper.Unmarshal.
func setDefaults() {
	c := types.DefaultCacheConfig()
	viper.SetDefault("author_cache.similarity_threshold", c.SimilarityThreshold)
	viper.SetDefault("author_cache.fuzzy_candidates", c.FuzzyCandidates)
	viper.SetDefault("author_cache.edit_candidates", c.EditCandidates)
	viper.SetDefault("author_cache.max_edit_distance", c.MaxEditDistance)
	viper.SetDefault("author_cache.min_fuzzy_length", c.MinFuzzyLength)
	viper.SetDefault("author_cache.identifier_confidence", c.IdentifierConfidence)
	viper.SetDefault("author_cache.confidence_boost", c.ConfidenceBoost)
	viper.SetDefault("author_cache.fold_accents", c.FoldAccents)

	viper.SetDefault("store.path", "cvdb.db")
	viper.SetDefault("store.allow_duplicate_identifiers", false)

	l := types.DefaultLoggingConfig()
	viper.SetDefault("logging.level", l.Level)
	viper.SetDefault("logging.format", l.Format)
	viper.SetDefault("logging.output", l.Output)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cvdb")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "cvdb"))
		}
	}

	viper.SetEnvPrefix("CVDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openCache opens the configured store and returns a cache over it. The
// caller closes the store.
func openCache() (*authorcache.Cache, *cachestore.SQLiteStore, error) {
	store, err := cachestore.Open(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug().Str("path", store.Path()).Msg("identity cache opened")

	cache := authorcache.New(store, authorcache.Options{
		Config:  cfg.AuthorCache,
		Logger:  &logger,
		Metrics: metrics,
	})
	return cache, store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
