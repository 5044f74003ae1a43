package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"catalog-harvester/internal/config"
	"catalog-harvester/internal/harvest"
	"catalog-harvester/internal/logging"
	"catalog-harvester/internal/models"
	"catalog-harvester/internal/pipeline"
	"catalog-harvester/internal/store"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   zerolog.Logger

	// pageFs is where page files are written and read.
	pageFs afero.Fs = afero.NewOsFs()

	// Search flags shared by download and run
	queryTerm  string
	authorTerm string
	titleTerm  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest catalog book searches into local pages and a book sink",
	Long: `harvester downloads every result page of a catalog book search, keeps the
raw pages on disk and registers the books they contain into the configured
sink (sqlite, mongo, neo4j or kafka).`,
	PersistentPreRunE: initializeApp,
	SilenceUsage:      true,
}

// Execute runs the root command until it finishes or a signal arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harvester.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(runCmd)
}

// initializeApp loads configuration and sets up logging
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Color:  cfg.Logging.Color,
		Output: cmd.ErrOrStderr(),
	})
	logger = logging.NewLogger("harvester")
	return nil
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&queryTerm, "q", "", "free-text search (takes precedence over author/title)")
	cmd.Flags().StringVarP(&authorTerm, "author", "a", "", "author name")
	cmd.Flags().StringVarP(&titleTerm, "title", "t", "", "book title")
}

func searchCriteria() (models.SearchCriteria, error) {
	criteria := models.SearchCriteria{Query: queryTerm, Author: authorTerm, Title: titleTerm}
	if criteria.IsEmpty() {
		return criteria, errors.New("no search terms specified: use --q, --author or --title")
	}
	return criteria, nil
}

// newRunner builds a session runner that fetches from the catalog. sink may be
// nil for download-only use.
func newRunner(ctx context.Context, dir string, sink harvest.Inserter) *pipeline.Runner {
	settings := pipeline.SettingsFromConfig(cfg)
	if dir != "" {
		settings.Dir = dir
	}
	fetcher := pipeline.NewFetcher(ctx, cfg.Catalog, logging.NewLogger("catalog"))
	return pipeline.NewRunner(pageFs, fetcher, sink, nil, settings, logger)
}

func openSink(ctx context.Context) (store.Sink, error) {
	sink, err := store.OpenSink(ctx, cfg.Sink, cfg.Kafka, logging.NewLogger("sink"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", cfg.Sink.Kind, err)
	}
	return sink, nil
}

func closeSink(sink store.Sink) {
	if err := sink.Close(context.Background()); err != nil {
		logger.Error().Err(err).Msg("failed to close sink")
	}
}
