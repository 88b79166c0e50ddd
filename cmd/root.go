package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbmini/errdb/internal/collect"
	"github.com/bbmini/errdb/internal/config"
	"github.com/bbmini/errdb/internal/enrich"
	"github.com/bbmini/errdb/internal/llm/ollama"
	"github.com/bbmini/errdb/internal/logging"
	"github.com/bbmini/errdb/internal/output"
	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/bbmini/errdb/internal/store"
	"github.com/bbmini/errdb/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// logger is replaced in PersistentPreRunE; commands run directly in tests
// keep the no-op logger.
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "errdb",
	Short: "Build and query a database of Java compiler errors",
	Long: `errdb collects the compiler errors recorded in the Blackbox Mini
dataset into a SQLite store, merges stores built on different machines,
sanitizes the messages so that equivalent errors cluster together, and
reports on the most frequent ones.

Examples:
  errdb collect --root /data/mini
  errdb merge shards/*.sqlite3
  errdb enrich
  errdb report top --top 20 --first-only
  errdb sanitize "cannot find symbol -   class Dcuk"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Log, cfg.Verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute is called by main.main(). It runs the root command with a context
// cancelled by SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.errdb.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json, table)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("db", "errors.sqlite3", "path of the errdb store")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto, always, never)")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".errdb")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ERRDB")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func setDefaults() {
	viper.SetDefault("format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("color", "auto")

	viper.SetDefault("store.path", "errors.sqlite3")

	viper.SetDefault("collect.root", ".")
	viper.SetDefault("collect.slices", collect.DefaultSlicePattern)
	viper.SetDefault("collect.project_limit", 0)

	viper.SetDefault("sanitize.rules", sanitize.DefaultRules())
	viper.SetDefault("sanitize.rank_order", []string{"simple", "pattern", "masked", "verbatim"})

	viper.SetDefault("enrich.decode_escapes", true)
	viper.SetDefault("enrich.progress_every", enrich.DefaultProgressEvery)

	viper.SetDefault("report.top", 20)
	viper.SetDefault("report.first_only", false)

	viper.SetDefault("watch.pattern", watch.DefaultPattern)
	viper.SetDefault("watch.settle", watch.DefaultSettle)

	viper.SetDefault("llm.provider", "ollama")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 400)
	viper.SetDefault("llm.ollama.host", "http://localhost:11434")
	viper.SetDefault("llm.ollama.model", ollama.DefaultModel)

	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "json")
}

// loadConfig reads the merged viper settings into a validated Config.
func loadConfig() (*config.Config, error) {
	setDefaults()

	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newWriter(cmd *cobra.Command, cfg *config.Config) *output.Writer {
	return output.New(cmd.OutOrStdout(), output.ParseFormat(cfg.Format)).
		WithColor(output.ParseColorMode(cfg.Color))
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("cannot open store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}

// openExistingStore is openStore for commands that only make sense on a
// store that already holds messages.
func openExistingStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("cannot open store %s: %w", cfg.Store.Path, err)
	}
	return openStore(ctx, cfg)
}

func newSanitizer(cfg *config.Config) (*sanitize.Sanitizer, error) {
	opts := []sanitize.Option{
		sanitize.WithRules(cfg.Sanitize.Rules),
		sanitize.WithLogger(logger),
	}

	if len(cfg.Sanitize.RankOrder) > 0 {
		order := make([]sanitize.Kind, 0, len(cfg.Sanitize.RankOrder))
		for _, s := range cfg.Sanitize.RankOrder {
			k, err := sanitize.ParseKind(s)
			if err != nil {
				return nil, fmt.Errorf("invalid sanitize.rank_order: %w", err)
			}
			order = append(order, k)
		}
		opts = append(opts, sanitize.WithRankOrder(order))
	}

	if cfg.Sanitize.PatternsFile != "" {
		patterns, err := sanitize.LoadPatterns(cfg.Sanitize.PatternsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sanitize.WithExtraPatterns(patterns))
	}

	return sanitize.New(opts...)
}

// Flag values override configuration only when given explicitly.

func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}

func intFlag(cmd *cobra.Command, name string, fallback int) int {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetInt(name)
		return v
	}
	return fallback
}

func boolFlag(cmd *cobra.Command, name string, fallback bool) bool {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetBool(name)
		return v
	}
	return fallback
}
