package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/bbmini/errdb/internal/config"
	"github.com/bbmini/errdb/internal/explain"
	"github.com/bbmini/errdb/internal/llm"
	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain [flags]",
	Short: "Explain the most frequent errors with a local LLM",
	Long: `Ask a local Ollama model for a short, beginner-friendly explanation of
each of the most frequent sanitized messages and store the answers.
Clusters that already have an explanation are not asked again.

With --suggest, ask instead for javac patterns covering the most frequent
unmatched messages. Suggestions are printed in the custom pattern file
format and are not stored.

Examples:
  errdb explain
  errdb explain --top 5 --first-only
  errdb explain --suggest --top 3 >> patterns.yaml`,
	Args: cobra.NoArgs,
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().IntP("top", "n", explain.DefaultTop, "number of clusters to explain")
	explainCmd.Flags().Bool("first-only", false, "rank clusters by first errors only")
	explainCmd.Flags().String("since", "", "rank clusters by messages collected since this time")
	explainCmd.Flags().Bool("suggest", false, "suggest javac patterns for unmatched messages instead")

	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	suggest, _ := cmd.Flags().GetBool("suggest")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	q, err := clusterQuery(cmd, cfg, time.Now().UTC())
	if err != nil {
		return err
	}
	q.Limit = intFlag(cmd, "top", explain.DefaultTop)
	ctx := commandContext(cmd)

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	e := explain.New(st, provider, explain.Options{
		Model:       cfg.LLM.Ollama.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})
	if err := e.Check(ctx); err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return fmt.Errorf("cannot connect to Ollama at %s: %w\n\nStart Ollama with: ollama serve", cfg.LLM.Ollama.Host, err)
		}
		return err
	}

	w := newWriter(cmd, cfg)
	if suggest {
		items, err := e.Suggest(ctx, q.Limit)
		if err != nil {
			return err
		}
		return w.WriteSuggestions(items)
	}

	res, err := e.Explain(ctx, q)
	if res != nil {
		if werr := w.WriteExplanations(res); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// newProvider is replaced in tests.
var newProvider = func(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(cfg.LLM, logger)
}
