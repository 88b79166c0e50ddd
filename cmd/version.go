package cmd

import (
	"fmt"

	"github.com/bbmini/errdb/internal/output"
	"github.com/bbmini/errdb/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildInfo is the JSON form of the version command.
type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Schema  uint   `json:"schema_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and store schema",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := buildInfo{Version: version, Commit: commit, Built: date, Schema: store.SchemaVersion}

	w := output.New(cmd.OutOrStdout(), output.ParseFormat(viper.GetString("format")))
	if w.Format() == output.FormatJSON {
		return w.WriteJSON(info)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "errdb %s (commit: %s, built: %s, schema: %d)\n",
		info.Version, info.Commit, info.Built, info.Schema)
	return err
}
