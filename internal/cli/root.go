// Package cli implements the prodmanager command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goatkit/prodmanager/internal/config"
)

var (
	buildVersion = "dev"
	buildCommit  string
	buildDate    string
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	vcfg   *viper.Viper
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prodmanager",
	Short: "Catalog administration with installable extensions",
	Long: `prodmanager serves the catalog administration API and manages the
extensions (plugins) that react to product, tag, category and brand changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, v, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg, vcfg = c, v
		logger = newLogger(cmd.ErrOrStderr(), c.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./prodmanager.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	if version != "" {
		buildVersion = version
	}
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}

func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "prodmanager %s", buildVersion)
		if buildCommit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s, %s)", buildCommit, buildDate)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Main runs the CLI and exits the process on failure.
func Main(version, commit, date string) {
	if err := Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
