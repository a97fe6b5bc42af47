// Package cli implements the tiledl command-line front end: a cobra root
// command with download, validate-url, and capabilities subcommands, config
// resolved through viper, and structured logging through slog.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:   "tiledl",
	Short: "Bulk map tile downloader",
	Long:  "tiledl enumerates, deduplicates, and downloads map tiles for a bounding box and zoom range, with bounded concurrency, rate limiting, and retries.",
}

// Execute runs the root command, exiting the process with status 1 on
// failure. It is the sole entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.tiledl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	mustBind("config", rootCmd.PersistentFlags().Lookup("config"))
	mustBind("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("cli: binding flag %q: %v", key, err))
	}
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tiledl")
	}

	viper.SetEnvPrefix("TILEDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func initLogging() {
	var level slog.Level
	switch strings.ToLower(viper.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
