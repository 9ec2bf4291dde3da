// Package cmd implements the netlens command line interface.
package cmd

import (
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/observability"
)

const appName = "netlens"

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Organization footprint discovery traffic governor",
	Long: `netlens governs outbound traffic to the public data sources used for
organization footprint discovery: per-service rate limiting, retry with
exponential backoff, circuit breaking, and durable limiter state.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/netlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	observability.InitCLILogger(appName, verbose)

	if cfgFile != "" {
		// Use config file from flag
		viper.SetConfigFile(cfgFile)
	} else {
		appConfigDir := gfconfig.GetAppConfigDir(appName)
		if appConfigDir == "" {
			if verbose {
				observability.CLILogger.Warn("Could not resolve XDG config directory, falling back to home directory")
			}
			home, err := os.UserHomeDir()
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Could not find home directory", err)
			}
			viper.AddConfigPath(home)
			viper.SetConfigName("." + appName)
		} else {
			viper.AddConfigPath(appConfigDir)
			viper.SetConfigName("config")
		}

		// Also search in current directory
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables with the NETLENS_ prefix
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
		}
	} else {
		// It's OK if config file doesn't exist, we have defaults
		if verbose {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				observability.CLILogger.Debug("No config file found, using defaults and environment variables")
			} else {
				observability.CLILogger.Warn("Error reading config file", zap.Error(err))
			}
		}
	}

	config.SetDefaults()
}
