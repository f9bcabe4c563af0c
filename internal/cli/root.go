// Package cli provides the command-line interface for annobridge.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/annobridge/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	envFile    string
	configFile string

	// Global config, loaded before every command
	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "annobridge",
	Short: "HUMAN protocol annotation exchange",
	Long: `Annobridge bridges an annotation platform into the HUMAN protocol: it
accepts signed job submissions, bootstraps annotation projects from job
manifests, auto-curates finished annotations and publishes the results
back to the job flow.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.LoadWithFile(envFile, configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "optional .env file to load")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file overlaying the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(manifestCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
