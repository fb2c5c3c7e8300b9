package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecommerce-chatbot/backend/pkg/config"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Operate the e-commerce chatbot from the terminal",
	Long: `chatctl loads the FAQ and product data the chatbot answers from,
scrapes product listings into CSV, checks the intent router against its own
utterances, and asks the chatbot questions with streamed answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return logger.Init(level, "console", "stderr")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the validated configuration for commands that call the
// completion or embedding service.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
