package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/config"
)

var (
	cfgFile string
	order   []string

	cfg     *config.Config
	logger  *zap.Logger
	manager *llmprovider.Manager
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "LLM provider relay",
	Long: `meridian sends chat requests to Anthropic, Gemini or OpenRouter and falls
back to the next provider when one is rate limited or overloaded.`,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&order, "order", nil, "fallback order override, e.g. gemini,anthropic")

	rootCmd.AddCommand(providersCmd, chatCmd, streamCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	bootstrap, err := llmprovider.NewLogger("info")
	if err != nil {
		return err
	}

	loader := config.NewLoader(cfgFile, bootstrap)
	if cfg, err = loader.Load(); err != nil {
		return err
	}
	if len(order) > 0 {
		cfg.FallbackOrder = order
	}

	if logger, err = llmprovider.NewLogger(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if manager, err = config.NewManager(cfg, logger); err != nil {
		return err
	}
	if len(order) == 0 {
		loader.WatchFallbackOrder(manager)
	}
	return nil
}
