package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "civicsight",
	Short: "Civic infrastructure damage reporting pipeline",
	Long:  "Classifies photos of civic damage via vision models, finds the right city reporting form, files the report through form automation, and amplifies it on social media.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
