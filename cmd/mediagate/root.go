package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mediagate/internal/config"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mediagate",
		Short:         "Медиа-шлюз Tchap с проверкой контента",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newFeaturesCommand())
	rootCmd.AddCommand(newLeaveRoomCommand())

	return rootCmd
}

// cliLogger — логгер CLI-команд. Пишет в stderr, чтобы не смешиваться
// с табличным выводом.
func cliLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel}))
}
