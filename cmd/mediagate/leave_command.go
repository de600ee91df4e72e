package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mediagate/internal/config"
	"github.com/bigkaa/mediagate/internal/hsclient"
	"github.com/bigkaa/mediagate/internal/roomctl"
)

func newLeaveRoomCommand() *cobra.Command {
	var (
		currentURL string
		silent     bool
	)

	cmd := &cobra.Command{
		Use:   "leave-room",
		Short: "Покинуть комнату, открытую по URL веб-клиента",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			if err := cfg.RequireHomeserver(); err != nil {
				return err
			}

			logger := cliLogger(cfg, cmd.ErrOrStderr())
			client := hsclient.New(cfg.HomeserverURL, cfg.HomeserverAccessToken, cfg.HomeserverTimeout, logger)

			if silent {
				roomctl.LeaveCurrentRoomWithSilentFail(cmd.Context(), currentURL, client, logger)
				return nil
			}
			return roomctl.LeaveCurrentRoom(cmd.Context(), currentURL, client, logger)
		},
	}

	cmd.Flags().StringVar(&currentURL, "url", "", "Текущий URL веб-клиента (…/#/room/<id>)")
	cmd.Flags().BoolVar(&silent, "silent", false, "Не завершаться с ошибкой при сбое выхода")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
