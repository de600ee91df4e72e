package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mediagate/internal/config"
)

func newFeaturesCommand() *cobra.Command {
	var previous, current string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Показать флаги функций и решение об очистке кэша",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			flags := cfg.Features

			source := "по умолчанию"
			if cfg.FeaturesFile != "" {
				source = cfg.FeaturesFile
			}

			rows := [][]string{
				{"is_space_display_enabled", strconv.FormatBool(flags.IsSpaceDisplayEnabled)},
				{"auto_accept_terms_and_conditions", strconv.FormatBool(flags.AutoAcceptTermsAndConditions)},
				{"show_email_phone_discovery_settings", strconv.FormatBool(flags.ShowEmailPhoneDiscoverySettings)},
				{"activate_clear_cache_and_reload_at_version4", strconv.FormatBool(flags.ActivateClearCacheAndReloadAtVersion4)},
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Источник: %s\n", source)
			fmt.Fprintln(out, renderTable([]string{"Флаг", "Значение"}, rows))

			if cmd.Flags().Changed("previous") || cmd.Flags().Changed("current") {
				fmt.Fprintf(out, "clear_cache(%s → %s): %t\n",
					previous, current, flags.ShouldClearCache(previous, current))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&previous, "previous", "", "Предыдущая версия клиента")
	cmd.Flags().StringVar(&current, "current", "", "Текущая версия клиента")
	return cmd
}
