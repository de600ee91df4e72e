package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mediagate/internal/config"
	"github.com/bigkaa/mediagate/internal/domain/model"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <mxc>...",
		Short: "Проверить медиа через сканер и вывести вердикты",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			if err := cfg.RequireScanner(); err != nil {
				return err
			}

			client, err := newScanClient(cfg, cliLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(args))
			failed := 0
			for _, raw := range args {
				mxc, err := model.ParseMXC(raw)
				if err != nil {
					rows = append(rows, []string{raw, "ошибка", err.Error()})
					failed++
					continue
				}

				result, err := client.ScanResult(cmd.Context(), mxc, nil)
				if err != nil {
					rows = append(rows, []string{raw, "ошибка", err.Error()})
					failed++
					continue
				}
				rows = append(rows, []string{raw, verdictText(result.Clean), result.Info})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"MXC", "Вердикт", "Пояснение"}, rows))
			if failed > 0 {
				return errors.New("проверка завершилась с ошибками")
			}
			return nil
		},
	}
}

// verdictText — вердикт сканера для вывода.
func verdictText(clean bool) string {
	if clean {
		return "безопасно"
	}
	return "небезопасно"
}
