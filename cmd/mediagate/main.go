// Точка входа mediagate — медиа-шлюз Tchap с проверкой контента.
// Команды: serve (HTTP API), scan, features, leave-room.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
