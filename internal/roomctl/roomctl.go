// Пакет roomctl — операции тестовой автоматизации: выход из комнаты,
// открытой в веб-клиенте по текущему URL.
package roomctl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// roomSegment — маркер фрагмента URL веб-клиента, за которым следует id комнаты.
const roomSegment = "/#/room/"

// Leaver — выполняет выход из комнаты. Реализуется hsclient.Client.
type Leaver interface {
	LeaveRoom(ctx context.Context, roomID string) error
}

// RoomIDFromURL извлекает id комнаты из URL веб-клиента
// (https://host/#/room/!id:server). ok == false, если сегмента нет.
func RoomIDFromURL(rawURL string) (string, bool) {
	_, after, found := strings.Cut(rawURL, roomSegment)
	if !found {
		return "", false
	}
	// Остаток фрагмента (/event, ?via=) к id не относится
	if i := strings.IndexAny(after, "/?"); i >= 0 {
		after = after[:i]
	}
	if after == "" {
		return "", false
	}
	return after, true
}

// LeaveCurrentRoom покидает комнату, открытую по currentURL.
// Если id комнаты не найден — пишет диагностику в лог и ничего не делает.
// Ошибка выхода возвращается вызывающему коду.
func LeaveCurrentRoom(ctx context.Context, currentURL string, leaver Leaver, logger *slog.Logger) error {
	roomID, ok := RoomIDFromURL(currentURL)
	if !ok {
		logger.Warn("Не найден id комнаты в URL, выход пропущен",
			slog.String("url", currentURL),
		)
		return nil
	}

	if err := leaver.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("выход из текущей комнаты: %w", err)
	}
	return nil
}

// LeaveCurrentRoomWithSilentFail — вариант LeaveCurrentRoom, который
// пишет любую ошибку выхода в лог и не возвращает её.
func LeaveCurrentRoomWithSilentFail(ctx context.Context, currentURL string, leaver Leaver, logger *slog.Logger) {
	if err := LeaveCurrentRoom(ctx, currentURL, leaver, logger); err != nil {
		logger.Warn("Ошибка выхода из комнаты проигнорирована",
			slog.String("url", currentURL),
			slog.String("error", err.Error()),
		)
	}
}
