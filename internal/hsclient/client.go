// Пакет hsclient — HTTP-клиент Matrix Client-Server API домашнего сервера.
// Используется для операций тестовой автоматизации (выход из комнаты).
package hsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MatrixError — ошибка Matrix API ({"errcode","error"}).
type MatrixError struct {
	StatusCode int    `json:"-"`
	ErrCode    string `json:"errcode"`
	Message    string `json:"error"`
}

func (e *MatrixError) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("homeserver: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("homeserver: HTTP %d %s: %s", e.StatusCode, e.ErrCode, e.Message)
}

// Client — клиент домашнего сервера с access token пользователя.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New создаёт клиент домашнего сервера.
// homeserverURL — базовый URL (например, https://matrix.example.org).
func New(homeserverURL, accessToken string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(homeserverURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "hs_client")),
	}
}

// LeaveRoom покидает комнату roomID.
// Формат запроса: POST /_matrix/client/v3/rooms/{roomId}/leave.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	reqURL := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/leave", c.baseURL, url.PathEscape(roomID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("создание запроса LeaveRoom: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос LeaveRoom %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		mErr := &MatrixError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, mErr)
		return fmt.Errorf("выход из комнаты %s: %w", roomID, mErr)
	}

	c.logger.Info("Выход из комнаты выполнен", slog.String("room_id", roomID))
	return nil
}
