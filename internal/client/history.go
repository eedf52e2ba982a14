package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

// History возвращает историю чтения текущего пользователя.
func (c *Client) History(ctx context.Context) ([]models.HistoryEntry, error) {
	const op = "client.history.History"

	var out []models.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/history", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// SaveProgress фиксирует позицию чтения.
func (c *Client) SaveProgress(ctx context.Context, req models.SaveProgressRequest) (*models.HistoryEntry, error) {
	const op = "client.history.SaveProgress"

	var out models.HistoryEntry
	if err := c.do(ctx, http.MethodPost, "/history", req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}
