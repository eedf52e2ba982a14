package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

// Login аутентифицирует пользователя по паре логин/пароль.
// Возвращает профиль и access-токен; сохранение токена — забота вызывающего
// (менеджера сессии).
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	const op = "client.auth.Login"

	var payload models.AuthPayload
	err := c.doAuth(ctx, http.MethodPost, "/auth/login",
		models.LoginRequest{Username: username, Password: password}, &payload)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if payload.Token == "" || payload.User == nil {
		return nil, "", fmt.Errorf("%s: incomplete auth payload", op)
	}

	return payload.User, payload.Token, nil
}

// Register регистрирует нового пользователя; контракт ответа совпадает
// с Login.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	const op = "client.auth.Register"

	var payload models.AuthPayload
	if err := c.doAuth(ctx, http.MethodPost, "/auth/register", req, &payload); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if payload.Token == "" || payload.User == nil {
		return nil, "", fmt.Errorf("%s: incomplete auth payload", op)
	}

	return payload.User, payload.Token, nil
}

// Me возвращает профиль текущего пользователя (авторизованный запрос).
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	const op = "client.auth.Me"

	var u models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &u, nil
}

// Logout сообщает серверу о выходе (сервер гасит refresh-тикет).
// Локальную очистку состояния выполняет менеджер сессии независимо
// от исхода этого вызова.
func (c *Client) Logout(ctx context.Context) error {
	const op = "client.auth.Logout"

	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// refreshCall — фактический сетевой refresh: POST без тела, тикет уезжает
// в HTTP-only cookie из общего jar. Используется только координатором.
func (c *Client) refreshCall(ctx context.Context) (string, error) {
	const op = "client.auth.refreshCall"

	var payload models.AuthPayload
	if err := c.doAuth(ctx, http.MethodPost, "/auth/refresh", nil, &payload); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if payload.Token == "" {
		return "", fmt.Errorf("%s: empty token in refresh response", op)
	}

	return payload.Token, nil
}
