package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

// UpdateProfile обновляет поля профиля на сервере и возвращает
// подтверждённый профиль.
func (c *Client) UpdateProfile(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	const op = "client.users.UpdateProfile"

	var out models.User
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/users/%d", id), patch, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// UploadAvatar загружает аватар multipart-запросом. Content-Type с boundary
// выставляется здесь и транспортом не переопределяется.
func (c *Client) UploadAvatar(ctx context.Context, id int64, filename string, file io.Reader) (*models.User, error) {
	const op = "client.users.UploadAvatar"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := c.url(fmt.Sprintf("/users/%d/avatar", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var out models.User
	if err := decodeEnvelope(resp, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}
