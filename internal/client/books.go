package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

// Books возвращает каталог книг.
func (c *Client) Books(ctx context.Context) ([]models.Book, error) {
	const op = "client.books.Books"

	var out []models.Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Book возвращает книгу по идентификатору.
func (c *Client) Book(ctx context.Context, id int64) (*models.Book, error) {
	const op = "client.books.Book"

	var out models.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// CreateBook создаёт книгу от имени текущего пользователя.
func (c *Client) CreateBook(ctx context.Context, req models.CreateBookRequest) (*models.Book, error) {
	const op = "client.books.CreateBook"

	var out models.Book
	if err := c.do(ctx, http.MethodPost, "/books", req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Chapters возвращает оглавление книги (без содержимого глав).
func (c *Client) Chapters(ctx context.Context, bookID int64) ([]models.Chapter, error) {
	const op = "client.books.Chapters"

	var out []models.Chapter
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%d/chapters", bookID), nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Chapter возвращает главу с содержимым.
func (c *Client) Chapter(ctx context.Context, bookID, chapterID int64) (*models.Chapter, error) {
	const op = "client.books.Chapter"

	var out models.Chapter
	path := fmt.Sprintf("/books/%d/chapters/%d", bookID, chapterID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// CreateChapter добавляет главу в книгу.
func (c *Client) CreateChapter(ctx context.Context, bookID int64, req models.CreateChapterRequest) (*models.Chapter, error) {
	const op = "client.books.CreateChapter"

	var out models.Chapter
	path := fmt.Sprintf("/books/%d/chapters", bookID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}
