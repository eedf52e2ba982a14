package models

import "time"

// Book — книга каталога.
type Book struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Description  string    `json:"description,omitempty"`
	CoverURL     string    `json:"cover_url,omitempty"`
	Genres       []string  `json:"genres,omitempty"`
	ChapterCount int       `json:"chapter_count"`
	OwnerID      int64     `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chapter — глава книги. Content приходит только в ответе на запрос
// конкретной главы; в списках поле пустое.
type Chapter struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry — позиция чтения пользователя в книге.
type HistoryEntry struct {
	BookID    int64     `json:"book_id"`
	ChapterID int64     `json:"chapter_id"`
	Position  float64   `json:"position"` // доля главы в [0;1]
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateBookRequest struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

type CreateChapterRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type SaveProgressRequest struct {
	BookID    int64   `json:"book_id"`
	ChapterID int64   `json:"chapter_id"`
	Position  float64 `json:"position"`
}
