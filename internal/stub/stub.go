// stub — автономный dev-сервер книжной платформы: реализует то
// подмножество HTTP API, на которое рассчитан клиент (auth с access/refresh
// токенами, книги, главы, история чтения, профиль). Всё состояние живёт
// в памяти; сервер предназначен для локальной разработки и интеграционных
// тестов клиента, не для продакшена.
package stub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salnikovaek/bookhub-client/internal/config"
	"github.com/salnikovaek/bookhub-client/internal/models"
)

// Server — in-memory реализация API. Безопасен для конкурентных запросов.
type Server struct {
	cfg config.StubConfig

	mu       sync.Mutex
	nextUser int64
	nextBook int64
	nextChap int64
	users    map[string]*account        // username -> аккаунт
	byID     map[int64]*account         // id -> аккаунт
	tickets  map[string]ticket          // sha256(refresh) -> тикет
	books    map[int64]*models.Book     // id -> книга
	chaps    map[int64][]models.Chapter // bookID -> главы
	history  map[int64][]models.HistoryEntry

	now func() time.Time
}

// account — пользователь вместе с учётными данными.
type account struct {
	user models.User
	hash []byte // bcrypt
}

// ticket — выданный refresh-тикет.
type ticket struct {
	userID    int64
	expiresAt time.Time
}

// New создаёт сервер с пустым состоянием.
func New(cfg config.StubConfig) *Server {
	s := &Server{
		cfg:      cfg,
		nextUser: 1,
		nextBook: 3,
		nextChap: 1000,
		users:    make(map[string]*account),
		byID:     make(map[int64]*account),
		tickets:  make(map[string]ticket),
		books:    make(map[int64]*models.Book),
		chaps:    make(map[int64][]models.Chapter),
		history:  make(map[int64][]models.HistoryEntry),
		now:      time.Now,
	}
	s.seed()

	return s
}

// Router собирает chi-роутер со всеми маршрутами и middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(
		recoverer(),
		requestID(),
		logging(),
	)

	// auth
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	// всё остальное требует Bearer-токен
	r.Group(func(r chi.Router) {
		r.Use(s.authBearer)

		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.Get("/books", s.handleListBooks)
		r.Post("/books", s.handleCreateBook)
		r.Get("/books/{id}", s.handleBookByID)
		r.Get("/books/{id}/chapters", s.handleListChapters)
		r.Post("/books/{id}/chapters", s.handleCreateChapter)
		r.Get("/books/{id}/chapters/{cid}", s.handleChapterByID)

		r.Get("/history", s.handleHistory)
		r.Post("/history", s.handleSaveProgress)

		r.Patch("/users/{id}", s.handleUpdateProfile)
		r.Post("/users/{id}/avatar", s.handleUploadAvatar)
	})

	return r
}

// seed наполняет каталог парой книг, чтобы dev-сервер не был пустым.
func (s *Server) seed() {
	created := s.now().UTC().Add(-24 * time.Hour)

	for _, b := range []models.Book{
		{ID: 1, Title: "Хроники тумана", Author: "А. Северова", Genres: []string{"fantasy"}, Description: "Первая книга цикла.", ChapterCount: 2, CreatedAt: created},
		{ID: 2, Title: "Город на сваях", Author: "М. Лейн", Genres: []string{"detective"}, Description: "Портовый нуар.", ChapterCount: 2, CreatedAt: created},
	} {
		bc := b
		s.books[b.ID] = &bc
		s.chaps[b.ID] = []models.Chapter{
			{ID: b.ID*100 + 1, BookID: b.ID, Number: 1, Title: "Глава 1", Content: "Начало.", CreatedAt: created},
			{ID: b.ID*100 + 2, BookID: b.ID, Number: 2, Title: "Глава 2", Content: "Продолжение.", CreatedAt: created},
		}
	}
}

// writeJSON отвечает единым конвертом {success, message, data}.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(models.Envelope{
		Success: true,
		Data:    raw,
	})
}

// writeError — единый конверт ошибки; message уходит клиенту как есть.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.Envelope{
		Success: false,
		Message: message,
	})
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
