package stub

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, *b)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	s.mu.Lock()
	b, found := s.books[id]
	var out models.Book
	if found {
		out = *b
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	var in models.CreateBookRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if in.Title == "" || in.Author == "" {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return
	}

	s.mu.Lock()
	b := &models.Book{
		ID:          s.nextBook,
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Genres:      in.Genres,
		OwnerID:     acc.user.ID,
		CreatedAt:   s.now().UTC(),
	}
	s.nextBook++
	s.books[b.ID] = b
	out := *b
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	s.mu.Lock()
	_, found := s.books[id]
	chaps := s.chaps[id]
	out := make([]models.Chapter, len(chaps))
	copy(out, chaps)
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	// В списке контент глав не отдаём.
	for i := range out {
		out[i].Content = ""
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	var in models.CreateChapterRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if in.Title == "" || in.Number <= 0 {
		writeError(w, http.StatusBadRequest, "title and positive number are required")
		return
	}

	s.mu.Lock()
	b, found := s.books[id]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	if b.OwnerID != 0 && b.OwnerID != acc.user.ID {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "not the book owner")
		return
	}

	ch := models.Chapter{
		ID:        s.nextChap,
		BookID:    id,
		Number:    in.Number,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: s.now().UTC(),
	}
	s.nextChap++
	s.chaps[id] = append(s.chaps[id], ch)
	b.ChapterCount = len(s.chaps[id])
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleChapterByID(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseID(r)
	cid, err := strconv.ParseInt(chi.URLParam(r, "cid"), 10, 64)
	if !ok || err != nil {
		writeError(w, http.StatusBadRequest, "invalid chapter id")
		return
	}

	s.mu.Lock()
	var out models.Chapter
	var found bool
	for _, ch := range s.chaps[bookID] {
		if ch.ID == cid {
			out = ch
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "chapter not found")
		return
	}

	writeJSON(w, http.StatusOK, out)
}
