package stub

import (
	"net/http"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	s.mu.Lock()
	entries := s.history[acc.user.ID]
	out := make([]models.HistoryEntry, len(entries))
	copy(out, entries)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

// handleSaveProgress сохраняет позицию чтения: по одной записи на книгу,
// повторное сохранение перезаписывает прежнюю позицию.
func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	var in models.SaveProgressRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if in.BookID <= 0 || in.Position < 0 || in.Position > 1 {
		writeError(w, http.StatusBadRequest, "invalid progress payload")
		return
	}

	s.mu.Lock()
	if _, found := s.books[in.BookID]; !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	entry := models.HistoryEntry{
		BookID:    in.BookID,
		ChapterID: in.ChapterID,
		Position:  in.Position,
		UpdatedAt: s.now().UTC(),
	}

	entries := s.history[acc.user.ID]
	replaced := false
	for i := range entries {
		if entries[i].BookID == in.BookID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	s.history[acc.user.ID] = entries
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, entry)
}
