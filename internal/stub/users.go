package stub

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

// maxAvatarSize — предел размера аватара, 2 МиБ.
const maxAvatarSize = 2 << 20

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if id != acc.user.ID {
		writeError(w, http.StatusForbidden, "cannot edit another user")
		return
	}

	var patch models.UserPatch
	if err := decodeStrict(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	if patch.Username != nil && *patch.Username != acc.user.Username {
		if _, taken := s.users[*patch.Username]; taken {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "username already taken")
			return
		}

		delete(s.users, acc.user.Username)
		s.users[*patch.Username] = acc
	}

	patch.Apply(&acc.user)
	out := acc.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

// handleUploadAvatar принимает multipart-файл; сам файл никуда не
// сохраняется, профилю присваивается синтетический avatar_url.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if id != acc.user.ID {
		writeError(w, http.StatusForbidden, "cannot edit another user")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(file, maxAvatarSize)); err != nil {
		writeError(w, http.StatusBadRequest, "unreadable avatar file")
		return
	}

	s.mu.Lock()
	acc.user.AvatarURL = fmt.Sprintf("/static/avatars/%d%s", acc.user.ID, filepath.Ext(header.Filename))
	out := acc.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}
