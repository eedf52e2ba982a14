package stub

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ctxAccount ctxKey = iota

// authBearer проверяет заголовок Authorization и кладёт аккаунт в контекст.
// Просроченный или битый токен — 401 в едином конверте; это триггер
// refresh-протокола на стороне клиента.
func (s *Server) authBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		uid, err := s.verifyAccess(strings.TrimPrefix(raw, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token expired or invalid")
			return
		}

		s.mu.Lock()
		acc := s.byID[uid]
		s.mu.Unlock()

		if acc == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), ctxAccount, acc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accountFrom возвращает аккаунт из контекста запроса или nil.
func accountFrom(r *http.Request) *account {
	acc, _ := r.Context().Value(ctxAccount).(*account)
	return acc
}
