package stub

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/salnikovaek/bookhub-client/internal/models"
	"github.com/salnikovaek/bookhub-client/pkg/log"
)

// refreshCookie — имя HTTP-only cookie с refresh-тикетом.
const refreshCookie = "refresh_token"

type accessClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.mu.Lock()
	if _, exists := s.users[in.Username]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	acc := &account{
		user: models.User{
			ID:        s.nextUser,
			Username:  in.Username,
			Email:     in.Email,
			Role:      "reader",
			CreatedAt: s.now().UTC(),
		},
		hash: hash,
	}
	s.nextUser++
	s.users[in.Username] = acc
	s.byID[acc.user.ID] = acc
	s.mu.Unlock()

	s.issueSession(w, r, acc)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.users[in.Username]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(in.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueSession(w, r, acc)
}

// handleRefresh ротирует refresh-тикет: старый гасится, выдаётся новый
// вместе со свежим access-токеном. Тикет приходит в HTTP-only cookie.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh ticket")
		return
	}

	key := hashTicket(c.Value)

	s.mu.Lock()
	tk, ok := s.tickets[key]
	if ok {
		delete(s.tickets, key) // ротация: тикет одноразовый
	}
	acc := s.byID[tk.userID]
	s.mu.Unlock()

	if !ok || acc == nil || s.now().After(tk.expiresAt) {
		writeError(w, http.StatusUnauthorized, "refresh ticket expired")
		return
	}

	s.issueSession(w, r, acc)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookie); err == nil {
		s.mu.Lock()
		delete(s.tickets, hashTicket(c.Value))
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, acc.user)
}

// issueSession выдаёт access-токен в теле ответа и свежий refresh-тикет
// в HTTP-only cookie.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, acc *account) {
	const op = "stub.issueSession"

	access, err := s.signAccess(acc)
	if err != nil {
		log.From(r.Context()).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	plain, err := s.newTicket(acc.user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    plain,
		Path:     "/",
		MaxAge:   int(s.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	u := acc.user
	writeJSON(w, http.StatusOK, models.AuthPayload{
		Token: access,
		User:  &u,
	})
}

// signAccess подписывает HS256 access-токен с клеймами uid/username.
func (s *Server) signAccess(acc *account) (string, error) {
	now := s.now().UTC()

	claims := accessClaims{
		UserID:   acc.user.ID,
		Username: acc.user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(acc.user.ID, 10),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// newTicket генерирует opaque refresh-тикет; в памяти храним только
// его хэш.
func (s *Server) newTicket(userID int64) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	s.tickets[hashTicket(plain)] = ticket{
		userID:    userID,
		expiresAt: s.now().Add(s.cfg.RefreshTokenTTL),
	}
	s.mu.Unlock()

	return plain, nil
}

func hashTicket(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// verifyAccess валидирует подпись и срок действия access-токена,
// возвращая id пользователя.
func (s *Server) verifyAccess(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token")
	}

	return claims.UserID, nil
}
