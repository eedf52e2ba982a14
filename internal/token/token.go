// token реализует хранилище access-токена: единственный источник истины
// в рамках процесса плюс best-effort зеркалирование в локальный кэш сессии,
// чтобы перезапуск не требовал повторного логина.
//
// Хранилище не выполняет сетевых вызовов и не проверяет подпись токена —
// это зона ответственности сервера. Локально мы смотрим только на структуру
// (три сегмента) и на claim exp.
package token

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/salnikovaek/bookhub-client/internal/cache"
)

var (
	// ErrNoToken — токен отсутствует и в памяти, и в кэше.
	ErrNoToken = errors.New("no token")

	// ErrMalformedToken — токен не разбирается как JWT (структура/пейлоад).
	ErrMalformedToken = errors.New("malformed token")
)

// Store — потокобезопасное хранилище access-токена.
type Store struct {
	mu    sync.RWMutex
	token string

	cache cache.SessionCache

	// now подменяется в тестах.
	now func() time.Time
}

// NewStore создаёт хранилище поверх кэша сессии.
func NewStore(c cache.SessionCache) *Store {
	return &Store{
		cache: c,
		now:   time.Now,
	}
}

// Set сохраняет токен в памяти и в кэше. Валидация при записи не выполняется.
// Память обновляется всегда; ошибка записи в кэш возвращается вызывающему,
// который волен залогировать её и продолжить.
func (s *Store) Set(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	return s.cache.SetToken(token)
}

// Get возвращает токен из памяти; при промахе пытается восстановить его
// из кэша. Ошибки кэша трактуются как отсутствие токена.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if tok != "" {
		return tok, true
	}

	cached, ok, err := s.cache.Token()
	if err != nil || !ok || cached == "" {
		return "", false
	}

	s.mu.Lock()
	s.token = cached
	s.mu.Unlock()

	return cached, true
}

// Clear стирает токен из памяти и полностью очищает кэш сессии
// (токен и профиль).
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	return s.cache.Clear()
}

// IsValid сообщает, можно ли использовать текущий токен:
// false — если токена нет, структура битая или exp <= now.
// Ошибки декодирования наружу не поднимаются.
func (s *Store) IsValid() bool {
	exp, err := s.ExpiresAt()
	if err != nil {
		return false
	}

	return exp.After(s.now())
}

// ExpiresAt возвращает момент истечения текущего токена.
// Подпись не проверяется: нас интересует только claim exp.
func (s *Store) ExpiresAt() (time.Time, error) {
	tok, ok := s.Get()
	if !ok {
		return time.Time{}, ErrNoToken
	}

	return ExpiresAt(tok)
}

// ExpiresAt декодирует exp из пейлоада токена без проверки подписи.
func ExpiresAt(token string) (time.Time, error) {
	if !IsWellFormed(token) {
		return time.Time{}, ErrMalformedToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, ErrMalformedToken
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrMalformedToken
	}

	return exp.Time, nil
}

// IsWellFormed проверяет только структуру: три непустых сегмента через точку.
func IsWellFormed(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	for _, p := range parts {
		if p == "" {
			return false
		}
	}

	return true
}
