// cache реализует локальный кэш сессии: два слота — сериализованный
// access-токен и JSON профиля пользователя. Кэш нужен только для того,
// чтобы перезапуск процесса не требовал повторного логина; это не
// гарантия долговечности.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/salnikovaek/bookhub-client/internal/models"
	"github.com/salnikovaek/bookhub-client/pkg/log"
)

// SessionCache — минимальный контракт локального кэша сессии.
type SessionCache interface {
	// Token возвращает сохранённый access-токен и признак его наличия.
	Token() (string, bool, error)
	// SetToken сохраняет access-токен.
	SetToken(token string) error
	// User возвращает сохранённый профиль и признак его наличия.
	User() (*models.User, bool, error)
	// SetUser сохраняет профиль.
	SetUser(u *models.User) error
	// Clear очищает оба слота.
	Clear() error
	// Close закрывает кэш.
	Close() error
}

var (
	bktSession = []byte("session")

	tokenKey = []byte("token")
	userKey  = []byte("user")
)

type boltCache struct {
	db *bolt.DB
}

// NewBolt открывает (или создаёт) файл кэша по указанному пути.
// Родительская директория создаётся при необходимости.
func NewBolt(path string) (SessionCache, error) {
	const op = "cache.NewBolt"

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bktSession)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &boltCache{db: db}, nil
}

// OpenOrMemory открывает файловый кэш по пути path, а при неудаче деградирует
// до кэша в памяти: клиент остаётся работоспособным, сессия просто не
// переживёт перезапуск процесса.
func OpenOrMemory(ctx context.Context, path string) SessionCache {
	const op = "cache.OpenOrMemory"

	c, err := NewBolt(path)
	if err != nil {
		log.From(ctx).Warn("session_cache_open_failed",
			slog.String("op", op),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)

		return NewMemory()
	}

	return c
}

func (c *boltCache) get(key []byte) ([]byte, bool, error) {
	var out []byte

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bktSession)
		if b == nil {
			return nil
		}

		if v := b.Get(key); v != nil {
			out = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return out, out != nil, nil
}

func (c *boltCache) put(key, value []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bktSession)
		if err != nil {
			return err
		}

		return b.Put(key, value)
	})
}

func (c *boltCache) Token() (string, bool, error) {
	const op = "cache.bolt.Token"

	v, ok, err := c.get(tokenKey)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return string(v), ok, nil
}

func (c *boltCache) SetToken(token string) error {
	const op = "cache.bolt.SetToken"

	if err := c.put(tokenKey, []byte(token)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *boltCache) User() (*models.User, bool, error) {
	const op = "cache.bolt.User"

	v, ok, err := c.get(userKey)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, false, nil
	}

	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		// Битую запись считаем отсутствующей.
		return nil, false, nil
	}

	return &u, true, nil
}

func (c *boltCache) SetUser(u *models.User) error {
	const op = "cache.bolt.SetUser"

	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.put(userKey, raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *boltCache) Clear() error {
	const op = "cache.bolt.Clear"

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bktSession)
		if b == nil {
			return nil
		}

		if err := b.Delete(tokenKey); err != nil {
			return err
		}

		return b.Delete(userKey)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *boltCache) Close() error { return c.db.Close() }

// memoryCache — кэш в памяти процесса; используется в тестах и как
// фолбэк, когда файл кэша недоступен.
type memoryCache struct {
	mu    sync.Mutex
	token string
	hasT  bool
	user  *models.User
}

// NewMemory создаёт кэш в памяти.
func NewMemory() SessionCache {
	return &memoryCache{}
}

func (c *memoryCache) Token() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token, c.hasT, nil
}

func (c *memoryCache) SetToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.hasT = true
	return nil
}

func (c *memoryCache) User() (*models.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return nil, false, nil
	}

	u := *c.user
	return &u, true, nil
}

func (c *memoryCache) SetUser(u *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u == nil {
		c.user = nil
		return nil
	}

	cp := *u
	c.user = &cp
	return nil
}

func (c *memoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.hasT = false
	c.user = nil
	return nil
}

func (c *memoryCache) Close() error { return nil }
