package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/salnikovaek/bookhub-client/internal/token"
	"github.com/salnikovaek/bookhub-client/pkg/log"
)

// RefreshFunc выполняет фактический обмен refresh-тикета на новый access-токен
// (POST на refresh-эндпойнт; cookie с тикетом транспорт браузерного типа
// прикладывает сам — у нас это cookie jar HTTP-клиента).
type RefreshFunc func(ctx context.Context) (string, error)

// Coordinator — единая точка обновления access-токена.
//
// Оба триггера (фоновая проверка срока действия и 401 от сервера) проходят
// через EnsureFresh: конкурентные вызовы схлопываются в один сетевой refresh,
// результат которого получают все ожидающие. Тем самым инвариант «не более
// одного refresh в полёте» держится независимо от источника.
type Coordinator struct {
	store   *token.Store
	refresh RefreshFunc

	group singleflight.Group

	mu        sync.Mutex
	onExpired func()
}

// NewCoordinator создаёт координатор поверх хранилища токена.
func NewCoordinator(store *token.Store, refresh RefreshFunc) *Coordinator {
	return &Coordinator{
		store:   store,
		refresh: refresh,
	}
}

// OnSessionExpired регистрирует обработчик необратимой потери сессии
// (аналог редиректа на страницу логина). Обработчик обязан быть идемпотентным.
func (c *Coordinator) OnSessionExpired(fn func()) {
	c.mu.Lock()
	c.onExpired = fn
	c.mu.Unlock()
}

// EnsureFresh выполняет (или ждёт уже идущий) refresh и возвращает новый токен.
// stale — токен, с которым вызывающий получил отказ (пустая строка, если токена
// не было): если к началу работы в хранилище уже лежит другой токен, значит
// его успел обновить кто-то параллельный, и повторный сетевой refresh не нужен.
//
// Успех: токен сохранён в хранилище, все ожидающие получают его и повторяют
// свои запросы уже с ним — со старым токеном не уходит ни один повтор.
// Отмена контекста инициатора общий refresh не прерывает: его результат
// нужен остальным ожидающим.
// Неудача: локальное состояние сессии очищено, обработчик onExpired вызван
// (ровно один раз на неудачный refresh), ошибка отдана всем ожидающим.
func (c *Coordinator) EnsureFresh(ctx context.Context, stale string) (string, error) {
	const op = "transport.refresh.EnsureFresh"

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		lg := log.From(ctx)

		cur, ok := c.store.Get()
		if ok && cur != stale && token.IsWellFormed(cur) {
			return cur, nil
		}
		if !ok && stale != "" {
			// Вызывающий держал токен, а хранилище уже пусто: параллельный
			// refresh только что провалился и завершил сессию. Не повторяем
			// его молча и не шлём второе уведомление.
			return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
		}

		// Результата ждут все коалесцированные вызывающие, поэтому сетевой
		// refresh не должен умирать вместе с инициатором: отвязываем его от
		// отмены контекста триггера (значения — логгер, request id —
		// сохраняются). Свой дедлайн у вызова есть — таймаут HTTP-клиента.
		tok, err := c.refresh(context.WithoutCancel(ctx))
		if err != nil {
			lg.Warn("token_refresh_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)

			c.expire(ctx)

			return nil, fmt.Errorf("%s: %w: %v", op, ErrSessionExpired, err)
		}

		if serr := c.store.Set(tok); serr != nil {
			// Кэш — best-effort: токен уже в памяти, работаем дальше.
			lg.Warn("token_cache_write_failed",
				slog.String("op", op),
				slog.String("err", serr.Error()),
			)
		}

		lg.Debug("token_refreshed", slog.String("op", op))

		return tok, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// expire чистит локальное состояние и уведомляет подписчика.
func (c *Coordinator) expire(ctx context.Context) {
	if err := c.store.Clear(); err != nil {
		log.From(ctx).Warn("session_cache_clear_failed",
			slog.String("err", err.Error()),
		)
	}

	c.mu.Lock()
	fn := c.onExpired
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}
