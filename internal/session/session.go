// session реализует менеджер пользовательской сессии: владеет текущим
// профилем, флагом загрузки и переходами Authenticated/Unauthenticated,
// а также фоновым циклом проактивного обновления access-токена.
//
// Менеджер не ходит в сеть сам — только через интерфейс API, поэтому
// бизнес-логика переходов тестируется на моках без сервера.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/salnikovaek/bookhub-client/internal/cache"
	"github.com/salnikovaek/bookhub-client/internal/config"
	"github.com/salnikovaek/bookhub-client/internal/models"
	"github.com/salnikovaek/bookhub-client/internal/token"
	"github.com/salnikovaek/bookhub-client/pkg/log"
)

// ErrNotAuthenticated — операция требует активной сессии.
var ErrNotAuthenticated = errors.New("not authenticated")

// API — контракт сетевого слоя, нужный менеджеру сессии.
// Реализуется клиентом (internal/client).
type API interface {
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error)
	// EnsureFresh — единая точка обновления токена; конкурентные вызовы
	// (таймер и 401-протокол транспорта) схлопываются в один refresh.
	EnsureFresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
}

// State — снимок состояния сессии для UI.
type State struct {
	User          *models.User
	Authenticated bool
	Loading       bool
}

// Manager — менеджер сессии. Безопасен для конкурентного использования.
type Manager struct {
	api   API
	store *token.Store
	cache cache.SessionCache
	cfg   config.SessionConfig

	mu      sync.Mutex
	user    *models.User
	loading bool
	notify  func() // уведомление UI о принудительном завершении сессии
}

// NewManager создаёт менеджер. Хранилище токена и кэш сессии разделяются
// с клиентом и транспортом.
func NewManager(api API, store *token.Store, sc cache.SessionCache, cfg config.SessionConfig) *Manager {
	return &Manager{
		api:   api,
		store: store,
		cache: sc,
		cfg:   cfg,
	}
}

// OnExpired регистрирует обработчик принудительного завершения сессии
// (для UI: показать «войдите заново»).
func (m *Manager) OnExpired(fn func()) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// Snapshot возвращает копию текущего состояния.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Authenticated: m.user != nil,
		Loading:       m.loading,
	}
	if m.user != nil {
		u := *m.user
		st.User = &u
	}

	return st
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// Restore — стартовая инициализация: восстановление сессии из локального
// кэша без сети, если токен ещё валиден; при валидном токене без профиля —
// запрос /auth/me. Невалидный токен оставляет сессию неаутентифицированной.
func (m *Manager) Restore(ctx context.Context) error {
	const op = "session.Restore"

	m.setLoading(true)
	defer m.setLoading(false)

	lg := log.From(ctx)

	if !m.store.IsValid() {
		return nil
	}

	if u, ok, err := m.cache.User(); err == nil && ok {
		m.mu.Lock()
		m.user = u
		m.mu.Unlock()

		lg.Debug("session_restored_from_cache", slog.String("op", op))

		return nil
	}

	u, err := m.api.Me(ctx)
	if err != nil {
		// Токен локально валиден, но сервер нас не признал —
		// чистим всё и остаёмся неаутентифицированными.
		lg.Warn("session_restore_me_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		if cerr := m.store.Clear(); cerr != nil {
			lg.Warn("session_cache_clear_failed", slog.String("err", cerr.Error()))
		}

		return nil
	}

	m.adopt(ctx, u, "")

	return nil
}

// Login выполняет вход. При неуспехе состояние сессии не меняется,
// описание ошибки пробрасывается вызывающему.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.User, error) {
	const op = "session.Login"

	m.setLoading(true)
	defer m.setLoading(false)

	u, tok, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.adopt(ctx, u, tok)

	log.From(ctx).Info("login_ok", slog.String("op", op), slog.String("username", u.Username))

	cp := *u
	return &cp, nil
}

// Register регистрирует пользователя и сразу открывает сессию.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	const op = "session.Register"

	m.setLoading(true)
	defer m.setLoading(false)

	u, tok, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.adopt(ctx, u, tok)

	log.From(ctx).Info("register_ok", slog.String("op", op), slog.String("username", u.Username))

	cp := *u
	return &cp, nil
}

// adopt переводит сессию в Authenticated: сохраняет токен (если передан),
// профиль в памяти и в кэше. Ошибки кэша не фатальны.
func (m *Manager) adopt(ctx context.Context, u *models.User, tok string) {
	lg := log.From(ctx)

	if tok != "" {
		if err := m.store.Set(tok); err != nil {
			lg.Warn("token_cache_write_failed", slog.String("err", err.Error()))
		}
	}

	if err := m.cache.SetUser(u); err != nil {
		lg.Warn("user_cache_write_failed", slog.String("err", err.Error()))
	}

	m.mu.Lock()
	m.user = u
	m.mu.Unlock()
}

// Logout завершает сессию. Серверный вызов — best-effort: его неуспех
// логируется, но не мешает локальной очистке. Локальный переход в
// Unauthenticated происходит всегда.
func (m *Manager) Logout(ctx context.Context) {
	const op = "session.Logout"

	m.setLoading(true)
	defer m.setLoading(false)

	if err := m.api.Logout(ctx); err != nil {
		log.From(ctx).Warn("logout_request_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}

	m.clearLocal(ctx)

	log.From(ctx).Info("logout_done", slog.String("op", op))
}

// Refresh принудительно обновляет токен. При неуспехе сначала выполняется
// локальный logout, затем ошибка пробрасывается вызывающему.
func (m *Manager) Refresh(ctx context.Context) error {
	const op = "session.Refresh"

	if _, ok := m.store.Get(); !ok {
		return fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}

	if _, err := m.api.EnsureFresh(ctx); err != nil {
		m.clearLocal(ctx)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpdateUser накладывает patch на профиль локально (без сети) и обновляет
// кэш; используется для оптимистичного отражения уже подтверждённых
// сервером изменений. Возвращает обновлённый профиль или nil, если
// сессии нет.
func (m *Manager) UpdateUser(patch models.UserPatch) *models.User {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return nil
	}

	patch.Apply(m.user)
	u := *m.user
	m.mu.Unlock()

	if err := m.cache.SetUser(&u); err != nil {
		slog.Default().Warn("user_cache_write_failed", slog.String("err", err.Error()))
	}

	return &u
}

// HandleSessionExpired — идемпотентный обработчик для координатора
// обновления (регистрируется через client.OnSessionExpired): хранилище
// токена к этому моменту уже вычищено, здесь завершается остальное.
func (m *Manager) HandleSessionExpired() {
	m.mu.Lock()
	wasAuth := m.user != nil
	m.user = nil
	notify := m.notify
	m.mu.Unlock()

	if !wasAuth {
		return
	}

	slog.Default().Warn("session_expired")

	if notify != nil {
		notify()
	}
}

// clearLocal переводит сессию в Unauthenticated: токен, кэш, профиль.
func (m *Manager) clearLocal(ctx context.Context) {
	if err := m.store.Clear(); err != nil {
		log.From(ctx).Warn("session_cache_clear_failed", slog.String("err", err.Error()))
	}

	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
}

// Run — фоновый цикл проактивного обновления: раз в CheckInterval смотрит
// на остаток жизни токена и при остатке не больше RefreshThreshold
// запускает обновление. Останавливается по отмене контекста.
//
// Цикл работает в одной горутине, а само обновление идёт через общий
// координатор, так что второй refresh параллельно с 401-протоколом
// транспорта не запустится.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.CheckInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.checkOnce(ctx)
		}
	}
}

// checkOnce — одна итерация проактивной проверки.
func (m *Manager) checkOnce(ctx context.Context) {
	const op = "session.checkOnce"

	lg := log.From(ctx)

	tok, ok := m.store.Get()
	if !ok || tok == "" {
		return
	}

	exp, err := token.ExpiresAt(tok)
	if err != nil {
		// Нечитаемый exp — доверять такому токену нельзя.
		lg.Warn("token_decode_failed", slog.String("op", op), slog.String("err", err.Error()))
		m.Logout(ctx)

		return
	}

	left := time.Until(exp)
	if left > m.cfg.RefreshThreshold {
		return
	}

	lg.Debug("proactive_refresh",
		slog.String("op", op),
		slog.Duration("time_left", left),
	)

	if err := m.Refresh(ctx); err != nil {
		// Refresh уже выполнил локальный logout.
		lg.Warn("proactive_refresh_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}
