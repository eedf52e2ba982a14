// transport реализует клиентский HTTP-интерсептор:
//   - фаза запроса: подкладывает Bearer-токен, помечает JSON-запросы,
//     генерирует X-Request-Id, отсекает структурно битые токены;
//   - фаза ответа: на 401 запускает (или ждёт) общий refresh через Coordinator
//     и повторяет исходный запрос ровно один раз с новым токеном.
//
// Повторность отслеживается явным маркером в контексте запроса, а не мутацией
// самого запроса, поэтому инвариант «не более одного повтора» проверяется
// независимо.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/salnikovaek/bookhub-client/internal/token"
	"github.com/salnikovaek/bookhub-client/pkg/log"
)

var (
	// ErrMalformedToken — в хранилище оказался структурно битый токен;
	// запрос прерван до отправки, локальное состояние очищено.
	ErrMalformedToken = errors.New("malformed access token")

	// ErrSessionExpired — refresh не удался (тикет истёк/отозван или сеть
	// недоступна); сессия завершена локально, требуется повторный логин.
	ErrSessionExpired = errors.New("session expired")
)

type retriedKey struct{}

// withRetried помечает контекст: запрос уже повторялся после refresh.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// isRetried сообщает, был ли запрос уже повторён.
func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Transport — http.RoundTripper с прозрачной авторизацией.
type Transport struct {
	base      http.RoundTripper
	store     *token.Store
	coord     *Coordinator
	userAgent string
}

// Options — необязательные параметры транспорта.
type Options struct {
	// Base — низлежащий RoundTripper; по умолчанию http.DefaultTransport.
	Base http.RoundTripper
	// UserAgent проставляется, если запрос не задал свой.
	UserAgent string
}

// New создаёт транспорт поверх хранилища токена и координатора обновления.
func New(store *token.Store, coord *Coordinator, opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		base:      base,
		store:     store,
		coord:     coord,
		userAgent: opts.UserAgent,
	}
}

// RoundTrip реализует http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "transport.RoundTrip"

	lg := log.From(req.Context())

	out := req.Clone(req.Context())

	var sent string
	if tok, ok := t.store.Get(); ok {
		if !token.IsWellFormed(tok) {
			// Битый токен на сервер не отправляем: чистим локальное
			// состояние и сразу возвращаем ошибку.
			if err := t.store.Clear(); err != nil {
				lg.Warn("session_cache_clear_failed", slog.String("err", err.Error()))
			}

			return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
		}

		sent = tok
		out.Header.Set("Authorization", "Bearer "+tok)
	}

	// Multipart сам несёт Content-Type с boundary — его не трогаем;
	// остальные запросы с телом помечаем как JSON.
	if out.Body != nil && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/json")
	}

	if out.Header.Get("X-Request-Id") == "" {
		out.Header.Set("X-Request-Id", uuid.NewString())
	}

	if t.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		// Сетевые ошибки и таймауты — не повод для refresh;
		// отдаём их вызывающему как есть.
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if isRetried(req.Context()) {
		// 401 после уже выполненного повтора: сессия безнадёжна.
		lg.Warn("unauthorized_after_retry",
			slog.String("op", op),
			slog.String("path", req.URL.Path),
		)
		t.coord.expire(req.Context())

		return resp, nil
	}

	if req.Body != nil && req.GetBody == nil {
		// Тело невоспроизводимо — повторить запрос нельзя.
		return resp, nil
	}

	// Ответ нам больше не нужен: освобождаем соединение перед повтором.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	newTok, err := t.coord.EnsureFresh(req.Context(), sent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	retry := req.Clone(withRetried(req.Context()))
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return nil, fmt.Errorf("%s: restore request body: %w", op, berr)
		}

		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+newTok)

	lg.Debug("request_retry_after_refresh",
		slog.String("op", op),
		slog.String("path", req.URL.Path),
	)

	return t.RoundTrip(retry)
}
