package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salnikovaek/bookhub-client/internal/cache"
	"github.com/salnikovaek/bookhub-client/internal/token"
)

// Пакет тестов для клиентского интерсептора (transport.go, refresh.go).
//
// Покрытие:
//  - фаза запроса: Bearer, Content-Type, X-Request-Id, отсечка битого токена;
//  - протокол refresh-and-retry: ровно один сетевой refresh на волну 401,
//    повтор строго с новым токеном, не более одного повтора на запрос;
//  - неудачный refresh: отказ всем ожидающим, очистка состояния,
//    однократное уведомление о завершении сессии.

const (
	oldTok = "h.old-payload.s"
	newTok = "h.new-payload.s"
)

func newStore(t *testing.T, tok string) *token.Store {
	t.Helper()

	s := token.NewStore(cache.NewMemory())
	if tok != "" {
		require.NoError(t, s.Set(tok))
	}

	return s
}

// okOnlyWith возвращает хендлер: 200 для ожидаемого токена, 401 для любого
// другого. Счётчик unauthorized растёт на каждый выданный 401.
func okOnlyWith(expected string, unauthorized *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+expected {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}

		unauthorized.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"token expired"}`))
	}
}

func TestRoundTrip_AttachesBearerAndServiceHeaders(t *testing.T) {
	t.Parallel()

	var gotAuth, gotCT, gotRID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotRID = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newStore(t, oldTok)
	tr := New(store, NewCoordinator(store, nil), Options{UserAgent: "bookhub-test"})
	client := &http.Client{Transport: tr}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/books", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "Bearer "+oldTok, gotAuth)
	require.Equal(t, "application/json", gotCT)
	require.NotEmpty(t, gotRID)
}

func TestRoundTrip_MultipartContentTypePreserved(t *testing.T) {
	t.Parallel()

	const multipartCT = "multipart/form-data; boundary=xyz"

	var gotCT string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newStore(t, oldTok)
	tr := New(store, NewCoordinator(store, nil), Options{})
	client := &http.Client{Transport: tr}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/avatar", bytes.NewReader([]byte("--xyz--")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", multipartCT)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, multipartCT, gotCT)
}

func TestRoundTrip_NoToken_NoAuthHeader(t *testing.T) {
	t.Parallel()

	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newStore(t, "")
	tr := New(store, NewCoordinator(store, nil), Options{})
	client := &http.Client{Transport: tr}

	resp, err := client.Get(srv.URL + "/books")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Empty(t, gotAuth)
}

// Битый токен не должен уйти на сервер: запрос прерывается локально,
// кэш сессии очищается.
func TestRoundTrip_MalformedToken_PurgesAndFails(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := cache.NewMemory()
	store := token.NewStore(c)
	require.NoError(t, store.Set("not-a-jwt"))

	tr := New(store, NewCoordinator(store, nil), Options{})
	client := &http.Client{Transport: tr}

	_, err := client.Get(srv.URL + "/books") //nolint:bodyclose // ответа нет
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedToken)

	require.Equal(t, int32(0), hits.Load(), "запрос не должен был дойти до сервера")

	_, ok := store.Get()
	require.False(t, ok)
}

// Токен с истёкшим exp обнаруживается сервером (401): ровно один refresh,
// затем повтор исходного запроса с новым токеном.
func TestRoundTrip_RefreshAndRetry(t *testing.T) {
	t.Parallel()

	var unauthorized, refreshes atomic.Int32

	srv := httptest.NewServer(okOnlyWith(newTok, &unauthorized))
	defer srv.Close()

	store := newStore(t, oldTok)
	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		return newTok, nil
	})

	client := &http.Client{Transport: New(store, coord, Options{})}

	resp, err := client.Get(srv.URL + "/books")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, int32(1), unauthorized.Load())

	got, ok := store.Get()
	require.True(t, ok)
	require.Equal(t, newTok, got)
}

// Конкурентные запросы, получившие 401 в окно одного refresh, дожидаются его
// и повторяются с новым токеном; сетевой refresh при этом ровно один.
func TestRoundTrip_CoalescesConcurrent401(t *testing.T) {
	t.Parallel()

	const n = 5

	var unauthorized, refreshes atomic.Int32

	release := make(chan struct{})

	srv := httptest.NewServer(okOnlyWith(newTok, &unauthorized))
	defer srv.Close()

	store := newStore(t, oldTok)
	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		<-release
		return newTok, nil
	})

	client := &http.Client{Transport: New(store, coord, Options{})}

	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			resp, err := client.Get(srv.URL + fmt.Sprintf("/books/%d", i))
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			results[i] = resp.StatusCode
		}(i)
	}

	// Дожидаемся, пока все запросы словят 401 со старым токеном,
	// и только тогда отпускаем refresh.
	require.Eventually(t, func() bool {
		return unauthorized.Load() >= n
	}, 5*time.Second, 5*time.Millisecond)
	close(release)

	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, results[i], "запрос %d должен повториться с новым токеном", i)
	}

	require.Equal(t, int32(1), refreshes.Load(), "ожидался ровно один сетевой refresh")
	require.Equal(t, int32(n), unauthorized.Load(), "каждый запрос повторяется не более одного раза")
}

// Отмена контекста инициатора не прерывает общий refresh: он доводится до
// конца, остальные ожидающие получают новый токен, сессия не завершается.
func TestEnsureFresh_TriggerCancelDoesNotAbortSharedRefresh(t *testing.T) {
	t.Parallel()

	var refreshes, expired atomic.Int32

	started := make(chan struct{})
	release := make(chan struct{})

	store := newStore(t, oldTok)
	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		close(started)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return newTok, nil
		}
	})
	coord.OnSessionExpired(func() { expired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var firstTok, secondTok string
	var firstErr, secondErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		firstTok, firstErr = coord.EnsureFresh(ctx, oldTok)
	}()

	<-started
	cancel() // инициатор отваливается, пока refresh в полёте

	wg.Add(1)
	go func() {
		defer wg.Done()
		secondTok, secondErr = coord.EnsureFresh(context.Background(), oldTok)
	}()

	// Даём отмене шанс дойти до refresh-функции и только потом отпускаем её:
	// если бы отмена пробрасывалась, сработала бы ветка ctx.Done.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	require.Equal(t, newTok, firstTok)
	require.NoError(t, secondErr)
	require.Equal(t, newTok, secondTok)

	require.Equal(t, int32(1), refreshes.Load(), "ожидался ровно один сетевой refresh")
	require.Equal(t, int32(0), expired.Load(), "отмена инициатора — не конец сессии")

	got, ok := store.Get()
	require.True(t, ok)
	require.Equal(t, newTok, got)
}

// Неудачный refresh: все ожидающие получают отказ (без повторов), локальное
// состояние очищено, уведомление о завершении сессии — ровно одно.
func TestRoundTrip_RefreshFailure_RejectsAllAndExpiresOnce(t *testing.T) {
	t.Parallel()

	const n = 4

	var unauthorized, refreshes, expired atomic.Int32

	release := make(chan struct{})

	srv := httptest.NewServer(okOnlyWith(newTok, &unauthorized))
	defer srv.Close()

	c := cache.NewMemory()
	store := token.NewStore(c)
	require.NoError(t, store.Set(oldTok))

	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		<-release
		return "", errors.New("refresh ticket revoked")
	})
	coord.OnSessionExpired(func() { expired.Add(1) })

	client := &http.Client{Transport: New(store, coord, Options{})}

	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			resp, err := client.Get(srv.URL + "/books") //nolint:bodyclose
			if err == nil {
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}

	require.Eventually(t, func() bool {
		return unauthorized.Load() >= n
	}, 5*time.Second, 5*time.Millisecond)
	close(release)

	wg.Wait()

	for i := 0; i < n; i++ {
		require.Error(t, errs[i])
		require.ErrorIs(t, errs[i], ErrSessionExpired)
	}

	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, int32(1), expired.Load(), "уведомление должно быть однократным")

	_, ok := store.Get()
	require.False(t, ok, "токен должен быть вычищен")
}

// 401 на уже повторённом запросе не зацикливает обновление: ответ отдается
// как есть, сессия завершается.
func TestRoundTrip_401AfterRetry_PassesThrough(t *testing.T) {
	t.Parallel()

	var refreshes, expired atomic.Int32

	// Сервер не признаёт никакой токен.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := newStore(t, oldTok)
	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		return newTok, nil
	})
	coord.OnSessionExpired(func() { expired.Add(1) })

	client := &http.Client{Transport: New(store, coord, Options{})}

	resp, err := client.Get(srv.URL + "/books")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(1), refreshes.Load(), "повтор ровно один")
	require.Equal(t, int32(1), expired.Load())

	_, ok := store.Get()
	require.False(t, ok)
}

// Прочие статусы и сетевые ошибки не запускают refresh.
func TestRoundTrip_NoRefreshOnOtherOutcomes(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	store := newStore(t, oldTok)
	coord := NewCoordinator(store, func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		return newTok, nil
	})
	client := &http.Client{Transport: New(store, coord, Options{})}

	resp, err := client.Get(srv.URL + "/books")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Сетевая ошибка (сервер погашен) — тоже не повод для refresh.
	srv.Close()
	_, err = client.Get(srv.URL + "/books") //nolint:bodyclose
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSessionExpired)

	require.Equal(t, int32(0), refreshes.Load())
}
