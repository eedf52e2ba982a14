// client — типизированный REST-клиент BookHub поверх авторизующего
// транспорта. Все «прикладные» запросы идут через интерсептор
// (Bearer + refresh-and-retry); auth-эндпойнты (login/register/refresh)
// ходят отдельным http.Client без интерсептора, но с общим cookie jar,
// чтобы refresh-тикет из HTTP-only cookie разделялся обоими путями.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/salnikovaek/bookhub-client/internal/config"
	"github.com/salnikovaek/bookhub-client/internal/models"
	"github.com/salnikovaek/bookhub-client/internal/token"
	"github.com/salnikovaek/bookhub-client/internal/transport"
)

// Client — REST-клиент платформы.
type Client struct {
	baseURL *url.URL

	httpc *http.Client // через интерсептор
	authc *http.Client // без интерсептора (login/register/refresh)

	store *token.Store
	coord *transport.Coordinator
}

// New создаёт клиент. Хранилище токена передаётся снаружи: им же владеет
// менеджер сессии.
func New(cfg config.APIConfig, store *token.Store) (*Client, error) {
	const op = "client.New"

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: parse base url %q: %w", op, cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: base url %q must be absolute", op, cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Client{
		baseURL: base,
		store:   store,
	}

	c.authc = &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
	}

	c.coord = transport.NewCoordinator(store, c.refreshCall)

	c.httpc = &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
		Transport: transport.New(store, c.coord, transport.Options{
			UserAgent: cfg.UserAgent,
		}),
	}

	return c, nil
}

// OnSessionExpired регистрирует идемпотентный обработчик необратимой
// потери сессии.
func (c *Client) OnSessionExpired(fn func()) {
	c.coord.OnSessionExpired(fn)
}

// EnsureFresh — единая точка обновления токена (общая с 401-протоколом
// транспорта): конкурентные вызовы схлопываются в один сетевой refresh.
func (c *Client) EnsureFresh(ctx context.Context) (string, error) {
	cur, _ := c.store.Get()
	return c.coord.EnsureFresh(ctx, cur)
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

// do выполняет запрос через httpc и декодирует конверт ответа в out
// (out может быть nil). in != nil сериализуется в JSON-тело.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return doJSON(ctx, c.httpc, method, c.url(path), in, out)
}

// doAuth — то же самое, но мимо интерсептора (для auth-эндпойнтов).
func (c *Client) doAuth(ctx context.Context, method, path string, in, out any) error {
	return doJSON(ctx, c.authc, method, c.url(path), in, out)
}

func doJSON(ctx context.Context, hc *http.Client, method, u string, in, out any) error {
	const op = "client.doJSON"

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}

		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// decodeEnvelope разбирает единый конверт {success, message, data} и
// маппит неуспех на sentinel-ошибки по HTTP-статусу.
func decodeEnvelope(resp *http.Response, out any) error {
	const op = "client.decodeEnvelope"

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}

	var env models.Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return fmt.Errorf("%s: %w", op, errorFromStatus(resp.StatusCode, ""))
			}

			return fmt.Errorf("%s: decode envelope: %w", op, err)
		}
	}

	if resp.StatusCode >= 400 || !env.Success {
		return fmt.Errorf("%s: %w", op, errorFromStatus(resp.StatusCode, env.Message))
	}

	if out != nil {
		if len(env.Data) == 0 {
			return fmt.Errorf("%s: empty data in successful response", op)
		}

		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
	}

	return nil
}
