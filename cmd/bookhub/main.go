// bookhub — консольный клиент книжной платформы. Команды работают поверх
// локальной сессии: токен и профиль кэшируются между запусками, access-токен
// обновляется прозрачно (проактивно и по 401).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/salnikovaek/bookhub-client/internal/cache"
	"github.com/salnikovaek/bookhub-client/internal/client"
	"github.com/salnikovaek/bookhub-client/internal/config"
	"github.com/salnikovaek/bookhub-client/internal/models"
	"github.com/salnikovaek/bookhub-client/internal/session"
	"github.com/salnikovaek/bookhub-client/internal/token"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const usage = `bookhub — клиент книжной платформы

Использование:
  bookhub [-config path] <команда> [аргументы]

Команды:
  register <username> <email>   регистрация и вход
  login <username>              вход (пароль запрашивается)
  logout                        выход
  whoami                        текущий профиль
  refresh                       принудительное обновление токена
  books                         каталог книг
  book <id>                     карточка книги
  chapters <book-id>            оглавление книги
  read <book-id> <chapter-id>   чтение главы (позиция сохраняется)
  history                       история чтения
`

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	sc := openCache(rootCtx, cfg.Session)
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			log.Warn("session_cache_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	store := token.NewStore(sc)

	api, err := client.New(cfg.API, store)
	if err != nil {
		log.Error("client_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	mgr := session.NewManager(api, store, sc, cfg.Session)
	api.OnSessionExpired(mgr.HandleSessionExpired)
	mgr.OnExpired(func() {
		fmt.Fprintln(os.Stderr, "сессия истекла, войдите заново: bookhub login <username>")
	})

	if err := mgr.Restore(rootCtx); err != nil {
		log.Warn("session_restore_failed", slog.String("err", err.Error()))
	}

	// Фоновая проверка срока токена на время работы команды.
	go mgr.Run(rootCtx)

	app := &app{cfg: cfg, api: api, mgr: mgr}

	if err := app.run(rootCtx, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	api *client.Client
	mgr *session.Manager
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.mgr.Logout(ctx)
		fmt.Println("вы вышли")
		return nil
	case "whoami":
		return a.whoami()
	case "refresh":
		return a.mgr.Refresh(ctx)
	case "books":
		return a.books(ctx)
	case "book":
		return a.book(ctx, args)
	case "chapters":
		return a.chapters(ctx, args)
	case "read":
		return a.read(ctx, args)
	case "history":
		return a.history(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("неизвестная команда %q", cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("использование: register <username> <email>")
	}

	pw, err := promptPassword()
	if err != nil {
		return err
	}

	u, err := a.mgr.Register(ctx, models.RegisterRequest{
		Username: args[0],
		Email:    args[1],
		Password: pw,
	})
	if err != nil {
		return err
	}

	fmt.Printf("добро пожаловать, %s (id %d)\n", u.Username, u.ID)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("использование: login <username>")
	}

	pw, err := promptPassword()
	if err != nil {
		return err
	}

	u, err := a.mgr.Login(ctx, args[0], pw)
	if err != nil {
		return err
	}

	fmt.Printf("вы вошли как %s\n", u.Username)
	return nil
}

func (a *app) whoami() error {
	st := a.mgr.Snapshot()
	if !st.Authenticated {
		fmt.Println("вы не вошли")
		return nil
	}

	fmt.Printf("%s <%s> (id %d, роль %s)\n", st.User.Username, st.User.Email, st.User.ID, st.User.Role)
	if st.User.Bio != "" {
		fmt.Println(st.User.Bio)
	}

	return nil
}

func (a *app) books(ctx context.Context) error {
	books, err := a.api.Books(ctx)
	if err != nil {
		return err
	}

	for _, b := range books {
		fmt.Printf("%4d  %-30s  %s\n", b.ID, b.Title, b.Author)
	}

	return nil
}

func (a *app) book(ctx context.Context, args []string) error {
	id, err := parseID(args, 0, "book <id>")
	if err != nil {
		return err
	}

	b, err := a.api.Book(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s — %s\n", b.Title, b.Author)
	if len(b.Genres) > 0 {
		fmt.Println("жанры:", strings.Join(b.Genres, ", "))
	}
	fmt.Printf("глав: %d\n", b.ChapterCount)
	if b.Description != "" {
		fmt.Println(b.Description)
	}

	return nil
}

func (a *app) chapters(ctx context.Context, args []string) error {
	id, err := parseID(args, 0, "chapters <book-id>")
	if err != nil {
		return err
	}

	chaps, err := a.api.Chapters(ctx, id)
	if err != nil {
		return err
	}

	for _, ch := range chaps {
		fmt.Printf("%4d  %2d. %s\n", ch.ID, ch.Number, ch.Title)
	}

	return nil
}

func (a *app) read(ctx context.Context, args []string) error {
	bookID, err := parseID(args, 0, "read <book-id> <chapter-id>")
	if err != nil {
		return err
	}
	chapterID, err := parseID(args, 1, "read <book-id> <chapter-id>")
	if err != nil {
		return err
	}

	ch, err := a.api.Chapter(ctx, bookID, chapterID)
	if err != nil {
		return err
	}

	fmt.Printf("== %s ==\n\n%s\n", ch.Title, ch.Content)

	// Глава дочитана — фиксируем позицию.
	if _, err := a.api.SaveProgress(ctx, models.SaveProgressRequest{
		BookID:    bookID,
		ChapterID: chapterID,
		Position:  1.0,
	}); err != nil {
		slog.Warn("save_progress_failed", slog.String("err", err.Error()))
	}

	return nil
}

func (a *app) history(ctx context.Context) error {
	entries, err := a.api.History(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("история пуста")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("книга %d, глава %d, позиция %.0f%% (%s)\n",
			e.BookID, e.ChapterID, e.Position*100, e.UpdatedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

func parseID(args []string, i int, usage string) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("использование: %s", usage)
	}

	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный id %q", args[i])
	}

	return id, nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "пароль: ")

	r := bufio.NewReader(os.Stdin)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("пустой пароль")
	}

	return pw, nil
}

// openCache открывает bbolt-кэш сессии: путь из конфига или каталог
// пользовательского кэша по умолчанию. При недоступном файле клиент
// продолжает работать на кэше в памяти — сессия не переживёт перезапуск,
// но команды выполняются.
func openCache(ctx context.Context, cfg config.SessionConfig) cache.SessionCache {
	path := cfg.CachePath
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			slog.Warn("cache_dir_resolve_failed", slog.String("err", err.Error()))
			return cache.NewMemory()
		}

		path = filepath.Join(dir, "bookhub", "session.db")
	}

	return cache.OpenOrMemory(ctx, path)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
}
