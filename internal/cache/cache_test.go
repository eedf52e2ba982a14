package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salnikovaek/bookhub-client/internal/models"
)

func newBolt(t *testing.T) SessionCache {
	t.Helper()

	c, err := NewBolt(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestBolt_TokenRoundTrip(t *testing.T) {
	t.Parallel()

	c := newBolt(t)

	_, ok, err := c.Token()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetToken("h.p.s"))

	got, ok, err := c.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "h.p.s", got)
}

func TestBolt_UserRoundTrip(t *testing.T) {
	t.Parallel()

	c := newBolt(t)

	_, ok, err := c.User()
	require.NoError(t, err)
	require.False(t, ok)

	u := &models.User{ID: 1, Username: "alice", Role: "reader"}
	require.NoError(t, c.SetUser(u))

	got, ok, err := c.User()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "reader", got.Role)
}

func TestBolt_Clear(t *testing.T) {
	t.Parallel()

	c := newBolt(t)

	require.NoError(t, c.SetToken("h.p.s"))
	require.NoError(t, c.SetUser(&models.User{ID: 1, Username: "alice"}))
	require.NoError(t, c.Clear())

	_, ok, err := c.Token()
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.User()
	require.NoError(t, err)
	require.False(t, ok)
}

// Кэш переживает переоткрытие файла — именно ради этого он существует.
func TestBolt_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")

	c, err := NewBolt(path)
	require.NoError(t, err)
	require.NoError(t, c.SetToken("h.p.s"))
	require.NoError(t, c.SetUser(&models.User{ID: 7, Username: "bob"}))
	require.NoError(t, c.Close())

	c2, err := NewBolt(path)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	tok, ok, err := c2.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "h.p.s", tok)

	u, ok, err := c2.User()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bob", u.Username)
}

func TestOpenOrMemory_OpensFileCache(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")

	c := OpenOrMemory(context.Background(), path)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.SetToken("h.p.s"))
	require.NoError(t, c.Close())

	// Токен пережил переоткрытие — значит кэш файловый.
	reopened, err := NewBolt(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := reopened.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "h.p.s", got)
}

func TestOpenOrMemory_FallsBackToMemory(t *testing.T) {
	t.Parallel()

	// Родитель пути — обычный файл: файловый кэш открыть нельзя.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c := OpenOrMemory(context.Background(), filepath.Join(blocker, "session.db"))
	t.Cleanup(func() { _ = c.Close() })

	// Кэш рабочий, пусть и не персистентный.
	require.NoError(t, c.SetToken("h.p.s"))

	got, ok, err := c.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "h.p.s", got)
}

func TestMemory_Basics(t *testing.T) {
	t.Parallel()

	c := NewMemory()

	_, ok, err := c.Token()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetToken("h.p.s"))
	require.NoError(t, c.SetUser(&models.User{ID: 1, Username: "alice"}))

	tok, ok, _ := c.Token()
	require.True(t, ok)
	require.Equal(t, "h.p.s", tok)

	// User возвращает копию: мутация снаружи не должна протечь в кэш.
	u, _, _ := c.User()
	u.Username = "mallory"
	u2, _, _ := c.User()
	require.Equal(t, "alice", u2.Username)

	require.NoError(t, c.Clear())
	_, ok, _ = c.Token()
	require.False(t, ok)
}
