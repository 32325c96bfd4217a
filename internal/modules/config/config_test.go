package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
telegram:
  token: file-token
  admin_chat_ids: [100, 200]
db_dsn: postgres://file
feed:
  base_url: https://feed.example
  notify_threshold: 6
trade:
  order_cutoff_second: 25
session:
  keep_alive: 20s
strategy:
  time_zone: "+0700"
messages:
  win: ["nice"]
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DATABASE_DSN", "")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, []int64{100, 200}, cfg.Telegram.AdminChatIDs)
	assert.Equal(t, "postgres://file", cfg.DB)
	assert.Equal(t, "https://feed.example", cfg.Feed.BaseURL)
	assert.Equal(t, 6, cfg.Feed.NotifyThreshold)
	assert.Equal(t, 5, cfg.Feed.CheckFromSecond)
	assert.Equal(t, 20, cfg.Feed.CheckUntilSecond)
	assert.Equal(t, 25, cfg.Trade.OrderCutoffSecond)
	assert.Equal(t, "BTC-USD", cfg.Trade.PairID)
	assert.Equal(t, 20*time.Second, cfg.Session.KeepAlive)
	assert.Equal(t, 5, cfg.Session.MaxRetries)
	assert.Equal(t, []string{"nice"}, cfg.Messages.Win)

	loc, err := cfg.Location()
	require.NoError(t, err)
	_, off := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 7*3600, off)
}

func TestNewConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: file-token\ndb_dsn: postgres://file\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("FEED_NOTIFY_THRESHOLD", "9")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "postgres://env", cfg.DB)
	assert.Equal(t, 9, cfg.Feed.NotifyThreshold)
}

func TestNewConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DATABASE_DSN", "")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://wstrade.alpari.io", cfg.Trade.BaseURL)
	assert.Equal(t, 30, cfg.Trade.OrderCutoffSecond)
	assert.Equal(t, ":8080", cfg.HealthAddr())
}

func TestNewConfigRejectsBadWindow(t *testing.T) {
	path := writeConfig(t, "feed:\n  check_from_second: 20\n  check_until_second: 5\n")
	t.Setenv("CONFIG_FILE", path)

	_, err := NewConfig()
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = ParseLocation("-03:30")
	require.NoError(t, err)
	_, off := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(3*3600 + 30*60), off)

	_, err = ParseLocation("Mars/Olympus")
	assert.Error(t, err)
}
