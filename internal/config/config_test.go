package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, "./data/gatekeeper.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 50*time.Millisecond, cfg.MailingSendDelay)
	assert.Equal(t, "./exports", cfg.ExportDir)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoadRequiresToken(t *testing.T) {
	// t.Setenv registers the restore; the variable must be absent, not empty.
	t.Setenv("BOT_TOKEN", "")
	require.NoError(t, os.Unsetenv("BOT_TOKEN"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFullEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHANNEL_ID", "-1001234567890")
	t.Setenv("ADMIN_IDS", "111,222")
	t.Setenv("MAILING_SEND_DELAY", "100ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(-1001234567890), cfg.ChannelID)
	assert.Equal(t, []int64{111, 222}, cfg.AdminIDs)
	assert.Equal(t, 100*time.Millisecond, cfg.MailingSendDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestIsAdmin(t *testing.T) {
	cfg := Config{AdminIDs: []int64{111, 222}}

	assert.True(t, cfg.IsAdmin(111))
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
	assert.False(t, Config{}.IsAdmin(111))
}
