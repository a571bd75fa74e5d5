package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_SingleAccount(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "me@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USERNAME", "me@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("VACATION_ENABLED", "true")
	t.Setenv("VACATION_START", "2026-08-01")
	t.Setenv("VACATION_END", "2026-08-15")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.Equal(t, 60*time.Second, cfg.Poll.Interval)
	require.Len(t, cfg.Accounts, 1)

	acc := cfg.Accounts[0]
	assert.Equal(t, "default", acc.Name)
	require.NotNil(t, acc.IMAP)
	assert.Equal(t, 993, acc.IMAP.Port)
	assert.True(t, acc.IMAP.Secure)
	require.NotNil(t, acc.SMTP)
	assert.True(t, acc.SMTP.Secure, "port 465 implies implicit TLS")
	assert.Equal(t, "me@example.com", acc.SenderAddress())
	assert.True(t, acc.SpamFilterEnabled)
	assert.True(t, acc.Vacation.Enabled)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), acc.Vacation.EndDate)
}

func TestLoadConfig_NumberedAccountsWithOptionalServers(t *testing.T) {
	t.Setenv("ACCOUNT_1_NAME", "acme")
	t.Setenv("ACCOUNT_1_IMAP_HOST", "imap.acme.test")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "ops@acme.test")
	t.Setenv("ACCOUNT_1_IMAP_PASSWORD", "pw")
	t.Setenv("ACCOUNT_2_NAME", "globex")
	t.Setenv("ACCOUNT_2_SMTP_HOST", "smtp.globex.test")
	t.Setenv("ACCOUNT_2_SMTP_USERNAME", "relay")
	t.Setenv("ACCOUNT_2_SMTP_PASSWORD", "pw")
	t.Setenv("ACCOUNT_2_FROM_ADDRESS", "hello@globex.test")
	t.Setenv("ACCOUNT_2_TRACKING", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"acme", "globex"}, cfg.AccountNames())

	acme, err := cfg.GetAccountByName("acme")
	require.NoError(t, err)
	assert.NotNil(t, acme.IMAP)
	assert.Nil(t, acme.SMTP)

	globex, err := cfg.GetAccountByName("globex")
	require.NoError(t, err)
	assert.Nil(t, globex.IMAP)
	assert.Equal(t, 587, globex.SMTP.Port)
	assert.False(t, globex.SMTP.Secure)
	assert.True(t, globex.TrackingEnabled)
	assert.Equal(t, "hello@globex.test", globex.SenderAddress())
	assert.Equal(t, []string{"hello@globex.test"}, globex.OwnAddresses())

	_, err = cfg.GetAccountByName("initech")
	assert.Error(t, err)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("no accounts", func(t *testing.T) {
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("missing password", func(t *testing.T) {
		t.Setenv("IMAP_HOST", "imap.example.com")
		t.Setenv("IMAP_USERNAME", "me@example.com")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "IMAP_PASSWORD is required")
	})

	t.Run("bad vacation date", func(t *testing.T) {
		t.Setenv("IMAP_HOST", "imap.example.com")
		t.Setenv("IMAP_USERNAME", "me@example.com")
		t.Setenv("IMAP_PASSWORD", "pw")
		t.Setenv("VACATION_START", "01/08/2026")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "YYYY-MM-DD")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StorePath:       "/tmp/x.db",
			DefaultPageSize: 20,
			Accounts: []AccountConfig{{
				Name: "a",
				SMTP: &ServerConfig{Host: "smtp", Port: 587, Username: "a@example.com", Password: "pw"},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"page size", func(c *Config) { c.DefaultPageSize = 0 }, "DEFAULT_PAGE_SIZE"},
		{"duplicate", func(c *Config) { c.Accounts = append(c.Accounts, c.Accounts[0]) }, "duplicate"},
		{"port", func(c *Config) { c.Accounts[0].SMTP.Port = 70000 }, "SMTP_PORT"},
		{"sender", func(c *Config) { c.Accounts[0].SMTP.Username = "relay" }, "FROM_ADDRESS"},
		{"vacation order", func(c *Config) {
			c.Accounts[0].Vacation = VacationConfig{
				Enabled:   true,
				StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			}
		}, "VACATION_END"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
