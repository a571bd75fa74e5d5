package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	// Store settings
	StorePath string `envconfig:"STORE_PATH" default:"/data/mailbridge.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// Mail settings
	DefaultPageSize int           `envconfig:"DEFAULT_PAGE_SIZE" default:"20"`
	IMAPTimeout     time.Duration `envconfig:"IMAP_TIMEOUT" default:"30s"`
	SpamThreshold   float64       `envconfig:"SPAM_THRESHOLD" default:"5"`

	Tracking TrackingConfig `envconfig:"TRACKING"`
	Poll     PollConfig     `envconfig:"POLL"`

	// Accounts
	Accounts []AccountConfig `ignored:"true"`
}

// TrackingConfig holds the open/click tracking endpoint settings
type TrackingConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"false"`
	Addr    string `envconfig:"ADDR" default:"0.0.0.0:8025"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8025"`
}

// PollConfig holds the background sync settings
type PollConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"60s"`
}

// ServerConfig holds connection settings for one IMAP or SMTP server
type ServerConfig struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
}

// Addr returns host:port
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AutoReplyConfig holds the standard auto-reply settings
type AutoReplyConfig struct {
	Enabled bool
	Subject string
	Message string
}

// VacationConfig holds the vacation responder settings. Dates are compared by day in UTC.
type VacationConfig struct {
	Enabled     bool
	StartDate   time.Time
	EndDate     time.Time
	Subject     string
	Message     string
	ReturnDate  time.Time
	BackupEmail string
}

// AccountConfig holds configuration for a single tenant. IMAP and SMTP are each
// optional; a nil server means the feature is unavailable for the tenant.
type AccountConfig struct {
	Name string

	IMAP *ServerConfig
	SMTP *ServerConfig

	// Sender identity
	FromAddress string
	SenderName  string
	SenderLogo  string

	// Features
	SpamFilterEnabled bool
	TrackingEnabled   bool
	AutoReply         AutoReplyConfig
	Vacation          VacationConfig
}

// SenderAddress returns the address outbound mail is sent from
func (a *AccountConfig) SenderAddress() string {
	if a.FromAddress != "" {
		return a.FromAddress
	}
	if a.SMTP != nil && strings.Contains(a.SMTP.Username, "@") {
		return a.SMTP.Username
	}
	if a.IMAP != nil && strings.Contains(a.IMAP.Username, "@") {
		return a.IMAP.Username
	}
	return ""
}

// OwnAddresses returns every address that identifies the tenant itself
func (a *AccountConfig) OwnAddresses() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || !strings.Contains(s, "@") || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(a.FromAddress)
	if a.SMTP != nil {
		add(a.SMTP.Username)
	}
	if a.IMAP != nil {
		add(a.IMAP.Username)
	}
	return out
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	// Load accounts
	accounts, err := loadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no email accounts configured")
	}

	cfg.Accounts = accounts
	return cfg, nil
}

// loadAccounts loads tenant configurations from environment variables
func loadAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig

	// Single account configuration (IMAP_HOST / SMTP_HOST without prefix)
	if hasSingleAccount() {
		name := getEnv("ACCOUNT_NAME", "default")
		account, err := loadAccount("", name)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
		return accounts, nil
	}

	// Load multiple accounts (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		name := getEnv(prefix+"NAME", "")
		if name == "" {
			break // No more accounts
		}
		account, err := loadAccount(prefix, name)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", num, err)
		}
		accounts = append(accounts, *account)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}

	return accounts, nil
}

// hasSingleAccount checks if single account configuration exists
func hasSingleAccount() bool {
	return getEnv("IMAP_HOST", "") != "" || getEnv("SMTP_HOST", "") != ""
}

// loadAccount loads one tenant using the given variable prefix
func loadAccount(prefix, name string) (*AccountConfig, error) {
	imapCfg, err := loadServer(prefix+"IMAP_", 993, true)
	if err != nil {
		return nil, err
	}
	smtpCfg, err := loadServer(prefix+"SMTP_", 587, false)
	if err != nil {
		return nil, err
	}
	if imapCfg == nil && smtpCfg == nil {
		return nil, fmt.Errorf("%sIMAP_HOST or %sSMTP_HOST is required", prefix, prefix)
	}

	vacStart, err := getEnvDate(prefix + "VACATION_START")
	if err != nil {
		return nil, err
	}
	vacEnd, err := getEnvDate(prefix + "VACATION_END")
	if err != nil {
		return nil, err
	}
	vacReturn, err := getEnvDate(prefix + "VACATION_RETURN_DATE")
	if err != nil {
		return nil, err
	}

	return &AccountConfig{
		Name:              name,
		IMAP:              imapCfg,
		SMTP:              smtpCfg,
		FromAddress:       getEnv(prefix+"FROM_ADDRESS", ""),
		SenderName:        getEnv(prefix+"SENDER_NAME", name),
		SenderLogo:        getEnv(prefix+"SENDER_LOGO", ""),
		SpamFilterEnabled: getEnvBool(prefix+"SPAM_FILTER", true),
		TrackingEnabled:   getEnvBool(prefix+"TRACKING", false),
		AutoReply: AutoReplyConfig{
			Enabled: getEnvBool(prefix+"AUTOREPLY_ENABLED", false),
			Subject: getEnv(prefix+"AUTOREPLY_SUBJECT", ""),
			Message: getEnv(prefix+"AUTOREPLY_MESSAGE", ""),
		},
		Vacation: VacationConfig{
			Enabled:     getEnvBool(prefix+"VACATION_ENABLED", false),
			StartDate:   vacStart,
			EndDate:     vacEnd,
			Subject:     getEnv(prefix+"VACATION_SUBJECT", ""),
			Message:     getEnv(prefix+"VACATION_MESSAGE", ""),
			ReturnDate:  vacReturn,
			BackupEmail: getEnv(prefix+"VACATION_BACKUP_EMAIL", ""),
		},
	}, nil
}

// loadServer loads IMAP_* or SMTP_* settings; returns nil when no host is set
func loadServer(prefix string, defaultPort int, defaultSecure bool) (*ServerConfig, error) {
	host := getEnv(prefix+"HOST", "")
	if host == "" {
		return nil, nil
	}

	port := getEnvInt(prefix+"PORT", defaultPort)
	srv := &ServerConfig{
		Host:     host,
		Port:     port,
		Secure:   getEnvBool(prefix+"SECURE", defaultSecure || port == 465 || port == 993),
		Username: getEnv(prefix+"USERNAME", ""),
		Password: getEnv(prefix+"PASSWORD", ""),
	}

	if srv.Username == "" {
		return nil, fmt.Errorf("%sUSERNAME is required", prefix)
	}
	if srv.Password == "" {
		return nil, fmt.Errorf("%sPASSWORD is required", prefix)
	}
	return srv, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDate parses a YYYY-MM-DD date; unset yields the zero time
func getEnvDate(key string) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a YYYY-MM-DD date: %w", key, err)
	}
	return t, nil
}

// GetAccountByName finds an account by name
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}

	if c.DefaultPageSize < 1 || c.DefaultPageSize > 200 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 200")
	}

	if c.Poll.Enabled && c.Poll.Interval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	// Validate each account
	seen := make(map[string]bool)
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if seen[acc.Name] {
			return fmt.Errorf("account %s: duplicate name", acc.Name)
		}
		seen[acc.Name] = true

		if acc.IMAP != nil && (acc.IMAP.Port < 1 || acc.IMAP.Port > 65535) {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
		if acc.SMTP != nil && (acc.SMTP.Port < 1 || acc.SMTP.Port > 65535) {
			return fmt.Errorf("account %s: invalid SMTP_PORT", acc.Name)
		}
		if acc.SMTP != nil && acc.SenderAddress() == "" {
			return fmt.Errorf("account %s: FROM_ADDRESS is required when SMTP_USERNAME is not an email address", acc.Name)
		}
		v := acc.Vacation
		if v.Enabled && !v.StartDate.IsZero() && !v.EndDate.IsZero() && v.EndDate.Before(v.StartDate) {
			return fmt.Errorf("account %s: VACATION_END is before VACATION_START", acc.Name)
		}
	}

	return nil
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
