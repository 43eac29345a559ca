// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string          // Base directory for the ledger and cache databases (always absolute)
	LedgerDatabaseURL string          // Postgres DSN; when empty the ledger lives in DataDir/ledger.db
	TradebookDir      string          // Directory scanned for tradebook-*.csv exports
	TradebookOrder    string          // Date order of the tradebook exports: iso, mdy, dmy or auto
	TradebookOrders   []FileDateOrder // Per-file overrides of TradebookOrder, first match wins
	LogLevel          string
	Port              int
	DevMode           bool
	Kite              KiteConfig
	Sync              SyncConfig
	Backup            BackupConfig
}

// FileDateOrder assigns a date order to tradebook files whose name matches Pattern
type FileDateOrder struct {
	Pattern string // filepath.Match pattern against the file name
	Order   string
}

// KiteConfig holds the brokerage credentials used by the live trade sync
type KiteConfig struct {
	APIKey      string
	AccessToken string
	BaseURL     string
}

// SyncConfig holds the cron schedules of the live trade sync
type SyncConfig struct {
	Schedules []string
	Timezone  string
}

// BackupConfig holds the object storage target for ledger backups
type BackupConfig struct {
	Bucket        string
	Endpoint      string // Optional S3-compatible endpoint (R2, MinIO)
	Region        string
	AccessKey     string
	SecretKey     string
	Schedule      string
	RetentionDays int // 0 keeps every archive
}

// Enabled reports whether a backup bucket was configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TUNEFOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		LedgerDatabaseURL: getEnv("LEDGER_DATABASE_URL", ""),
		TradebookDir:      getEnv("TRADEBOOK_DIR", absDataDir),
		TradebookOrder:    getEnv("TRADEBOOK_DATE_ORDER", "iso"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Kite: KiteConfig{
			APIKey:      getEnv("KITE_API_KEY", ""),
			AccessToken: getEnv("KITE_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("KITE_BASE_URL", "https://api.kite.trade"),
		},
		Sync: SyncConfig{
			// 8:30 AM and 6:00 PM, Monday-Friday
			Schedules: getEnvAsList("SYNC_SCHEDULES", []string{"0 30 8 * * MON-FRI", "0 0 18 * * MON-FRI"}),
			Timezone:  getEnv("SYNC_TIMEZONE", "Asia/Kolkata"),
		},
		Backup: BackupConfig{
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			Schedule:      getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	orders, err := parseFileDateOrders(getEnv("TRADEBOOK_DATE_ORDERS", ""))
	if err != nil {
		return nil, err
	}
	cfg.TradebookOrders = orders

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if !validDateOrder(c.TradebookOrder) {
		return fmt.Errorf("invalid TRADEBOOK_DATE_ORDER %q (expected iso, mdy, dmy or auto)", c.TradebookOrder)
	}
	for _, fo := range c.TradebookOrders {
		if !validDateOrder(fo.Order) {
			return fmt.Errorf("invalid TRADEBOOK_DATE_ORDERS order %q for %s (expected iso, mdy, dmy or auto)", fo.Order, fo.Pattern)
		}
		if _, err := filepath.Match(fo.Pattern, ""); err != nil {
			return fmt.Errorf("invalid TRADEBOOK_DATE_ORDERS pattern %q: %w", fo.Pattern, err)
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}

	// Kite credentials are optional: without them the live sync reports "skipped"
	if c.Backup.Enabled() && (c.Backup.AccessKey == "") != (c.Backup.SecretKey == "") {
		return fmt.Errorf("BACKUP_S3_ACCESS_KEY and BACKUP_S3_SECRET_KEY must be set together")
	}

	return nil
}

// LedgerPath returns the SQLite ledger file used when no Postgres DSN is configured
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// CachePath returns the SQLite file holding memoised reports
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a ';' separated value; cron specs contain spaces and commas
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func validDateOrder(order string) bool {
	switch order {
	case "iso", "mdy", "dmy", "auto":
		return true
	}
	return false
}

// parseFileDateOrders reads "tradebook-2019*.csv:mdy,tradebook-2024.csv:iso"
func parseFileDateOrders(value string) ([]FileDateOrder, error) {
	var orders []FileDateOrder
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			return nil, fmt.Errorf("invalid TRADEBOOK_DATE_ORDERS entry %q (expected <file>:<order>)", entry)
		}
		orders = append(orders, FileDateOrder{
			Pattern: strings.TrimSpace(entry[:idx]),
			Order:   strings.ToLower(strings.TrimSpace(entry[idx+1:])),
		})
	}
	return orders, nil
}
