package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RosterConfig
	RevenueConfig
	CacheConfig
	VerifyConfig
	TelegramConfig
	DBConfig
	GoogleSheetConfig
	DirectoryConfig
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type RosterConfig struct {
	// Seeds the session credential on startup. Without it an admin must
	// send /login first.
	GitHubToken string `envconfig:"GITHUB_TOKEN" masked:"true"`
	GitHubAPI   string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	Owner       string `envconfig:"ROSTER_OWNER" required:"true"`
	Repo        string `envconfig:"ROSTER_REPO" required:"true"`
	Path        string `envconfig:"ROSTER_PATH" default:"data/registrants.json"`
	Branch      string `envconfig:"ROSTER_BRANCH"`
}

type RevenueConfig struct {
	Enabled bool   `envconfig:"REVENUE_ENABLED" default:"true"`
	Owner   string `envconfig:"REVENUE_OWNER"`
	Repo    string `envconfig:"REVENUE_REPO"`
	Path    string `envconfig:"REVENUE_PATH" default:"data/revenues.json"`
	Branch  string `envconfig:"REVENUE_BRANCH"`
	Amount  int    `envconfig:"REGISTRATION_FEE" default:"1200"`
}

type CacheConfig struct {
	TTL            time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	StorageBackend string        `envconfig:"STORAGE_BACKEND" default:"memory"`
	StorageFile    string        `envconfig:"STORAGE_FILE"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

type VerifyConfig struct {
	BaseURL string `envconfig:"VERIFICATION_BASE_URL" default:"https://chayannito26.github.io/verify"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true" masked:"true"`
	Admins   string `envconfig:"ADMINS" required:"true" masked:"true"`
}

type DBConfig struct {
	User   string `envconfig:"DBUSER" masked:"true"`
	Pass   string `envconfig:"DBPASS" masked:"true"`
	Host   string `envconfig:"DBHOST" masked:"true"`
	DBName string `envconfig:"DBNAME" masked:"true"`

	Port    string `envconfig:"DBPORT" default:"5432" masked:"true"`
	SSLMode string `envconfig:"DBSSLMODE" default:"disable" masked:"true"`
}

type GoogleSheetConfig struct {
	SheetID           string        `envconfig:"SHEET_ID" masked:"true"` // spreadsheet id
	TabID             string        `envconfig:"SHEET_TAB_ID" default:"0"`
	CredentialsBase64 string        `envconfig:"CREDENTIALS_BASE64" masked:"true"`
	PauseMs           int           `envconfig:"SHEET_PAUSE_MS" default:"1100"`
	Columns           string        `envconfig:"SHEET_COLUMNS"`
	SyncInterval      time.Duration `envconfig:"SHEET_SYNC_INTERVAL" default:"10m"`
}

// DirectoryConfig points at an optional JSON export of the college student
// list, used to fill import drafts by roll.
type DirectoryConfig struct {
	File string `envconfig:"STUDENT_DIRECTORY_FILE"`
}

// Enabled reports whether the sheet mirror is configured.
func (c GoogleSheetConfig) Enabled() bool {
	return c.SheetID != "" && c.CredentialsBase64 != ""
}

// AdminIDs parses the comma separated ADMINS list.
func (c TelegramConfig) AdminIDs() ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(c.Admins, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ADMINS lists no telegram user ids")
	}
	return ids, nil
}

// Validate checks the rules envconfig tags cannot express.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case "memory":
	case "postgres":
		if c.DBConfig.Host == "" || c.DBConfig.DBName == "" {
			return fmt.Errorf("STORAGE_BACKEND=postgres needs DBHOST and DBNAME")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.RevenueConfig.Enabled && (c.RevenueConfig.Owner == "" || c.RevenueConfig.Repo == "") {
		return fmt.Errorf("REVENUE_OWNER and REVENUE_REPO are required when REVENUE_ENABLED is set")
	}
	if c.RevenueConfig.Amount < 0 {
		return fmt.Errorf("REGISTRATION_FEE must not be negative")
	}
	if _, err := c.TelegramConfig.AdminIDs(); err != nil {
		return err
	}
	return nil
}
