package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Provider ProviderConfig `yaml:"provider"`
	Export   ExportConfig   `yaml:"export"`
	Minio    MinioConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the persistence backend.
// Driver is one of memory, sqlite or postgres.
type StoreConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	MaxContracts int    `yaml:"max_contracts"`
}

// ProviderConfig configures the signature provider.
// Mode is simulated or http.
type ProviderConfig struct {
	Mode           string        `yaml:"mode"`
	APIURL         string        `yaml:"api_url"`
	APIToken       string        `yaml:"api_token"`
	CallbackURL    string        `yaml:"callback_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	SigningBaseURL string        `yaml:"signing_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	SignatureTTL   time.Duration `yaml:"signature_ttl"`
}

// ExportConfig holds the page geometry and rasterization settings.
// Page sizes are in millimetres.
type ExportConfig struct {
	PageWidth    float64 `yaml:"page_width"`
	PageHeight   float64 `yaml:"page_height"`
	Oversampling int     `yaml:"oversampling"`
	WidthPx      int     `yaml:"width_px"`
	MaxHeightPx  int     `yaml:"max_height_px"`
	Workers      int     `yaml:"workers"`
	Fit          string  `yaml:"fit"` // page, width
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	ExpireDays int    `yaml:"expire_days"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

const (
	ProviderSimulated = "simulated"
	ProviderHTTP      = "http"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONTRACTSIGN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CONTRACTSIGN_PROVIDER_TOKEN"); v != "" {
		c.Provider.APIToken = v
	}
	if v := os.Getenv("CONTRACTSIGN_WEBHOOK_SECRET"); v != "" {
		c.Provider.WebhookSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && c.Store.DSN == "" {
		c.Store.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Store.Driver == StoreSQLite && c.Store.Path == "" {
		c.Store.Path = "contractsign.db"
	}
	if c.Provider.Mode == "" {
		c.Provider.Mode = ProviderSimulated
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.SignatureTTL == 0 {
		if c.Provider.Mode == ProviderSimulated {
			c.Provider.SignatureTTL = 30 * time.Minute
		} else {
			c.Provider.SignatureTTL = 7 * 24 * time.Hour
		}
	}
	if c.Export.PageWidth == 0 {
		c.Export.PageWidth = 210
	}
	if c.Export.PageHeight == 0 {
		c.Export.PageHeight = 297
	}
	if c.Export.Oversampling == 0 {
		c.Export.Oversampling = 2
	}
	if c.Export.WidthPx == 0 {
		c.Export.WidthPx = 794
	}
	if c.Export.MaxHeightPx == 0 {
		c.Export.MaxHeightPx = 60000
	}
	if c.Export.Workers == 0 {
		c.Export.Workers = 2
	}
	if c.Export.Fit == "" {
		c.Export.Fit = "page"
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Provider.Mode {
	case ProviderSimulated:
	case ProviderHTTP:
		if c.Provider.APIURL == "" {
			return fmt.Errorf("provider.api_url is required in http mode")
		}
	default:
		return fmt.Errorf("unknown provider mode %q", c.Provider.Mode)
	}

	if c.Export.Fit != "page" && c.Export.Fit != "width" {
		return fmt.Errorf("export.fit must be page or width, got %q", c.Export.Fit)
	}
	if c.Export.PageWidth <= 0 || c.Export.PageHeight <= 0 {
		return fmt.Errorf("export page size must be positive")
	}
	return nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
