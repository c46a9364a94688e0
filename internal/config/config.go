package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the config file location used when none is provided.
const DefaultConfigPath = "config.yaml"

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the jwt section, accepting the expiry as a duration
// string such as "24h". Fields absent from the file keep their prior values.
func (j *JWTConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"`
	}
	if errDecode := value.Decode(&raw); errDecode != nil {
		return errDecode
	}
	if raw.Secret != "" {
		j.Secret = raw.Secret
	}
	if trimmed := strings.TrimSpace(raw.Expiry); trimmed != "" {
		expiry, errParse := time.ParseDuration(trimmed)
		if errParse != nil {
			return fmt.Errorf("config: jwt expiry: %w", errParse)
		}
		j.Expiry = expiry
	}
	return nil
}

// MasterConfig holds the configured superuser credential pair.
//
// The master identity is configuration, not a stored user row; login compares
// against this pair directly and never consults the credential store.
type MasterConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TenantDBConfig holds the connection template for tenant databases.
// Every tenant pool is built from this template with only the database
// name substituted.
type TenantDBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	DefaultDatabase string        `yaml:"default-database"`
	ConnectTimeout  time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the tenant-db section, accepting the connect timeout
// as a duration string such as "5s". Fields absent from the file keep their
// prior values.
func (t *TenantDBConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		User            string `yaml:"user"`
		Password        string `yaml:"password"`
		SSLMode         string `yaml:"sslmode"`
		DefaultDatabase string `yaml:"default-database"`
		ConnectTimeout  string `yaml:"connect-timeout"`
	}
	if errDecode := value.Decode(&raw); errDecode != nil {
		return errDecode
	}
	if raw.Host != "" {
		t.Host = raw.Host
	}
	if raw.Port != 0 {
		t.Port = raw.Port
	}
	if raw.User != "" {
		t.User = raw.User
	}
	if raw.Password != "" {
		t.Password = raw.Password
	}
	if raw.SSLMode != "" {
		t.SSLMode = raw.SSLMode
	}
	if raw.DefaultDatabase != "" {
		t.DefaultDatabase = raw.DefaultDatabase
	}
	if trimmed := strings.TrimSpace(raw.ConnectTimeout); trimmed != "" {
		timeout, errParse := time.ParseDuration(trimmed)
		if errParse != nil {
			return fmt.Errorf("config: tenant-db connect-timeout: %w", errParse)
		}
		t.ConnectTimeout = timeout
	}
	return nil
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

// AppConfig is the full process configuration.
type AppConfig struct {
	Listen    string         `yaml:"listen"`
	MasterDSN string         `yaml:"master-dsn"`
	RedisAddr string         `yaml:"redis-addr"`
	JWT       JWTConfig      `yaml:"jwt"`
	Master    MasterConfig   `yaml:"master"`
	TenantDB  TenantDBConfig `yaml:"tenant-db"`
	Log       LogConfig      `yaml:"log"`
}

// ResolveConfigPath returns the effective config path, honoring the
// OPTICORE_CONFIG environment variable and the writable-path convention.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	for _, key := range []string{"OPTICORE_CONFIG", "opticore_config"} {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return DefaultConfigPath
}

// Load reads and validates the configuration file.
func Load(path string) (AppConfig, error) {
	cfg := defaults()

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return AppConfig{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return AppConfig{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	applyEnvOverrides(&cfg)

	if errValidate := cfg.validate(); errValidate != nil {
		return AppConfig{}, errValidate
	}
	return cfg, nil
}

// defaults returns the baseline configuration before file and env overrides.
func defaults() AppConfig {
	return AppConfig{
		Listen: ":8080",
		JWT: JWTConfig{
			Expiry: 24 * time.Hour,
		},
		TenantDB: TenantDBConfig{
			Host:           "127.0.0.1",
			Port:           5432,
			SSLMode:        "disable",
			ConnectTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// applyEnvOverrides layers environment variables over the file values.
func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("OPTICORE_LISTEN")); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("OPTICORE_MASTER_DSN")); v != "" {
		cfg.MasterDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("OPTICORE_JWT_SECRET")); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("OPTICORE_MASTER_USER")); v != "" {
		cfg.Master.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("OPTICORE_MASTER_PASSWORD")); v != "" {
		cfg.Master.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("OPTICORE_REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
}

// validate checks the settings the server cannot run without.
func (c AppConfig) validate() error {
	if strings.TrimSpace(c.MasterDSN) == "" {
		return fmt.Errorf("config: missing master-dsn")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: missing jwt secret")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("config: jwt expiry must be positive")
	}
	if strings.TrimSpace(c.Master.Username) == "" || strings.TrimSpace(c.Master.Password) == "" {
		return fmt.Errorf("config: missing master credentials")
	}
	if strings.TrimSpace(c.TenantDB.DefaultDatabase) == "" {
		return fmt.Errorf("config: missing tenant-db default-database")
	}
	if c.TenantDB.ConnectTimeout <= 0 {
		return fmt.Errorf("config: tenant-db connect-timeout must be positive")
	}
	return nil
}
