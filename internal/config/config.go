package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend    string `env:"CLINIC_BACKEND,default=sqlite"`
	SQLitePath string `env:"SQLITE_PATH,default=data/clinic.db"`
	// DatabaseURL and RedisURL are only read by their backends.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret string `env:"JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	ReminderSchedule string        `env:"REMINDER_SCHEDULE,default=0 8 * * *"`
	BackupSchedule   string        `env:"BACKUP_SCHEDULE,default=0 3 * * *"`
	BackupDir        string        `env:"BACKUP_DIR,default=backups"`
	StatsCacheTTL    time.Duration `env:"STATS_CACHE_TTL,default=5m"`

	MetricsAddr string `env:"METRICS_ADDR"`
	SeedFile    string `env:"SEED_FILE"`
}

// Load reads an optional .env file and decodes the environment.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// RequireSecret is checked by the commands that sign or read session
// tokens. The scheduler and the storage commands run without a secret.
func (c *Config) RequireSecret() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required for session commands")
	}
	return nil
}

// SeedUser is a built-in account from the seed file. Password is plain
// text in the file and hashed before it is stored.
type SeedUser struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	Image     string `yaml:"image"`
	Specialty string `yaml:"specialty"`
	Password  string `yaml:"password"`
}

type Seed struct {
	Users []SeedUser `yaml:"users"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, u := range s.Users {
		if u.ID == "" || u.Email == "" || u.Password == "" {
			return nil, fmt.Errorf("seed users[%d]: id, email and password are required", i)
		}
	}
	return &s, nil
}
