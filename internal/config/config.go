// Package config loads server configuration once at startup.
//
// Sources, lowest to highest precedence:
//  1. Defaults set in Load
//  2. An optional config.yaml in "." or "configs/"
//  3. Environment variables prefixed with PINBOARD_, with dots replaced by
//     underscores: jwt.secret → PINBOARD_JWT_SECRET
//
// The resulting Config is passed by value into constructors. Nothing reads
// viper or the environment after startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/pinboard/internal/auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	DBPath string

	JWT    JWTConfig
	Bcrypt BcryptConfig

	Storage StorageConfig
	Upload  UploadConfig
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type BcryptConfig struct {
	Cost int
}

type StorageConfig struct {
	Driver string // "local" or "s3"
	Local  LocalStorageConfig
	S3     S3StorageConfig
}

type LocalStorageConfig struct {
	Dir       string
	PublicURL string
}

type S3StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

type UploadConfig struct {
	MaxBytes int64
	MaxWidth int
}

// IsDevelopment reports whether internal error detail may be shown to clients.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. A missing config file is not an error; a malformed one is.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("configs")

	v.SetEnvPrefix("PINBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("port", 5000)
	v.SetDefault("log.level", "debug")
	v.SetDefault("db.path", "data/pinboard.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", auth.DefaultTokenTTL)
	v.SetDefault("jwt.issuer", "pinboard")
	v.SetDefault("bcrypt.cost", auth.DefaultCost)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.dir", "data/uploads")
	v.SetDefault("storage.local.public_url", "/uploads")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.public_url", "")
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.max_width", 1200)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:      strings.ToLower(v.GetString("env")),
		Port:     v.GetInt("port"),
		LogLevel: v.GetString("log.level"),
		DBPath:   v.GetString("db.path"),
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			TTL:    v.GetDuration("jwt.ttl"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Bcrypt: BcryptConfig{Cost: v.GetInt("bcrypt.cost")},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("storage.driver")),
			Local: LocalStorageConfig{
				Dir:       v.GetString("storage.local.dir"),
				PublicURL: v.GetString("storage.local.public_url"),
			},
			S3: S3StorageConfig{
				Bucket:    v.GetString("storage.s3.bucket"),
				Region:    v.GetString("storage.s3.region"),
				Endpoint:  v.GetString("storage.s3.endpoint"),
				AccessKey: v.GetString("storage.s3.access_key"),
				SecretKey: v.GetString("storage.s3.secret_key"),
				PublicURL: v.GetString("storage.s3.public_url"),
			},
		},
		Upload: UploadConfig{
			MaxBytes: v.GetInt64("upload.max_bytes"),
			MaxWidth: v.GetInt("upload.max_width"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// failures at request time.
func (c Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("config: unknown env %q", c.Env)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if len(c.JWT.Secret) < auth.MinSecretLength {
		return fmt.Errorf("config: jwt.secret must be at least %d characters (set PINBOARD_JWT_SECRET)", auth.MinSecretLength)
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("config: jwt.ttl must be positive, got %s", c.JWT.TTL)
	}
	if c.Env == EnvProduction && c.Bcrypt.Cost < auth.MinProductionCost {
		return fmt.Errorf("config: bcrypt.cost must be at least %d in production", auth.MinProductionCost)
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.Local.Dir == "" {
			return errors.New("config: storage.local.dir is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.PublicURL == "" {
			return errors.New("config: storage.s3.bucket and storage.s3.public_url are required")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("config: upload.max_bytes must be positive")
	}
	return nil
}
