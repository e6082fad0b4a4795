package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用运行配置
type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	SiteURL  string

	DatabaseDriver string // postgres | sqlite
	DatabaseURL    string

	SessionSecret     string
	AdminEmail        string
	AdminPasswordHash string

	UploadDir       string // 上传文件根目录，blog/<YYYY>/<MM> 在其下创建
	UploadURLPrefix string // 对外的访问前缀，对应 GET /api/uploads/*filepath
	MaxUploadBytes  int64

	RemoteFetchTimeout time.Duration

	CommentRateWindow time.Duration
	CommentRateMax    int
	RateLimitSweep    time.Duration

	CORSOrigins    []string
	TrustedProxies []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("site_url", "http://localhost:8080")

	v.SetDefault("database_driver", "postgres")
	v.SetDefault("database_url", "host=localhost user=postgres password=postgres dbname=profilesite port=5432 sslmode=disable")

	v.SetDefault("session_secret", "secret_key_change_me")

	v.SetDefault("upload_dir", "./public/uploads")
	v.SetDefault("upload_url_prefix", "/api/uploads")
	v.SetDefault("max_upload_bytes", 5*1024*1024)

	v.SetDefault("remote_fetch_timeout", 8*time.Second)

	v.SetDefault("comment_rate_window", 15*time.Minute)
	v.SetDefault("comment_rate_max", 10)
	v.SetDefault("rate_limit_sweep", 5*time.Minute)

	v.SetDefault("cors_origins", "")
	v.SetDefault("trusted_proxies", "")
}

// Load 从 .env、config.yaml 以及环境变量加载配置。
// 环境变量会覆盖配置文件中的同名设置。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper 将 viper 中的键值转换为 Config 并做基本校验
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:     v.GetString("port"),
		GinMode:  v.GetString("gin_mode"),
		LogLevel: v.GetString("log_level"),
		SiteURL:  strings.TrimSuffix(v.GetString("site_url"), "/"),

		DatabaseDriver: strings.ToLower(v.GetString("database_driver")),
		DatabaseURL:    v.GetString("database_url"),

		SessionSecret:     v.GetString("session_secret"),
		AdminEmail:        strings.ToLower(strings.TrimSpace(v.GetString("admin_email"))),
		AdminPasswordHash: strings.TrimSpace(v.GetString("admin_password_hash")),

		UploadDir:       v.GetString("upload_dir"),
		UploadURLPrefix: strings.TrimSuffix(v.GetString("upload_url_prefix"), "/"),
		MaxUploadBytes:  v.GetInt64("max_upload_bytes"),

		RemoteFetchTimeout: v.GetDuration("remote_fetch_timeout"),

		CommentRateWindow: v.GetDuration("comment_rate_window"),
		CommentRateMax:    v.GetInt("comment_rate_max"),
		RateLimitSweep:    v.GetDuration("rate_limit_sweep"),

		CORSOrigins:    splitList(v.GetString("cors_origins")),
		TrustedProxies: splitList(v.GetString("trusted_proxies")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RemoteFetchTimeout <= 0 {
		return errors.New("REMOTE_FETCH_TIMEOUT must be positive")
	}
	if c.CommentRateWindow <= 0 || c.CommentRateMax <= 0 {
		return errors.New("comment rate limit window and max must be positive")
	}
	if c.RateLimitSweep <= 0 {
		return errors.New("RATE_LIMIT_SWEEP must be positive")
	}
	if c.UploadDir == "" {
		return errors.New("UPLOAD_DIR is required")
	}
	return nil
}

// splitList 解析逗号分隔的列表，忽略空项
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
