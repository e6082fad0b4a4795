package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newTestViper())
	if err != nil {
		t.Fatalf("FromViper failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Errorf("Expected 5MB upload limit, got %d", cfg.MaxUploadBytes)
	}
	if cfg.RemoteFetchTimeout != 8*time.Second {
		t.Errorf("Expected 8s fetch timeout, got %s", cfg.RemoteFetchTimeout)
	}
	if cfg.CommentRateWindow != 15*time.Minute || cfg.CommentRateMax != 10 {
		t.Errorf("Unexpected comment rate limit: %s / %d", cfg.CommentRateWindow, cfg.CommentRateMax)
	}
	if cfg.RateLimitSweep != 5*time.Minute {
		t.Errorf("Expected 5m sweep, got %s", cfg.RateLimitSweep)
	}
	if cfg.UploadURLPrefix != "/api/uploads" {
		t.Errorf("Unexpected upload prefix %s", cfg.UploadURLPrefix)
	}
}

func TestFromViperOverrides(t *testing.T) {
	v := newTestViper()
	v.Set("database_driver", "SQLite")
	v.Set("admin_email", "  Admin@Example.COM ")
	v.Set("cors_origins", "https://a.example, ,https://b.example")
	v.Set("comment_rate_window", "1m")
	v.Set("upload_url_prefix", "/files/")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper failed: %v", err)
	}

	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.AdminEmail != "admin@example.com" {
		t.Errorf("Expected normalized admin email, got %q", cfg.AdminEmail)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if cfg.CommentRateWindow != time.Minute {
		t.Errorf("Expected 1m window, got %s", cfg.CommentRateWindow)
	}
	if cfg.UploadURLPrefix != "/files" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.UploadURLPrefix)
	}
}

func TestFromViperRejectsInvalid(t *testing.T) {
	cases := map[string]func(v *viper.Viper){
		"driver":  func(v *viper.Viper) { v.Set("database_driver", "mysql") },
		"upload":  func(v *viper.Viper) { v.Set("max_upload_bytes", 0) },
		"rate":    func(v *viper.Viper) { v.Set("comment_rate_max", 0) },
		"timeout": func(v *viper.Viper) { v.Set("remote_fetch_timeout", "0s") },
	}

	for name, mutate := range cases {
		v := newTestViper()
		mutate(v)
		if _, err := FromViper(v); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
