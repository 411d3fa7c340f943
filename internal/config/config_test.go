package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRACK_JWT_SECRET", "s3cret")
	t.Setenv("TRACK_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Auth.Mode != AuthJWT {
		t.Errorf("mode = %q", cfg.Auth.Mode)
	}
	if cfg.Redis.Addr != "" || cfg.AMQP.URL != "" {
		t.Errorf("redis/amqp should default to in-process")
	}
	if cfg.Tracking.EmitInterval != 10*time.Second || cfg.Tracking.StaleAfter != 2*time.Minute {
		t.Errorf("tracking = %+v", cfg.Tracking)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"jwt without secret", map[string]string{"TRACK_AUTH_MODE": "jwt"}},
		{"firebase without project", map[string]string{"TRACK_AUTH_MODE": "firebase"}},
		{"unknown mode", map[string]string{"TRACK_AUTH_MODE": "saml", "TRACK_JWT_SECRET": "x"}},
		{"mirror without url", map[string]string{"TRACK_JWT_SECRET": "x", "TRACK_FIREBASE_MIRROR_LOCATIONS": "true"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TRACK_JWT_SECRET", "")
	os.Unsetenv("TRACK_JWT_SECRET")
	t.Setenv("TRACK_HTTP_ADDR", "")
	os.Unsetenv("TRACK_HTTP_ADDR")
	body := "TRACK_JWT_SECRET=fromfile\nTRACK_HTTP_ADDR=:9999\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "fromfile" || cfg.HTTP.Addr != ":9999" {
		t.Errorf("dotenv not applied: %+v", cfg.Auth)
	}
}
