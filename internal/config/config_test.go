package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"LOG_LEVEL", "HTTP_TIMEOUT", "DATABASE_URL", "TOKEN_TTL", "BASE_URL",
	"MINIFLUX_ENDPOINT", "MINIFLUX_USERNAME", "MINIFLUX_PASSWORD", "MINIFLUX_API_KEY",
	"FEVER_ENDPOINT", "FEVER_USERNAME", "FEVER_PASSWORD",
	"INOREADER_APP_ID", "INOREADER_APP_KEY",
}

func TestLoad(t *testing.T) {
	defaults := Config{
		LogLevel:    "info",
		HTTPTimeout: 30 * time.Second,
		DatabaseURL: "./data/feedgrid.db",
		TokenTTL:    336 * time.Hour,
	}

	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: func() *Config { c := defaults; return &c },
		},
		{
			name: "all values set",
			env: map[string]string{
				"LOG_LEVEL":         "debug",
				"HTTP_TIMEOUT":      "5s",
				"DATABASE_URL":      "postgres://localhost/feedgrid",
				"TOKEN_TTL":         "24h",
				"BASE_URL":          "https://feeds.example.com/",
				"MINIFLUX_ENDPOINT": "https://mf.example.com",
				"MINIFLUX_API_KEY":  "key",
				"FEVER_ENDPOINT":    "https://fever.example.com",
				"FEVER_USERNAME":    "u",
				"FEVER_PASSWORD":    "p",
				"INOREADER_APP_ID":  "id",
				"INOREADER_APP_KEY": "secret",
			},
			want: func() *Config {
				return &Config{
					LogLevel:    "debug",
					HTTPTimeout: 5 * time.Second,
					DatabaseURL: "postgres://localhost/feedgrid",
					TokenTTL:    24 * time.Hour,
					BaseURL:     "https://feeds.example.com",
					Miniflux:    MinifluxConfig{Endpoint: "https://mf.example.com", APIKey: "key"},
					Fever:       FeverConfig{Endpoint: "https://fever.example.com", Username: "u", Password: "p"},
					Inoreader:   InoreaderConfig{AppID: "id", AppKey: "secret"},
				}
			},
		},
		{
			name: "miniflux with password",
			env: map[string]string{
				"MINIFLUX_ENDPOINT": "https://mf.example.com",
				"MINIFLUX_USERNAME": "admin",
				"MINIFLUX_PASSWORD": "pw",
			},
			want: func() *Config {
				c := defaults
				c.Miniflux = MinifluxConfig{Endpoint: "https://mf.example.com", Username: "admin", Password: "pw"}
				return &c
			},
		},
		{
			name:    "invalid log level",
			env:     map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "invalid timeout",
			env:     map[string]string{"HTTP_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "negative ttl",
			env:     map[string]string{"TOKEN_TTL": "-1h"},
			wantErr: true,
		},
		{
			name:    "miniflux without credentials",
			env:     map[string]string{"MINIFLUX_ENDPOINT": "https://mf.example.com", "MINIFLUX_USERNAME": "admin"},
			wantErr: true,
		},
		{
			name:    "fever without password",
			env:     map[string]string{"FEVER_ENDPOINT": "https://fever.example.com", "FEVER_USERNAME": "u"},
			wantErr: true,
		},
		{
			name:    "inoreader half configured",
			env:     map[string]string{"INOREADER_APP_ID": "id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{name: "miniflux empty", got: MinifluxConfig{}.Enabled(), want: false},
		{name: "miniflux set", got: MinifluxConfig{Endpoint: "x"}.Enabled(), want: true},
		{name: "fever empty", got: FeverConfig{}.Enabled(), want: false},
		{name: "fever set", got: FeverConfig{Endpoint: "x"}.Enabled(), want: true},
		{name: "inoreader id only", got: InoreaderConfig{AppID: "x"}.Enabled(), want: false},
		{name: "inoreader set", got: InoreaderConfig{AppID: "x", AppKey: "y"}.Enabled(), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("Enabled() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
