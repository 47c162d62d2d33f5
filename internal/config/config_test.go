package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(kv map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverPostgres)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Database.AutoMigrate = false, want true")
	}
	if cfg.Import.MaxBodySize != 10<<20 {
		t.Errorf("Import.MaxBodySize = %d, want %d", cfg.Import.MaxBodySize, 10<<20)
	}
	if cfg.Import.MaxConcurrent != 4 {
		t.Errorf("Import.MaxConcurrent = %d, want %d", cfg.Import.MaxConcurrent, 4)
	}
	if cfg.Import.Timeout != 2*time.Minute {
		t.Errorf("Import.Timeout = %v, want %v", cfg.Import.Timeout, 2*time.Minute)
	}
	if cfg.Rate.RequestsPerMinute != 100 || cfg.Rate.Burst != 20 {
		t.Errorf("Rate = %+v, want 100 rpm burst 20", cfg.Rate)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "0.0.0.0:8080")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DB_URL":                "file:tx.db",
		"DATABASE_DRIVER":       "sqlite",
		"SERVER_PORT":           "9090",
		"IMPORT_MAX_CONCURRENT": "10",
		"IMPORT_MAX_BODY_SIZE":  "512KiB",
		"TRUSTED_PROXIES":       "10.0.0.0/8, 192.168.1.1",
		"LOG_LEVEL":             "debug",
		"LOG_FORMAT":            "json",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Database.URL != "file:tx.db" {
		t.Errorf("Database.URL = %q, want value from DB_URL", cfg.Database.URL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Import.MaxConcurrent != 10 {
		t.Errorf("Import.MaxConcurrent = %d, want %d", cfg.Import.MaxConcurrent, 10)
	}
	if cfg.Import.MaxBodySize != 512<<10 {
		t.Errorf("Import.MaxBodySize = %d, want %d", cfg.Import.MaxBodySize, 512<<10)
	}
	if got := cfg.Security.TrustedProxies; len(got) != 2 || got[1] != "192.168.1.1" {
		t.Errorf("Security.TrustedProxies = %v", got)
	}
}

func TestLoad_MemoryDriverNeedsNoURL(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{"DATABASE_DRIVER": "memory"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Database.URL != "" {
		t.Errorf("Database.URL = %q, want empty", cfg.Database.URL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing url",
			env:     map[string]string{},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"DATABASE_DRIVER": "mysql"},
			wantErr: "DATABASE_DRIVER",
		},
		{
			name:    "bad port",
			env:     map[string]string{"DATABASE_DRIVER": "memory", "SERVER_PORT": "70000"},
			wantErr: "SERVER_PORT",
		},
		{
			name:    "bad proxy",
			env:     map[string]string{"DATABASE_DRIVER": "memory", "TRUSTED_PROXIES": "not-a-cidr"},
			wantErr: "TRUSTED_PROXIES",
		},
		{
			name:    "bad level",
			env:     map[string]string{"DATABASE_DRIVER": "memory", "LOG_LEVEL": "loud"},
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "unparseable duration",
			env:     map[string]string{"DATABASE_DRIVER": "memory", "IMPORT_TIMEOUT": "soon"},
			wantErr: "IMPORT_TIMEOUT",
		},
		{
			name:    "unparseable size",
			env:     map[string]string{"DATABASE_DRIVER": "memory", "IMPORT_MAX_BODY_SIZE": "lots"},
			wantErr: "invalid byte size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envMap(tt.env))
			if err == nil {
				t.Fatal("LoadFrom() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_FromProcessEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("SERVER_PORT", "8181")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8181)
	}
}

func TestConfig_StringMasksURL(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL": "postgres://user:secret@db/tx",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	s := cfg.String()
	if strings.Contains(s, "secret") {
		t.Errorf("String() leaks the database URL: %s", s)
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked URL", s)
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"10MiB", 10 << 20},
		{"2 GiB", 2 << 30},
		{"7B", 7},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if err != nil {
			t.Fatalf("parseBytes(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
