package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 1<<20 {
		t.Errorf("ChunkSize = %d, want 1 MiB", cfg.ChunkSize)
	}
	if cfg.GraceDelay != 500*time.Millisecond {
		t.Errorf("GraceDelay = %v, want 500ms", cfg.GraceDelay)
	}
	if cfg.ChunkInterval != 5*time.Millisecond {
		t.Errorf("ChunkInterval = %v, want 5ms", cfg.ChunkInterval)
	}
	if cfg.OutputDir != "." || cfg.Minio.Enabled() {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if filepath.Base(cfg.SettingsPath) != "settings.yaml" {
		t.Errorf("SettingsPath = %q", cfg.SettingsPath)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "custom.yaml")
	data := []byte("output_dir: /tmp/exports\nchunk_size: 4096\ngrace_delay: 2s\nminio:\n  endpoint: localhost:9000\n  access_key: key\n  secret_key: secret\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CELLBOOK_CHUNK_SIZE", "1024")
	t.Setenv("CELLBOOK_MINIO_USE_SSL", "false")

	cfg, err := Load(New(), file)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputDir != "/tmp/exports" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.ChunkSize != 1024 {
		t.Errorf("ChunkSize = %d, env should override file", cfg.ChunkSize)
	}
	if cfg.GraceDelay != 2*time.Second {
		t.Errorf("GraceDelay = %v", cfg.GraceDelay)
	}
	if !cfg.Minio.Enabled() || cfg.Minio.UseSSL || cfg.Minio.Store().AccessKeyID != "key" {
		t.Errorf("Minio = %+v", cfg.Minio)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CELLBOOK_OUTPUT_DIR=/from/dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CELLBOOK_OUTPUT_DIR") })

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputDir != "/from/dotenv" {
		t.Errorf("OutputDir = %q, want value from .env", cfg.OutputDir)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load(New(), "/does/not/exist.yaml"); err == nil {
		t.Error("Load() with missing explicit file succeeded")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{SettingsPath: "s.yaml", ChunkSize: 1, Transport: TransportPipe}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero chunk", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "negative grace", mutate: func(c *Config) { c.GraceDelay = -time.Second }, wantErr: true},
		{name: "no settings path", mutate: func(c *Config) { c.SettingsPath = "" }, wantErr: true},
		{name: "stream transport", mutate: func(c *Config) { c.Transport = TransportStream }},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "grpc" }, wantErr: true},
		{name: "minio without keys", mutate: func(c *Config) { c.Minio.Endpoint = "x:9000" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
