package storage

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Type != StorageTypeMemory {
		t.Errorf("Default Type = %v, want %v", config.Type, StorageTypeMemory)
	}
	if config.SQLitePath != "./data/engram.db" {
		t.Errorf("Default SQLitePath = %v, want './data/engram.db'", config.SQLitePath)
	}
	if config.SQLiteTimeout != 5000 {
		t.Errorf("Default SQLiteTimeout = %v, want 5000", config.SQLiteTimeout)
	}
	if config.FallbackType != StorageTypeMemory {
		t.Errorf("Default FallbackType = %v, want %v", config.FallbackType, StorageTypeMemory)
	}
}

func TestConfigFromEnv(t *testing.T) {
	originalStorageType := os.Getenv("STORAGE_TYPE")
	originalSQLitePath := os.Getenv("SQLITE_PATH")
	originalSQLiteTimeout := os.Getenv("SQLITE_TIMEOUT")
	originalFallback := os.Getenv("STORAGE_FALLBACK")

	defer func() {
		os.Setenv("STORAGE_TYPE", originalStorageType)
		os.Setenv("SQLITE_PATH", originalSQLitePath)
		os.Setenv("SQLITE_TIMEOUT", originalSQLiteTimeout)
		os.Setenv("STORAGE_FALLBACK", originalFallback)
	}()

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(*testing.T, Config)
	}{
		{
			name:    "default config when no env vars",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg Config) {
				if cfg.Type != StorageTypeMemory {
					t.Errorf("Type = %v, want %v", cfg.Type, StorageTypeMemory)
				}
			},
		},
		{
			name: "sqlite storage type",
			envVars: map[string]string{
				"STORAGE_TYPE": "sqlite",
				"SQLITE_PATH":  "",
			},
			validate: func(t *testing.T, cfg Config) {
				if cfg.Type != StorageTypeSQLite {
					t.Errorf("Type = %v, want sqlite", cfg.Type)
				}
			},
		},
		{
			name: "custom sqlite path and timeout",
			envVars: map[string]string{
				"STORAGE_TYPE":   "sqlite",
				"SQLITE_PATH":    "/tmp/custom.db",
				"SQLITE_TIMEOUT": "10000",
			},
			validate: func(t *testing.T, cfg Config) {
				if cfg.SQLitePath != "/tmp/custom.db" {
					t.Errorf("SQLitePath = %v, want /tmp/custom.db", cfg.SQLitePath)
				}
				if cfg.SQLiteTimeout != 10000 {
					t.Errorf("SQLiteTimeout = %v, want 10000", cfg.SQLiteTimeout)
				}
			},
		},
		{
			name: "explicit fallback override",
			envVars: map[string]string{
				"STORAGE_TYPE":     "sqlite",
				"STORAGE_FALLBACK": "memory",
			},
			validate: func(t *testing.T, cfg Config) {
				if cfg.FallbackType != StorageTypeMemory {
					t.Errorf("FallbackType = %v, want memory", cfg.FallbackType)
				}
			},
		},
		{
			name: "invalid timeout is ignored",
			envVars: map[string]string{
				"SQLITE_TIMEOUT": "not-a-number",
			},
			validate: func(t *testing.T, cfg Config) {
				if cfg.SQLiteTimeout != 5000 {
					t.Errorf("SQLiteTimeout = %v, want default 5000", cfg.SQLiteTimeout)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("STORAGE_TYPE")
			os.Unsetenv("SQLITE_PATH")
			os.Unsetenv("SQLITE_TIMEOUT")
			os.Unsetenv("STORAGE_FALLBACK")
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			tt.validate(t, ConfigFromEnv())
		})
	}
}
