package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErr  bool
		wantType string
	}{
		{
			name:     "memory storage",
			config:   Config{Type: StorageTypeMemory},
			wantErr:  false,
			wantType: "*storage.MemoryStorage",
		},
		{
			name: "sqlite storage",
			config: Config{
				Type:          StorageTypeSQLite,
				SQLitePath:    filepath.Join(t.TempDir(), "factory-test.db"),
				SQLiteTimeout: 5000,
			},
			wantErr:  false,
			wantType: "*storage.SQLiteStorage",
		},
		{
			name:    "unknown storage type",
			config:  Config{Type: StorageType("unknown")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStorage(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStorage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if s == nil {
					t.Fatal("NewStorage() returned nil storage")
				}
				if typeName := getTypeName(s); typeName != tt.wantType {
					t.Errorf("Storage type = %v, want %v", typeName, tt.wantType)
				}
				CloseStorage(s)
			}
		})
	}
}

func TestNewStorageFallsBackOnSQLiteFailure(t *testing.T) {
	cfg := Config{
		Type:         StorageTypeSQLite,
		SQLitePath:   "",
		FallbackType: StorageTypeMemory,
	}

	s, err := NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() should have fallen back to memory, got error: %v", err)
	}
	if typeName := getTypeName(s); typeName != "*storage.MemoryStorage" {
		t.Errorf("Storage type = %v, want fallback *storage.MemoryStorage", typeName)
	}
}

func TestNewStorageFailsWithoutFallback(t *testing.T) {
	cfg := Config{Type: StorageTypeSQLite, SQLitePath: ""}

	s, err := NewStorage(cfg)
	if err == nil {
		t.Error("NewStorage() should error when sqlite init fails and no fallback is set")
	}
	if s != nil {
		t.Error("NewStorage() should return nil storage on error")
	}
}

func TestNewStorageFromEnv(t *testing.T) {
	originalStorageType := os.Getenv("STORAGE_TYPE")
	originalSQLitePath := os.Getenv("SQLITE_PATH")
	originalSQLiteTimeout := os.Getenv("SQLITE_TIMEOUT")
	defer func() {
		os.Setenv("STORAGE_TYPE", originalStorageType)
		os.Setenv("SQLITE_PATH", originalSQLitePath)
		os.Setenv("SQLITE_TIMEOUT", originalSQLiteTimeout)
	}()

	tempDir := t.TempDir()

	tests := []struct {
		name     string
		envVars  map[string]string
		wantType string
	}{
		{
			name:     "memory storage from env",
			envVars:  map[string]string{"STORAGE_TYPE": "memory"},
			wantType: "*storage.MemoryStorage",
		},
		{
			name: "sqlite storage from env",
			envVars: map[string]string{
				"STORAGE_TYPE":   "sqlite",
				"SQLITE_PATH":    filepath.Join(tempDir, "env-test.db"),
				"SQLITE_TIMEOUT": "3000",
			},
			wantType: "*storage.SQLiteStorage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("STORAGE_TYPE")
			os.Unsetenv("SQLITE_PATH")
			os.Unsetenv("SQLITE_TIMEOUT")
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			s, err := NewStorageFromEnv()
			if err != nil {
				t.Fatalf("NewStorageFromEnv() error = %v", err)
			}
			if typeName := getTypeName(s); typeName != tt.wantType {
				t.Errorf("Storage type = %v, want %v", typeName, tt.wantType)
			}
			CloseStorage(s)
		})
	}
}

func TestCloseStorage(t *testing.T) {
	if err := CloseStorage(NewMemoryStorage()); err != nil {
		t.Errorf("CloseStorage() on memory storage should not error, got %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "close-test.db")
	s, err := NewSQLiteStorage(dbPath, 5000)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	if err := CloseStorage(s); err != nil {
		t.Errorf("CloseStorage() on sqlite storage should not error, got %v", err)
	}
}

func getTypeName(i interface{}) string {
	switch i.(type) {
	case *MemoryStorage:
		return "*storage.MemoryStorage"
	case *SQLiteStorage:
		return "*storage.SQLiteStorage"
	default:
		return "unknown"
	}
}
