package config

import (
	"os"
	"path/filepath"
	"testing"
)

var envTestKeys = []string{"KEY1", "KEY2", "KEY3", "JOBSPOOL_DIR", "SQLITE_DSN", "PORT", "DEBUG"}

func cleanupTestEnv() {
	for _, key := range envTestKeys {
		os.Unsetenv(key)
	}
}

func TestLoadEnv(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		setupEnv map[string]string
		wantEnv  map[string]string
		wantErr  bool
	}{
		{
			name: "valid .env file",
			content: `
# Comment line
KEY1=value1
KEY2=value2

KEY3=value with spaces
`,
			wantEnv: map[string]string{
				"KEY1": "value1",
				"KEY2": "value2",
				"KEY3": "value with spaces",
			},
		},
		{
			name:    "empty file",
			content: "",
			wantEnv: map[string]string{},
		},
		{
			name: "only comments",
			content: `
# This is a comment
# Another comment
`,
			wantEnv: map[string]string{},
		},
		{
			name: "values with special characters",
			content: `
JOBSPOOL_DIR=/var/spool/jobs
SQLITE_DSN=file:/var/spool/jobs/spool.db?mode=rwc
PORT=8080
DEBUG=true
`,
			wantEnv: map[string]string{
				"JOBSPOOL_DIR": "/var/spool/jobs",
				"SQLITE_DSN":   "file:/var/spool/jobs/spool.db?mode=rwc",
				"PORT":         "8080",
				"DEBUG":        "true",
			},
		},
		{
			name: "export prefix and quotes",
			content: `
export KEY1=exported
KEY2="double quoted"
KEY3='single quoted'
`,
			wantEnv: map[string]string{
				"KEY1": "exported",
				"KEY2": "double quoted",
				"KEY3": "single quoted",
			},
		},
		{
			name: "malformed lines are skipped",
			content: `
NOT_A_PAIR
=missing_key
KEY1=kept
`,
			wantEnv: map[string]string{
				"KEY1": "kept",
			},
		},
		{
			name:    "overwrites existing env vars",
			content: `KEY1=newvalue`,
			setupEnv: map[string]string{
				"KEY1": "oldvalue",
			},
			wantEnv: map[string]string{
				"KEY1": "newvalue",
			},
		},
		{
			name:    "file does not exist",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupTestEnv()
			defer cleanupTestEnv()

			for key, value := range tt.setupEnv {
				os.Setenv(key, value)
			}

			envPath := filepath.Join(tmpDir, "nonexistent.env")
			if !tt.wantErr {
				envPath = filepath.Join(tmpDir, ".env")
				if err := os.WriteFile(envPath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("failed to write .env file: %v", err)
				}
			}

			err := LoadEnv(envPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			for key, wantValue := range tt.wantEnv {
				if gotValue := os.Getenv(key); gotValue != wantValue {
					t.Errorf("os.Getenv(%q) = %q, want %q", key, gotValue, wantValue)
				}
			}
		})
	}
}

func TestLoadEnvOptional(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantEnv map[string]string
	}{
		{
			name: "file exists",
			content: `KEY1=value1
KEY2=value2`,
			wantEnv: map[string]string{
				"KEY1": "value1",
				"KEY2": "value2",
			},
		},
		{
			name:    "file does not exist",
			wantEnv: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupTestEnv()
			defer cleanupTestEnv()

			envPath := filepath.Join(tmpDir, "nonexistent.env")
			if tt.content != "" {
				envPath = filepath.Join(tmpDir, ".env")
				if err := os.WriteFile(envPath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("failed to write .env file: %v", err)
				}
			}

			if err := LoadEnvOptional(envPath); err != nil {
				t.Errorf("LoadEnvOptional() error = %v", err)
				return
			}

			for key, wantValue := range tt.wantEnv {
				if gotValue := os.Getenv(key); gotValue != wantValue {
					t.Errorf("os.Getenv(%q) = %q, want %q", key, gotValue, wantValue)
				}
			}
		})
	}
}
