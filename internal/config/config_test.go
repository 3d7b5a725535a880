package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Node != DefaultNode {
					t.Errorf("Node = %q, want default", cfg.Node)
				}
				if cfg.StatusInterval != 3*time.Second {
					t.Errorf("StatusInterval = %v, want 3s", cfg.StatusInterval)
				}
				if cfg.InfluxURL != "" {
					t.Error("Influx should be disabled by default")
				}
			},
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"KRISTFORGE_NODE":            "https://krist.example/ws/start",
				"KRISTFORGE_STATUS_INTERVAL": "10s",
				"LOG_LEVEL":                  "debug",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Node != "https://krist.example/ws/start" {
					t.Errorf("Node = %q", cfg.Node)
				}
				if cfg.StatusInterval != 10*time.Second {
					t.Errorf("StatusInterval = %v", cfg.StatusInterval)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %q", cfg.LogLevel)
				}
			},
		},
		{
			name: "invalid status interval falls back to default",
			envVars: map[string]string{
				"KRISTFORGE_STATUS_INTERVAL": "nonsense",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if cfg.StatusInterval != 3*time.Second {
					t.Errorf("StatusInterval = %v, want default 3s", cfg.StatusInterval)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				if err := os.Setenv(key, value); err != nil {
					t.Fatalf("failed to set environment variable %s: %v", key, err)
				}
			}
			defer func() {
				for key := range tt.envVars {
					if err := os.Unsetenv(key); err != nil {
						t.Logf("failed to unset environment variable %s: %v", key, err)
					}
				}
			}()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if cfg.ServiceName == "" {
					t.Error("ServiceName should not be empty")
				}
				if tt.check != nil {
					tt.check(t, cfg)
				}
			}
		})
	}
}
