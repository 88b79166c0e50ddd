package logging

import (
	"testing"

	"github.com/bbmini/errdb/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		verbose   bool
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"defaults", config.LogConfig{}, false, zapcore.InfoLevel, false},
		{"warn", config.LogConfig{Level: "warn"}, false, zapcore.WarnLevel, false},
		{"verbose wins", config.LogConfig{Level: "error"}, true, zapcore.DebugLevel, false},
		{"console", config.LogConfig{Format: "console"}, false, zapcore.InfoLevel, false},
		{"bad level", config.LogConfig{Level: "chatty"}, false, 0, true},
		{"bad format", config.LogConfig{Format: "xml"}, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !logger.Core().Enabled(tt.wantLevel) {
				t.Errorf("level %v should be enabled", tt.wantLevel)
			}
			if tt.wantLevel > zapcore.DebugLevel && logger.Core().Enabled(tt.wantLevel-1) {
				t.Errorf("level %v should be disabled", tt.wantLevel-1)
			}
		})
	}
}
