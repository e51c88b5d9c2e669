package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogger_ConsoleFormat(t *testing.T) {
	tests := []struct {
		name     string
		json     bool
		wantJSON bool
	}{
		{name: "interactive run", json: false, wantJSON: false},
		{name: "scheduled run", json: true, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var console, file bytes.Buffer
			cfg := &Config{Log: LogConfig{Level: "info"}}

			log := runLogger(cfg, runDeps{JSONConsole: tt.json}, &console, &file)
			log.Info(context.Background(), "session completed", map[string]interface{}{"session": 1})

			var entry map[string]interface{}
			err := json.Unmarshal(console.Bytes(), &entry)
			if tt.wantJSON {
				require.NoError(t, err)
				assert.Equal(t, "session completed", entry["msg"])
				assert.NotContains(t, console.String(), "\x1b[")
			} else {
				assert.Error(t, err)
				assert.Contains(t, console.String(), "\x1b[")
			}
			assert.Contains(t, file.String(), "session completed")
		})
	}
}
