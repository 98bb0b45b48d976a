package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		level     string
		format    string
		wantLevel slog.Level
		wantJSON  bool
	}{
		{level: "debug", format: "json", wantLevel: slog.LevelDebug, wantJSON: true},
		{level: "WARN", format: "text", wantLevel: slog.LevelWarn},
		{level: "nonsense", format: "", wantLevel: slog.LevelInfo, wantJSON: true},
	}

	for _, tc := range testCases {
		t.Run(tc.level+"/"+tc.format, func(t *testing.T) {
			logger := newLogger(tc.level, tc.format)
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tc.wantLevel))
			assert.False(t, logger.Enabled(ctx, tc.wantLevel-1))

			_, isJSON := logger.Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.wantJSON, isJSON)
		})
	}
}

func TestAdminTokenCommand(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "error")

	cmd := adminTokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "ops", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(out.String())
	assert.Len(t, strings.Split(token, "."), 3)
}

func TestAdminTokenCommandWithoutSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("LOG_LEVEL", "error")

	cmd := adminTokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
