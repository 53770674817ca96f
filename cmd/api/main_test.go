package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rex/api/internal/auth"
	"rex/api/internal/config"
)

func TestOpenBackend(t *testing.T) {
	log := zap.NewNop().Sugar()

	backend, err := openBackend(context.Background(), config.Config{Backend: config.BackendMemory}, log)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())
	require.NoError(t, backend.Close())

	_, err = openBackend(context.Background(), config.Config{Backend: "cosmos"}, log)
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("REX_TOKEN_SECRET", "cli-secret")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--sub", "2a", "--name", "Ada", "--scopes", "Ideas.Read"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseToken([]byte("cli-secret"), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "2a", claims.Sub)
	assert.Equal(t, []string{auth.RoleUser}, claims.Roles)
	assert.Equal(t, []string{auth.ScopeIdeasRead}, claims.Scopes)
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	assert.Error(t, cmd.Execute())
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--backend", "postgres", "--database-url", ""})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
