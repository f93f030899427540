package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("lists the subcommands", func(t *testing.T) {
		cmd := newRootCommand()
		var names []string
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		assert.Subset(t, names, []string{"serve", "bootstrap", "verify", "reset"})
	})

	t.Run("reset requires confirmation", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:1/none?sslmode=disable")

		cmd := newRootCommand()
		cmd.SetArgs([]string{"reset"})
		cmd.SetOut(&bytes.Buffer{})

		err := cmd.ExecuteContext(context.Background())
		require.ErrorIs(t, err, errResetNotConfirmed)
	})

	t.Run("rejects an invalid bootstrap mode", func(t *testing.T) {
		t.Setenv("BOOTSTRAP_MODE", "migrate")

		cmd := newRootCommand()
		cmd.SetArgs([]string{"serve"})

		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bootstrap.mode")
	})
}
