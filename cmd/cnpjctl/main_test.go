package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	t.Run("valid input is formatted", func(t *testing.T) {
		out, err := execute(t, "validate", "11222333000181")
		require.NoError(t, err)
		assert.Contains(t, out, "valid\t11.222.333/0001-81")
	})

	t.Run("any invalid argument fails the command", func(t *testing.T) {
		out, err := execute(t, "validate", "11.222.333/0001-81", "11222333000182")
		require.ErrorIs(t, err, errInvalidInput)
		assert.Contains(t, out, "11222333000182\tinvalid")
		assert.Contains(t, out, "11.222.333/0001-81\tvalid")
	})

	t.Run("requires an argument", func(t *testing.T) {
		_, err := execute(t, "validate")
		assert.Error(t, err)
	})
}

func TestFormat(t *testing.T) {
	out, err := execute(t, "format", "11222333000181")
	require.NoError(t, err)
	assert.Equal(t, "11.222.333/0001-81\n", out)

	out, err = execute(t, "format", "--digits", "11.222.333/0001-81")
	require.NoError(t, err)
	assert.Equal(t, "11222333000181\n", out)

	_, err = execute(t, "format", "123")
	assert.Error(t, err)
}

func TestDatabaseCommandsNeedURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, args := range [][]string{
		{"migrate"},
		{"seed"},
		{"credits", "balance", "8b0f6a58-1f39-4a43-9d6e-0d8f8c1f2a11"},
		{"keys", "create", "ops@example.com"},
	} {
		_, err := execute(t, args...)
		assert.ErrorIs(t, err, errNoDatabase, "%v", args)
	}
}

func TestCreditsAddRejectsBadInput(t *testing.T) {
	_, err := execute(t, "credits", "add", "not-a-uuid", "10")
	assert.Error(t, err)

	_, err = execute(t, "credits", "add", "8b0f6a58-1f39-4a43-9d6e-0d8f8c1f2a11", "0")
	assert.ErrorContains(t, err, "invalid amount")
}
