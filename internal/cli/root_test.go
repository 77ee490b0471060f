package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_ListsSubcommands(t *testing.T) {
	out, err := runCommand(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"batch", "reminders", "cache", "migrate"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	_, err := runCommand(t, "--format", "xml", "migrate", "list", "--backend", "memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMigrateList_EmptyStore(t *testing.T) {
	out, err := runCommand(t, "--backend", "memory", "migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations recorded")
}

func TestRemindersDue_EmptyStore(t *testing.T) {
	out, err := runCommand(t, "--backend", "memory", "reminders", "due")
	require.NoError(t, err)
	assert.Contains(t, out, "no due reminders")
}

func TestCacheInvalidate_MalformedParam(t *testing.T) {
	_, err := runCommand(t, "--backend", "memory", "cache", "invalidate", "k", "--param", "nonsense")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCacheInvalidate_RunsAgainstMemoryBackend(t *testing.T) {
	out, err := runCommand(t, "--backend", "memory", "cache", "invalidate", "user_appointments", "--param", "user_id=u-1")
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated user_appointments")
}
