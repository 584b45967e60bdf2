//go:build unix

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&out, &bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPluginsCommands(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	testutil.FakeBroker{}.Install(t, env.Extraction)
	common := []string{"--extraction-folder", env.Extraction, "--rabbitmq-version", "3.8.19", "--log-level", "error"}

	out, err := runCLI(t, append([]string{"plugins", "enable", "--offline", "rabbitmq_shovel"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "enabled: rabbitmq_shovel")

	out, err = runCLI(t, append([]string{"plugins", "list", "--enabled"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "rabbitmq_shovel")
	assert.Contains(t, out, "enabled")
	assert.NotContains(t, out, "rabbitmq_web_stomp")

	out, err = runCLI(t, append([]string{"plugins", "disable", "--offline", "rabbitmq_shovel"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "disabled: rabbitmq_shovel")

	out, err = runCLI(t, append([]string{"plugins", "list", "--enabled"}, common...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "rabbitmq_shovel")
}

func TestStatusCommand_NodeDown(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	testutil.FakeBroker{}.Install(t, env.Extraction)

	_, err := runCLI(t, "status", "--extraction-folder", env.Extraction, "--rabbitmq-version", "3.8.19", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node is not running")
}
