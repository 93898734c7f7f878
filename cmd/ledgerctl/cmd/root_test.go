package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryEnv(t *testing.T) {
	t.Setenv("PWL_STORAGE_DRIVER", "memory")
	t.Setenv("PWL_SETTLEMENT_TRANSPORT", "log")
	t.Setenv("PWL_AES_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	t.Setenv("PWL_JWT_SECRET", "ledgerctl-test-secret")
	t.Setenv("PWL_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestMigrate_List(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_init.sql")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	memoryEnv(t)
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres driver")
}

func TestReconcile_EmptyLedger(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "all balances reconcile")
}

func TestUpgradeAdvance(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, "upgrade", "advance", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid workflow id")

	_, err = run(t, "upgrade", "advance", "7f9c2a4e-1b3d-4c5e-8f6a-0b1c2d3e4f5a")
	require.Error(t, err, "unknown workflow")

	_, err = run(t, "upgrade", "advance")
	require.Error(t, err, "workflow id is required")
}

func TestSweepAndRetry_NothingPending(t *testing.T) {
	memoryEnv(t)

	out, err := run(t, "upgrade", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "0 workflow(s) moved")

	out, err = run(t, "settlement", "retry")
	require.NoError(t, err)
	assert.Contains(t, out, "0 delivery(ies) attempted")
}

func TestLoad_BadConfig(t *testing.T) {
	memoryEnv(t)
	t.Setenv("PWL_SETTLEMENT_TRANSPORT", "pigeon")
	_, err := run(t, "reconcile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement.transport")
}
