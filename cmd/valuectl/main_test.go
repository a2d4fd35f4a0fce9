package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("LISTING_DB_TYPE", "sqlite")
	t.Setenv("LISTING_DB_PATH", filepath.Join(t.TempDir(), "listings.db"))
	t.Setenv("PLAN_OVERRIDES", "vip:gold")
}

func TestMigrate(t *testing.T) {
	useTempStore(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 1 migration(s) to sqlite")

	out, err = execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")
}

func TestEvaluate_EmptyStoreIsInsufficient(t *testing.T) {
	useTempStore(t)

	out, err := execute(t, "evaluate", "https://example.com/fiat-egea-2020-1234567",
		"--price", "400000", "--mileage", "90000", "--condition", "original")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient_data")
	assert.Contains(t, out, `"kind": "insufficient_data"`)
}

func TestQuota(t *testing.T) {
	useTempStore(t)

	out, err := execute(t, "quota", "vip")
	require.NoError(t, err)
	assert.Contains(t, out, "vip: plan gold")
}

func TestSweep(t *testing.T) {
	useTempStore(t)

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"intakes": 0`)
}
