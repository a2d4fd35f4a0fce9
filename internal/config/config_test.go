package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "sqlite", cfg.ListingDB.Type)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 0.15, cfg.Valuation.MileageTolerance)
	assert.Equal(t, 5, cfg.Valuation.MinSample)
	assert.Equal(t, 4, cfg.Valuation.OutlierFloor)
	assert.Equal(t, "memory", cfg.Quota.Store)
	assert.Equal(t, 30*time.Minute, cfg.Intake.TTL)
	assert.Zero(t, cfg.ListingDB.Retention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MILEAGE_TOLERANCE", "0.25")
	t.Setenv("LISTING_DB_TYPE", "postgres")
	t.Setenv("PLAN_OVERRIDES", "42:gold,7:standard")
	t.Setenv("API_KEYS", "k1,k2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Valuation.MileageTolerance)
	assert.Equal(t, "postgres", cfg.ListingDB.Type)
	assert.Equal(t, map[string]string{"42": "gold", "7": "standard"}, cfg.Quota.PlanOverrides)
	assert.Equal(t, []string{"k1", "k2"}, cfg.App.APIKeys)
}

func TestLoad_RejectsBadTolerance(t *testing.T) {
	t.Setenv("MILEAGE_TOLERANCE", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MILEAGE_TOLERANCE")
}

func TestValidate_OutlierFloorAboveMinSample(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Valuation.OutlierFloor = cfg.Valuation.MinSample + 1
	assert.Error(t, cfg.Validate())
}

func TestDSNs(t *testing.T) {
	l := ListingDBConfig{User: "u", Password: "p", Host: "h", Port: 5432, Name: "db", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable", l.PostgresDSN())
	assert.Equal(t, "u:p@tcp(h:5432)/db?parseTime=true", l.MySQLDSN())

	p := PlanDBConfig{User: "root", Password: "", Host: "db", Port: 3306, Name: "plans"}
	assert.Equal(t, "root:@tcp(db:3306)/plans?parseTime=true", p.DSN())
}
