// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/pool"
)

func TestLoadAppliesOpenQuestionDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, uint64(60_000), cfg.Backrun.GasEstimate.GasFloor)
	require.Equal(t, uint64(3), cfg.Backrun.GasEstimate.GasInflationNum)
	require.Equal(t, uint64(2), cfg.Backrun.GasEstimate.GasInflationDen)
	require.Equal(t, uint64(200_000), cfg.Backrun.GasEstimate.MinGasPriceThreshold)
	require.True(t, cfg.Backrun.Enabled)

	resolved := cfg.Backrun.ChainParameters.Resolve()
	require.Equal(t, int64(8), resolved.BaseFeeChangeDenominator.Int64())
	require.Equal(t, uint64(2), resolved.ElasticityMultiplier)
}

func TestLoadReadsFileAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	contents := `
relays:
  - https://relay.example.com
multicaller_address: "0x1111111111111111111111111111111111111111"
signers:
  - "0xdeadbeef"
pools_config:
  classes:
    - univ2
    - curve
backrun:
  enabled: false
  gas_estimate:
    gas_floor: 70000
db_access:
  path: /var/lib/loom/db
influxdb:
  url: http://localhost:8086
  db: loom
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://relay.example.com"}, cfg.Relays)
	require.False(t, cfg.Backrun.Enabled)
	require.Equal(t, uint64(70_000), cfg.Backrun.GasEstimate.GasFloor)
	// Untouched defaults survive the partial override.
	require.Equal(t, uint64(3), cfg.Backrun.GasEstimate.GasInflationNum)
	require.Equal(t, "/var/lib/loom/db", cfg.DBAccess.Path)
	require.Equal(t, "loom", cfg.InfluxDB.DB)

	classes, err := cfg.ResolveClasses()
	require.NoError(t, err)
	require.Equal(t, []pool.Class{pool.ClassConstantProduct, pool.ClassStableSwap}, classes)
}

func TestResolveClassesRejectsUnknownName(t *testing.T) {
	cfg := &Config{}
	cfg.PoolsConfig.Classes = []string{"not-a-real-class"}
	_, err := cfg.ResolveClasses()
	require.Error(t, err)
}
