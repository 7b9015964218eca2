package config

import (
	"io/ioutil"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseConfigDefaults verifies a missing config file yields a runnable
// mainnet configuration.
func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)

	cfg, err = CheckConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.ChainTag)
	assert.Equal(t, "leveldb", cfg.Data.DbType)
	assert.Equal(t, uint64(100), cfg.Chain.ReorganizationLimit)
	assert.Equal(t, runtime.NumCPU(), cfg.Chain.Cores)
	assert.False(t, cfg.Chain.StrictDuplicateCheck)
	assert.True(t, filepath.IsAbs(cfg.Data.DataDir))
}

// TestParseConfigFile loads an explicit yaml file and verifies overrides
// land.
func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
chaintag: regtest
data:
  dbtype: memdb
chain:
  reorganizationlimit: 12
  cores: 3
  strictduplicatecheck: true
`)
	require.NoError(t, ioutil.WriteFile(path, content, 0644))

	cfg, err := ParseConfig(path)
	require.NoError(t, err)
	cfg, err = CheckConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "regtest", cfg.ChainTag)
	assert.Equal(t, "memdb", cfg.Data.DbType)
	assert.Equal(t, uint64(12), cfg.Chain.ReorganizationLimit)
	assert.Equal(t, 3, cfg.Chain.Cores)
	assert.True(t, cfg.Chain.StrictDuplicateCheck)
}

// TestCheckConfigRejects verifies invalid tags and db types are refused.
func TestCheckConfigRejects(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)

	cfg.ChainTag = "nonsense"
	_, err = CheckConfig(cfg)
	assert.Error(t, err)

	cfg.ChainTag = "mainnet"
	cfg.Data.DbType = "oracle"
	_, err = CheckConfig(cfg)
	assert.Error(t, err)
}
