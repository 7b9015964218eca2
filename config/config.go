// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"quarrychain.org/quarry-core/consensus"
)

const (
	DefaultConfigFilename  = "config"
	DefaultChainDataDir    = "chain"
	DefaultLoggingFilename = "quarrylog"

	defaultChainTag = "mainnet"
	defaultDbType   = "leveldb"
	defaultLogLevel = "info"

	// defaultReorganizationLimit matches the coinbase maturity window; a
	// branch forking deeper than this can never win.
	defaultReorganizationLimit = 100
)

var (
	knownDbTypes = []string{"leveldb", "memdb"}

	// ChainParams identifies the active network.  It is set by LoadConfig.
	ChainParams = consensus.MainNetParams
)

// LogConfig groups the logging options.
type LogConfig struct {
	LogDir   string
	LogLevel string
}

// DataConfig groups the store options.
type DataConfig struct {
	DataDir string
	DbType  string
}

// ChainConfig groups the organizer options.
type ChainConfig struct {
	// ReorganizationLimit bounds the block pool in height span below the
	// confirmed tip.
	ReorganizationLimit uint64

	// Cores sizes the priority validation worker pool.
	Cores int

	// Priority requests elevated OS scheduling for validation workers.
	Priority bool

	// RelayTransactions is passed through to the validator.
	RelayTransactions bool

	// StrictDuplicateCheck applies the duplicate-hash check at the fork
	// point instead of the candidate.  See the organizer notes.
	StrictDuplicateCheck bool

	// RevalidateBranch re-runs script validation over every branch block
	// rather than only the top.
	RevalidateBranch bool

	// DisableCheckpoints turns off checkpoint enforcement.
	DisableCheckpoints bool
}

// Config is the top level quarry daemon configuration.
type Config struct {
	ChainTag string
	Log      LogConfig
	Data     DataConfig
	Chain    ChainConfig
}

// ParseConfig loads the configuration file via viper.  Absent keys fall back
// to defaults, so an empty or missing file yields a runnable mainnet config.
func ParseConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("chaintag", defaultChainTag)
	v.SetDefault("log.logdir", "logs")
	v.SetDefault("log.loglevel", defaultLogLevel)
	v.SetDefault("data.datadir", DefaultChainDataDir)
	v.SetDefault("data.dbtype", defaultDbType)
	v.SetDefault("chain.reorganizationlimit", defaultReorganizationLimit)
	v.SetDefault("chain.cores", runtime.NumCPU())
	v.SetDefault("chain.priority", true)
	v.SetDefault("chain.relaytransactions", true)
	v.SetDefault("chain.strictduplicatecheck", false)
	v.SetDefault("chain.revalidatebranch", false)
	v.SetDefault("chain.disablecheckpoints", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName(DefaultConfigFilename)
		v.AddConfigPath(".")
		// A missing default config file is not an error.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	cfg := &Config{
		ChainTag: v.GetString("chaintag"),
		Log: LogConfig{
			LogDir:   v.GetString("log.logdir"),
			LogLevel: v.GetString("log.loglevel"),
		},
		Data: DataConfig{
			DataDir: v.GetString("data.datadir"),
			DbType:  v.GetString("data.dbtype"),
		},
		Chain: ChainConfig{
			ReorganizationLimit:  v.GetUint64("chain.reorganizationlimit"),
			Cores:                v.GetInt("chain.cores"),
			Priority:             v.GetBool("chain.priority"),
			RelayTransactions:    v.GetBool("chain.relaytransactions"),
			StrictDuplicateCheck: v.GetBool("chain.strictduplicatecheck"),
			RevalidateBranch:     v.GetBool("chain.revalidatebranch"),
			DisableCheckpoints:   v.GetBool("chain.disablecheckpoints"),
		},
	}
	return cfg, nil
}

// CheckConfig validates the parsed configuration and normalizes derived
// values.
func CheckConfig(cfg *Config) (*Config, error) {
	switch strings.ToLower(cfg.ChainTag) {
	case "mainnet":
		ChainParams = consensus.MainNetParams
	case "regtest":
		ChainParams = consensus.RegressionNetParams
	default:
		return nil, fmt.Errorf("invalid chaintag %q", cfg.ChainTag)
	}

	if !validDbType(cfg.Data.DbType) {
		return nil, fmt.Errorf("invalid dbtype %q, supported types %v",
			cfg.Data.DbType, knownDbTypes)
	}

	if cfg.Chain.ReorganizationLimit == 0 {
		cfg.Chain.ReorganizationLimit = defaultReorganizationLimit
	}
	if cfg.Chain.Cores <= 0 {
		cfg.Chain.Cores = runtime.NumCPU()
	}

	if !filepath.IsAbs(cfg.Data.DataDir) {
		abs, err := filepath.Abs(cfg.Data.DataDir)
		if err != nil {
			return nil, err
		}
		cfg.Data.DataDir = abs
	}

	return cfg, nil
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}
