// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"quarrychain.org/quarry-core/config"
	"quarrychain.org/quarry-core/database"
	_ "quarrychain.org/quarry-core/database/ldb"
	_ "quarrychain.org/quarry-core/database/memdb"
	"quarrychain.org/quarry-core/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "quarryd",
	Short: "quarryd runs the quarry chain daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return quarryMain()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "configfile", "C", "",
		"Path to configuration file")
}

// quarryMain is the real main function for quarryd.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit()
// is called.
func quarryMain() error {
	tempCfg, err := config.ParseConfig(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.CheckConfig(tempCfg)
	if err != nil {
		return err
	}

	logging.Init(cfg.Log.LogDir, config.DefaultLoggingFilename,
		cfg.Log.LogLevel, 0)

	dbPath := filepath.Join(cfg.Data.DataDir, config.DefaultChainDataDir)
	db, err := database.CheckAndOpenDB(cfg.Data.DbType, dbPath)
	if err != nil {
		logging.CPrint(logging.ERROR, "failed to open block database",
			logging.LogFormat{"err": err, "path": dbPath})
		return err
	}

	srv, err := newServer(cfg, db)
	if err != nil {
		db.Close()
		return err
	}
	srv.Start()
	defer srv.Stop()

	// Block until a shutdown signal arrives.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	logging.CPrint(logging.INFO, "shutdown requested", logging.LogFormat{
		"signal": sig.String(),
	})
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
