// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ldb

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/logging"
	"quarrychain.org/quarry-core/wire"
)

// LevelDb holds internal state for the leveldb backed store.
type LevelDb struct {
	database.WriteSeqLock

	// dbLock prevents multiple entry.
	dbLock sync.Mutex

	lDb *leveldb.DB
	ro  *opt.ReadOptions
	wo  *opt.WriteOptions

	lastBlkShaCached bool
	lastBlkSha       wire.Hash
	lastBlkIdx       uint64
	hasBlocks        bool
}

var self = database.DriverDB{DbType: "leveldb", CreateDB: CreateDB, OpenDB: OpenDB}

func init() {
	database.AddDBDriver(self)
}

// parseArgs parses the arguments from the database package Open/Create
// methods.
func parseArgs(funcName string, args ...interface{}) (string, error) {
	if len(args) != 1 {
		return "", errors.Errorf("invalid arguments to ldb.%s -- "+
			"expected database path string", funcName)
	}
	dbPath, ok := args[0].(string)
	if !ok {
		return "", errors.Errorf("first argument to ldb.%s is invalid -- "+
			"expected database path string", funcName)
	}
	return dbPath, nil
}

// OpenDB opens an existing database for use.
func OpenDB(args ...interface{}) (database.Db, error) {
	dbpath, err := parseArgs("OpenDB", args...)
	if err != nil {
		return nil, err
	}
	return openDB(dbpath, false)
}

// CreateDB creates, initializes and opens a database for use.
func CreateDB(args ...interface{}) (database.Db, error) {
	dbpath, err := parseArgs("CreateDB", args...)
	if err != nil {
		return nil, err
	}
	return openDB(dbpath, true)
}

func openDB(dbpath string, create bool) (database.Db, error) {
	if !create {
		if _, err := os.Stat(dbpath); err != nil {
			return nil, database.ErrDbDoesNotExist
		}
	}

	opts := &opt.Options{
		BlockCacher:     opt.DefaultBlockCacher,
		Compression:     opt.NoCompression,
		OpenFilesCacher: opt.DefaultOpenFilesCacher,
	}

	tlDb, err := leveldb.OpenFile(dbpath, opts)
	if err != nil {
		return nil, errors.Wrap(err, "leveldb open")
	}

	db := &LevelDb{
		lDb: tlDb,
		ro:  &opt.ReadOptions{},
		wo:  &opt.WriteOptions{},
	}

	if err := db.loadTip(); err != nil {
		tlDb.Close()
		return nil, err
	}

	logging.CPrint(logging.INFO, "block database opened", logging.LogFormat{
		"path":   dbpath,
		"height": db.lastBlkIdx,
		"blocks": db.hasBlocks,
	})
	return db, nil
}

// loadTip caches the newest block hash and height.
func (db *LevelDb) loadTip() error {
	raw, err := db.lDb.Get(tipKey(), db.ro)
	if err == leveldb.ErrNotFound {
		db.hasBlocks = false
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load tip")
	}

	height := binary.BigEndian.Uint64(raw)
	sha, err := db.fetchBlockShaByHeight(height)
	if err != nil {
		return err
	}
	db.lastBlkSha = *sha
	db.lastBlkIdx = height
	db.lastBlkShaCached = true
	db.hasBlocks = true
	return nil
}

// Close cleanly shuts down the database and syncs all data.
func (db *LevelDb) Close() error {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.lDb.Close()
}

// BeginWrite drives the sequence lock.  Writers are serialized by the chain
// above this layer.
func (db *LevelDb) BeginWrite() {
	db.WriteSeqLock.BeginWrite()
}

// EndWrite completes the write bracket, optionally forcing a sync write of
// an empty batch so prior batches reach stable storage.
func (db *LevelDb) EndWrite(flush bool) error {
	defer db.WriteSeqLock.EndWrite()

	if !flush {
		return nil
	}
	return db.lDb.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true})
}
