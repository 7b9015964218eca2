// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"sync"

	"quarrychain.org/quarry-core/blockchain"
	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/config"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/logging"
	"quarrychain.org/quarry-core/txscript"
)

// maxSigCacheEntries bounds the shared signature verification cache.
const maxSigCacheEntries = 50000

// server ties the store, the validation surfaces and the block organizer
// together for the daemon lifetime.
type server struct {
	db         database.Db
	fastChain  *blockchain.FastChain
	dispatcher *blockchain.Dispatcher
	organizer  *blockchain.Organizer

	chainLock sync.Mutex
	started   bool
	stopped   bool
	mtx       sync.Mutex
}

// newServer assembles the chain server over an open store.  An empty store
// is bootstrapped with the network genesis block.
func newServer(cfg *config.Config, db database.Db) (*server, error) {
	fastChain := blockchain.NewFastChain(db)

	_, height, err := db.NewestSha()
	if err != nil {
		return nil, err
	}
	if height == chainutil.BlockHeightUnknown {
		genesis := chainutil.NewBlock(config.ChainParams.GenesisBlock)
		if err := fastChain.Push(genesis); err != nil {
			return nil, err
		}
		logging.CPrint(logging.INFO, "store bootstrapped with genesis",
			logging.LogFormat{"hash": genesis.Hash()})
	}

	s := &server{
		db:         db,
		fastChain:  fastChain,
		dispatcher: blockchain.NewDispatcher(cfg.Chain.Cores, cfg.Chain.Priority),
	}

	populator := blockchain.NewChainStatePopulator(fastChain, &config.ChainParams)
	sigCache := txscript.NewSigCache(maxSigCacheEntries)
	timeSource := blockchain.NewMedianTime()
	validator := blockchain.NewValidator(fastChain, populator, s.dispatcher,
		sigCache, &config.ChainParams, timeSource, &cfg.Chain)
	pool := blockchain.NewBlockPool(cfg.Chain.ReorganizationLimit)

	s.organizer = blockchain.NewOrganizer(&s.chainLock, fastChain, pool,
		validator, populator, &cfg.Chain)
	return s, nil
}

// Start brings the validation pool and organizer up.
func (s *server) Start() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.dispatcher.Start()
	s.organizer.Start()
	logging.CPrint(logging.INFO, "chain server started", logging.LogFormat{})
}

// Stop shuts the organizer down first so no organize is in flight, then
// drains the priority pool and closes the store.
func (s *server) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.started || s.stopped {
		return
	}
	s.stopped = true

	s.organizer.Stop()
	s.dispatcher.Stop()
	if err := s.db.Close(); err != nil {
		logging.CPrint(logging.ERROR, "failed to close block database",
			logging.LogFormat{"err": err})
	}
	logging.CPrint(logging.INFO, "chain server stopped", logging.LogFormat{})
}

// Organizer exposes the block organizer surface to the host wiring.
func (s *server) Organizer() *blockchain.Organizer {
	return s.organizer
}
