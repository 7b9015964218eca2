package consensus

import (
	"math/big"
	"time"

	"quarrychain.org/quarry-core/wire"
)

var (
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a quarry block can
	// have for the main network.  It is the value 2^224 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// regressionPowLimit is the highest proof of work value a quarry
	// block can have for the regression test network.  It is the value
	// 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// Checkpoint identifies a known good point in the block chain.  Using
// checkpoints allows a few optimizations for old blocks during initial
// download and also prevents forks from old blocks.
type Checkpoint struct {
	Height uint64
	Hash   *wire.Hash
}

// Params defines a quarry network by its parameters.  These parameters may
// be used by quarry applications to differentiate networks as well as
// addresses and keys for one network from those intended for use on another
// network.
type Params struct {
	Name        string
	DefaultPort string

	// Chain parameters
	GenesisBlock *wire.MsgBlock
	GenesisHash  *wire.Hash

	// PowLimit is the highest proof of work value a block can have.
	PowLimit *big.Int

	// PowLimitBits is the highest proof of work value a block can have in
	// compact form.
	PowLimitBits uint32

	// SubsidyHalvingInterval is the number of blocks between each subsidy
	// halving.
	SubsidyHalvingInterval uint64

	// CoinbaseMaturity is the number of blocks required before newly
	// mined coins can be spent.
	CoinbaseMaturity uint64

	// TargetTimespan is the desired amount of time that should elapse
	// before the block difficulty requirement is examined to determine
	// how it should be changed in order to maintain the desired block
	// generation rate.
	TargetTimespan time.Duration

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// RetargetAdjustmentFactor is the adjustment factor used to limit
	// the minimum and maximum amount of adjustment that can occur between
	// difficulty retargets.
	RetargetAdjustmentFactor int64

	// ReduceMinDifficulty defines whether every block off a retarget
	// interval requires only the proof-of-work limit (PowLimitBits)
	// instead of the previous block's difficulty.  No elapsed-time
	// condition is applied.  This is really only useful for test networks.
	ReduceMinDifficulty bool

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	// Enforce current block version once network has upgraded.
	BlockEnforceNumRequired uint64

	// Reject previous block versions once network has upgraded.
	BlockRejectNumRequired uint64

	// The number of nodes to check.
	BlockUpgradeNumToCheck uint64

	// Script fork activation heights.  A height of 0 activates the fork
	// from genesis.
	DERSignaturesActivationHeight       uint64
	CheckLockTimeVerifyActivationHeight uint64
	CheckSequenceVerifyActivationHeight uint64
}

// MainNetParams defines the network parameters for the main quarry network.
var MainNetParams = Params{
	Name:        "mainnet",
	DefaultPort: "9733",

	PowLimit:     mainPowLimit,
	PowLimitBits: 0x1d00ffff,

	SubsidyHalvingInterval: 210000,
	CoinbaseMaturity:       100,

	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      false,

	BlockEnforceNumRequired: 750,
	BlockRejectNumRequired:  950,
	BlockUpgradeNumToCheck:  1000,

	DERSignaturesActivationHeight:       363725,
	CheckLockTimeVerifyActivationHeight: 388381,
	CheckSequenceVerifyActivationHeight: 419328,
}

// RegressionNetParams defines the network parameters for the regression test
// quarry network.  Difficulty and activation heights are collapsed so tests
// can exercise every fork from genesis.
var RegressionNetParams = Params{
	Name:        "regtest",
	DefaultPort: "19733",

	PowLimit:     regressionPowLimit,
	PowLimitBits: 0x207fffff,

	SubsidyHalvingInterval: 150,
	CoinbaseMaturity:       100,

	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,

	BlockEnforceNumRequired: 51,
	BlockRejectNumRequired:  75,
	BlockUpgradeNumToCheck:  100,

	DERSignaturesActivationHeight:       0,
	CheckLockTimeVerifyActivationHeight: 0,
	CheckSequenceVerifyActivationHeight: 0,
}
