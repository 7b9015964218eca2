// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"time"

	"quarrychain.org/quarry-core/wire"
)

var (
	// bigOne is 1 represented as a big.Int.  It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// oneLsh256 is 1 shifted left 256 bits.  It is defined here to avoid
	// the overhead of creating it multiple times.
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// CompactToBig converts a compact representation of a whole number N to a
// big integer.  The representation is similar to IEEE754 floating point
// numbers.
//
// Like IEEE754 floating point, there are three basic components: the sign,
// the exponent, and the mantissa.
//
//	* the most significant 8 bits represent the unsigned base 256 exponent
//	* bit 23 (the 24th bit) represents the sign bit
//	* the least significant 23 bits represent the mantissa
//
// The formula to calculate N is:
// 	N = (-1^sign) * mantissa * 256^(exponent-3)
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number.  The compact representation only provides 23
// bits of precision, so values larger than (2^23 - 1) only encode the most
// significant digits of the number.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork calculates a work value from difficulty bits.  Quarry increases
// the difficulty for generating a block by decreasing the value which the
// generated hash must be less than.
//
// To make a larger difficulty target yield proportionally less work, the
// proof is calculated as 2^256 / (target+1) with full 256-bit precision.
func CalcWork(bits uint32) *big.Int {
	// Return a work value of zero if the passed difficulty bits represent
	// a negative number.
	difficultyNum := CompactToBig(bits)
	if difficultyNum.Sign() <= 0 {
		return big.NewInt(0)
	}

	// (1 << 256) / (difficultyNum + 1)
	denominator := new(big.Int).Add(difficultyNum, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// blocksPerRetarget is the number of blocks between difficulty retargets.
func (c *ChainStatePopulator) blocksPerRetarget() uint64 {
	return uint64(c.params.TargetTimespan / c.params.TargetTimePerBlock)
}

// calcNextRequiredDifficulty calculates the required difficulty for the
// block after the block identified by (prevHeight, prevHeader) based on the
// difficulty retarget rules.  headerAt resolves headers by height through
// the confirmed chain with the branch overlaid.
func (c *ChainStatePopulator) calcNextRequiredDifficulty(prevHeight uint64,
	prevHeader *wire.BlockHeader, headerAt headerReader) (uint32, error) {

	blocksPerRetarget := c.blocksPerRetarget()
	nextHeight := prevHeight + 1

	// Return the previous block's difficulty requirements if this block
	// is not at a difficulty retarget interval.
	if nextHeight%blocksPerRetarget != 0 {
		// On networks with ReduceMinDifficulty set, every block off a
		// retarget interval requires the proof-of-work limit; no
		// elapsed-time condition is applied.
		if c.params.ReduceMinDifficulty {
			return c.params.PowLimitBits, nil
		}
		return prevHeader.Bits, nil
	}

	// Get the block at the previous retarget (targetTimespan days worth
	// of blocks).
	firstHeight := nextHeight - blocksPerRetarget
	firstHeader, err := headerAt(firstHeight)
	if err != nil {
		return 0, err
	}

	// Limit the amount of adjustment that can occur to the previous
	// difficulty.
	actualTimespan := prevHeader.Timestamp.Unix() - firstHeader.Timestamp.Unix()
	adjustedTimespan := actualTimespan
	minRetargetTimespan := int64(c.params.TargetTimespan/time.Second) /
		c.params.RetargetAdjustmentFactor
	maxRetargetTimespan := int64(c.params.TargetTimespan/time.Second) *
		c.params.RetargetAdjustmentFactor
	if actualTimespan < minRetargetTimespan {
		adjustedTimespan = minRetargetTimespan
	} else if actualTimespan > maxRetargetTimespan {
		adjustedTimespan = maxRetargetTimespan
	}

	// Calculate new target difficulty as:
	//  currentDifficulty * (adjustedTimespan / targetTimespan)
	// The result uses integer division which means it will be slightly
	// rounded down.
	oldTarget := CompactToBig(prevHeader.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(adjustedTimespan))
	targetTimeSpan := int64(c.params.TargetTimespan / time.Second)
	newTarget.Div(newTarget, big.NewInt(targetTimeSpan))

	// Limit new value to the proof of work limit.
	if newTarget.Cmp(c.params.PowLimit) > 0 {
		newTarget.Set(c.params.PowLimit)
	}

	return BigToCompact(newTarget), nil
}
