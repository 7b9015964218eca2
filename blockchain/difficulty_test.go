package blockchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCompactRoundTrip converts difficulty bits to big integers and back.
func TestCompactRoundTrip(t *testing.T) {
	tests := []uint32{
		0x1d00ffff, // mainnet limit
		0x207fffff, // regtest limit
		0x1b0404cb,
		0x1c05a3f4,
	}

	for _, bits := range tests {
		n := CompactToBig(bits)
		assert.Equal(t, bits, BigToCompact(n), "bits %08x", bits)
	}
}

// TestCalcWork verifies the proof formula 2^256 / (target + 1) and that a
// harder target yields strictly more work.
func TestCalcWork(t *testing.T) {
	easy := CalcWork(0x207fffff)
	hard := CalcWork(0x1d00ffff)

	assert.Equal(t, 1, hard.Cmp(easy))

	// Explicit formula check for the mainnet limit.
	target := CompactToBig(0x1d00ffff)
	expected := new(big.Int).Div(
		new(big.Int).Lsh(big.NewInt(1), 256),
		new(big.Int).Add(target, big.NewInt(1)))
	assert.Zero(t, CalcWork(0x1d00ffff).Cmp(expected))

	// Invalid (negative or zero) targets carry no work.
	assert.Zero(t, CalcWork(0).Sign())
	assert.Zero(t, CalcWork(0x01800001).Sign())
}
