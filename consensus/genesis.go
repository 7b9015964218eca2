package consensus

import (
	"time"

	"quarrychain.org/quarry-core/wire"
)

// genesisCoinbasePayload seeds the genesis coinbase with the serialized
// height zero followed by the founding tag.
var genesisCoinbasePayload = append([]byte{0x01, 0x00},
	[]byte("quarry genesis 2019-11-02")...)

// genesisPubKey is the well-known key the genesis output pays to.  The
// output is unspendable in practice: no block may spend a coinbase before
// maturity and the corresponding private key was discarded.
var genesisPubKey = []byte{
	0x02, 0x79, 0xbe, 0x66, 0x7e, 0xf9, 0xdc, 0xbb,
	0xac, 0x55, 0xa0, 0x62, 0x95, 0xce, 0x87, 0x0b,
	0x07, 0x02, 0x9b, 0xfc, 0xdb, 0x2d, 0xce, 0x28,
	0xd9, 0x59, 0xf2, 0x81, 0x5b, 0x16, 0xf8, 0x17,
	0x98,
}

// newGenesisBlock assembles a genesis block with the given timestamp and
// difficulty bits.  The merkle root is derived from the coinbase so the
// header commits to it.
func newGenesisBlock(timestamp time.Time, bits uint32) *wire.MsgBlock {
	coinbase := wire.NewMsgTx()
	coinbase.Payload = genesisCoinbasePayload
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&wire.Hash{}, wire.MaxPrevOutIndex),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(50e8, genesisPubKey))

	merkleRoot := coinbase.TxHash()
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    wire.BlockVersion,
			Previous:   wire.Hash{},
			MerkleRoot: merkleRoot,
			Timestamp:  timestamp,
			Bits:       bits,
			Nonce:      0,
		},
	}
	block.AddTransaction(coinbase)
	return block
}

func init() {
	mainGenesis := newGenesisBlock(time.Unix(1572652800, 0),
		MainNetParams.PowLimitBits)
	mainHash := mainGenesis.BlockHash()
	MainNetParams.GenesisBlock = mainGenesis
	MainNetParams.GenesisHash = &mainHash

	regGenesis := newGenesisBlock(time.Unix(1572652800, 0),
		RegressionNetParams.PowLimitBits)
	regHash := regGenesis.BlockHash()
	RegressionNetParams.GenesisBlock = regGenesis
	RegressionNetParams.GenesisHash = &regHash
}
