package consensus

import "math/big"

var big2To256 = new(big.Int).Lsh(big.NewInt(1), 256)

// BlockWork returns the work a header with the given target contributes to
// cumulative chain work: 2^256 / (target+1) (§3 "Chain entry").
func BlockWork(target [32]byte) *big.Int {
	t := new(big.Int).SetBytes(target[:])
	t.Add(t, big.NewInt(1))
	return new(big.Int).Div(big2To256, t)
}
