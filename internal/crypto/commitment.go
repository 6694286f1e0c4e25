// Package crypto provides the Keccak-256 digests used by the commit-reveal
// auction: bid commitments, entropy-gate preimages, and the deterministic
// tie-break ordering.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// CommitmentHash binds a bid value to a salt:
//
//	keccak256(value || salt)
//
// with the value encoded as a 32-byte big-endian word.
func CommitmentHash(value *uint256.Int, salt common.Hash) common.Hash {
	word := value.Bytes32()
	return common.BytesToHash(ethcrypto.Keccak256(word[:], salt[:]))
}

// TieBreakHash orders tied solvers within one auction. The digest depends
// only on the auction id and the solver's address, so settlement is
// insensitive to candidate input order.
func TieBreakHash(auctionID uint64, solver common.Address) common.Hash {
	id := uint256.NewInt(auctionID).Bytes32()
	return common.BytesToHash(ethcrypto.Keccak256(
		id[:],
		common.LeftPadBytes(solver.Bytes(), 32),
	))
}

// EntropyPreimage hashes the identifying inputs of a resolution attempt.
// The coordinator scores the digest's bit length to reject predictable,
// front-runnable call patterns.
func EntropyPreimage(intentID common.Hash, resolver common.Address, payload []byte) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		intentID[:],
		common.LeftPadBytes(resolver.Bytes(), 32),
		payload,
	))
}
