package primitives

import (
	ssz "github.com/ferranbt/fastssz"
)

// maxConstraintTxBytes bounds the SSZ List[byte, N] encoding of the raw
// transaction envelope. 1 << 20 (1 MiB) comfortably covers EIP-4844
// transactions without their blobs (which travel out of band).
const maxConstraintTxBytes = 1 << 20

// HashTreeRoot computes the SSZ hash tree root of the constraints message,
// the value that gets BLS-signed (domain-separated by the chain's fork
// version) to produce a SignedConstraints.
func (m *ConstraintsMessage) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(m)
}

// HashTreeRootWith implements ssz.HashRoot by merkleizing the three fields
// of the message in declaration order: pubkey, slot, tx bytes.
func (m *ConstraintsMessage) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()

	hh.PutBytes(m.Pubkey[:])
	hh.PutUint64(uint64(m.Slot))
	hh.PutBytes(m.TxBytes)

	hh.Merkleize(indx)
	return nil
}

// GetTree implements ssz.HashRoot.
func (m *ConstraintsMessage) GetTree() (*ssz.Node, error) {
	return ssz.ProofTree(m)
}
