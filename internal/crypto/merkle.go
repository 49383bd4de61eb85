package crypto

import (
	"bytes"
	"errors"
	"fmt"
)

var ErrLeafNotFound = errors.New("leaf not found in set")

// emptyTreeRoot is the root of a tree over zero leaves.
var emptyTreeRoot = Hash256([]byte("empty"))

// MerkleProof is an inclusion path for a single leaf. Verification is
// stateless: it replays the hash chain from Leaf using Path and Indices
// and compares the result against Root.
type MerkleProof struct {
	Leaf    []byte   `json:"leaf"`
	Path    [][]byte `json:"path"`
	Indices []int    `json:"indices"` // 0 = sibling on the right, 1 = sibling on the left
	Root    []byte   `json:"root"`
}

// MerkleRoot builds the root over the given leaf set.
//
// Odd levels are padded by duplicating the last element. An empty set
// hashes to SHA256("empty"); a single leaf is its own root.
func MerkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return append([]byte(nil), emptyTreeRoot...)
	}

	level := make([][]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Hash256(level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}

// MerklePath builds the inclusion proof for leaves[index], walking the
// same construction as MerkleRoot and recording the sibling and side at
// each level.
func MerklePath(leaves [][]byte, index int) (*MerkleProof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("index %d out of range for %d leaves", index, len(leaves))
	}

	proof := &MerkleProof{
		Leaf: append([]byte(nil), leaves[index]...),
	}

	level := make([][]byte, len(leaves))
	copy(level, leaves)
	pos := index

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		if pos%2 == 0 {
			proof.Path = append(proof.Path, append([]byte(nil), level[pos+1]...))
			proof.Indices = append(proof.Indices, 0)
		} else {
			proof.Path = append(proof.Path, append([]byte(nil), level[pos-1]...))
			proof.Indices = append(proof.Indices, 1)
		}

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Hash256(level[i], level[i+1]))
		}
		level = next
		pos /= 2
	}

	proof.Root = level[0]
	return proof, nil
}

// VerifyMerklePath replays the hash chain of the proof and compares the
// result to the embedded root.
func VerifyMerklePath(proof *MerkleProof) bool {
	if proof == nil || len(proof.Path) != len(proof.Indices) {
		return false
	}

	current := proof.Leaf
	for i, sibling := range proof.Path {
		if proof.Indices[i] == 0 {
			current = Hash256(current, sibling)
		} else {
			current = Hash256(sibling, current)
		}
	}

	return bytes.Equal(current, proof.Root)
}

// MerklePathForLeaf locates leaf in the set and builds its proof.
// Returns ErrLeafNotFound if the element is not a literal member.
func MerklePathForLeaf(leaves [][]byte, leaf []byte) (*MerkleProof, error) {
	for i, l := range leaves {
		if bytes.Equal(l, leaf) {
			return MerklePath(leaves, i)
		}
	}
	return nil, ErrLeafNotFound
}
