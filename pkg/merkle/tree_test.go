package merkle

import (
	"bytes"
	"crypto/sha512"
	"testing"
)

func fileHash(s string) []byte {
	h := sha512.Sum512([]byte(s))
	return h[:]
}

func TestRoot_Empty(t *testing.T) {
	tree, err := BuildTree(nil)
	if err != nil {
		t.Fatalf("build empty tree: %v", err)
	}
	if tree.Root() != nil {
		t.Fatalf("expected nil root for empty sequence, got %x", tree.Root())
	}
	if tree.RootHex() != "" {
		t.Fatalf("expected empty hex root, got %q", tree.RootHex())
	}

	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("proof on empty tree: %v", err)
	}
	if len(proof.Path) != 0 {
		t.Fatalf("expected empty proof path, got %d entries", len(proof.Path))
	}

	ok, err := VerifyProof(fileHash("x"), proof, tree.Root(), 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected verify against empty root to fail")
	}
}

// S1 — 3-file root: odd promotion at level 0, two nodes at level 1, one at level 2.
func TestRoot_ThreeFiles(t *testing.T) {
	leaves := [][]byte{fileHash("a"), fileHash("b"), fileHash("c")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	l0 := leafHash(leaves[0])
	l1 := leafHash(leaves[1])
	l2 := leafHash(leaves[2])
	n0 := nodeHash(l0, l1)
	wantRoot := nodeHash(n0, l2) // l2 promoted unchanged into level 1

	if !bytes.Equal(tree.Root(), wantRoot) {
		t.Fatalf("root mismatch: got %x, want %x", tree.Root(), wantRoot)
	}

	proof, err := tree.GenerateProof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(proof.Path) != 1 {
		t.Fatalf("expected proof length 1 for promoted leaf, got %d", len(proof.Path))
	}

	ok, err := VerifyProof(l2, proof, tree.Root(), 2)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected proof for promoted leaf to verify")
	}
}

// Testable property 4: the odd element is promoted unchanged, never duplicated.
func TestOddPromotion_NotDuplicated(t *testing.T) {
	leaves := [][]byte{fileHash("a"), fileHash("b"), fileHash("c")}
	tree, _ := BuildTree(leaves)

	l2 := leafHash(leaves[2])
	if !bytes.Equal(tree.levels[1][1], l2) {
		t.Fatalf("level-1 right child should equal leafHash(c) unchanged, got %x want %x", tree.levels[1][1], l2)
	}
}

func TestMerkle_Determinism(t *testing.T) {
	leaves := [][]byte{fileHash("a"), fileHash("b"), fileHash("c"), fileHash("d"), fileHash("e")}
	t1, _ := BuildTree(leaves)
	t2, _ := BuildTree(leaves)
	if !bytes.Equal(t1.Root(), t2.Root()) {
		t.Fatal("root must be deterministic across independent builds")
	}
}

func TestMerkle_ProofSoundnessAndCompleteness(t *testing.T) {
	inputs := []string{"a", "b", "c", "d", "e", "f", "g"}
	leaves := make([][]byte, len(inputs))
	for i, s := range inputs {
		leaves[i] = fileHash(s)
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	for i := range inputs {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		leaf := leafHash(leaves[i])

		ok, err := VerifyProof(leaf, proof, tree.Root(), i)
		if err != nil || !ok {
			t.Fatalf("proof soundness failed for index %d: ok=%v err=%v", i, ok, err)
		}

		// completeness: flipping a byte of the leaf must break verification
		corruptLeaf := append([]byte{}, leaf...)
		corruptLeaf[0] ^= 0xFF
		ok, _ = VerifyProof(corruptLeaf, proof, tree.Root(), i)
		if ok {
			t.Fatalf("expected verify to fail for corrupted leaf at index %d", i)
		}

		if len(proof.Path) > 0 {
			corruptProof := *proof
			corruptProof.Path = append([]ProofNode{}, proof.Path...)
			corruptProof.Path[0].Hash = fileHashHexFlip(corruptProof.Path[0].Hash)
			ok, _ = VerifyProof(leaf, &corruptProof, tree.Root(), i)
			if ok {
				t.Fatalf("expected verify to fail for corrupted proof element at index %d", i)
			}
		}
	}
}

func fileHashHexFlip(h string) string {
	b := []byte(h)
	if len(b) == 0 {
		return h
	}
	if b[0] == 'f' {
		b[0] = '0'
	} else {
		b[0] = 'f'
	}
	return string(b)
}

func TestLeafCount(t *testing.T) {
	leaves := [][]byte{fileHash("a"), fileHash("b")}
	tree, _ := BuildTree(leaves)
	if tree.LeafCount() != 2 {
		t.Fatalf("expected leaf count 2, got %d", tree.LeafCount())
	}
}
