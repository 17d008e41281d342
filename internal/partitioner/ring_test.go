package partitioner

import (
	"fmt"
	"testing"
)

func TestRingAddRemoveNode(t *testing.T) {
	r := New()

	if err := r.AddNode("10.0.0.1"); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if err := r.AddNode("10.0.0.2"); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if err := r.AddNode("10.0.0.1"); err != ErrNodeAlreadyExists {
		t.Errorf("expected ErrNodeAlreadyExists, got %v", err)
	}

	if r.Size() != 2 {
		t.Errorf("expected 2 nodes, got %d", r.Size())
	}

	if err := r.RemoveNode("10.0.0.2"); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if err := r.RemoveNode("10.0.0.2"); err != ErrNodeNotFound {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestRingOwnerOfIsDeterministic(t *testing.T) {
	r := New()
	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if err := r.AddNode(addr); err != nil {
			t.Fatalf("AddNode(%s): %v", addr, err)
		}
	}

	owner1, err := r.OwnerOf([]byte("user_42"))
	if err != nil {
		t.Fatalf("OwnerOf failed: %v", err)
	}
	owner2, err := r.OwnerOf([]byte("user_42"))
	if err != nil {
		t.Fatalf("OwnerOf failed: %v", err)
	}
	if owner1 != owner2 {
		t.Errorf("same key mapped to different owners: %s vs %s", owner1, owner2)
	}

	if err := r.RemoveNode(owner1); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	newOwner, err := r.OwnerOf([]byte("user_42"))
	if err != nil {
		t.Fatalf("OwnerOf after remove: %v", err)
	}
	if newOwner == owner1 {
		t.Errorf("expected a new owner after removal, still got %s", owner1)
	}
}

func TestHashStable(t *testing.T) {
	a := Hash([]byte("10.0.0.1"))
	if a != Hash([]byte("10.0.0.1")) {
		t.Error("hash of the same input changed between calls")
	}
	if a == Hash([]byte("10.0.0.2")) {
		t.Error("distinct inputs collided")
	}
}

func TestRingEmptyRing(t *testing.T) {
	r := New()
	if _, err := r.OwnerOf([]byte("x")); err != ErrEmptyRing {
		t.Errorf("expected ErrEmptyRing, got %v", err)
	}
	if _, err := r.PlacementList([]byte("x"), 3); err != ErrEmptyRing {
		t.Errorf("expected ErrEmptyRing, got %v", err)
	}
}

func TestRingPlacementListDistinctSuccessors(t *testing.T) {
	r := New()
	for _, addr := range []string{"n1", "n2", "n3", "n4", "n5"} {
		r.AddNode(addr)
	}

	placements, err := r.PlacementList([]byte("some-key"), 3)
	if err != nil {
		t.Fatalf("PlacementList failed: %v", err)
	}
	if len(placements) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(placements))
	}
	seen := make(map[string]bool)
	for _, p := range placements {
		if seen[p] {
			t.Errorf("duplicate node in placement list: %s", p)
		}
		seen[p] = true
	}
}

func TestRingSuccessorsWrapsWhenKExceedsSize(t *testing.T) {
	r := New()
	for _, addr := range []string{"n1", "n2", "n3"} {
		r.AddNode(addr)
	}
	succ, err := r.Successors("n1", 10)
	if err != nil {
		t.Fatalf("Successors failed: %v", err)
	}
	if len(succ) != 2 {
		t.Errorf("expected 2 successors (ring size - 1), got %d", len(succ))
	}
}

func TestRingDistribution(t *testing.T) {
	r := New()
	for _, addr := range []string{"n1", "n2", "n3"} {
		r.AddNode(addr)
	}

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		owner, _ := r.OwnerOf([]byte(fmt.Sprintf("key-%d", i)))
		counts[owner]++
	}
	for _, addr := range []string{"n1", "n2", "n3"} {
		if counts[addr] == 0 {
			t.Errorf("node %s received no keys", addr)
		}
	}
}
