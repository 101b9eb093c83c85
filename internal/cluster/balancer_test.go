package cluster

import (
	"testing"
)

func TestAvailableFiltersAndSorts(t *testing.T) {
	workers := []WorkerRecord{
		{ID: 3, Status: Active, RoomCount: 1, PlayerCount: 10},
		{ID: 1, Status: Active, RoomCount: 2, PlayerCount: 5},
		{ID: 2, Status: Draining, RoomCount: 0, PlayerCount: 0},
		{ID: 4, Status: Active, RoomCount: 50, PlayerCount: 10}, // at room cap
		{ID: 5, Status: Active, RoomCount: 0, PlayerCount: 200}, // at player cap
	}

	got := Available(workers, 50, 200)
	if len(got) != 2 {
		t.Fatalf("available = %d workers, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("order = [%d %d], want sorted by id [1 3]", got[0].ID, got[1].ID)
	}
}

func TestWorkerForConnectionSticky(t *testing.T) {
	available := []WorkerRecord{{ID: 1}, {ID: 2}, {ID: 3}}

	first, ok := WorkerForConnection("conn-abc", available)
	if !ok {
		t.Fatal("no worker selected")
	}
	for i := 0; i < 50; i++ {
		w, _ := WorkerForConnection("conn-abc", available)
		if w.ID != first.ID {
			t.Fatalf("mapping changed on call %d: %d vs %d", i, w.ID, first.ID)
		}
	}
}

func TestWorkerForConnectionOrderSensitive(t *testing.T) {
	// djb2 is order-sensitive; permuted ids should not all collapse onto one
	// worker. Check a pair known to differ.
	available := make([]WorkerRecord, 97)
	for i := range available {
		available[i] = WorkerRecord{ID: i}
	}
	a, _ := WorkerForConnection("ab", available)
	b, _ := WorkerForConnection("ba", available)
	if a.ID == b.ID {
		t.Errorf("'ab' and 'ba' both mapped to worker %d", a.ID)
	}
}

func TestWorkerForConnectionEmptySet(t *testing.T) {
	if _, ok := WorkerForConnection("conn", nil); ok {
		t.Fatal("selected a worker from an empty set")
	}
}

func TestWorkerWithFewestRooms(t *testing.T) {
	available := []WorkerRecord{
		{ID: 1, RoomCount: 3},
		{ID: 2, RoomCount: 1},
		{ID: 3, RoomCount: 1},
		{ID: 4, RoomCount: 2},
	}
	w, ok := WorkerWithFewestRooms(available)
	if !ok {
		t.Fatal("no worker selected")
	}
	// Tie between 2 and 3 goes to the lower id (first in sorted order).
	if w.ID != 2 {
		t.Errorf("selected worker %d, want 2", w.ID)
	}

	if _, ok := WorkerWithFewestRooms(nil); ok {
		t.Error("selected a worker from an empty set")
	}
}

func TestAdmissionChecks(t *testing.T) {
	w := WorkerRecord{RoomCount: 49, PlayerCount: 199}
	if !CanAcceptRooms(w, 50) || !CanAcceptPlayers(w, 200) {
		t.Error("worker under both caps rejected")
	}
	w.RoomCount = 50
	if CanAcceptRooms(w, 50) {
		t.Error("worker at room cap accepted")
	}
	w.PlayerCount = 200
	if CanAcceptPlayers(w, 200) {
		t.Error("worker at player cap accepted")
	}
}
