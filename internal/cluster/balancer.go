package cluster

import "sort"

// Load balancing is pure logic over a snapshot of worker records; nothing
// here touches the live registry or holds state between calls.

// CanAcceptRooms reports whether the worker is under its room cap.
func CanAcceptRooms(w WorkerRecord, maxRooms int) bool {
	return w.RoomCount < maxRooms
}

// CanAcceptPlayers reports whether the worker is under its player cap.
func CanAcceptPlayers(w WorkerRecord, maxPlayers int) bool {
	return w.PlayerCount < maxPlayers
}

// Available filters to Active workers under both caps, sorted by id so every
// caller sees the same deterministic order.
func Available(workers []WorkerRecord, maxRooms, maxPlayers int) []WorkerRecord {
	out := make([]WorkerRecord, 0, len(workers))
	for _, w := range workers {
		if w.Status == Active && CanAcceptRooms(w, maxRooms) && CanAcceptPlayers(w, maxPlayers) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WorkerForConnection maps a connection id onto the available set with a
// multiplicative string hash. The mapping is sticky while the available set
// is stable; worker churn may remap connections, which is accepted.
// Returns false when no worker is available.
func WorkerForConnection(connectionID string, available []WorkerRecord) (WorkerRecord, bool) {
	if len(available) == 0 {
		return WorkerRecord{}, false
	}
	h := hashString(connectionID)
	return available[h%uint64(len(available))], true
}

// WorkerWithFewestRooms picks the least loaded worker for new-room
// placement, ties going to the lowest id. Returns false when the set is
// empty.
func WorkerWithFewestRooms(available []WorkerRecord) (WorkerRecord, bool) {
	if len(available) == 0 {
		return WorkerRecord{}, false
	}
	best := available[0]
	for _, w := range available[1:] {
		if w.RoomCount < best.RoomCount {
			best = w
		}
	}
	return best, true
}

// hashString is the djb2 multiplicative hash. Order-sensitive, so "ab" and
// "ba" land on different workers.
func hashString(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}
