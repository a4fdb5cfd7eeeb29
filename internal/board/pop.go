package board

import (
	"github.com/wishpop/wishpop/internal/types"
)

// PopPhase is the local animation state of a single message,
// independent of the authoritative popped flag.
type PopPhase int

const (
	PhaseUnpopped PopPhase = iota
	PhasePopping
	PhaseSettled
)

// PopTracker sequences pop animations for one room. The remote popped
// flag is monotonic, so the tracker only ever moves a message forward:
// unpopped -> popping -> settled.
type PopTracker struct {
	phases map[string]PopPhase
}

func NewPopTracker() *PopTracker {
	return &PopTracker{phases: make(map[string]PopPhase)}
}

// Phase returns the local phase for a message id.
func (t *PopTracker) Phase(id string) PopPhase {
	return t.phases[id]
}

// Begin transitions id to popping. It reports false when the message
// is already popping or settled, making rapid duplicate pops no-ops:
// the first pop wins.
func (t *PopTracker) Begin(id string) bool {
	if t.phases[id] != PhaseUnpopped {
		return false
	}
	t.phases[id] = PhasePopping
	return true
}

// Settle completes a pop begun with Begin and returns the
// post-increment settled count. Settling an id that never began, or
// one already settled, leaves the tracker unchanged and returns -1.
func (t *PopTracker) Settle(id string) int {
	if t.phases[id] != PhasePopping {
		return -1
	}
	t.phases[id] = PhaseSettled
	return t.SettledCount()
}

// SettledCount is the number of messages the tracker holds in the
// settled phase.
func (t *PopTracker) SettledCount() int {
	var n int
	for _, p := range t.phases {
		if p == PhaseSettled {
			n++
		}
	}
	return n
}

// Reconcile folds an authoritative snapshot into the tracker. A
// message the snapshot shows as popped while the tracker has it in
// popping or settled keeps its local phase, so no re-animation is
// triggered; one popped remotely while locally unpopped jumps straight
// to settled. Messages absent from the snapshot are forgotten.
func (t *PopTracker) Reconcile(msgs []types.Message) {
	present := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		present[m.Id] = struct{}{}
		if m.Popped && t.phases[m.Id] == PhaseUnpopped {
			t.phases[m.Id] = PhaseSettled
		}
	}
	for id := range t.phases {
		if _, ok := present[id]; !ok {
			delete(t.phases, id)
		}
	}
}
