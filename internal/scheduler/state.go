package scheduler

import "sort"

// Source and layer ids are derived from the chunk id so that existence can be
// probed on the renderer without any other bookkeeping.
const (
	SourcePrefix = "aq-src-"
	LayerPrefix  = "aq-layer-"
)

// SourceID returns the renderer source id for a chunk.
func SourceID(chunkID string) string { return SourcePrefix + chunkID }

// LayerID returns the renderer layer id for a chunk.
func LayerID(chunkID string) string { return LayerPrefix + chunkID }

// State is the scheduler's bookkeeping of which chunks are attached to the
// renderer. It is a value: Reconcile takes one and returns the next.
type State struct {
	attached map[string]struct{}

	// PreviousOwning is the chunk that owned the instant during the last
	// reconciliation. It survives eviction for one more cycle so the outgoing
	// layer is still around for a transition.
	PreviousOwning string
}

// NewState returns an empty state.
func NewState() State {
	return State{attached: make(map[string]struct{})}
}

// Has reports whether chunkID is bookkept as attached.
func (s State) Has(chunkID string) bool {
	_, ok := s.attached[chunkID]
	return ok
}

// Len is the number of attached chunks.
func (s State) Len() int {
	return len(s.attached)
}

// Attached returns the attached chunk ids, sorted.
func (s State) Attached() []string {
	ids := make([]string, 0, len(s.attached))
	for id := range s.attached {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceIDs mirrors Attached as renderer source ids.
func (s State) SourceIDs() []string {
	ids := s.Attached()
	for i, id := range ids {
		ids[i] = SourceID(id)
	}
	return ids
}

// LayerIDs mirrors Attached as renderer layer ids.
func (s State) LayerIDs() []string {
	ids := s.Attached()
	for i, id := range ids {
		ids[i] = LayerID(id)
	}
	return ids
}

func (s State) clone() State {
	next := State{
		attached:       make(map[string]struct{}, len(s.attached)),
		PreviousOwning: s.PreviousOwning,
	}
	for id := range s.attached {
		next.attached[id] = struct{}{}
	}
	return next
}
