// Package transition keeps the outgoing chunk drawn for a short window when
// the timeline crosses into the next chunk, so there is no blank frame while
// the incoming chunk's tiles load.
package transition

import (
	"time"

	"github.com/chrissnell/aqtimeline/internal/timeline"
	"go.uber.org/zap"
)

// DefaultDelay is how long the outgoing chunk stays visible after a crossing.
const DefaultDelay = 100 * time.Millisecond

// Clock supplies the current time. Sessions use SystemClock; tests step a
// fake one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Phase is the state of the handler.
type Phase int

const (
	Steady Phase = iota
	Overlapping
)

func (p Phase) String() string {
	if p == Overlapping {
		return "overlapping"
	}
	return "steady"
}

// Outgoing describes the chunk kept visible during an overlap. Deadline is
// zero until the overlap is armed.
type Outgoing struct {
	ChunkID  string
	Final    timeline.ResolvedInstant
	Deadline time.Time
}

// Handler is the Steady/Overlapping state machine. It never touches the
// renderer; callers apply what it returns.
type Handler struct {
	timeline *timeline.Timeline
	delay    time.Duration
	logger   *zap.SugaredLogger

	phase    Phase
	outgoing Outgoing
}

// New creates a handler in the Steady phase. A non-positive delay uses
// DefaultDelay.
func New(tl *timeline.Timeline, delay time.Duration, logger *zap.SugaredLogger) *Handler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{timeline: tl, delay: delay, logger: logger}
}

// Phase returns the current phase.
func (h *Handler) Phase() Phase {
	return h.phase
}

// Delay returns the overlap window length.
func (h *Handler) Delay() time.Duration {
	return h.delay
}

// Outgoing returns the chunk being kept visible, if overlapping.
func (h *Handler) Outgoing() (Outgoing, bool) {
	if h.phase != Overlapping {
		return Outgoing{}, false
	}
	return h.outgoing, true
}

// Reset drops any pending overlap without reporting it. Used when the
// renderer state is rebuilt from scratch.
func (h *Handler) Reset() {
	h.phase = Steady
	h.outgoing = Outgoing{}
}

// Observe is called with the previous and current instant after every index
// change. It enters Overlapping when the owning chunk advanced to its registry
// successor exactly at the successor's start hour and the outgoing chunk is
// still resident. The overlap does not expire until Arm is called. Observe
// returns chunks that must be hidden once the current chunk is shown: an older
// outgoing chunk superseded by a new crossing, or one abandoned by a jump.
func (h *Handler) Observe(prev, inst timeline.ResolvedInstant, resident []string) []string {
	if prev.Found && inst.Found && prev.ChunkID == inst.ChunkID {
		return nil
	}

	var hide []string
	if h.phase == Overlapping {
		if h.outgoing.ChunkID != inst.ChunkID {
			hide = append(hide, h.outgoing.ChunkID)
		}
		h.Reset()
	}

	if !h.isCrossing(prev, inst) {
		return hide
	}
	if !contains(resident, prev.ChunkID) {
		h.logger.Debugw("outgoing chunk already evicted, skipping overlap",
			"outgoing", prev.ChunkID, "incoming", inst.ChunkID)
		return hide
	}
	out, ok := h.timeline.Registry().Get(prev.ChunkID)
	if !ok {
		return hide
	}

	h.phase = Overlapping
	h.outgoing = Outgoing{
		ChunkID: prev.ChunkID,
		Final:   h.timeline.LastHourOf(out),
	}
	h.logger.Debugw("chunk crossing, overlapping",
		"outgoing", prev.ChunkID, "incoming", inst.ChunkID)
	return hide
}

// Arm starts the overlap deadline. Callers arm once the incoming chunk's
// filter has been applied. Arming twice keeps the first deadline.
func (h *Handler) Arm(now time.Time) bool {
	if h.phase != Overlapping || !h.outgoing.Deadline.IsZero() {
		return false
	}
	h.outgoing.Deadline = now.Add(h.delay)
	h.logger.Debugw("overlap armed", "outgoing", h.outgoing.ChunkID, "deadline", h.outgoing.Deadline)
	return true
}

// Advance ends an armed overlap whose deadline has passed and returns the
// chunk to hide.
func (h *Handler) Advance(now time.Time) (string, bool) {
	if h.phase != Overlapping || h.outgoing.Deadline.IsZero() || now.Before(h.outgoing.Deadline) {
		return "", false
	}
	id := h.outgoing.ChunkID
	h.Reset()
	return id, true
}

func (h *Handler) isCrossing(prev, inst timeline.ResolvedInstant) bool {
	if !prev.Found || !inst.Found {
		return false
	}
	next, ok := h.timeline.Registry().Successor(prev.ChunkID)
	if !ok || next.ID != inst.ChunkID {
		return false
	}
	return inst.Hour == next.StartHour && next.Contains(inst.Date, inst.Hour)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
