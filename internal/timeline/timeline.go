// Package timeline maps the abstract hour index used by the UI onto calendar
// instants and the catalog chunk that owns them.
package timeline

import (
	"fmt"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"go.uber.org/zap"
)

// DefaultTimestampLayout matches the timestamp property stored on every
// feature of the tile datasets.
const DefaultTimestampLayout = "2006-01-02T15:04:05"

// ResolvedInstant is the calendar position of an hour index. It is derived on
// every index change and never cached.
type ResolvedInstant struct {
	Index   int       `json:"index"`
	Date    time.Time `json:"date"`
	Hour    int       `json:"hour"`
	ChunkID string    `json:"chunk_id,omitempty"`
	Found   bool      `json:"found"`
}

// Time returns the UTC instant at the top of the resolved hour.
func (ri ResolvedInstant) Time() time.Time {
	return ri.Date.Add(time.Duration(ri.Hour) * time.Hour)
}

// Timestamp formats the instant the way feature timestamps are stored.
func (ri ResolvedInstant) Timestamp(layout string) string {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return ri.Time().Format(layout)
}

func (ri ResolvedInstant) String() string {
	if !ri.Found {
		return fmt.Sprintf("#%d %s (no chunk)", ri.Index, ri.Time().Format(time.RFC3339))
	}
	return fmt.Sprintf("#%d %s [%s]", ri.Index, ri.Time().Format(time.RFC3339), ri.ChunkID)
}

// Timeline resolves hour indexes against a chunk registry.
type Timeline struct {
	registry *catalog.Registry
	logger   *zap.SugaredLogger
}

// New creates a Timeline over the registry's covered days.
func New(registry *catalog.Registry, logger *zap.SugaredLogger) *Timeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Timeline{registry: registry, logger: logger}
}

// Registry returns the chunk registry backing the timeline.
func (t *Timeline) Registry() *catalog.Registry {
	return t.registry
}

// TotalHours is the number of valid hour indexes.
func (t *Timeline) TotalHours() int {
	return t.registry.Days() * catalog.HoursPerDay
}

// Clamp limits h to [0, TotalHours).
func (t *Timeline) Clamp(h int) int {
	if h < 0 {
		return 0
	}
	if last := t.TotalHours() - 1; h > last {
		return last
	}
	return h
}

// Resolve maps an hour index onto its date, hour of day and owning chunk. The
// index must already be clamped.
func (t *Timeline) Resolve(h int) ResolvedInstant {
	ri := ResolvedInstant{
		Index: h,
		Date:  t.registry.Epoch().AddDate(0, 0, h/catalog.HoursPerDay),
		Hour:  h % catalog.HoursPerDay,
	}
	if c, ok := t.ChunkFor(ri.Date, ri.Hour); ok {
		ri.ChunkID = c.ID
		ri.Found = true
	}
	return ri
}

// ChunkFor returns the chunk owning date and hour. A gap in the catalog is
// logged and reported as not found; callers show no data for that instant.
func (t *Timeline) ChunkFor(date time.Time, hour int) (catalog.Chunk, bool) {
	c, ok := t.registry.Lookup(date, hour)
	if !ok {
		t.logger.Warnw("no chunk owns instant",
			"date", date.Format(catalog.DateLayout),
			"hour", hour)
	}
	return c, ok
}

// IndexOf is the inverse of Resolve for instants inside the timeline.
func (t *Timeline) IndexOf(at time.Time) (int, bool) {
	d := at.UTC().Sub(t.registry.Epoch())
	if d < 0 {
		return 0, false
	}
	h := int(d / time.Hour)
	if h >= t.TotalHours() {
		return 0, false
	}
	return h, true
}

// LastHourOf returns the instant of the final hour owned by a chunk.
func (t *Timeline) LastHourOf(c catalog.Chunk) ResolvedInstant {
	h, _ := t.IndexOf(c.Date.Add(time.Duration(c.EndHour) * time.Hour))
	return ResolvedInstant{
		Index:   h,
		Date:    c.Date,
		Hour:    c.EndHour,
		ChunkID: c.ID,
		Found:   true,
	}
}
