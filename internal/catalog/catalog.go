// Package catalog holds the registry of remote tile chunks. Each chunk covers
// a contiguous range of hours on one calendar day and is backed by its own
// vector tile dataset.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the layout used for chunk dates in configuration and logs.
const DateLayout = "2006-01-02"

// HoursPerDay is the number of hourly slots a day is partitioned into.
const HoursPerDay = 24

var (
	ErrEmptyCatalog  = errors.New("catalog contains no chunks")
	ErrDuplicateID   = errors.New("duplicate chunk id")
	ErrHourRange     = errors.New("chunk hour range invalid")
	ErrOverlap       = errors.New("chunks overlap")
	ErrNonContiguous = errors.New("covered dates are not contiguous")
)

// Record is the static configuration form of a chunk.
type Record struct {
	ID        string `json:"id" yaml:"id"`
	Layer     string `json:"layer" yaml:"layer"`
	Date      string `json:"date" yaml:"date"`
	StartHour int    `json:"start_hour" yaml:"start_hour"`
	EndHour   int    `json:"end_hour" yaml:"end_hour"`
}

// Chunk is an immutable registry entry. StartHour and EndHour are inclusive.
type Chunk struct {
	ID          string    `json:"id"`
	SourceLayer string    `json:"source_layer"`
	Date        time.Time `json:"date"`
	StartHour   int       `json:"start_hour"`
	EndHour     int       `json:"end_hour"`
}

// Contains reports whether the chunk owns the given date and hour.
func (c Chunk) Contains(date time.Time, hour int) bool {
	return sameDay(c.Date, date) && hour >= c.StartHour && hour <= c.EndHour
}

// Hours returns the number of hours covered by the chunk.
func (c Chunk) Hours() int {
	return c.EndHour - c.StartHour + 1
}

// Registry is the fixed, ordered catalog of available chunks. It is safe for
// concurrent readers once built.
type Registry struct {
	chunks  []Chunk
	ordinal map[string]int
	byDate  map[string][]int
	epoch   time.Time
	days    int
}

// NewRegistry validates the records and builds a registry ordered by date and
// start hour. Hour gaps inside a day are permitted but logged; they surface as
// missing chunks at lookup time.
func NewRegistry(records []Record, logger *zap.SugaredLogger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}

	chunks := make([]Chunk, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("chunk on %s has an empty id", rec.Date)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		seen[rec.ID] = true

		date, err := time.ParseInLocation(DateLayout, rec.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: invalid date %q: %w", rec.ID, rec.Date, err)
		}
		if rec.StartHour < 0 || rec.EndHour >= HoursPerDay || rec.StartHour > rec.EndHour {
			return nil, fmt.Errorf("%w: chunk %s covers %d..%d", ErrHourRange, rec.ID, rec.StartHour, rec.EndHour)
		}

		layer := rec.Layer
		if layer == "" {
			layer = rec.ID
		}
		chunks = append(chunks, Chunk{
			ID:          rec.ID,
			SourceLayer: layer,
			Date:        date,
			StartHour:   rec.StartHour,
			EndHour:     rec.EndHour,
		})
	}

	sort.Slice(chunks, func(i, j int) bool {
		if !chunks[i].Date.Equal(chunks[j].Date) {
			return chunks[i].Date.Before(chunks[j].Date)
		}
		return chunks[i].StartHour < chunks[j].StartHour
	})

	r := &Registry{
		chunks:  chunks,
		ordinal: make(map[string]int, len(chunks)),
		byDate:  make(map[string][]int),
		epoch:   chunks[0].Date,
	}

	for i, c := range chunks {
		r.ordinal[c.ID] = i
		key := c.Date.Format(DateLayout)
		r.byDate[key] = append(r.byDate[key], i)
	}

	last := chunks[len(chunks)-1].Date
	r.days = int(last.Sub(r.epoch).Hours()/HoursPerDay) + 1
	if len(r.byDate) != r.days {
		return nil, fmt.Errorf("%w: %d distinct dates between %s and %s", ErrNonContiguous,
			len(r.byDate), r.epoch.Format(DateLayout), last.Format(DateLayout))
	}

	for key, idx := range r.byDate {
		next := 0
		for _, i := range idx {
			c := chunks[i]
			if c.StartHour < next {
				return nil, fmt.Errorf("%w: %s on %s starts at %d inside previous chunk", ErrOverlap, c.ID, key, c.StartHour)
			}
			if c.StartHour > next {
				logger.Warnf("catalog gap on %s: hours %d..%d have no chunk", key, next, c.StartHour-1)
			}
			next = c.EndHour + 1
		}
		if next < HoursPerDay {
			logger.Warnf("catalog gap on %s: hours %d..%d have no chunk", key, next, HoursPerDay-1)
		}
	}

	return r, nil
}

// Lookup returns the chunk owning the given date and hour.
func (r *Registry) Lookup(date time.Time, hour int) (Chunk, bool) {
	for _, i := range r.byDate[date.UTC().Format(DateLayout)] {
		c := r.chunks[i]
		if hour >= c.StartHour && hour <= c.EndHour {
			return c, true
		}
	}
	return Chunk{}, false
}

// Get returns the chunk with the given id.
func (r *Registry) Get(id string) (Chunk, bool) {
	i, ok := r.ordinal[id]
	if !ok {
		return Chunk{}, false
	}
	return r.chunks[i], true
}

// Ordinal returns the position of id in registry order, or -1.
func (r *Registry) Ordinal(id string) int {
	if i, ok := r.ordinal[id]; ok {
		return i
	}
	return -1
}

// At returns the chunk at position i in registry order.
func (r *Registry) At(i int) (Chunk, bool) {
	if i < 0 || i >= len(r.chunks) {
		return Chunk{}, false
	}
	return r.chunks[i], true
}

// Successor returns the chunk immediately following id in registry order.
func (r *Registry) Successor(id string) (Chunk, bool) {
	i := r.Ordinal(id)
	if i < 0 {
		return Chunk{}, false
	}
	return r.At(i + 1)
}

// Len returns the number of chunks.
func (r *Registry) Len() int {
	return len(r.chunks)
}

// Chunks returns a copy of all chunks in registry order.
func (r *Registry) Chunks() []Chunk {
	out := make([]Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// Epoch is midnight UTC of the first covered date.
func (r *Registry) Epoch() time.Time {
	return r.epoch
}

// Days is the number of covered calendar days.
func (r *Registry) Days() int {
	return r.days
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
