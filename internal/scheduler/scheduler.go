// Package scheduler decides which tile chunks are attached to the renderer
// for the current position on the timeline, attaching look-ahead chunks ahead
// of playback and evicting stale ones to stay within a resident budget.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"go.uber.org/zap"
)

// Defaults for Config.
const (
	DefaultLookahead       = 4
	DefaultLookbehind      = 1
	DefaultBudget          = 12
	DefaultTileURLTemplate = "mapbox://{chunk}"
)

// Config tunes the attachment window. The defaults were chosen empirically.
type Config struct {
	// Lookahead is the number of chunks after the owning chunk to pre-attach.
	Lookahead int
	// Lookbehind is the number of chunks before the owning chunk to keep.
	Lookbehind int
	// Budget is the resident chunk count at which eviction kicks in.
	Budget int
	// TileURLTemplate builds a source URL; {chunk} is replaced by the chunk id
	// and {layer} by its source layer name.
	TileURLTemplate string
}

// DefaultConfig returns the stock lookahead, lookbehind and budget.
func DefaultConfig() Config {
	return Config{
		Lookahead:       DefaultLookahead,
		Lookbehind:      DefaultLookbehind,
		Budget:          DefaultBudget,
		TileURLTemplate: DefaultTileURLTemplate,
	}
}

// Validate checks that the budget can hold the desired window plus the chunk
// kept for transitions.
func (c Config) Validate() error {
	if c.Lookahead < 0 || c.Lookbehind < 0 {
		return fmt.Errorf("lookahead (%d) and lookbehind (%d) must not be negative", c.Lookahead, c.Lookbehind)
	}
	if need := c.Lookahead + c.Lookbehind + 2; c.Budget < need {
		return fmt.Errorf("budget %d cannot hold a window of lookahead %d and lookbehind %d (need at least %d)",
			c.Budget, c.Lookahead, c.Lookbehind, need)
	}
	if c.TileURLTemplate == "" {
		return fmt.Errorf("tile URL template must be set")
	}
	return nil
}

// LayerFactory builds the layer descriptor for a chunk. The scheduler forces
// the result hidden with zero opacity before adding it.
type LayerFactory interface {
	Layer(c catalog.Chunk, sourceID, layerID string) renderer.LayerDescriptor
}

// Desired is the set of chunks that should be resident for one instant, in
// registry order. Owning is empty when no chunk owns the instant.
type Desired struct {
	Owning string
	IDs    []string
}

// Contains reports whether id is part of the desired set.
func (d Desired) Contains(id string) bool {
	for _, x := range d.IDs {
		if x == id {
			return true
		}
	}
	return false
}

// Report summarizes one reconciliation.
type Report struct {
	Attached []string
	Adopted  []string
	Evicted  []string
	Failed   []string
	// Stale lists chunks the state believed attached but the renderer no
	// longer has. A non-empty Stale means nothing was reconciled.
	Stale []string
}

// NeedsReinit reports whether the renderer was re-styled behind our back.
func (r Report) NeedsReinit() bool {
	return len(r.Stale) > 0
}

// Changed reports whether any renderer mutation succeeded.
func (r Report) Changed() bool {
	return len(r.Attached) > 0 || len(r.Evicted) > 0
}

// Scheduler reconciles attachment state against a renderer.
type Scheduler struct {
	cfg      Config
	registry *catalog.Registry
	layers   LayerFactory
	logger   *zap.SugaredLogger
}

// New creates a scheduler. A nil factory yields plain circle layers.
func New(cfg Config, registry *catalog.Registry, layers LayerFactory, logger *zap.SugaredLogger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if layers == nil {
		layers = circleLayers{}
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		layers:   layers,
		logger:   logger,
	}, nil
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// DesiredSet returns the owning chunk of inst plus up to Lookahead following
// and Lookbehind preceding chunks. The window is clipped at both ends of the
// registry.
func (s *Scheduler) DesiredSet(inst timeline.ResolvedInstant) Desired {
	if !inst.Found {
		return Desired{}
	}
	pos := s.registry.Ordinal(inst.ChunkID)
	if pos < 0 {
		return Desired{}
	}

	d := Desired{Owning: inst.ChunkID}
	for i := pos - s.cfg.Lookbehind; i <= pos+s.cfg.Lookahead; i++ {
		if c, ok := s.registry.At(i); ok {
			d.IDs = append(d.IDs, c.ID)
		}
	}
	return d
}

// Reconcile brings the renderer in line with the desired set and returns the
// next state. Every mutation is preceded by an existence probe, so calling it
// again with the same desired set issues no mutations. A failing renderer call
// affects only its own chunk.
func (s *Scheduler) Reconcile(r renderer.Renderer, st State, desired Desired) (State, Report) {
	var report Report
	if st.attached == nil {
		st = NewState()
	}

	for _, id := range st.Attached() {
		if !r.HasSource(SourceID(id)) || !r.HasLayer(LayerID(id)) {
			report.Stale = append(report.Stale, id)
		}
	}
	if report.NeedsReinit() {
		s.logger.Warnw("renderer lost attached chunks, reinitialization required",
			"stale", report.Stale)
		return st, report
	}

	next := st.clone()

	missing := 0
	for _, id := range desired.IDs {
		if !next.Has(id) {
			missing++
		}
	}
	if next.Len()+missing >= s.cfg.Budget {
		for _, id := range next.Attached() {
			if desired.Contains(id) || id == st.PreviousOwning {
				continue
			}
			if s.detach(r, id) {
				delete(next.attached, id)
				report.Evicted = append(report.Evicted, id)
			} else {
				report.Failed = append(report.Failed, id)
			}
		}
	}

	for _, id := range desired.IDs {
		if next.Has(id) {
			continue
		}
		adopted, ok := s.attach(r, id)
		if !ok {
			report.Failed = append(report.Failed, id)
			continue
		}
		next.attached[id] = struct{}{}
		if adopted {
			report.Adopted = append(report.Adopted, id)
		} else {
			report.Attached = append(report.Attached, id)
		}
	}

	next.PreviousOwning = desired.Owning

	if report.Changed() {
		s.logger.Debugw("reconciled chunks",
			"owning", desired.Owning,
			"attached", report.Attached,
			"evicted", report.Evicted,
			"resident", next.Len())
	}
	return next, report
}

// Detach removes a chunk's layer and source if they exist. It is used on
// teardown and full reinitialization.
func (s *Scheduler) Detach(r renderer.Renderer, chunkID string) bool {
	return s.detach(r, chunkID)
}

// attach adds the chunk's source and hidden layer. adopted is true when both
// already existed on the renderer.
func (s *Scheduler) attach(r renderer.Renderer, id string) (adopted, ok bool) {
	c, found := s.registry.Get(id)
	if !found {
		s.logger.Warnw("desired chunk not in catalog", "chunk", id)
		return false, false
	}

	srcID, layerID := SourceID(id), LayerID(id)
	hadSource := r.HasSource(srcID)
	if !hadSource {
		if err := r.AddSource(srcID, s.sourceFor(c)); err != nil {
			s.logger.Errorw("failed to add chunk source", "chunk", id, "source", srcID, "error", err)
			return false, false
		}
	}

	if r.HasLayer(layerID) {
		return hadSource, true
	}

	desc := s.layers.Layer(c, srcID, layerID)
	desc.ID = layerID
	desc.Source = srcID
	desc.Layout = withProp(desc.Layout, renderer.PropVisibility, renderer.Hidden)
	desc.Paint = withProp(desc.Paint, renderer.PropCircleOpacity, 0.0)

	if err := r.AddLayer(desc); err != nil {
		s.logger.Errorw("failed to add chunk layer", "chunk", id, "layer", layerID, "error", err)
		if !hadSource && r.HasSource(srcID) {
			if err := r.RemoveSource(srcID); err != nil {
				s.logger.Errorw("failed to roll back chunk source", "chunk", id, "source", srcID, "error", err)
			}
		}
		return false, false
	}
	return false, true
}

func (s *Scheduler) detach(r renderer.Renderer, id string) bool {
	if layerID := LayerID(id); r.HasLayer(layerID) {
		if err := r.RemoveLayer(layerID); err != nil {
			s.logger.Errorw("failed to remove chunk layer", "chunk", id, "layer", layerID, "error", err)
			return false
		}
	}
	if srcID := SourceID(id); r.HasSource(srcID) {
		if err := r.RemoveSource(srcID); err != nil {
			s.logger.Errorw("failed to remove chunk source", "chunk", id, "source", srcID, "error", err)
			return false
		}
	}
	return true
}

func (s *Scheduler) sourceFor(c catalog.Chunk) renderer.SourceDescriptor {
	url := strings.NewReplacer("{chunk}", c.ID, "{layer}", c.SourceLayer).Replace(s.cfg.TileURLTemplate)
	desc := renderer.SourceDescriptor{Type: "vector"}
	if strings.Contains(url, "{z}") {
		desc.Tiles = []string{url}
	} else {
		desc.URL = url
	}
	return desc
}

func withProp(props map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[key] = value
	return out
}

type circleLayers struct{}

func (circleLayers) Layer(c catalog.Chunk, sourceID, layerID string) renderer.LayerDescriptor {
	return renderer.LayerDescriptor{
		ID:          layerID,
		Type:        "circle",
		Source:      sourceID,
		SourceLayer: c.SourceLayer,
	}
}
