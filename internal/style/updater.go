package style

import (
	"fmt"

	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/scheduler"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"go.uber.org/zap"
)

// Overlap keeps an outgoing chunk drawn at its final hour while the incoming
// chunk's tiles load.
type Overlap struct {
	ChunkID string
	Final   timeline.ResolvedInstant
}

// Result summarizes one Apply.
type Result struct {
	Shown     string
	Overlap   string
	Hidden    []string
	Skipped   []string
	Mutations int
}

// layerParams is what a layer was last given.
type layerParams struct {
	synced    bool
	visible   bool
	filterKey string
	theme     Theme
	opacity   float64
}

// Updater applies filter, paint and visibility to resident chunk layers. It
// remembers what each layer was last given and only issues changes, so it is
// cheap to call on every frame.
type Updater struct {
	styler  *Styler
	logger  *zap.SugaredLogger
	applied map[string]*layerParams
}

// NewUpdater creates an updater with an empty parameter cache.
func NewUpdater(styler *Styler, logger *zap.SugaredLogger) *Updater {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Updater{
		styler:  styler,
		logger:  logger,
		applied: make(map[string]*layerParams),
	}
}

// Styler returns the expression builder used by the updater.
func (u *Updater) Styler() *Styler {
	return u.styler
}

// Reset forgets everything applied; used after a full reinitialization.
func (u *Updater) Reset() {
	u.applied = make(map[string]*layerParams)
}

// Forget drops the cached parameters of one chunk, e.g. after it was
// re-attached with fresh defaults.
func (u *Updater) Forget(chunkID string) {
	delete(u.applied, scheduler.LayerID(chunkID))
}

// Apply shows the owning chunk of inst with the current filter and paint,
// keeps an overlapping outgoing chunk visible at its final hour, and hides
// every other resident chunk. The owning layer is shown before any other is
// hidden. Layers not yet on the renderer are skipped; the next call picks them
// up once attachment completes.
func (u *Updater) Apply(r renderer.Renderer, resident []string, inst timeline.ResolvedInstant, threshold float64, theme Theme, overlap *Overlap) Result {
	var res Result

	keep := make(map[string]bool, len(resident))
	for _, id := range resident {
		keep[scheduler.LayerID(id)] = true
	}
	for layerID := range u.applied {
		if !keep[layerID] {
			delete(u.applied, layerID)
		}
	}

	if inst.Found {
		if u.show(r, inst.ChunkID, inst, threshold, theme, &res) {
			res.Shown = inst.ChunkID
		}
	}

	if overlap != nil && overlap.ChunkID != inst.ChunkID {
		if u.show(r, overlap.ChunkID, overlap.Final, threshold, theme, &res) {
			res.Overlap = overlap.ChunkID
		}
	}

	for _, id := range resident {
		if (inst.Found && id == inst.ChunkID) || (overlap != nil && id == overlap.ChunkID) {
			continue
		}
		if u.hide(r, id, theme, &res) {
			res.Hidden = append(res.Hidden, id)
		}
	}

	return res
}

// Hide hides one chunk's layer, e.g. when an overlap window expires.
func (u *Updater) Hide(r renderer.Renderer, chunkID string, theme Theme) bool {
	var res Result
	return u.hide(r, chunkID, theme, &res)
}

func (u *Updater) params(layerID string) *layerParams {
	p, ok := u.applied[layerID]
	if !ok {
		p = &layerParams{}
		u.applied[layerID] = p
	}
	return p
}

func (u *Updater) show(r renderer.Renderer, chunkID string, inst timeline.ResolvedInstant, threshold float64, theme Theme, res *Result) bool {
	layerID := scheduler.LayerID(chunkID)
	if !r.HasLayer(layerID) {
		delete(u.applied, layerID)
		res.Skipped = append(res.Skipped, chunkID)
		return false
	}
	p := u.params(layerID)
	ok := true

	threshold = u.styler.ClampThreshold(threshold)
	if key := fmt.Sprintf("%s|%g", u.styler.Timestamp(inst), threshold); p.filterKey != key {
		if u.call(chunkID, res, r.SetFilter(layerID, u.styler.Filter(inst, threshold))) {
			p.filterKey = key
		} else {
			ok = false
		}
	}
	if p.theme != theme {
		if u.call(chunkID, res, r.SetPaintProperty(layerID, renderer.PropCircleColor, u.styler.ColorRamp(theme))) {
			p.theme = theme
		} else {
			ok = false
		}
	}
	if opacity := u.styler.Opacity(theme); p.opacity != opacity {
		if u.call(chunkID, res, r.SetPaintProperty(layerID, renderer.PropCircleOpacity, opacity)) {
			p.opacity = opacity
		} else {
			ok = false
		}
	}
	if !p.synced || !p.visible {
		if u.call(chunkID, res, r.SetLayoutProperty(layerID, renderer.PropVisibility, renderer.Visible)) {
			p.synced = true
			p.visible = true
		} else {
			ok = false
		}
	}
	return ok
}

func (u *Updater) hide(r renderer.Renderer, chunkID string, theme Theme, res *Result) bool {
	layerID := scheduler.LayerID(chunkID)
	if !r.HasLayer(layerID) {
		delete(u.applied, layerID)
		res.Skipped = append(res.Skipped, chunkID)
		return false
	}
	p := u.params(layerID)
	changed := false

	// Hide on both channels: some engines apply visibility a frame late.
	if !p.synced || p.visible {
		if u.call(chunkID, res, r.SetLayoutProperty(layerID, renderer.PropVisibility, renderer.Hidden)) &&
			u.call(chunkID, res, r.SetPaintProperty(layerID, renderer.PropCircleOpacity, 0.0)) {
			p.synced = true
			p.visible = false
			p.opacity = 0
			changed = true
		}
	}
	if p.theme != theme {
		if u.call(chunkID, res, r.SetPaintProperty(layerID, renderer.PropCircleColor, u.styler.ColorRamp(theme))) {
			p.theme = theme
		}
	}
	return changed
}

func (u *Updater) call(chunkID string, res *Result, err error) bool {
	res.Mutations++
	if err != nil {
		u.logger.Errorw("renderer call failed", "chunk", chunkID, "error", err)
		return false
	}
	return true
}
