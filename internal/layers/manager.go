// Package layers drives one renderer session: it resolves the current hour,
// reconciles the attached chunks, runs chunk transitions and playback, and
// applies style, rebuilding everything when the renderer loses its state.
package layers

import (
	"fmt"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/playback"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/scheduler"
	"github.com/chrissnell/aqtimeline/internal/style"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"github.com/chrissnell/aqtimeline/internal/transition"
	"github.com/chrissnell/aqtimeline/pkg/solar"
	"go.uber.org/zap"
)

// Lifecycle is the session's renderer state.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Ready
	NeedsReinit
)

func (l Lifecycle) String() string {
	switch l {
	case Ready:
		return "ready"
	case NeedsReinit:
		return "needs-reinit"
	default:
		return "uninitialized"
	}
}

// ThemeMode is a fixed theme or "auto", which follows the sun at the map
// center.
type ThemeMode string

const (
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
	ThemeAuto  ThemeMode = "auto"
)

// ParseThemeMode accepts "light", "dark" or "auto".
func ParseThemeMode(s string) (ThemeMode, error) {
	switch ThemeMode(s) {
	case ThemeLight, ThemeDark, ThemeAuto:
		return ThemeMode(s), nil
	}
	return "", fmt.Errorf("unknown theme mode %q", s)
}

// autoThemeInterval is how often an auto theme is re-evaluated.
const autoThemeInterval = time.Minute

// Center is the map center used for the auto theme.
type Center struct {
	Lat float64
	Lon float64
}

// Options configures a Manager.
type Options struct {
	Scheduler        scheduler.Config
	Style            style.Config
	Playback         playback.Config
	TransitionDelay  time.Duration
	DefaultThreshold float64
	ThemeMode        ThemeMode
	Center           Center
}

// DefaultOptions returns the stock session setup.
func DefaultOptions() Options {
	return Options{
		Scheduler:       scheduler.DefaultConfig(),
		Style:           style.DefaultConfig(),
		Playback:        playback.DefaultConfig(),
		TransitionDelay: transition.DefaultDelay,
		ThemeMode:       ThemeLight,
		Center:          Center{Lat: 39.5, Lon: -98.35},
	}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Lifecycle  string                   `json:"lifecycle"`
	Index      int                      `json:"index"`
	TotalHours int                      `json:"total_hours"`
	Instant    timeline.ResolvedInstant `json:"instant"`
	Threshold  float64                  `json:"threshold"`
	Category   string                   `json:"threshold_category"`
	Theme      style.Theme              `json:"theme"`
	ThemeMode  ThemeMode                `json:"theme_mode"`
	Playing    bool                     `json:"playing"`
	Speed      float64                  `json:"speed"`
	Mode       playback.Mode            `json:"mode"`
	Resident   []string                 `json:"resident"`
	Transition string                   `json:"transition"`
	Outgoing   string                   `json:"outgoing,omitempty"`
	Reinits    int                      `json:"reinits"`
	Frames     playback.Stats           `json:"frames"`
}

// Manager owns one session's scheduling state. It is not safe for concurrent
// use; Loop serializes every call onto one goroutine.
type Manager struct {
	opts   Options
	logger *zap.SugaredLogger
	clock  transition.Clock

	timeline *timeline.Timeline
	sched    *scheduler.Scheduler
	updater  *style.Updater
	trans    *transition.Handler
	driver   *playback.Driver

	r         renderer.Renderer
	lifecycle Lifecycle
	state     scheduler.State
	last      timeline.ResolvedInstant

	index          int
	threshold      float64
	themeMode      ThemeMode
	theme          style.Theme
	themeCheckedAt time.Time
	reinits        int
}

// NewManager builds a manager over reg. frames delivers playback ticks; a nil
// clock uses the wall clock.
func NewManager(reg *catalog.Registry, opts Options, frames playback.FrameScheduler, clock transition.Clock, logger *zap.SugaredLogger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = transition.SystemClock{}
	}
	if opts.ThemeMode == "" {
		opts.ThemeMode = ThemeLight
	}
	if _, err := ParseThemeMode(string(opts.ThemeMode)); err != nil {
		return nil, err
	}

	styler, err := style.NewStyler(opts.Style)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}

	m := &Manager{
		opts:      opts,
		logger:    logger,
		clock:     clock,
		updater:   style.NewUpdater(styler, logger.Named("style")),
		state:     scheduler.NewState(),
		threshold: styler.ClampThreshold(opts.DefaultThreshold),
		themeMode: opts.ThemeMode,
	}
	if err := m.setRegistry(reg); err != nil {
		return nil, err
	}
	m.driver = playback.New(frames, m.timeline.TotalHours(), opts.Playback, m.onAdvance, logger.Named("playback"))
	m.theme = m.resolveTheme(clock.Now())
	return m, nil
}

func (m *Manager) setRegistry(reg *catalog.Registry) error {
	if reg == nil || reg.Len() == 0 {
		return catalog.ErrEmptyCatalog
	}
	sched, err := scheduler.New(m.opts.Scheduler, reg, m.updater.Styler(), m.logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	m.timeline = timeline.New(reg, m.logger.Named("timeline"))
	m.sched = sched
	m.trans = transition.New(m.timeline, m.opts.TransitionDelay, m.logger.Named("transition"))
	m.index = m.timeline.Clamp(m.index)
	return nil
}

// Lifecycle returns the current lifecycle state.
func (m *Manager) Lifecycle() Lifecycle {
	return m.lifecycle
}

// Timeline returns the timeline the manager resolves against.
func (m *Manager) Timeline() *timeline.Timeline {
	return m.timeline
}

// InitializeLayers removes every core-managed source and layer the renderer
// still has, forgets all bookkeeping and rebuilds for the current instant.
// It does nothing while the style is loading.
func (m *Manager) InitializeLayers(r renderer.Renderer) {
	m.r = r
	if !r.IsStyleLoaded() {
		if m.lifecycle == Ready {
			m.lifecycle = NeedsReinit
		}
		return
	}

	ids := make(map[string]struct{})
	for _, id := range m.state.Attached() {
		ids[id] = struct{}{}
	}
	for _, c := range m.timeline.Registry().Chunks() {
		ids[c.ID] = struct{}{}
	}
	for id := range ids {
		m.sched.Detach(r, id)
	}

	m.state = scheduler.NewState()
	m.updater.Reset()
	m.trans.Reset()
	m.last = timeline.ResolvedInstant{}
	m.lifecycle = Ready
	m.reinits++
	m.logger.Infow("layers initialized", "index", m.index, "reinits", m.reinits)

	m.update(r)
}

// UpdateLayers brings the renderer in line with the current hour, threshold
// and theme. It is idempotent and initializes first when needed.
func (m *Manager) UpdateLayers(r renderer.Renderer) {
	m.r = r
	if m.lifecycle != Ready {
		m.InitializeLayers(r)
		return
	}
	m.update(r)
}

func (m *Manager) update(r renderer.Renderer) {
	if !r.IsStyleLoaded() {
		return
	}

	inst := m.timeline.Resolve(m.index)
	desired := m.sched.DesiredSet(inst)

	next, report := m.sched.Reconcile(r, m.state, desired)
	if report.NeedsReinit() {
		m.lifecycle = NeedsReinit
		m.InitializeLayers(r)
		return
	}
	m.state = next
	for _, id := range report.Attached {
		m.updater.Forget(id)
	}

	resident := m.state.Attached()
	superseded := m.trans.Observe(m.last, inst, resident)

	var overlap *style.Overlap
	if out, ok := m.trans.Outgoing(); ok {
		overlap = &style.Overlap{ChunkID: out.ChunkID, Final: out.Final}
	}
	res := m.updater.Apply(r, resident, inst, m.threshold, m.theme, overlap)
	for _, id := range superseded {
		if m.state.Has(id) {
			m.updater.Hide(r, id, m.theme)
		}
	}
	if inst.Found && res.Shown == inst.ChunkID {
		m.trans.Arm(m.clock.Now())
	}
	m.last = inst
}

func (m *Manager) refresh() {
	if m.r != nil {
		m.UpdateLayers(m.r)
	}
}

// Seek moves to hour index h, clamped to the timeline.
func (m *Manager) Seek(h int) {
	m.index = m.timeline.Clamp(h)
	m.driver.Seek(m.index)
	m.refresh()
}

// SetThreshold changes the minimum measurement shown.
func (m *Manager) SetThreshold(v float64) {
	m.threshold = m.updater.Styler().ClampThreshold(v)
	m.refresh()
}

// SetTheme switches between light, dark and auto.
func (m *Manager) SetTheme(mode ThemeMode) error {
	if _, err := ParseThemeMode(string(mode)); err != nil {
		return err
	}
	m.themeMode = mode
	m.themeCheckedAt = time.Time{}
	m.theme = m.resolveTheme(m.clock.Now())
	m.refresh()
	return nil
}

// Play starts playback.
func (m *Manager) Play() {
	m.driver.Play()
}

// Pause stops playback at the current hour.
func (m *Manager) Pause() {
	m.driver.Pause()
}

// SetSpeed sets the playback speed, returning the clamped value.
func (m *Manager) SetSpeed(x float64) float64 {
	return m.driver.SetSpeed(x)
}

// SetMode sets the end-of-timeline behavior.
func (m *Manager) SetMode(mode playback.Mode) {
	m.driver.SetMode(mode)
}

// SetRegistry swaps the catalog. The renderer is rebuilt from scratch; chunks
// of the old catalog are still detached since the state remembers them.
func (m *Manager) SetRegistry(reg *catalog.Registry) error {
	if err := m.setRegistry(reg); err != nil {
		return err
	}
	m.driver.SetTotal(m.timeline.TotalHours())
	m.driver.Seek(m.index)

	if m.lifecycle == Ready {
		m.lifecycle = NeedsReinit
	}
	m.logger.Infow("catalog replaced", "chunks", reg.Len(), "total_hours", m.timeline.TotalHours())
	m.refresh()
	return nil
}

// StyleReset handles a full re-style of the renderer: everything the manager
// attached is gone and must be rebuilt.
func (m *Manager) StyleReset() {
	if m.lifecycle == Ready {
		m.lifecycle = NeedsReinit
	}
	m.logger.Infow("renderer style reset", "lifecycle", m.lifecycle)
	m.refresh()
}

// Tick advances time-based state: an expired overlap is hidden and an auto
// theme follows the sun. Playback is not advanced here; the driver steps
// itself from frame callbacks requested through the FrameScheduler.
func (m *Manager) Tick(now time.Time) {
	if m.r == nil || m.lifecycle != Ready {
		return
	}
	if id, ok := m.trans.Advance(now); ok {
		m.updater.Hide(m.r, id, m.theme)
	}
	if m.themeMode == ThemeAuto && now.Sub(m.themeCheckedAt) >= autoThemeInterval {
		if theme := m.resolveTheme(now); theme != m.theme {
			m.theme = theme
			m.logger.Infow("auto theme switched", "theme", theme)
			m.update(m.r)
		}
	}
}

// Teardown stops playback, detaches every chunk and releases the renderer.
func (m *Manager) Teardown() {
	m.driver.Stop()
	if m.r != nil && m.r.IsStyleLoaded() {
		for _, id := range m.state.Attached() {
			m.sched.Detach(m.r, id)
		}
	}
	m.state = scheduler.NewState()
	m.updater.Reset()
	m.trans.Reset()
	m.last = timeline.ResolvedInstant{}
	m.lifecycle = Uninitialized
	m.r = nil
}

// Snapshot reports the session state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Lifecycle:  m.lifecycle.String(),
		Index:      m.index,
		TotalHours: m.timeline.TotalHours(),
		Instant:    m.timeline.Resolve(m.index),
		Threshold:  m.threshold,
		Category:   m.updater.Styler().Category(m.threshold),
		Theme:      m.theme,
		ThemeMode:  m.themeMode,
		Playing:    m.driver.Playing(),
		Speed:      m.driver.Speed(),
		Mode:       m.driver.Mode(),
		Resident:   m.state.Attached(),
		Transition: m.trans.Phase().String(),
		Reinits:    m.reinits,
		Frames:     m.driver.Stats(),
	}
	if out, ok := m.trans.Outgoing(); ok {
		s.Outgoing = out.ChunkID
	}
	return s
}

func (m *Manager) onAdvance(index int) {
	m.index = index
	m.refresh()
}

func (m *Manager) resolveTheme(now time.Time) style.Theme {
	switch m.themeMode {
	case ThemeDark:
		return style.Dark
	case ThemeAuto:
		m.themeCheckedAt = now
		if solar.IsDark(m.opts.Center.Lat, m.opts.Center.Lon, now) {
			return style.Dark
		}
		return style.Light
	default:
		return style.Light
	}
}
