// Package playback advances the timeline hour index at a steady rate while
// playing, driven by per-frame ticks.
package playback

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Speed limits and the hour interval at 1x.
const (
	MinSpeed     = 0.25
	MaxSpeed     = 16.0
	BaseInterval = time.Second
)

// statWindow is the number of frame intervals kept for statistics.
const statWindow = 120

// Mode decides what happens at the end of the timeline.
type Mode string

const (
	// ModeLoop wraps back to the first hour.
	ModeLoop Mode = "loop"
	// ModeOnce pauses on the last hour.
	ModeOnce Mode = "once"
)

// ParseMode accepts "loop" or "once".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLoop, ModeOnce:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown playback mode %q", s)
}

// FrameID identifies a requested frame callback.
type FrameID uint64

// FrameScheduler delivers one callback on the next frame.
type FrameScheduler interface {
	RequestFrame(fn func(now time.Time)) FrameID
	CancelFrame(id FrameID)
}

// Config is the initial playback setup.
type Config struct {
	Speed float64
	Mode  Mode
}

// DefaultConfig plays at 1x and loops.
func DefaultConfig() Config {
	return Config{Speed: 1, Mode: ModeLoop}
}

// ClampSpeed limits a speed multiplier to [MinSpeed, MaxSpeed]. NaN and
// non-positive values become MinSpeed.
func ClampSpeed(x float64) float64 {
	if math.IsNaN(x) || x < MinSpeed {
		return MinSpeed
	}
	if x > MaxSpeed {
		return MaxSpeed
	}
	return x
}

// Interval is the time between hour steps at speed x.
func Interval(x float64) time.Duration {
	return time.Duration(float64(BaseInterval) / ClampSpeed(x))
}

// Stats describes recent frame pacing in milliseconds.
type Stats struct {
	Frames   int     `json:"frames"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
}

// Driver owns the hour index while playing. It is not safe for concurrent
// use; the session loop calls it from one goroutine.
type Driver struct {
	frames    FrameScheduler
	onAdvance func(index int)
	logger    *zap.SugaredLogger

	total   int
	index   int
	playing bool
	speed   float64
	mode    Mode

	acc        time.Duration
	last       time.Time
	pending    FrameID
	hasPending bool

	intervals []float64
	next      int
	frameCnt  int
}

// New creates a paused driver. onAdvance is called with every new index
// produced by playback.
func New(frames FrameScheduler, total int, cfg Config, onAdvance func(int), logger *zap.SugaredLogger) *Driver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLoop
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	return &Driver{
		frames:    frames,
		onAdvance: onAdvance,
		logger:    logger,
		total:     total,
		speed:     ClampSpeed(cfg.Speed),
		mode:      cfg.Mode,
		intervals: make([]float64, 0, statWindow),
	}
}

// Index is the current hour index.
func (d *Driver) Index() int { return d.index }

// Playing reports whether playback is running.
func (d *Driver) Playing() bool { return d.playing }

// Speed is the current speed multiplier.
func (d *Driver) Speed() float64 { return d.speed }

// Mode is the end-of-timeline behavior.
func (d *Driver) Mode() Mode { return d.mode }

// Play starts requesting frames. Playing from the last hour in ModeOnce
// restarts at the first hour.
func (d *Driver) Play() {
	if d.playing || d.total <= 0 {
		return
	}
	if d.mode == ModeOnce && d.index >= d.total-1 {
		d.index = 0
		d.advance()
	}
	d.playing = true
	d.acc = 0
	d.last = time.Time{}
	d.request()
	d.logger.Debugw("playback started", "index", d.index, "speed", d.speed)
}

// Pause stops advancing and cancels the pending frame.
func (d *Driver) Pause() {
	if !d.playing {
		return
	}
	d.playing = false
	d.cancel()
	d.logger.Debugw("playback paused", "index", d.index)
}

// Stop pauses and forgets accumulated time. Used on teardown so no frame
// callback fires afterwards.
func (d *Driver) Stop() {
	d.Pause()
	d.cancel()
	d.acc = 0
	d.last = time.Time{}
}

// SetSpeed clamps and applies a speed multiplier, returning the value used.
func (d *Driver) SetSpeed(x float64) float64 {
	d.speed = ClampSpeed(x)
	return d.speed
}

// SetMode changes the end-of-timeline behavior.
func (d *Driver) SetMode(m Mode) {
	d.mode = m
}

// Seek moves the index without notifying onAdvance; the caller already knows.
// Accumulated time is dropped so the next step is a full interval away.
func (d *Driver) Seek(index int) {
	d.index = d.clamp(index)
	d.acc = 0
}

// SetTotal changes the timeline length, clamping the index.
func (d *Driver) SetTotal(total int) {
	d.total = total
	d.index = d.clamp(d.index)
	if total <= 0 {
		d.Pause()
	}
}

// Tick is the frame callback. It accumulates elapsed time and advances one
// hour once a full interval has passed.
func (d *Driver) Tick(now time.Time) {
	d.hasPending = false
	if !d.playing {
		return
	}

	if !d.last.IsZero() {
		dt := now.Sub(d.last)
		if dt > 0 {
			d.acc += dt
			d.record(dt)
		}
	}
	d.last = now

	if d.acc >= Interval(d.speed) {
		d.acc = 0
		if d.index+1 >= d.total {
			if d.mode == ModeOnce {
				d.playing = false
				d.logger.Debugw("playback reached the end", "index", d.index)
				return
			}
			d.index = 0
		} else {
			d.index++
		}
		d.advance()
	}

	if d.playing {
		d.request()
	}
}

// Stats summarizes the recent frame intervals.
func (d *Driver) Stats() Stats {
	s := Stats{Frames: d.frameCnt}
	switch len(d.intervals) {
	case 0:
	case 1:
		s.MeanMs = d.intervals[0]
	default:
		s.MeanMs, s.StdDevMs = stat.MeanStdDev(d.intervals, nil)
	}
	return s
}

func (d *Driver) advance() {
	if d.onAdvance != nil {
		d.onAdvance(d.index)
	}
}

func (d *Driver) request() {
	if d.hasPending || d.frames == nil {
		return
	}
	d.pending = d.frames.RequestFrame(d.Tick)
	d.hasPending = true
}

func (d *Driver) cancel() {
	if d.hasPending && d.frames != nil {
		d.frames.CancelFrame(d.pending)
	}
	d.hasPending = false
}

func (d *Driver) record(dt time.Duration) {
	d.frameCnt++
	ms := float64(dt) / float64(time.Millisecond)
	if len(d.intervals) < statWindow {
		d.intervals = append(d.intervals, ms)
		return
	}
	d.intervals[d.next] = ms
	d.next = (d.next + 1) % statWindow
}

func (d *Driver) clamp(i int) int {
	if i < 0 || d.total <= 0 {
		return 0
	}
	if i >= d.total {
		return d.total - 1
	}
	return i
}
