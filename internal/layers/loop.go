package layers

import (
	"context"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/playback"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"go.uber.org/zap"
)

// DefaultFrameInterval paces frames at roughly 60 per second.
const DefaultFrameInterval = 16 * time.Millisecond

// Loop runs a Manager on a single goroutine. Every input arrives as a command
// over a channel, so every renderer mutation happens on that goroutine. It is
// also the manager's playback.FrameScheduler.
type Loop struct {
	ID string

	manager  *Manager
	renderer renderer.Renderer
	logger   *zap.SugaredLogger
	interval time.Duration

	cmds chan func(*Manager)
	done chan struct{}

	nextFrame playback.FrameID
	frames    map[playback.FrameID]func(time.Time)
}

// NewLoop creates a loop and its manager for one renderer session.
func NewLoop(id string, r renderer.Renderer, reg *catalog.Registry, opts Options, frameInterval time.Duration, logger *zap.SugaredLogger) (*Loop, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	l := &Loop{
		ID:       id,
		renderer: r,
		logger:   logger,
		interval: frameInterval,
		cmds:     make(chan func(*Manager)),
		done:     make(chan struct{}),
		frames:   make(map[playback.FrameID]func(time.Time)),
	}
	m, err := NewManager(reg, opts, l, nil, logger)
	if err != nil {
		return nil, err
	}
	l.manager = m
	return l, nil
}

// Run initializes the renderer and processes commands and frames until ctx
// is cancelled, then tears the session down.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.manager.UpdateLayers(l.renderer)
	l.logger.Infow("session loop started", "session", l.ID)

	for {
		select {
		case <-ctx.Done():
			l.manager.Teardown()
			l.frames = make(map[playback.FrameID]func(time.Time))
			l.logger.Infow("session loop stopped", "session", l.ID)
			return nil
		case fn := <-l.cmds:
			fn(l.manager)
		case now := <-ticker.C:
			l.frame(now)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(*Manager)) error {
	finished := make(chan struct{})
	cmd := func(m *Manager) {
		defer close(finished)
		fn(m)
	}

	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return renderer.ErrSessionClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return renderer.ErrSessionClosed
	}
}

// Snapshot fetches the manager's state through the loop.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := l.Do(ctx, func(m *Manager) { s = m.Snapshot() })
	return s, err
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// RequestFrame queues fn for the next frame. Only called on the loop
// goroutine.
func (l *Loop) RequestFrame(fn func(time.Time)) playback.FrameID {
	l.nextFrame++
	l.frames[l.nextFrame] = fn
	return l.nextFrame
}

// CancelFrame drops a queued frame callback.
func (l *Loop) CancelFrame(id playback.FrameID) {
	delete(l.frames, id)
}

func (l *Loop) frame(now time.Time) {
	if len(l.frames) > 0 {
		due := l.frames
		l.frames = make(map[playback.FrameID]func(time.Time))
		for _, fn := range due {
			fn(now)
		}
	}
	l.manager.Tick(now)
}
