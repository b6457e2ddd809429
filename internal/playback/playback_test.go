package playback

import (
	"math"
	"testing"
	"time"
)

// frames queues callbacks and fires them on demand.
type frames struct {
	next      FrameID
	pending   map[FrameID]func(time.Time)
	cancelled int
}

func newFrames() *frames {
	return &frames{pending: make(map[FrameID]func(time.Time))}
}

func (f *frames) RequestFrame(fn func(time.Time)) FrameID {
	f.next++
	f.pending[f.next] = fn
	return f.next
}

func (f *frames) CancelFrame(id FrameID) {
	if _, ok := f.pending[id]; ok {
		delete(f.pending, id)
		f.cancelled++
	}
}

// fire runs every pending callback once.
func (f *frames) fire(now time.Time) int {
	due := f.pending
	f.pending = make(map[FrameID]func(time.Time))
	for _, fn := range due {
		fn(now)
	}
	return len(due)
}

func TestClampSpeed(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1, 1},
		{0.1, MinSpeed},
		{0, MinSpeed},
		{-3, MinSpeed},
		{math.NaN(), MinSpeed},
		{64, MaxSpeed},
		{4, 4},
	}
	for _, tt := range tests {
		if got := ClampSpeed(tt.in); got != tt.want {
			t.Errorf("ClampSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := Interval(4); got != 250*time.Millisecond {
		t.Errorf("Interval(4) = %v", got)
	}
}

func TestTickAdvancesOncePerInterval(t *testing.T) {
	f := newFrames()
	var seen []int
	d := New(f, 48, DefaultConfig(), func(i int) { seen = append(seen, i) }, nil)
	d.Play()

	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	now := start
	// 16ms frames for a little over two seconds.
	for i := 0; i < 130; i++ {
		if f.fire(now) != 1 {
			t.Fatalf("frame %d: expected exactly one pending frame", i)
		}
		now = now.Add(16 * time.Millisecond)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("advanced to %v, want [1 2]", seen)
	}

	stats := d.Stats()
	if stats.Frames != 129 || math.Abs(stats.MeanMs-16) > 1e-9 || stats.StdDevMs > 1e-9 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestPausedDriverSchedulesNothing(t *testing.T) {
	f := newFrames()
	calls := 0
	d := New(f, 48, DefaultConfig(), func(int) { calls++ }, nil)

	d.Tick(time.Now())
	if len(f.pending) != 0 || calls != 0 {
		t.Fatalf("paused Tick scheduled %d frames, advanced %d", len(f.pending), calls)
	}

	d.Play()
	d.Pause()
	if len(f.pending) != 0 || f.cancelled != 1 {
		t.Errorf("Pause left %d pending, cancelled %d", len(f.pending), f.cancelled)
	}
	if d.Playing() {
		t.Errorf("still playing after Pause")
	}
}

func TestStopCancelsPendingFrame(t *testing.T) {
	f := newFrames()
	d := New(f, 48, DefaultConfig(), nil, nil)
	d.Play()
	d.Stop()
	if len(f.pending) != 0 {
		t.Fatalf("Stop left a pending frame")
	}
	if n := f.fire(time.Now()); n != 0 {
		t.Errorf("%d callbacks fired after Stop", n)
	}
}

func TestEndOfTimeline(t *testing.T) {
	tests := []struct {
		mode        Mode
		wantIndex   int
		wantPlaying bool
	}{
		{ModeLoop, 0, true},
		{ModeOnce, 3, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFrames()
			d := New(f, 4, Config{Speed: 16, Mode: tt.mode}, nil, nil)
			d.Seek(2)
			d.Play()

			now := time.Now()
			step := Interval(16)
			f.fire(now)
			f.fire(now.Add(step))
			if d.Index() != 3 {
				t.Fatalf("index %d after one step, want 3", d.Index())
			}
			f.fire(now.Add(2 * step))

			if d.Index() != tt.wantIndex || d.Playing() != tt.wantPlaying {
				t.Errorf("index %d playing %v, want %d %v", d.Index(), d.Playing(), tt.wantIndex, tt.wantPlaying)
			}
			if !tt.wantPlaying && len(f.pending) != 0 {
				t.Errorf("finished playback left a pending frame")
			}
		})
	}
}

func TestPlayOnceFromEndRestarts(t *testing.T) {
	var seen []int
	d := New(newFrames(), 4, Config{Mode: ModeOnce}, func(i int) { seen = append(seen, i) }, nil)
	d.Seek(3)
	d.Play()
	if d.Index() != 0 || len(seen) != 1 || seen[0] != 0 {
		t.Errorf("index %d, advanced %v", d.Index(), seen)
	}
}

func TestSeekResetsAccumulator(t *testing.T) {
	f := newFrames()
	d := New(f, 48, DefaultConfig(), nil, nil)
	d.Play()

	now := time.Now()
	f.fire(now)
	f.fire(now.Add(900 * time.Millisecond))
	d.Seek(10)
	f.fire(now.Add(1000 * time.Millisecond))
	if d.Index() != 10 {
		t.Errorf("index %d after seek, want 10 with no extra step", d.Index())
	}
}

func TestSetTotalClampsIndex(t *testing.T) {
	d := New(newFrames(), 96, DefaultConfig(), nil, nil)
	d.Seek(80)
	d.SetTotal(48)
	if d.Index() != 47 {
		t.Errorf("index %d, want 47", d.Index())
	}
}
