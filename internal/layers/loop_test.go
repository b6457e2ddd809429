package layers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/renderer/renderertest"
)

func TestLoopSerializesCommands(t *testing.T) {
	fake := renderertest.New()
	l, err := NewLoop("test", fake, registry(t, 2, 6, ""), DefaultOptions(), time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	if err := l.Do(ctx, func(m *Manager) { m.Seek(13) }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Index != 13 || snap.Lifecycle != Ready.String() || len(snap.Resident) == 0 {
		t.Errorf("snapshot %+v", snap)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	if err := l.Do(context.Background(), func(*Manager) {}); !errors.Is(err, renderer.ErrSessionClosed) {
		t.Errorf("Do after stop = %v, want ErrSessionClosed", err)
	}
	if n := len(fake.LayerIDs()); n != 0 {
		t.Errorf("%d layers left after the loop stopped", n)
	}
}

func TestLoopDrivesPlayback(t *testing.T) {
	fake := renderertest.New()
	opts := DefaultOptions()
	opts.Playback.Speed = 16
	l, err := NewLoop("play", fake, registry(t, 2, 6, ""), opts, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	if err := l.Do(ctx, func(m *Manager) { m.Play() }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := l.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if snap.Index >= 2 {
			if !snap.Playing {
				t.Errorf("not playing at index %d", snap.Index)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("playback did not advance")
}
