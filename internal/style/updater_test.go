package style

import (
	"reflect"
	"testing"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/renderer/renderertest"
	"github.com/chrissnell/aqtimeline/internal/scheduler"
	"github.com/chrissnell/aqtimeline/internal/timeline"
)

// harness attaches chunks the way a session does and applies styles on top.
type harness struct {
	t        *testing.T
	fake     *renderertest.Fake
	tl       *timeline.Timeline
	sched    *scheduler.Scheduler
	state    scheduler.State
	updater  *Updater
	resident []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	recs, err := catalog.RollingWindow(time.Date(2024, 7, 3, 8, 0, 0, 0, time.UTC),
		catalog.WindowSpec{Days: 2, HoursPerChunk: 6})
	if err != nil {
		t.Fatalf("RollingWindow: %v", err)
	}
	reg, err := catalog.NewRegistry(recs, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	styler := testStyler(t)
	sched, err := scheduler.New(scheduler.DefaultConfig(), reg, styler, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return &harness{
		t:       t,
		fake:    renderertest.New(),
		tl:      timeline.New(reg, nil),
		sched:   sched,
		state:   scheduler.NewState(),
		updater: NewUpdater(styler, nil),
	}
}

func (h *harness) seek(hour int, threshold float64, theme Theme) (timeline.ResolvedInstant, Result) {
	h.t.Helper()
	inst := h.tl.Resolve(hour)
	var report scheduler.Report
	h.state, report = h.sched.Reconcile(h.fake, h.state, h.sched.DesiredSet(inst))
	if len(report.Failed) > 0 || report.NeedsReinit() {
		h.t.Fatalf("reconcile at %d: %+v", hour, report)
	}
	for _, id := range report.Attached {
		h.updater.Forget(id)
	}
	h.resident = h.state.Attached()
	return inst, h.updater.Apply(h.fake, h.resident, inst, threshold, theme, nil)
}

func (h *harness) layer(chunkID string) renderer.LayerState {
	h.t.Helper()
	l, ok := h.fake.Layer(scheduler.LayerID(chunkID))
	if !ok {
		h.t.Fatalf("layer for %s missing", chunkID)
	}
	return l
}

func TestApplyShowsExactlyOwningLayer(t *testing.T) {
	h := newHarness(t)
	for _, hour := range []int{0, 5, 6, 13, 23, 24, 47} {
		inst, res := h.seek(hour, 0, Light)
		if res.Shown != inst.ChunkID {
			t.Fatalf("hour %d: shown %q, want %q", hour, res.Shown, inst.ChunkID)
		}
		visible := h.fake.VisibleLayerIDs()
		if len(visible) != 1 || visible[0] != scheduler.LayerID(inst.ChunkID) {
			t.Fatalf("hour %d: visible %v, want only %s", hour, visible, inst.ChunkID)
		}
		l := h.layer(inst.ChunkID)
		if !reflect.DeepEqual(l.Filter, h.updater.Styler().Filter(inst, 0)) {
			t.Errorf("hour %d: filter %v", hour, l.Filter)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seek(10, 12, Dark)
	h.fake.ResetCalls()

	inst := h.tl.Resolve(10)
	res := h.updater.Apply(h.fake, h.resident, inst, 12, Dark, nil)
	if res.Mutations != 0 || h.fake.Mutations() != 0 {
		t.Errorf("repeated Apply issued %d mutations: %v", h.fake.Mutations(), h.fake.Calls())
	}
}

func TestSeekRoundTripMatchesDirectSeek(t *testing.T) {
	tests := []struct {
		name string
		from int
	}{
		{"within chunk", 2},
		{"across chunk boundary", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := newHarness(t)
			trip.seek(tt.from, 0, Light)
			trip.seek(tt.from+1, 0, Light)
			inst, _ := trip.seek(tt.from, 0, Light)

			direct := newHarness(t)
			direct.seek(tt.from, 0, Light)

			if got, want := trip.fake.VisibleLayerIDs(), direct.fake.VisibleLayerIDs(); !reflect.DeepEqual(got, want) {
				t.Fatalf("visible after round trip %v, direct %v", got, want)
			}
			a, b := trip.layer(inst.ChunkID), direct.layer(inst.ChunkID)
			if !reflect.DeepEqual(a.Filter, b.Filter) || !reflect.DeepEqual(a.Paint, b.Paint) || !reflect.DeepEqual(a.Layout, b.Layout) {
				t.Errorf("owning layer differs:\nround trip %+v\ndirect     %+v", a, b)
			}
		})
	}
}

func TestThresholdChangeOnlyTouchesFilter(t *testing.T) {
	h := newHarness(t)
	inst, _ := h.seek(14, 0, Light)
	h.fake.ResetCalls()

	res := h.updater.Apply(h.fake, h.resident, inst, 50, Light, nil)
	if res.Shown != inst.ChunkID {
		t.Fatalf("shown %q", res.Shown)
	}
	calls := h.fake.Calls()
	if len(calls) != 1 || calls[0].Op != renderertest.OpSetFilter || calls[0].ID != scheduler.LayerID(inst.ChunkID) {
		t.Fatalf("threshold change issued %v, want one filter update", calls)
	}
	cmp := h.layer(inst.ChunkID).Filter[2].(renderer.Expression)
	if cmp[0] != ">=" || cmp[2] != 50.0 {
		t.Errorf("threshold comparison = %v", cmp)
	}
	if h.fake.CountOp(renderertest.OpAddSource)+h.fake.CountOp(renderertest.OpAddLayer) != 0 {
		t.Errorf("threshold change attached chunks")
	}
}

func TestThemeToggleRepaintsResidentLayers(t *testing.T) {
	h := newHarness(t)
	inst, _ := h.seek(20, 0, Light)
	before := h.fake.LayerIDs()
	h.fake.ResetCalls()

	h.updater.Apply(h.fake, h.resident, inst, 0, Dark, nil)

	if got := h.fake.LayerIDs(); !reflect.DeepEqual(got, before) {
		t.Fatalf("theme toggle changed layers: %v -> %v", before, got)
	}
	colors, opacities := 0, 0
	for _, c := range h.fake.Calls() {
		switch {
		case c.Op == renderertest.OpSetPaint && c.Prop == renderer.PropCircleColor:
			colors++
		case c.Op == renderertest.OpSetPaint && c.Prop == renderer.PropCircleOpacity:
			opacities++
			if c.ID != scheduler.LayerID(inst.ChunkID) || c.Value != DarkOpacity {
				t.Errorf("unexpected opacity update %v", c)
			}
		case c.Op == renderertest.OpAddLayer, c.Op == renderertest.OpRemoveLayer,
			c.Op == renderertest.OpAddSource, c.Op == renderertest.OpRemoveSource:
			t.Errorf("theme toggle issued %v", c)
		}
	}
	if colors != len(h.resident) {
		t.Errorf("%d color updates, want %d", colors, len(h.resident))
	}
	if opacities != 1 {
		t.Errorf("%d opacity updates, want 1", opacities)
	}
	for _, id := range h.resident {
		if got := h.layer(id).Paint[renderer.PropCircleColor]; !reflect.DeepEqual(got, h.updater.Styler().ColorRamp(Dark)) {
			t.Errorf("%s color not dark: %v", id, got)
		}
	}
}

func TestApplyKeepsOverlapVisible(t *testing.T) {
	h := newHarness(t)
	h.seek(5, 0, Light)
	outgoing := h.tl.Resolve(5)
	inst, _ := h.seek(6, 0, Light)

	res := h.updater.Apply(h.fake, h.resident, inst, 0, Light, &Overlap{ChunkID: outgoing.ChunkID, Final: outgoing})
	if res.Overlap != outgoing.ChunkID {
		t.Fatalf("overlap %q, want %q", res.Overlap, outgoing.ChunkID)
	}
	want := []string{scheduler.LayerID(outgoing.ChunkID), scheduler.LayerID(inst.ChunkID)}
	if got := h.fake.VisibleLayerIDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("visible %v, want %v", got, want)
	}
	if !reflect.DeepEqual(h.layer(outgoing.ChunkID).Filter, h.updater.Styler().Filter(outgoing, 0)) {
		t.Errorf("outgoing layer not drawn at its final hour")
	}

	if !h.updater.Hide(h.fake, outgoing.ChunkID, Light) {
		t.Fatalf("Hide reported no change")
	}
	if got := h.fake.VisibleLayerIDs(); len(got) != 1 || got[0] != scheduler.LayerID(inst.ChunkID) {
		t.Errorf("visible after hide %v", got)
	}
}

func TestApplySkipsMissingLayers(t *testing.T) {
	h := newHarness(t)
	inst := h.tl.Resolve(3)

	res := h.updater.Apply(h.fake, []string{inst.ChunkID}, inst, 0, Light, nil)
	if res.Shown != "" || len(res.Skipped) != 1 || res.Mutations != 0 {
		t.Errorf("Apply on empty renderer = %+v", res)
	}
}

func TestApplyNoOwningChunkHidesAll(t *testing.T) {
	h := newHarness(t)
	h.seek(8, 0, Light)

	missing := timeline.ResolvedInstant{Index: 99, Date: time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)}
	res := h.updater.Apply(h.fake, h.resident, missing, 0, Light, nil)
	if res.Shown != "" {
		t.Errorf("shown %q for unresolved instant", res.Shown)
	}
	if got := h.fake.VisibleLayerIDs(); len(got) != 0 {
		t.Errorf("visible %v, want none", got)
	}
}
