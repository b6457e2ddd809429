// Package renderertest provides a recording in-memory renderer for tests.
package renderertest

import (
	"fmt"

	"github.com/chrissnell/aqtimeline/internal/renderer"
)

// Op names recorded for each mutating call.
const (
	OpAddSource    = "addSource"
	OpRemoveSource = "removeSource"
	OpAddLayer     = "addLayer"
	OpRemoveLayer  = "removeLayer"
	OpSetFilter    = "setFilter"
	OpSetPaint     = "setPaintProperty"
	OpSetLayout    = "setLayoutProperty"
)

// Call is one recorded mutation.
type Call struct {
	Op    string
	ID    string
	Prop  string
	Value any
}

func (c Call) String() string {
	if c.Prop != "" {
		return fmt.Sprintf("%s(%s, %s=%v)", c.Op, c.ID, c.Prop, c.Value)
	}
	return fmt.Sprintf("%s(%s)", c.Op, c.ID)
}

// Fake is a renderer.Renderer backed by a renderer.Mirror that records every
// mutation and can be told to fail specific calls.
type Fake struct {
	*renderer.Mirror

	calls    []Call
	probes   int
	failures map[string]error
}

// New returns an empty fake with a loaded style.
func New() *Fake {
	return &Fake{
		Mirror:   renderer.NewMirror(),
		failures: make(map[string]error),
	}
}

// FailOn makes every call of op against id return err until cleared with
// ClearFailures.
func (f *Fake) FailOn(op, id string, err error) {
	f.failures[op+"|"+id] = err
}

// ClearFailures removes all injected failures.
func (f *Fake) ClearFailures() {
	f.failures = make(map[string]error)
}

// Restyle simulates an external full re-style: every source and layer is gone.
func (f *Fake) Restyle() {
	f.Mirror.Clear()
}

// Calls returns the recorded mutations.
func (f *Fake) Calls() []Call {
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Mutations is the number of recorded mutating calls.
func (f *Fake) Mutations() int {
	return len(f.calls)
}

// Probes is the number of HasSource/HasLayer calls.
func (f *Fake) Probes() int {
	return f.probes
}

// CountOp counts recorded calls of one op.
func (f *Fake) CountOp(op string) int {
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls and probes.
func (f *Fake) ResetCalls() {
	f.calls = nil
	f.probes = 0
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if err, ok := f.failures[c.Op+"|"+c.ID]; ok {
		return err
	}
	return nil
}

func (f *Fake) HasSource(id string) bool {
	f.probes++
	return f.Mirror.HasSource(id)
}

func (f *Fake) HasLayer(id string) bool {
	f.probes++
	return f.Mirror.HasLayer(id)
}

func (f *Fake) AddSource(id string, src renderer.SourceDescriptor) error {
	if err := f.record(Call{Op: OpAddSource, ID: id, Value: src}); err != nil {
		return err
	}
	return f.Mirror.AddSource(id, src)
}

func (f *Fake) RemoveSource(id string) error {
	if err := f.record(Call{Op: OpRemoveSource, ID: id}); err != nil {
		return err
	}
	return f.Mirror.RemoveSource(id)
}

func (f *Fake) AddLayer(layer renderer.LayerDescriptor) error {
	if err := f.record(Call{Op: OpAddLayer, ID: layer.ID, Value: layer}); err != nil {
		return err
	}
	return f.Mirror.AddLayer(layer)
}

func (f *Fake) RemoveLayer(id string) error {
	if err := f.record(Call{Op: OpRemoveLayer, ID: id}); err != nil {
		return err
	}
	return f.Mirror.RemoveLayer(id)
}

func (f *Fake) SetFilter(layerID string, filter renderer.Expression) error {
	if err := f.record(Call{Op: OpSetFilter, ID: layerID, Value: filter}); err != nil {
		return err
	}
	return f.Mirror.SetFilter(layerID, filter)
}

func (f *Fake) SetPaintProperty(layerID, prop string, value any) error {
	if err := f.record(Call{Op: OpSetPaint, ID: layerID, Prop: prop, Value: value}); err != nil {
		return err
	}
	return f.Mirror.SetPaintProperty(layerID, prop, value)
}

func (f *Fake) SetLayoutProperty(layerID, prop string, value any) error {
	if err := f.record(Call{Op: OpSetLayout, ID: layerID, Prop: prop, Value: value}); err != nil {
		return err
	}
	return f.Mirror.SetLayoutProperty(layerID, prop, value)
}

var _ renderer.Renderer = (*Fake)(nil)
