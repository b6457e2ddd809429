package renderer

import (
	"fmt"
	"sort"
)

// LayerState is the current definition of a layer as the engine would hold it.
type LayerState struct {
	Descriptor LayerDescriptor `json:"descriptor"`
	Filter     Expression      `json:"filter,omitempty"`
	Layout     map[string]any  `json:"layout,omitempty"`
	Paint      map[string]any  `json:"paint,omitempty"`
}

// Visible reports whether the layer is shown: visibility is not "none" and
// opacity, when set, is above zero.
func (ls LayerState) Visible() bool {
	if v, ok := ls.Layout[PropVisibility]; ok && v == Hidden {
		return false
	}
	if op, ok := ls.Paint[PropCircleOpacity]; ok {
		if f, ok := toFloat(op); ok && f <= 0 {
			return false
		}
	}
	return true
}

// Mirror is an in-memory model of an engine style with the same validation
// rules as the engine: duplicate ids are rejected, layers need their source,
// and a source cannot be removed while a layer references it. It implements
// Renderer and is not safe for concurrent use.
type Mirror struct {
	loaded  bool
	sources map[string]SourceDescriptor
	layers  map[string]*LayerState
}

// NewMirror returns an empty mirror whose style is considered loaded.
func NewMirror() *Mirror {
	return &Mirror{
		loaded:  true,
		sources: make(map[string]SourceDescriptor),
		layers:  make(map[string]*LayerState),
	}
}

// SetStyleLoaded marks the style as loaded or loading.
func (m *Mirror) SetStyleLoaded(loaded bool) {
	m.loaded = loaded
}

// Clear drops every source and layer, as a full re-style (basemap swap) does.
func (m *Mirror) Clear() {
	m.sources = make(map[string]SourceDescriptor)
	m.layers = make(map[string]*LayerState)
}

func (m *Mirror) IsStyleLoaded() bool {
	return m.loaded
}

func (m *Mirror) HasSource(id string) bool {
	_, ok := m.sources[id]
	return ok
}

func (m *Mirror) HasLayer(id string) bool {
	_, ok := m.layers[id]
	return ok
}

func (m *Mirror) AddSource(id string, src SourceDescriptor) error {
	if !m.loaded {
		return fmt.Errorf("add source %s: %w", id, ErrStyleNotLoaded)
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("add source %s: %w", id, ErrSourceExists)
	}
	m.sources[id] = src
	return nil
}

func (m *Mirror) RemoveSource(id string) error {
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("remove source %s: %w", id, ErrSourceNotFound)
	}
	for lid, l := range m.layers {
		if l.Descriptor.Source == id {
			return fmt.Errorf("remove source %s (layer %s): %w", id, lid, ErrSourceInUse)
		}
	}
	delete(m.sources, id)
	return nil
}

func (m *Mirror) AddLayer(layer LayerDescriptor) error {
	if !m.loaded {
		return fmt.Errorf("add layer %s: %w", layer.ID, ErrStyleNotLoaded)
	}
	if _, ok := m.layers[layer.ID]; ok {
		return fmt.Errorf("add layer %s: %w", layer.ID, ErrLayerExists)
	}
	if _, ok := m.sources[layer.Source]; !ok {
		return fmt.Errorf("add layer %s (source %s): %w", layer.ID, layer.Source, ErrSourceNotFound)
	}
	m.layers[layer.ID] = &LayerState{
		Descriptor: layer,
		Filter:     layer.Filter,
		Layout:     copyProps(layer.Layout),
		Paint:      copyProps(layer.Paint),
	}
	return nil
}

func (m *Mirror) RemoveLayer(id string) error {
	if _, ok := m.layers[id]; !ok {
		return fmt.Errorf("remove layer %s: %w", id, ErrLayerNotFound)
	}
	delete(m.layers, id)
	return nil
}

func (m *Mirror) SetFilter(layerID string, filter Expression) error {
	l, ok := m.layers[layerID]
	if !ok {
		return fmt.Errorf("set filter on %s: %w", layerID, ErrLayerNotFound)
	}
	l.Filter = filter
	return nil
}

func (m *Mirror) SetPaintProperty(layerID, prop string, value any) error {
	l, ok := m.layers[layerID]
	if !ok {
		return fmt.Errorf("set paint %s on %s: %w", prop, layerID, ErrLayerNotFound)
	}
	l.Paint[prop] = value
	return nil
}

func (m *Mirror) SetLayoutProperty(layerID, prop string, value any) error {
	l, ok := m.layers[layerID]
	if !ok {
		return fmt.Errorf("set layout %s on %s: %w", prop, layerID, ErrLayerNotFound)
	}
	l.Layout[prop] = value
	return nil
}

// Layer returns a copy of the layer's current state.
func (m *Mirror) Layer(id string) (LayerState, bool) {
	l, ok := m.layers[id]
	if !ok {
		return LayerState{}, false
	}
	return LayerState{
		Descriptor: l.Descriptor,
		Filter:     l.Filter,
		Layout:     copyProps(l.Layout),
		Paint:      copyProps(l.Paint),
	}, true
}

// SourceIDs returns the ids of all sources, sorted.
func (m *Mirror) SourceIDs() []string {
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LayerIDs returns the ids of all layers, sorted.
func (m *Mirror) LayerIDs() []string {
	ids := make([]string, 0, len(m.layers))
	for id := range m.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VisibleLayerIDs returns the layers that would be drawn, sorted.
func (m *Mirror) VisibleLayerIDs() []string {
	var ids []string
	for id, l := range m.layers {
		if l.Visible() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
