// Package renderer defines the narrow capability interface the scheduler uses
// to drive a map rendering engine, together with the declarative source,
// layer and expression types passed across it.
package renderer

import "errors"

// Renderer is the subset of the map engine API the scheduler relies on. The
// engine is the single source of truth for which sources and layers exist;
// callers probe with HasSource/HasLayer before mutating.
type Renderer interface {
	HasSource(id string) bool
	HasLayer(id string) bool
	AddSource(id string, src SourceDescriptor) error
	RemoveSource(id string) error
	AddLayer(layer LayerDescriptor) error
	RemoveLayer(id string) error
	SetFilter(layerID string, filter Expression) error
	SetPaintProperty(layerID, prop string, value any) error
	SetLayoutProperty(layerID, prop string, value any) error
	IsStyleLoaded() bool
}

// Errors returned by renderer implementations. Implementations wrap them with
// the offending id.
var (
	ErrStyleNotLoaded = errors.New("style is not loaded")
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source does not exist")
	ErrSourceInUse    = errors.New("source is still referenced by a layer")
	ErrLayerExists    = errors.New("layer already exists")
	ErrLayerNotFound  = errors.New("layer does not exist")
	ErrSessionClosed  = errors.New("renderer session closed")
)

// Layout and paint property names used by the scheduler.
const (
	PropVisibility    = "visibility"
	PropCircleColor   = "circle-color"
	PropCircleOpacity = "circle-opacity"
	PropCircleRadius  = "circle-radius"
	PropCircleBlur    = "circle-blur"
)

// Visibility values for PropVisibility.
const (
	Visible = "visible"
	Hidden  = "none"
)

// SourceDescriptor describes a tile source.
type SourceDescriptor struct {
	Type    string   `json:"type"`
	URL     string   `json:"url,omitempty"`
	Tiles   []string `json:"tiles,omitempty"`
	MinZoom int      `json:"minzoom,omitempty"`
	MaxZoom int      `json:"maxzoom,omitempty"`
}

// LayerDescriptor describes a style layer at creation time.
type LayerDescriptor struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      Expression     `json:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Expression is a style expression in the engine's JSON array form, e.g.
// ["==", ["get", "time"], "2024-07-01T13:00:00"].
type Expression []any
