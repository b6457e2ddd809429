// Package remote drives a map engine in a browser over a websocket. The
// session keeps a Mirror of the engine's style so existence probes are
// answered locally, and forwards every accepted mutation as a command frame.
package remote

import (
	"github.com/chrissnell/aqtimeline/internal/renderer"
)

// Server to client frame types.
const (
	FrameCommand = "command"
	FrameState   = "state"
	FrameError   = "error"
)

// Client to server message types.
const (
	MsgStyleData    = "styledata"
	MsgStyleLoading = "styleloading"
	MsgSeek         = "seek"
	MsgThreshold    = "threshold"
	MsgTheme        = "theme"
	MsgPlay         = "play"
	MsgPause        = "pause"
	MsgSpeed        = "speed"
	MsgMode         = "mode"
)

// Command ops, named after the engine's API.
const (
	OpAddSource         = "addSource"
	OpRemoveSource      = "removeSource"
	OpAddLayer          = "addLayer"
	OpRemoveLayer       = "removeLayer"
	OpSetFilter         = "setFilter"
	OpSetPaintProperty  = "setPaintProperty"
	OpSetLayoutProperty = "setLayoutProperty"
)

// Command is one renderer mutation for the client to replay.
type Command struct {
	Op     string                     `json:"op"`
	ID     string                     `json:"id"`
	Source *renderer.SourceDescriptor `json:"source,omitempty"`
	Layer  *renderer.LayerDescriptor  `json:"layer,omitempty"`
	Filter renderer.Expression        `json:"filter,omitempty"`
	Prop   string                     `json:"prop,omitempty"`
	Value  any                        `json:"value,omitempty"`
}

// Frame is everything the server sends.
type Frame struct {
	Type    string   `json:"type"`
	Seq     uint64   `json:"seq"`
	Command *Command `json:"command,omitempty"`
	State   any      `json:"state,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ClientMessage is everything the client sends. Only the fields relevant to
// Type are set.
type ClientMessage struct {
	Type  string  `json:"type"`
	Hour  int     `json:"hour,omitempty"`
	Value float64 `json:"value,omitempty"`
	Theme string  `json:"theme,omitempty"`
	Mode  string  `json:"mode,omitempty"`
}
