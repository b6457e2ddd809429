package mapserver

import (
	"errors"
	"fmt"

	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/playback"
	"github.com/chrissnell/aqtimeline/internal/renderer/remote"
)

// ErrUnknownCommand is returned for message types the manager does not take.
var ErrUnknownCommand = errors.New("unknown command")

// StyleEvents receives the client's style lifecycle messages. Only the
// websocket session implements it; HTTP callers cannot send them.
type StyleEvents interface {
	HandleStyleData()
	HandleStyleLoading()
}

// apply feeds one client message to the manager. It runs on the loop
// goroutine.
func apply(m *layers.Manager, style StyleEvents, msg remote.ClientMessage) error {
	switch msg.Type {
	case remote.MsgStyleData:
		if style == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
		}
		style.HandleStyleData()
		m.StyleReset()
	case remote.MsgStyleLoading:
		if style == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
		}
		style.HandleStyleLoading()
		m.StyleReset()
	case remote.MsgSeek:
		m.Seek(msg.Hour)
	case remote.MsgThreshold:
		m.SetThreshold(msg.Value)
	case remote.MsgTheme:
		return m.SetTheme(layers.ThemeMode(msg.Theme))
	case remote.MsgPlay:
		m.Play()
	case remote.MsgPause:
		m.Pause()
	case remote.MsgSpeed:
		m.SetSpeed(msg.Value)
	case remote.MsgMode:
		mode, err := playback.ParseMode(msg.Mode)
		if err != nil {
			return err
		}
		m.SetMode(mode)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
	}
	return nil
}
