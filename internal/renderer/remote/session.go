package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 1024
)

// Session is a renderer.Renderer backed by a websocket client. Renderer
// methods must be called from one goroutine; frames are written by the
// session's own writer.
type Session struct {
	ID string

	conn   *websocket.Conn
	format responseformat.Format
	logger *zap.SugaredLogger
	mirror *renderer.Mirror

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	seq       atomic.Uint64
}

// NewSession wraps an upgraded connection. The style is considered loading
// until the client reports styledata.
func NewSession(conn *websocket.Conn, format responseformat.Format, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	id := uuid.NewString()
	mirror := renderer.NewMirror()
	mirror.SetStyleLoaded(false)
	return &Session{
		ID:     id,
		conn:   conn,
		format: format,
		logger: logger.With("session", id),
		mirror: mirror,
		send:   make(chan []byte, sendQueue),
		closed: make(chan struct{}),
	}
}

// Mirror exposes the session's model of the client style.
func (s *Session) Mirror() *renderer.Mirror {
	return s.mirror
}

// Closed is closed when the connection is gone.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Close shuts the connection down. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// Run pumps frames in both directions until ctx is done or the connection
// fails. dispatch is called on the reader goroutine for every client message.
func (s *Session) Run(ctx context.Context, dispatch func(ClientMessage)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
		return nil
	})
	g.Go(func() error {
		defer s.Close()
		return s.writePump(ctx)
	})
	g.Go(func() error {
		defer s.Close()
		return s.readPump(dispatch)
	})
	err := g.Wait()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// HandleStyleData records that the client finished (re)loading its style,
// which drops every source and layer it had.
func (s *Session) HandleStyleData() {
	s.mirror.Clear()
	s.mirror.SetStyleLoaded(true)
}

// HandleStyleLoading records that the client started swapping its style.
func (s *Session) HandleStyleLoading() {
	s.mirror.SetStyleLoaded(false)
}

// PublishState sends a state frame.
func (s *Session) PublishState(state any) error {
	return s.enqueue(Frame{Type: FrameState, State: state})
}

// PublishError sends an error frame.
func (s *Session) PublishError(err error) error {
	return s.enqueue(Frame{Type: FrameError, Error: err.Error()})
}

func (s *Session) IsStyleLoaded() bool     { return s.mirror.IsStyleLoaded() }
func (s *Session) HasSource(id string) bool { return s.mirror.HasSource(id) }
func (s *Session) HasLayer(id string) bool  { return s.mirror.HasLayer(id) }

func (s *Session) AddSource(id string, src renderer.SourceDescriptor) error {
	if err := s.mirror.AddSource(id, src); err != nil {
		return err
	}
	return s.command(Command{Op: OpAddSource, ID: id, Source: &src})
}

func (s *Session) RemoveSource(id string) error {
	if err := s.mirror.RemoveSource(id); err != nil {
		return err
	}
	return s.command(Command{Op: OpRemoveSource, ID: id})
}

func (s *Session) AddLayer(layer renderer.LayerDescriptor) error {
	if err := s.mirror.AddLayer(layer); err != nil {
		return err
	}
	return s.command(Command{Op: OpAddLayer, ID: layer.ID, Layer: &layer})
}

func (s *Session) RemoveLayer(id string) error {
	if err := s.mirror.RemoveLayer(id); err != nil {
		return err
	}
	return s.command(Command{Op: OpRemoveLayer, ID: id})
}

func (s *Session) SetFilter(layerID string, filter renderer.Expression) error {
	if err := s.mirror.SetFilter(layerID, filter); err != nil {
		return err
	}
	return s.command(Command{Op: OpSetFilter, ID: layerID, Filter: filter})
}

func (s *Session) SetPaintProperty(layerID, prop string, value any) error {
	if err := s.mirror.SetPaintProperty(layerID, prop, value); err != nil {
		return err
	}
	return s.command(Command{Op: OpSetPaintProperty, ID: layerID, Prop: prop, Value: value})
}

func (s *Session) SetLayoutProperty(layerID, prop string, value any) error {
	if err := s.mirror.SetLayoutProperty(layerID, prop, value); err != nil {
		return err
	}
	return s.command(Command{Op: OpSetLayoutProperty, ID: layerID, Prop: prop, Value: value})
}

func (s *Session) command(c Command) error {
	return s.enqueue(Frame{Type: FrameCommand, Command: &c})
}

func (s *Session) enqueue(f Frame) error {
	select {
	case <-s.closed:
		return renderer.ErrSessionClosed
	default:
	}

	f.Seq = s.seq.Add(1)
	b, err := responseformat.Encode(s.format, f)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	default:
		s.logger.Warnw("send queue full, dropping client", "queued", len(s.send))
		s.Close()
		return fmt.Errorf("send queue full: %w", renderer.ErrSessionClosed)
	}
}

func (s *Session) messageType() int {
	if s.format == responseformat.MsgPack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (s *Session) writePump(ctx context.Context) error {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-s.closed:
			return nil
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(s.messageType(), b); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (s *Session) readPump(dispatch func(ClientMessage)) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			return err
		}

		format := responseformat.JSON
		if mt == websocket.BinaryMessage {
			format = responseformat.MsgPack
		}
		var msg ClientMessage
		if err := responseformat.Decode(format, data, &msg); err != nil {
			s.logger.Debugw("ignoring malformed client message", "error", err)
			continue
		}
		if msg.Type == "" {
			s.logger.Debugw("ignoring client message without type")
			continue
		}
		dispatch(msg)
	}
}

// IsClosed reports whether err means the session is gone.
func IsClosed(err error) bool {
	return errors.Is(err, renderer.ErrSessionClosed)
}

var _ renderer.Renderer = (*Session)(nil)
