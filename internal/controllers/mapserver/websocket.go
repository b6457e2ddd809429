package mapserver

import (
	"context"
	"net/http"
	"time"

	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/renderer/remote"
	"github.com/chrissnell/aqtimeline/pkg/responseformat"
)

// ServeWebsocket upgrades a map client and runs its session until the
// connection or the server goes away.
func (c *Controller) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	format := responseformat.FromRequest(r)
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := remote.NewSession(conn, format, c.logger.Named("remote"))
	loop, err := layers.NewLoop(sess.ID, sess, c.Hub.Registry(), c.settings.Options, c.settings.FrameInterval,
		c.logger.Named("layers").With("session", sess.ID))
	if err != nil {
		c.logger.Errorw("failed to create session loop", "error", err)
		_ = sess.PublishError(err)
		sess.Close()
		return
	}

	entry := &session{loop: loop, publisher: sess, remote: r.RemoteAddr, started: time.Now()}
	c.Hub.add(sess.ID, entry)
	defer c.Hub.remove(sess.ID)

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil {
			c.logger.Errorw("session loop failed", "session", sess.ID, "error", err)
		}
	}()
	go c.publishPlayback(ctx, entry)

	err = sess.Run(ctx, func(msg remote.ClientMessage) {
		_, err := entry.do(ctx, func(m *layers.Manager) error {
			return apply(m, sess, msg)
		})
		if err != nil && !remote.IsClosed(err) && ctx.Err() == nil {
			c.logger.Debugw("client message rejected", "session", sess.ID, "type", msg.Type, "error", err)
			_ = sess.PublishError(err)
		}
	})
	if err != nil {
		c.logger.Debugw("session connection ended", "session", sess.ID, "error", err)
	}

	cancel()
	<-loopDone
}

// publishPlayback pushes state while a session plays, so the client's time
// slider follows frames it did not ask for.
func (c *Controller) publishPlayback(ctx context.Context, s *session) {
	ticker := time.NewTicker(statePublishInterval)
	defer ticker.Stop()

	lastIndex := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := s.loop.Do(ctx, func(m *layers.Manager) {
			snap := m.Snapshot()
			if !snap.Playing || snap.Index == lastIndex {
				return
			}
			lastIndex = snap.Index
			_ = s.publisher.PublishState(snap)
		})
		if err != nil {
			return
		}
	}
}
