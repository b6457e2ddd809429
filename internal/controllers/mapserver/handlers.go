package mapserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/renderer/remote"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"github.com/chrissnell/aqtimeline/pkg/responseformat"
	"github.com/gorilla/mux"
)

// requestTimeout bounds how long an API call waits for a busy session loop.
const requestTimeout = 5 * time.Second

// CatalogResponse describes the loaded catalog.
type CatalogResponse struct {
	Epoch      string          `json:"epoch"`
	Days       int             `json:"days"`
	TotalHours int             `json:"total_hours"`
	Chunks     []catalog.Chunk `json:"chunks"`
}

// GetStatus reports that the server is up
func (c *Controller) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"sessions":  len(c.Hub.Sessions()),
	}
	c.formatter.WriteResponse(w, r, http.StatusOK, status, nil)
}

// GetConfig returns the current configuration
func (c *Controller) GetConfig(w http.ResponseWriter, r *http.Request) {
	configData, err := c.configProvider.LoadConfig()
	if err != nil {
		c.formatter.WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to load configuration: %w", err))
		return
	}

	response := map[string]interface{}{
		"config":    configData,
		"read_only": c.configProvider.IsReadOnly(),
		"timestamp": time.Now().Unix(),
	}
	c.formatter.WriteResponse(w, r, http.StatusOK, response, nil)
}

// GetCatalog returns the chunks every session resolves against
func (c *Controller) GetCatalog(w http.ResponseWriter, r *http.Request) {
	reg := c.Hub.Registry()
	tl := timeline.New(reg, nil)
	c.formatter.WriteResponse(w, r, http.StatusOK, CatalogResponse{
		Epoch:      reg.Epoch().Format(catalog.DateLayout),
		Days:       reg.Days(),
		TotalHours: tl.TotalHours(),
		Chunks:     reg.Chunks(),
	}, nil)
}

// ListSessions returns the connected map clients
func (c *Controller) ListSessions(w http.ResponseWriter, r *http.Request) {
	c.formatter.WriteResponse(w, r, http.StatusOK, c.Hub.Sessions(), nil)
}

// GetSession returns one session's state
func (c *Controller) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := c.Hub.Snapshot(ctx, mux.Vars(r)["id"])
	if err != nil {
		c.writeSessionError(w, r, err)
		return
	}
	c.formatter.WriteResponse(w, r, http.StatusOK, snap, nil)
}

// PostCommand steers a session. The body carries the command's argument,
// e.g. {"hour": 12} for seek; play and pause take no body.
func (c *Controller) PostCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var msg remote.ClientMessage
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		c.formatter.WriteError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := responseformat.Decode(responseformat.FromRequest(r), body, &msg); err != nil {
			c.formatter.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	msg.Type = vars["command"]
	if msg.Type == remote.MsgStyleData || msg.Type == remote.MsgStyleLoading {
		c.formatter.WriteError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := c.Hub.Do(ctx, vars["id"], func(m *layers.Manager) error {
		return apply(m, nil, msg)
	})
	if err != nil {
		c.writeSessionError(w, r, err)
		return
	}
	c.formatter.WriteResponse(w, r, http.StatusOK, snap, nil)
}

func (c *Controller) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, renderer.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrUnknownCommand):
		status = http.StatusNotFound
	default:
		// remaining errors come from argument validation
		status = http.StatusBadRequest
	}
	c.formatter.WriteError(w, r, status, err)
}
