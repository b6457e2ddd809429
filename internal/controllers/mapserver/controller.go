// Package mapserver serves the map clients: a websocket endpoint that drives
// one renderer session per connection, and an HTTP API to inspect and steer
// those sessions.
package mapserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/log"
	"github.com/chrissnell/aqtimeline/pkg/config"
	"github.com/chrissnell/aqtimeline/pkg/responseformat"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// statePublishInterval is how often a playing session's state is pushed to
// its client.
const statePublishInterval = 250 * time.Millisecond

// Controller represents the map server controller
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	serverConfig   config.ServerData
	settings       layers.Settings
	Server         http.Server
	Hub            *Hub
	logger         *zap.SugaredLogger
	formatter      *responseformat.Formatter
	upgrader       websocket.Upgrader
}

// NewController creates a new map server controller serving reg
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, reg *catalog.Registry, logger *zap.SugaredLogger) (*Controller, error) {
	cfgData, err := configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %v", err)
	}

	settings, err := layers.SettingsFromConfig(cfgData)
	if err != nil {
		return nil, fmt.Errorf("invalid session settings: %v", err)
	}

	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		serverConfig:   cfgData.Server,
		settings:       settings,
		Hub:            NewHub(reg, logger.Named("hub")),
		logger:         logger,
		formatter:      responseformat.NewFormatter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if cfgData.Server.EnableCORS {
		ctrl.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", cfgData.Server.ListenAddr, cfgData.Server.Port)
	ctrl.Server.Handler = ctrl.Handler()

	return ctrl, nil
}

// StartController starts the map server
func (c *Controller) StartController() error {
	log.Infof("Starting map server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key); err != http.ErrServerClosed {
				log.Errorf("map server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("map server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the map server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the router, behind a CORS layer when cross-origin clients
// are enabled
func (c *Controller) Handler() http.Handler {
	router := c.Router()
	if !c.serverConfig.EnableCORS {
		return router
	}
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(router)
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", c.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/config", c.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/catalog", c.GetCatalog).Methods(http.MethodGet)
	api.HandleFunc("/sessions", c.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", c.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/{command}", c.PostCommand).Methods(http.MethodPost)

	router.HandleFunc("/ws", c.ServeWebsocket)

	return router
}
