package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/catalogwatch"
	"github.com/chrissnell/aqtimeline/internal/controllers/mapserver"
	"github.com/chrissnell/aqtimeline/pkg/config"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager builds the catalog and the controllers serving it.
// configPath is the file watched for catalog changes; it is empty for
// database-backed configuration.
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, provider config.ConfigProvider, configPath string, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		provider:    provider,
		logger:      logger,
		controllers: make([]Controller, 0),
	}

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %v", err)
	}
	reg, err := catalog.FromConfig(cfgData.Catalog, time.Now(), logger.Named("catalog"))
	if err != nil {
		return nil, fmt.Errorf("error building catalog: %v", err)
	}
	logger.Infof("Loaded catalog of %d chunks covering %d days from %s",
		reg.Len(), reg.Days(), reg.Epoch().Format(catalog.DateLayout))

	ms, err := mapserver.NewController(ctx, wg, provider, reg, logger.Named("mapserver"))
	if err != nil {
		return nil, fmt.Errorf("error creating map server: %v", err)
	}
	cm.controllers = append(cm.controllers, ms)

	if configPath != "" || catalog.Rolling(cfgData.Catalog) {
		watcher := catalogwatch.New(provider, configPath, ms.Hub, reg, logger.Named("catalogwatch"))
		cm.controllers = append(cm.controllers, &watchController{ctx: ctx, wg: wg, watcher: watcher, logger: logger})
	}

	return cm, nil
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	provider    config.ConfigProvider
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// watchController runs the catalog watcher as a controller.
type watchController struct {
	ctx     context.Context
	wg      *sync.WaitGroup
	watcher *catalogwatch.Watcher
	logger  *zap.SugaredLogger
}

func (w *watchController) StartController() error {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.watcher.Run(w.ctx); err != nil {
			w.logger.Errorf("catalog watcher error: %v", err)
		}
	}()
	return nil
}
