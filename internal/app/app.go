// Package app wires configuration, storage, the dispatcher, the module
// manager and the optional gateway, watcher and admin surfaces into one
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/admin"
	"github.com/roach88/cogd/internal/config"
	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/gateway"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/module"
	"github.com/roach88/cogd/internal/store"
	"github.com/roach88/cogd/modules/usage"
)

// App is a configured cogd process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	registry   *controller.Registry
	dispatcher *dispatch.Dispatcher
	manager    *module.Manager
	watcher    *module.Watcher
	nc         *nats.Conn
	bridge     *gateway.Bridge
	admin      *admin.Server

	closeOnce sync.Once
	closeErr  error
}

// New opens the store and builds every enabled component. Nothing is
// loaded, subscribed or served until Run.
func New(ctx context.Context, cfg *config.Config, catalog *module.Catalog, logger *logging.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	fsys, root := model.Migrations()
	client, err := store.Open(ctx, cfg.Store.Path, store.Options{
		BusyTimeout:    cfg.Store.BusyTimeout.Duration(),
		MaxOpenConns:   cfg.Store.MaxOpenConns,
		Migrations:     fsys,
		MigrationsRoot: root,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.registry = controller.NewRegistry(client, logger)

	stats, err := model.NewUsageController(a.registry)
	if err != nil {
		return nil, err
	}
	a.dispatcher = dispatch.New(
		dispatch.WithLogger(logger),
		dispatch.WithQueueWarn(cfg.Dispatch.QueueWarn),
		dispatch.WithMiddleware(usage.Middleware(stats, logger)),
	)

	var outbound dispatch.Outbound
	if cfg.Gateway.Enabled {
		if a.nc, err = gateway.Connect(cfg.Gateway.NATSURL, cfg.Gateway.Name, logger); err != nil {
			return nil, err
		}
		a.bridge, err = gateway.NewBridge(a.nc, a.dispatcher, gateway.Options{
			Subject:      cfg.Gateway.Subject,
			ReplySubject: cfg.Gateway.ReplySubject,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		outbound = a.bridge
	}

	a.manager, err = module.NewManager(module.Options{
		Root:     cfg.Modules.Root,
		Catalog:  catalog,
		Router:   a.dispatcher,
		Registry: a.registry,
		Outbound: outbound,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if a.bridge != nil {
		a.manager.OnTransition(a.bridge.NotifyTransition)
	}

	if cfg.Modules.Watch {
		if a.watcher, err = module.NewWatcher(a.manager, cfg.Modules.Debounce.Duration()); err != nil {
			return nil, err
		}
	}
	if cfg.Admin.Enabled {
		if a.admin, err = admin.NewServer(a.manager, client, logger, cfg.Admin.Addr()); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Manager returns the module manager.
func (a *App) Manager() *module.Manager { return a.manager }

// Dispatcher returns the event dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Registry returns the controller registry.
func (a *App) Registry() *controller.Registry { return a.registry }

// Admin returns the admin server, or nil when it is disabled.
func (a *App) Admin() *admin.Server { return a.admin }

// Run loads every module, starts the enabled surfaces and blocks until ctx
// is done or a surface fails. It then shuts everything down and closes the
// store.
func (a *App) Run(ctx context.Context) error {
	a.manager.LoadAll(ctx)

	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- a.dispatcher.Run(context.WithoutCancel(ctx)) }()

	failed := make(chan error, 1)
	runErr := a.start(ctx, failed)
	if runErr == nil {
		a.logger.Info(ctx, "cogd running",
			zap.String("modules.root", a.manager.Root()),
			zap.Bool("gateway", a.bridge != nil),
			zap.Bool("watch", a.watcher != nil),
			zap.Bool("admin", a.admin != nil))
		select {
		case <-ctx.Done():
		case runErr = <-failed:
		}
	}
	return errors.Join(runErr, a.shutdown(dispatchDone))
}

func (a *App) start(ctx context.Context, failed chan<- error) error {
	if a.bridge != nil {
		if err := a.bridge.Start(); err != nil {
			return err
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
	}
	if a.admin != nil {
		go func() {
			if err := a.admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				select {
				case failed <- fmt.Errorf("admin server: %w", err):
				default:
				}
			}
		}()
	}
	return nil
}

// shutdown stops intake first, drains queued events into the handlers that
// are still registered, then unloads modules and closes the store.
func (a *App) shutdown(dispatchDone <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Admin.ShutdownTimeout.Duration())
	defer cancel()
	a.logger.Info(ctx, "cogd shutting down")

	var errs []error
	if a.bridge != nil {
		errs = append(errs, a.bridge.Stop())
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown admin server: %w", err))
		}
	}

	a.dispatcher.Stop()
	drained := make(chan struct{})
	go func() {
		<-dispatchDone
		a.dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("dispatcher did not drain: %w", ctx.Err()))
	}

	if err := a.manager.UnloadAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unload modules: %w", err))
	}
	errs = append(errs, a.Close())
	return errors.Join(errs...)
}

// Close releases the NATS connection and the store. It is safe to call
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.nc != nil {
			if err := a.nc.FlushTimeout(time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				a.logger.Warn(context.Background(), "nats flush failed", zap.Error(err))
			}
			a.nc.Close()
		}
		if a.registry != nil {
			a.closeErr = a.registry.Close()
		}
	})
	return a.closeErr
}
