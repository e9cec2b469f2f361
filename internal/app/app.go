package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"localnotify/internal/bridge"
	"localnotify/internal/config"
	"localnotify/internal/eventbus"
	"localnotify/internal/host"
	"localnotify/internal/localnotify"
	"localnotify/internal/runtime/loop"
	"localnotify/internal/runtime/supervisor"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

// App runs a notification client against the built-in host, connected by an
// in-process pipe.
type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	loop    *loop.Loop
	appEnd  *bridge.Endpoint
	hostEnd *bridge.Endpoint
	host    *host.Host
	client  *localnotify.Client

	stopOnce sync.Once
}

// New loads the config at cfgPath ("" for defaults plus environment) and
// builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log)
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(mapStorageConfig(cfg), log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	l := loop.New(log)
	appEnd, hostEnd := bridge.NewPipe(log.With(logx.String("comp", "bridge")))

	h := host.New(hostEnd, store, log, mapHostConfig(cfg, bus))
	c := localnotify.New(appEnd, l,
		localnotify.WithLogger(log),
		localnotify.WithBus(bus),
		localnotify.WithDiscreteRepeat(cfg.DiscreteRepeat()),
	)

	return &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		loop:    l,
		appEnd:  appEnd,
		hostEnd: hostEnd,
		host:    h,
		client:  c,
	}, nil
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: cfg.BusyTimeout(),
	}
}

func mapHostConfig(cfg *config.Config, bus eventbus.Bus) host.Config {
	return host.Config{
		AutoGrantPermission: cfg.Host.AutoGrantPermission,
		DeliverRatePerSec:   cfg.Host.DeliverRatePerSec,
		DeliverBurst:        cfg.Host.DeliverBurst,
		Location:            cfg.Location(),
		Bus:                 bus,
	}
}

func (a *App) Client() *localnotify.Client { return a.client }
func (a *App) Bus() eventbus.Bus          { return a.bus }
func (a *App) Logger() logx.Logger        { return a.log }
func (a *App) Config() *config.Config     { return a.cfg }

// RequestTimeout bounds the blocking client helpers; 0 means no bound.
func (a *App) RequestTimeout() time.Duration { return a.cfg.RequestTimeout() }

// Done is closed when the app stops, on Stop or after a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the host, the transport pumps and the client loop, then sends
// Ready. The host registers its handlers first so Ready is never dropped.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.host.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sup.Go("bridge.app", a.appEnd.Run)
	a.sup.Go("bridge.host", a.hostEnd.Run)
	a.sup.Go("loop", a.loop.Run)
	a.sup.GoRestart("host.deliver", a.host.Run, 250*time.Millisecond, 5*time.Second)
	a.client.Start()

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.log.Info("started",
		logx.String("storage", a.cfg.Storage.Driver),
		logx.Bool("discrete_repeat", a.cfg.DiscreteRepeat()),
	)
	return nil
}

// WatchConfig hot-reloads the config file until the app stops. Logging
// changes apply live; anything else is reported as needing a restart.
func (a *App) WatchConfig() {
	if a.sup == nil || a.cfgm.Path() == "" {
		return
	}
	sub := a.cfgm.Subscribe(8)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
	a.log.Info("config change summary", fields...)
	a.logs.Apply(next.LogConfig())
	if config.RestartRequired(sections) {
		a.log.Warn("config changed outside logging; restart required for changes to take effect")
	}
}

// Stop cancels everything, waits for goroutines up to ctx, then closes storage
// and log sinks.
func (a *App) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.sup != nil {
			if werr := a.sup.Stop(ctx); werr != nil && !errors.Is(werr, context.Canceled) {
				err = werr
			}
		}
		a.appEnd.Close()
		a.hostEnd.Close()
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.log.Info("stopped")
		_ = a.logs.Close()
	})
	return err
}
