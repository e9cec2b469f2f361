package app

import (
	"context"
	"io"
	"time"

	"localnotify/internal/bridge"
	"localnotify/internal/config"
	"localnotify/internal/eventbus"
	"localnotify/internal/host"
	"localnotify/internal/runtime/supervisor"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

// ServeHost runs only the host side, speaking newline-delimited JSON frames
// on r and w (typically stdin and stdout), until ctx is done or r ends.
// ready, if non-nil, is called once the host accepts commands.
func ServeHost(ctx context.Context, cfgPath string, r io.Reader, w io.Writer, ready func()) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return err
	}
	logSvc, log := logx.New(cfg.LogConfig())
	defer logSvc.Close()
	log = log.With(logx.String("comp", "serve"))

	store, err := storage.Open(mapStorageConfig(cfg), log)
	if err != nil {
		return err
	}
	defer store.Close()

	sup := supervisor.New(ctx, supervisor.WithLogger(log), supervisor.WithCancelOnError(true))
	stream := bridge.NewStream(r, w, log.With(logx.String("comp", "bridge")))
	h := host.New(stream, store, log, mapHostConfig(cfg, eventbus.New()))
	if err := h.Start(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}

	sup.GoRestart("host.deliver", h.Run, 250*time.Millisecond, 5*time.Second)
	// The stream ending means the peer went away: stop everything.
	sup.Go("bridge.stream", func(c context.Context) error {
		err := stream.Run(c)
		sup.Cancel()
		return err
	})
	log.Info("host serving", logx.String("storage", cfg.Storage.Driver))
	if ready != nil {
		ready()
	}

	<-sup.Context().Done()
	// A stream blocked reading stdin cannot be interrupted; do not wait on it forever.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sup.Wait(stopCtx)
	return sup.Err()
}
