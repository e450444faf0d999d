package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/assembler"
	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/interpreter"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/config"
	"simbridge.ai/internal/logging"
	"simbridge.ai/internal/persistence/indexdb"
	persistlog "simbridge.ai/internal/persistence/log"
	"simbridge.ai/internal/persistence/r2s3"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim/scene"
	"simbridge.ai/internal/transport/natsmirror"
	"simbridge.ai/internal/transport/observer"
	"simbridge.ai/internal/transport/ws"
)

func main() {
	var (
		configPath  = flag.String("config", "./configs/bridge.yaml", "bridge config path (empty for built-in defaults)")
		addr        = flag.String("addr", "", "http listen address (overrides config)")
		scenePath   = flag.String("scene", "", "scene fixture path (overrides config)")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof endpoints")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *scenePath != "" {
		cfg.Scene = *scenePath
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	log := logger.WithField("component", "server")

	fixture, err := scene.LoadFixture(cfg.Scene)
	if err != nil {
		log.WithError(err).Fatal("load scene")
	}
	sc := scene.New(fixture)

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := build(ctx, cfg, sc, logger)
	if err != nil {
		log.WithError(err).Fatal("build bridge")
	}
	defer rt.Close()

	go func() {
		if err := sc.Run(ctx, cfg.TickInterval()); err != nil && err != context.Canceled {
			log.WithError(err).Error("scene stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler())
	mux.HandleFunc("/admin/v1/observer/bootstrap", rt.observer.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", rt.observer.WSHandler())
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	wsHandler := ws.NewServer(rt.registry, cfg.SendBuffer, logger).Handler()
	mux.HandleFunc("/ws", wsHandler)
	mux.HandleFunc("/", wsHandler)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", cfg.Listen).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
}

// runtime is the wired bridge: one executor feeding every broadcast sink.
type runtime struct {
	scene    *scene.Scene
	exec     *executor.Executor
	registry *registry.Registry
	observer *observer.Server
	recorder *persistlog.Recorder
	archive  *r2s3.Uploader
	index    indexdb.Index
	mirror   *natsmirror.Mirror
	nats     *natsmirror.EmbeddedServer
}

func build(ctx context.Context, cfg config.Config, sc *scene.Scene, logger logrus.FieldLogger) (*runtime, error) {
	l, err := cfg.LoadLayout()
	if err != nil {
		return nil, err
	}
	rt := &runtime{scene: sc, observer: observer.NewServer(logger)}

	if cfg.Record.Enabled {
		var opts []persistlog.RecorderOption
		if cfg.Archive.Enabled {
			if err := rt.openArchive(cfg, logger); err != nil {
				return nil, err
			}
			opts = append(opts, persistlog.WithArchive(rt.archive.Enqueue))
		}
		rt.recorder = persistlog.NewRecorder(cfg.Record.Dir, logger, opts...)
	}
	rt.index, err = openIndex(cfg.Index, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open index backend: %w", err)
	}
	if cfg.NATS.Enabled {
		if err := rt.connectNATS(cfg.NATS, logger); err != nil {
			rt.Close()
			return nil, err
		}
	}

	asm := assembler.New(sc, cfg.AssemblerConfig(), l, logger)
	asm.Watch(sc)
	interp := interpreter.New(sc, sc, l, cfg.InterpreterConfig(), logger)

	opts := []executor.Option{
		executor.WithTick(sc.TickCount),
		executor.WithBroadcaster(executor.BroadcastFunc(func(snap *protocol.Snapshot) {
			rt.registry.Broadcast(snap)
		})),
		executor.WithBroadcaster(rt.observer),
	}
	var observers []registry.Option
	if rt.recorder != nil {
		opts = append(opts, executor.WithBroadcaster(rt.recorder), executor.WithResults(rt.recorder.Result))
		observers = append(observers, registry.WithObserver(rt.recorder.Command))
	}
	if rt.index != nil {
		opts = append(opts, executor.WithBroadcaster(rt.index), executor.WithResults(rt.index.RecordResult))
		observers = append(observers, registry.WithObserver(rt.index.RecordCommand))
	}
	if rt.mirror != nil {
		opts = append(opts, executor.WithBroadcaster(rt.mirror))
	}

	rt.exec = executor.New(asm, cfg.ExecutorConfig(), logger, opts...)
	rt.registry = registry.New(interp, rt.exec, logger, observers...)
	rt.exec.Attach(sc)

	if rt.mirror != nil && cfg.NATS.AcceptCommands {
		go func() {
			if err := rt.mirror.ServeCommands(ctx, rt.registry); err != nil {
				logger.WithField("component", "server").WithError(err).Error("nats command path stopped")
			}
		}()
	}
	return rt, nil
}

func (rt *runtime) openArchive(cfg config.Config, logger logrus.FieldLogger) error {
	a := cfg.Archive
	if a.AccessKeyID == "" {
		a.AccessKeyID = os.Getenv("SIMBRIDGE_ARCHIVE_ACCESS_KEY_ID")
	}
	if a.SecretAccessKey == "" {
		a.SecretAccessKey = os.Getenv("SIMBRIDGE_ARCHIVE_SECRET_ACCESS_KEY")
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        a.Endpoint,
		Bucket:          a.Bucket,
		Region:          a.Region,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	rt.archive = r2s3.NewUploader(client, r2s3.UploaderConfig{
		BaseDir: cfg.Record.Dir,
		Prefix:  a.Prefix,
		Workers: a.Workers,
	}, logger)
	return nil
}

func (rt *runtime) connectNATS(cfg config.NATSConfig, logger logrus.FieldLogger) error {
	url := cfg.URL
	if cfg.Embedded {
		ns, err := natsmirror.NewEmbeddedServer(natsmirror.WithPort(cfg.EmbeddedPort))
		if err != nil {
			return fmt.Errorf("embedded nats: %w", err)
		}
		if err := ns.Start(); err != nil {
			return fmt.Errorf("embedded nats: %w", err)
		}
		rt.nats = ns
		url = ns.ClientURL()
	}
	m, err := natsmirror.Connect(natsmirror.Config{
		URL:            strings.TrimSpace(url),
		StateSubject:   cfg.StateSubject,
		CommandSubject: cfg.CommandSubject,
	}, logger)
	if err != nil {
		return err
	}
	rt.mirror = m
	return nil
}

func (rt *runtime) Close() {
	if rt.mirror != nil {
		rt.mirror.Close()
	}
	if rt.nats != nil {
		rt.nats.Shutdown()
	}
	if rt.index != nil {
		_ = rt.index.Close()
	}
	if rt.recorder != nil {
		_ = rt.recorder.Close()
	}
	// After the recorder, which hands over its last files on close.
	rt.archive.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
