// Package app wires a session to its logging, metrics, debug server and
// packet source.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NeonKnightOA/KMQuake2/internal/config"
	"github.com/NeonKnightOA/KMQuake2/internal/debughttp"
	"github.com/NeonKnightOA/KMQuake2/internal/delta"
	"github.com/NeonKnightOA/KMQuake2/internal/demo"
	"github.com/NeonKnightOA/KMQuake2/internal/dump"
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/session"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/internal/transport/ws"
	"github.com/NeonKnightOA/KMQuake2/logging"
	loggingSinks "github.com/NeonKnightOA/KMQuake2/logging/sinks"
)

type Options struct {
	Config config.Config
	Logger telemetry.Logger
	// Stdout receives console and zerolog sink output.
	Stdout io.Writer
	// Registry collects the exported metrics. Nil uses a private registry.
	Registry *prometheus.Registry
	// Demos overrides the demo source, mostly for tests.
	Demos demo.Source
}

// App owns one session and everything attached to it.
type App struct {
	cfg      config.Config
	logger   telemetry.Logger
	router   *logging.Router
	counters *telemetry.Counters
	registry *prometheus.Registry
	store    *debughttp.Store
	session  *session.Session
	tap      *debughttp.Tap
	demos    demo.Source

	debugServer *http.Server
	closers     []io.Closer
}

func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	cfg := opts.Config

	a := &App{
		cfg:      cfg,
		logger:   logger,
		counters: telemetry.NewCounters(),
		registry: opts.Registry,
		store:    debughttp.NewStore(),
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	sinks, err := a.buildSinks(cfg.Logging, stdout)
	if err != nil {
		a.closeFiles()
		return nil, err
	}
	router, err := logging.NewRouter(cfg.Logging, logging.ClockFunc(time.Now), nil, sinks...)
	if err != nil {
		a.closeFiles()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	a.router = router

	prom := telemetry.NewPrometheus(
		telemetry.WithNamespace(cfg.MetricsNamespace),
		telemetry.WithRegistry(a.registry),
	)
	counts := &delta.BitCounts{}
	a.registry.MustRegister(telemetry.NewBitCollector(cfg.MetricsNamespace, counts))

	sess, err := session.New(cfg.Session(),
		session.WithPublisher(router),
		session.WithMetrics(telemetry.Multi(a.counters, prom)),
		session.WithBitCounts(counts),
		session.WithPresentation(consolePresentation{logger: logger}),
	)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.session = sess
	a.tap = debughttp.NewTap(sess, a.store, logger)

	a.demos = opts.Demos
	if a.demos == nil {
		a.demos = demo.Router{
			Files: demo.FileSource{},
			S3:    demo.NewS3Source(demo.NewS3Client(cfg.S3)),
		}
	}
	return a, nil
}

func (a *App) buildSinks(cfg logging.Config, stdout io.Writer) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(stdout, cfg.Console)})
		case "zerolog":
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewZerolog(stdout, false)})
		case "json":
			w := stdout
			if cfg.JSON.FilePath != "" {
				f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return nil, fmt.Errorf("open json log: %w", err)
				}
				a.closers = append(a.closers, f)
				w = f
			}
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(w, cfg.JSON.FlushInterval)})
		default:
			return nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return sinks, nil
}

func (a *App) Session() *session.Session {
	return a.session
}

func (a *App) Counters() *telemetry.Counters {
	return a.counters
}

// Handler serves the debug endpoints.
func (a *App) Handler() http.Handler {
	return debughttp.NewRouter(debughttp.RouterConfig{
		Store:    a.store,
		Gatherer: a.registry,
		Counters: a.counters,
	})
}

// ServeDebug starts the debug server on addr in the background and returns
// the address it bound.
func (a *App) ServeDebug(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("debug listen: %w", err)
	}
	a.debugServer = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.debugServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Printf("debug server failed: %v", err)
		}
	}()
	a.logger.Printf("debug server listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

type ReplayOptions struct {
	// Realtime paces packets at the server tick instead of as fast as
	// possible.
	Realtime bool
	// Dump, when set, receives a snapshot of every frame.
	Dump *dump.Writer
}

// Replay plays the demo at location through the session.
func (a *App) Replay(ctx context.Context, location string, opts ReplayOptions) (int, error) {
	rc, err := a.demos.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var handler demo.PacketHandler = a.tap
	if opts.Dump != nil {
		handler = &dumpingHandler{tap: a.tap, store: a.store, out: opts.Dump}
	}
	var replay demo.ReplayOptions
	if opts.Realtime && !a.cfg.Timedemo {
		replay.Interval = frame.TickMillis * time.Millisecond
	}

	start := time.Now()
	n, err := demo.Replay(ctx, demo.NewReader(rc), handler, replay)
	elapsed := time.Since(start)
	if err != nil {
		return n, err
	}
	stats := a.counters.Snapshot()
	a.logger.Printf("%d packets, %d frames (%d invalid) in %s", n, stats.FramesParsed, stats.FramesInvalid, elapsed.Round(time.Millisecond))
	return n, nil
}

// Connect streams packets from a websocket relay until it closes.
func (a *App) Connect(ctx context.Context, url string) error {
	client, err := ws.Dial(ctx, url, ws.ClientConfig{Logger: a.logger})
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Run(ctx, a.tap)
}

// Close stops the debug server, drains the logging router and closes the
// log files.
func (a *App) Close(ctx context.Context) error {
	var result error
	if a.debugServer != nil {
		if err := a.debugServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown debug server: %w", err))
		}
	}
	if a.router != nil {
		if err := a.router.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close logging router: %w", err))
		}
	}
	if err := a.closeFiles(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func (a *App) closeFiles() error {
	var result error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result
}

// dumpingHandler writes a snapshot after every packet that produced a new
// frame.
type dumpingHandler struct {
	tap   *debughttp.Tap
	store *debughttp.Store
	out   *dump.Writer
	last  int32
}

func (h *dumpingHandler) ProcessPacket(ctx context.Context, data []byte) error {
	if err := h.tap.ProcessPacket(ctx, data); err != nil {
		return err
	}
	snap, ok := h.store.Latest()
	if !ok || snap.Frame.ServerFrame == h.last {
		return nil
	}
	h.last = snap.Frame.ServerFrame
	return h.out.Write(snap)
}
