// Command planetview serves an interactive planet map view over HTTP.
//
// The map surface is headless and the cursor mask renders on the noop GPU
// backend, so the full overlay pipeline runs without a display. Clients drive
// the view through the JSON API and follow it on the /ws state stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/assets"
	"github.com/gogpu/planetmap/basemap/headless"
	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/frame"
	"github.com/gogpu/planetmap/internal/config"
	"github.com/gogpu/planetmap/internal/logging"
	"github.com/gogpu/planetmap/internal/metrics"
	"github.com/gogpu/planetmap/internal/server"
	"github.com/gogpu/planetmap/layer"
	"github.com/gogpu/planetmap/mask"
	"github.com/gogpu/planetmap/tile"
	"github.com/gogpu/planetmap/view"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default: "+config.PathEnvVar+" or ./config.yaml)")
		maskOut    = flag.String("mask-preview", "", "write a PNG of the cursor mask coverage and exit")
	)
	flag.Parse()

	if err := run(*configPath, *maskOut); err != nil {
		fmt.Fprintln(os.Stderr, "planetview:", err)
		os.Exit(1)
	}
}

func run(configPath, maskOut string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if maskOut != "" {
		return writeMaskPreview(cfg.View, maskOut)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	}, os.Stderr)
	slogger := logging.Slog(logger)
	planetmap.SetLogger(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := newLoader(cfg.Catalog)
	if err != nil {
		return err
	}
	store := catalog.NewStore(loader, catalog.WithLoadObserver(metrics.ObserveCatalogLoad))

	format, _ := tile.ParseFormat(cfg.View.TileFormat)
	resolver := tile.NewResolver(store, tile.WithFormat(format))

	engine := headless.New(headless.WithSize(cfg.View.Width, cfg.View.Height), headless.Loaded())
	loop := frame.New(
		frame.WithInterval(cfg.View.FrameInterval()),
		frame.WithTickObserver(metrics.ObserveTick),
	)
	hub := server.NewHub()

	opts := []view.Option{
		view.WithDevicePixelRatio(cfg.View.DevicePixelRatio),
		view.WithNotifier(func(n view.Notification) {
			metrics.Notifications.WithLabelValues(n.Level).Inc()
			hub.BroadcastNotification(n)
		}),
		view.WithLayerOptions(
			layer.WithInstallHook(metrics.ObserveLayerInstall),
			layer.WithRemoveHook(metrics.ObserveLayerRemoval),
		),
	}
	if cfg.View.Mask {
		prog, release, err := newMask()
		if err != nil {
			metrics.MaskFailures.Inc()
			logger.Warn().Err(err).Msg("cursor mask disabled")
		} else {
			defer release()
			opts = append(opts, view.WithMask(prog))
		}
	}

	// The loop is not running yet, so the view can be built here.
	v := view.New(ctx, cfg.View.Planet, loop, engine, store, resolver, opts...)
	defer v.Close()
	v.Subscribe(func(s view.State) {
		metrics.Markers.Set(float64(len(s.POIs)))
		hub.BroadcastState(s)
	})

	var srvOpts []server.Option
	srvOpts = append(srvOpts, server.WithLogger(logger))
	if cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetricsPath(cfg.Metrics.Path))
	}
	api := server.New(loop, v, engine, store, resolver, hub, srvOpts...)
	httpSvc := server.NewHTTPService(&http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)

	hook := &sutureslog.Handler{Logger: slogger}
	sup := suture.New("planetview", suture.Spec{
		EventHook: hook.MustHook(),
		Timeout:   cfg.Server.ShutdownTimeout,
	})
	sup.Add(loop)
	sup.Add(hub)
	sup.Add(httpSvc)

	go logReady(ctx, logger, httpSvc, cfg.View.Planet)

	err = sup.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info().Msg("planetview stopped")
		return nil
	}
	return err
}

func logReady(ctx context.Context, logger zerolog.Logger, svc *server.HTTPService, planet string) {
	select {
	case addr := <-svc.Ready():
		logger.Info().
			Str("addr", addr.String()).
			Str("planet", planet).
			Str("version", planetmap.Version).
			Msg("planetview listening")
	case <-ctx.Done():
	}
}

func newLoader(cfg config.CatalogConfig) (catalog.Loader, error) {
	switch cfg.Source {
	case config.SourceEmbedded:
		return catalog.DirLoader(assets.Catalog()), nil
	case config.SourceDir:
		return catalog.DirLoader(os.DirFS(cfg.Dir)), nil
	case config.SourceHTTP:
		return catalog.HTTPLoader(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}), nil
	}
	return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
}

// newMask opens a noop GPU device and builds the cursor mask on it. release
// frees the device after the program has been destroyed.
func newMask() (*mask.Program, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gpu instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("gpu: no adapters")
	}
	limits := gputypes.DefaultLimits()
	dev, err := adapters[0].Adapter.Open(0, limits)
	if err != nil {
		instance.Destroy()
		return nil, nil, fmt.Errorf("gpu device: %w", err)
	}
	prog, err := mask.New(dev.Device, dev.Queue,
		mask.WithLimits(limits),
		mask.WithFrameHook(metrics.ObserveMaskFrame))
	if err != nil {
		dev.Device.Destroy()
		instance.Destroy()
		return nil, nil, err
	}
	release := func() {
		dev.Device.Destroy()
		instance.Destroy()
	}
	return prog, release, nil
}

// writeMaskPreview rasterizes the mask for the configured canvas with the
// cursor at its centre.
func writeMaskPreview(cfg config.ViewConfig, path string) error {
	w := cfg.Width * cfg.DevicePixelRatio
	h := cfg.Height * cfg.DevicePixelRatio
	p := mask.Derive(w, h, mask.Cursor{X: w / 2, Y: h / 2},
		planetmap.Hex(mask.FallbackColor), mask.IntensityNormal)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, mask.Rasterize(p)); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode mask preview: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Mask preview saved to %s (%.0fx%.0f)\n", path, w, h)
	return nil
}
