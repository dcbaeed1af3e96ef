package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/arrhythmix/internal/api"
	"github.com/banshee-data/arrhythmix/internal/config"
	"github.com/banshee-data/arrhythmix/internal/display"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
)

var serveLog = monitoring.Component("serve")

type serveFlags struct {
	configPath        string
	source            string
	port              string
	recording         string
	listen            string
	database          string
	redis             string
	classifier        string
	classifierAddr    string
	units             string
	console           bool
	fallbackSynthetic bool
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream ECG samples, classify them and serve the live view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f.console)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "JSON or YAML config file")
	fl.StringVar(&f.source, "source", config.SourceSerial, "sample source: serial, synthetic, replay or idle")
	fl.StringVar(&f.port, "port", "auto", "serial device path, or auto to discover by identifier")
	fl.StringVar(&f.recording, "recording", "", "recording file for the replay source")
	fl.StringVar(&f.listen, "listen", ":8080", "HTTP listen address")
	fl.StringVar(&f.database, "db", "arrhythmix.db", "sqlite database path, empty to disable")
	fl.StringVar(&f.redis, "redis", "", "redis address or URL for prediction publishing")
	fl.StringVar(&f.classifier, "classifier", config.ClassifierRhythm, "classifier: rhythm, grpc or http")
	fl.StringVar(&f.classifierAddr, "classifier-addr", "", "gRPC target or HTTP URL of a remote classifier")
	fl.StringVar(&f.units, "units", "V", "display units: V or mV")
	fl.BoolVar(&f.console, "console", false, "print a live status line to stdout")
	fl.BoolVar(&f.fallbackSynthetic, "fallback-synthetic", false, "switch to the simulated feed when the source fails to open")
	return cmd
}

// load reads the config file, then applies every flag set on the command line.
func (f *serveFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Empty()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	str := func(name string, v string, dst **string) {
		if changed(name) {
			*dst = &v
		}
	}
	str("source", f.source, &cfg.Source)
	str("port", f.port, &cfg.Port)
	str("recording", f.recording, &cfg.Recording)
	str("listen", f.listen, &cfg.Listen)
	str("db", f.database, &cfg.Database)
	str("units", f.units, &cfg.Units)
	if changed("fallback-synthetic") {
		v := f.fallbackSynthetic
		cfg.FallbackSynthetic = &v
	}
	if changed("redis") {
		rc := cfg.GetRedis()
		rc.Addr = f.redis
		cfg.Redis = &rc
	}
	if changed("classifier") || changed("classifier-addr") {
		cc := cfg.GetClassifier()
		if changed("classifier") {
			cc.Kind = f.classifier
		}
		if changed("classifier-addr") {
			cc.Address = f.classifierAddr
		}
		cfg.Classifier = &cc
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve runs one session until ctx is cancelled, then stops it and shuts
// the HTTP server down.
func serve(ctx context.Context, cfg *config.Config, console bool) error {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	conf := ctrl.Start(ctx)
	serveLog("session %s %s", conf.SessionID, conf.State)

	srv := api.NewServer(ctrl, rt.db, cfg.GetUnits())
	srv.Factory = rt.newController
	srv.Chart = display.ChartOptions{Min: cfg.GetPlotMin(), Max: cfg.GetPlotMax(), RateHz: cfg.GetSampleRateHz()}
	srv.TailInterval = cfg.GetDisplayInterval()

	mux := srv.ServeMux()
	srv.AttachAdminRoutes(mux)
	if rt.db != nil {
		if err := rt.db.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	consoleCtx, stopConsole := context.WithCancel(ctx)
	defer stopConsole()
	if console {
		c := display.NewConsole(srv)
		c.Interval = cfg.GetDisplayInterval()
		c.Units = cfg.GetUnits()
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(consoleCtx)
		}()
	}

	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}
	errc := make(chan error, 1)
	go func() {
		serveLog("listening on %s", cfg.GetListen())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	final := srv.Controller().Stop()
	serveLog("session %s stopped (clean=%t)", final.SessionID, final.Clean)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		serveLog("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			serveLog("HTTP server force close error: %v", err)
		}
	}
	stopConsole()
	wg.Wait()
	return serveErr
}
