// Command ledctld is the frame-pipeline daemon: it opens every
// configured device, binds the configured profile, and runs one
// scheduler tick loop per device until signalled to stop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/adapter/hidreport"
	"github.com/arcaluminis/ledctl/internal/adapter/nrzled"
	"github.com/arcaluminis/ledctl/internal/adapter/sim"
	"github.com/arcaluminis/ledctl/internal/adapter/usbraw"
	"github.com/arcaluminis/ledctl/internal/config"
	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/ipc"
	"github.com/arcaluminis/ledctl/internal/pipeline"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
	"github.com/google/gousb"
)

func main() {
	var (
		configPath = flag.String("config", "ledctl.yaml", "path to daemon config")
		addr       = flag.String("addr", "", "HTTP status listen address (overrides config)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	history := diagnostics.NewRing(256)
	ipcServer := ipc.NewServer(nil, history)
	sink := diagnostics.Multi{history, diagnostics.ZerologSink{Logger: log.Logger}}

	pl := pipeline.New(sink)
	ipcServer.Coordinator = pl.Coordinator
	pl.Sink = diagnostics.Multi{sink, ipcServer}

	pl.RegisterSensor(sensor.NewClockProvider(time.Second))
	pl.RegisterSensor(sensor.NewCPUProvider(5 * time.Second))
	pl.RegisterSensor(sensor.NewAudioProvider(33*time.Millisecond, 8))

	for _, dc := range cfg.Devices {
		dev, err := buildDevice(dc)
		if err != nil {
			log.Warn().Err(err).Str("device", dc.ID).Msg("skipping device")
			continue
		}
		pl.AddDevice(dc.ID, dev)
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withCORS(ipcServer.Handler()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("status server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("status server crashed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	runDone := make(chan error, 1)
	go func() { runDone <- pl.Run(ctx, cfg.ProfilePath) }()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Info().Msg("SIGHUP received, reloading profile")
				if err := pl.Reload(cfg.ProfilePath); err != nil {
					log.Warn().Err(err).Msg("profile reload failed; previous profile remains active")
				}
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
			_ = srv.Close()
			<-runDone
			return
		case err := <-runDone:
			if err != nil {
				log.Error().Err(err).Msg("pipeline exited")
			}
			_ = srv.Close()
			return
		}
	}
}

func buildDevice(dc config.DeviceConfig) (adapter.Device, error) {
	switch dc.Transport {
	case "sim", "":
		topo := topology.New(topology.Dim{X: dc.Cols, Y: dc.Rows, Z: 1}, topology.Order{}, nil)
		return sim.New(topo, 8), nil
	case "hidreport":
		return hidreport.New(hidreport.Config{
			VendorID:  dc.VendorID,
			ProductID: dc.ProductID,
			Path:      dc.Path,
			Dim:       topology.Dim{X: dc.Cols, Y: dc.Rows, Z: 1},
		}), nil
	case "usbraw":
		return usbraw.New(usbraw.Config{
			VendorID:  gousb.ID(dc.VendorID),
			ProductID: gousb.ID(dc.ProductID),
			Dim:       topology.Dim{X: dc.Cols, Y: dc.Rows, Z: 1},
		}), nil
	case "nrzled":
		return nrzled.New(nrzled.Config{SPIBus: dc.SPIBus, NumPixels: dc.NumPixels}), nil
	default:
		return nil, errUnknownTransport(dc.Transport)
	}
}

type errUnknownTransport string

func (e errUnknownTransport) Error() string { return "unknown transport: " + string(e) }

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
