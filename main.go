package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocupoint/sdraudio/pkg/codec"
	"github.com/ocupoint/sdraudio/pkg/obslog"
	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

func main() {
	port := flag.Int("p", 8080, "Port to listen on")
	fftSize := flag.Int("fft-size", 1024, "Per-subscriber audio IFFT size (audio_fft_size)")
	audioRate := flag.Float64("audio-rate", 12000, "Demodulated audio sample rate, Hz")
	sampleRate := flag.Float64("sample-rate", 250_000_000, "Wideband IQ sample rate, Hz")
	workers := flag.Int("workers", 0, "Dispatcher worker cap (0 = runtime.NumCPU())")
	logDir := flag.String("log-dir", "", "Directory for rotating log files (empty = stderr only)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	useOpus := flag.Bool("opus", false, "Use Opus instead of FLAC for the audio codec")
	synthetic := flag.Bool("synthetic", true, "Use the synthetic spectrum source instead of a real front end")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  sdraudio [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := obslog.New(*logDir, *logLevel)

	state := NewServerState()
	state.SampleRate = *sampleRate
	state.AudioRate = *audioRate
	state.AudioFFTSize = *fftSize
	state.FlacMode = codec.ParseFlacMode(os.Getenv("FLAC_MODE"))
	if *useOpus {
		state.EncoderKind = codec.KindOpus
	}

	metrics := telemetry.NewRegistry(prometheus.DefaultRegisterer)
	reg := registry.New[*Subscription]()
	events := NewEventsBroadcaster(reg, metrics)
	waterfall := NewWaterfallBroadcaster(metrics, 4)
	control := NewControlRouter(reg, state, events)
	transport := NewTransport(reg, state, control, metrics, logger, events, waterfall)
	api := NewAPI(reg, state)

	var source SpectrumFrameSource
	if *synthetic {
		source = NewSynthSource(*fftSize*4, *sampleRate, 20*time.Millisecond)
	} else {
		logger.Error("no real frame source wired; pass -synthetic or provide one")
		os.Exit(1)
	}

	dispatcherWorkers := *workers
	dispatcher := NewDispatcher(reg, source, state, metrics, logger, waterfall)
	if dispatcherWorkers > 0 {
		dispatcher.workers = dispatcherWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()

	eventsStop := make(chan struct{})
	go events.Run(eventsStop)

	mux := http.NewServeMux()
	transport.RegisterRoutes(mux)
	api.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("sdraudio listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	close(eventsStop)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
