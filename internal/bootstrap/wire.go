package bootstrap

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"lumen/internal/audio"
	"lumen/internal/config"
	"lumen/internal/diag"
	"lumen/internal/history"
	"lumen/internal/logging"
	"lumen/internal/metrics"
	"lumen/internal/ports"
	"lumen/internal/providers/lumenapi"
	"lumen/internal/speech"
	"lumen/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     zerolog.Logger
	Registry   *prometheus.Registry
	// DiagAddr is the bound diagnostics address, empty when disabled.
	DiagAddr string

	diag      *diag.Server
	logCloser io.Closer
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, eventSink)
}

// BuildWith wires the runtime graph from an already resolved configuration.
func BuildWith(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return Services{}, err
	}

	lexicon, err := speech.Load(cfg.Lexicon.Path, cfg.Lexicon.IterationLimit)
	if err != nil {
		_ = logCloser.Close()
		return Services{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	remote := lumenapi.NewClient(
		lumenapi.Config{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout},
		newPlayer(cfg.Audio.PlayerCommand),
		logger,
		m,
	)

	capture := usecase.NewCaptureManager(
		audio.NewMicrophone(cfg.Audio.RecorderCommand),
		audio.NewWAVEncoder(cfg.Audio.SampleRate, cfg.Audio.Channels),
		usecase.CaptureConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Audio.ChunkSize,
			Limit:     cfg.Audio.RecordLimit,
		},
		logger,
		m,
	)

	controller := usecase.NewSessionController(
		remote,
		capture,
		history.NewCache(remote, logger, m),
		lexicon,
		eventSink,
		logger,
		m,
		usecase.Config{RemoteTimeout: cfg.Remote.Timeout},
	)

	services := Services{
		Controller: controller,
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		logCloser:  logCloser,
	}

	if cfg.Diag.Addr != "" {
		server := diag.NewServer(cfg.Diag.Addr, controller, registry, logger)
		addr, err := server.Start()
		if err != nil {
			_ = controller.Close()
			_ = logCloser.Close()
			return Services{}, err
		}
		services.diag = server
		services.DiagAddr = addr
	}

	logger.Info().
		Str("api_base", cfg.Remote.BaseURL).
		Dur("record_limit", capture.Limit()).
		Int("lexicon_rules", lexicon.Len()).
		Msg("runtime ready")

	return services, nil
}

// Close stops in-flight work, the diagnostics server and the log file.
func (s Services) Close(ctx context.Context) error {
	var errs []error
	if s.Controller != nil {
		errs = append(errs, s.Controller.Close())
	}
	if s.diag != nil {
		errs = append(errs, s.diag.Shutdown(ctx))
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}

// newPlayer splits a configured player command line into program and arguments.
func newPlayer(commandLine string) *audio.Player {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return audio.NewPlayer("")
	}
	return audio.NewPlayer(fields[0], fields[1:]...)
}
