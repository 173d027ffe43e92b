package stuffbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/control"
	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/distance"
	"github.com/teslashibe/go-stuffbot/pkg/drivetrain"
	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/history"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
	"github.com/teslashibe/go-stuffbot/pkg/storage"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
	"github.com/teslashibe/go-stuffbot/pkg/tracking/detection"
	"github.com/teslashibe/go-stuffbot/pkg/web"
)

// uploaderDrainTimeout bounds how long shutdown waits for queued uploads.
const uploaderDrainTimeout = 10 * time.Second

// App owns every component and its lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	cameras  *camera.Manager
	source   *frame.Source
	tracker  *tracking.Tracker
	oracle   decision.Oracle
	drive    drivetrain.Drivetrain
	uploader *storage.Uploader
	loop     *control.Loop
	server   *web.Server

	// opened is released in reverse if Init fails part way.
	opened []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// New validates cfg. Call Init before Run.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init opens the camera and drivetrain and builds the pipeline. A camera or
// drivetrain that cannot be reached is fatal, and nothing stays open.
func (a *App) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.releaseOpened())
		}
	}()

	cfg := a.config

	camCfg := cfg.Camera
	if cfg.CameraPreset != "" && cfg.CameraPreset != "default" {
		preset := camera.GetPreset(cfg.CameraPreset)
		preset.Device = camCfg.Device
		camCfg = *preset
	}
	device, err := camera.Open(camCfg, a.logger)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	a.cameras = camera.NewManager(camCfg)
	a.cameras.OnConfigChange = device.Apply
	a.source = frame.NewSource(device, frame.WithLogger(a.logger))
	a.opened = append(a.opened, a.source)

	detector, err := detection.NewYOLO(cfg.Detector, a.logger)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	a.tracker, err = tracking.New(cfg.Tracking, detector, tracking.WithLogger(a.logger))
	if err != nil {
		detector.Close()
		return err
	}
	a.opened = append(a.opened, a.tracker)

	a.oracle, err = buildOracle(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	a.opened = append(a.opened, a.oracle)

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		a.uploader = storage.NewUploader(store,
			storage.WithQueueSize(cfg.Storage.QueueSize),
			storage.WithLogger(a.logger),
		)
		a.opened = append(a.opened, a.uploaderCloser())
	}

	hist, err := buildHistory(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	driveCfg := cfg.Drivetrain
	driveCfg.MaxAngular = cfg.Control.Limits.MaxAngular
	a.drive, err = drivetrain.Open(ctx, driveCfg, a.logger)
	if err != nil {
		return fmt.Errorf("drivetrain: %w", err)
	}
	a.opened = append(a.opened, a.drive)

	deps := control.Deps{
		Frames:     a.source,
		Tracker:    a.tracker,
		Estimator:  distance.NewEstimator(cfg.Distance.KnownWidth, cfg.Distance.FocalLength),
		Oracle:     a.oracle,
		Drivetrain: a.drive,
		Modes:      mode.NewMachine(time.Now(), mode.WithLogger(a.logger)),
		History:    hist,
		Closers:    []io.Closer{a.source, a.tracker},
		Logger:     a.logger,
	}
	if a.uploader != nil {
		deps.Recorder = a.uploader
		deps.Closers = append(deps.Closers, a.uploaderCloser())
	}
	a.loop, err = control.New(cfg.Control, deps)
	if err != nil {
		return err
	}

	if cfg.Web.Enabled {
		a.server = web.NewServer(web.Config{
			Port:      cfg.Web.Port,
			StaticDir: cfg.Web.StaticDir,
			Quality:   camCfg.Quality,
		}, a.loop, a.source, a.cameras, a.logger)
		a.loop.OnTick(a.server.PublishTick)
	}

	a.logger.Info("stuffbot initialized",
		"camera", camCfg.Device,
		"resolution", fmt.Sprintf("%dx%d", camCfg.Width, camCfg.Height),
		"oracle", a.oracle.Name(),
		"drivetrain", cfg.Drivetrain.Transport,
		"storage", cfg.Storage.Backends,
	)
	return nil
}

// Run starts capture and the dashboard, then blocks in the control loop
// until ctx is cancelled. The loop's final STOP and release have completed
// when Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return errors.New("stuffbot: Init has not completed")
	}
	a.opened = nil

	a.source.Start(ctx)
	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				a.logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	return a.loop.Run(ctx)
}

// Shutdown stops the dashboard.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *App) uploaderCloser() io.Closer {
	return closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), uploaderDrainTimeout)
		defer cancel()
		return a.uploader.Close(ctx)
	})
}

func (a *App) releaseOpened() error {
	var err error
	for i := len(a.opened) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.opened[i].Close())
	}
	a.opened = nil
	return err
}

func buildOracle(cfg Config, logger *slog.Logger) (decision.Oracle, error) {
	common := []decision.Option{
		decision.WithLimits(cfg.Control.Limits.MaxLinear, cfg.Control.Limits.MaxAngular),
		decision.WithTimeout(cfg.Control.OracleTimeout),
		decision.WithTemperature(cfg.Oracle.Temperature),
		decision.WithLogger(logger),
	}
	plain := func(extra ...decision.Option) []decision.Option {
		return append(append([]decision.Option{}, common...), extra...)
	}
	with := func(extra ...decision.Option) []decision.Option {
		opts := plain()
		if cfg.Oracle.Model != "" {
			opts = append(opts, decision.WithModel(cfg.Oracle.Model))
		}
		if cfg.Oracle.BaseURL != "" {
			opts = append(opts, decision.WithBaseURL(cfg.Oracle.BaseURL))
		}
		return append(opts, extra...)
	}

	switch cfg.Oracle.Provider {
	case ProviderGemini:
		o, err := decision.NewGemini(with(decision.WithAPIKey(cfg.Oracle.GeminiKey))...)
		if err != nil {
			return nil, err
		}
		return o, nil
	case ProviderOpenAI:
		o, err := decision.NewOpenAI(with(decision.WithAPIKey(cfg.Oracle.OpenAIKey))...)
		if err != nil {
			return nil, err
		}
		return o, nil
	case ProviderChain:
		// Each provider keeps its own default model in a chain.
		gemini, err := decision.NewGemini(plain(decision.WithAPIKey(cfg.Oracle.GeminiKey))...)
		if err != nil {
			return nil, err
		}
		openai, err := decision.NewOpenAI(plain(decision.WithAPIKey(cfg.Oracle.OpenAIKey))...)
		if err != nil {
			return nil, err
		}
		chain, err := decision.NewChain(logger, gemini, openai)
		if err != nil {
			return nil, err
		}
		return chain, nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
}

func buildStore(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
	var stores storage.Multi
	for _, b := range cfg.Backends {
		switch b {
		case BackendDisk:
			d, err := storage.NewDisk(cfg.Dir)
			if err != nil {
				return nil, err
			}
			stores = append(stores, d)
		case BackendSupabase:
			s, err := storage.NewSupabase(cfg.Supabase)
			if err != nil {
				return nil, err
			}
			stores = append(stores, s)
		case BackendDrive:
			d, err := storage.NewDrive(ctx, cfg.Drive)
			if err != nil {
				return nil, err
			}
			stores = append(stores, d)
		default:
			return nil, fmt.Errorf("unknown storage backend %q", b)
		}
	}

	switch len(stores) {
	case 0:
		return nil, nil
	case 1:
		return stores[0], nil
	}
	return stores, nil
}

func buildHistory(cfg Config, logger *slog.Logger) (*history.Log[decision.Exchange], error) {
	capacity := cfg.Control.HistoryLength
	if cfg.HistoryFile == "" {
		return history.New[decision.Exchange](capacity, history.WithLogger[decision.Exchange](logger)), nil
	}

	store := history.NewJSONLStore[decision.Exchange](cfg.HistoryFile)
	log := history.New[decision.Exchange](capacity,
		history.WithPersister[decision.Exchange](store),
		history.WithLogger[decision.Exchange](logger),
	)
	items, err := store.Load(log.Cap())
	if err != nil {
		return nil, err
	}
	log.Restore(items)
	if len(items) > 0 {
		logger.Info("restored decision history", "entries", len(items), "path", cfg.HistoryFile)
	}
	return log, nil
}
