// Package web serves the read-only robot dashboard: loop status, decision
// history, tracked objects and a live camera feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/control"
	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/hub"
)

// DefaultCameraFPS is the dashboard feed rate.
const DefaultCameraFPS = 5

// Loop is what the dashboard reads from the control loop.
type Loop interface {
	Status() control.Status
	History() []decision.Exchange
}

// Frames yields the latest camera frame.
type Frames interface {
	Latest() (*frame.Frame, error)
}

// Config configures the server.
type Config struct {
	Port      string
	StaticDir string
	CameraFPS int
	Quality   int
}

// Server is the dashboard.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	loop    Loop
	frames  Frames
	cameras *camera.Manager

	statusHub *hub.Hub
	cameraHub *hub.Hub
}

// NewServer builds the fiber app. frames and cameras may be nil.
func NewServer(cfg Config, loop Loop, frames Frames, cameras *camera.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CameraFPS <= 0 {
		cfg.CameraFPS = DefaultCameraFPS
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "web"),
		loop:      loop,
		frames:    frames,
		cameras:   cameras,
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "stuffbot dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/history", s.handleHistory)
	api.Get("/objects", s.handleObjects)
	api.Get("/camera", s.handleCamera)
	api.Get("/camera/presets", s.handlePresets)
	api.Post("/camera/preset/:name", s.handleApplyPreset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/camera", websocket.New(s.serveHub(s.cameraHub)))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// PublishTick broadcasts a tick report to status subscribers. Use it as a
// control.Loop OnTick hook.
func (s *Server) PublishTick(r control.TickReport) {
	if err := s.statusHub.BroadcastJSON(r); err != nil {
		s.logger.Warn("encode tick report", "error", err)
	}
}

// Start runs the hubs and the camera feed, then serves until Shutdown. It
// returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run()
	go s.cameraHub.Run()
	if s.frames != nil {
		go s.streamCamera(ctx)
	}

	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
	err := s.app.Listen(":" + s.cfg.Port)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) streamCamera(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.CameraFPS))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.cameraHub.ClientCount() == 0 {
			continue
		}
		f, err := s.frames.Latest()
		if err != nil || f.Seq == lastSeq {
			continue
		}
		lastSeq = f.Seq

		data, err := f.JPEG(s.cfg.Quality)
		if err != nil {
			s.logger.Debug("encode camera frame", "error", err)
			continue
		}
		s.cameraHub.BroadcastBinary(data)
	}
}
