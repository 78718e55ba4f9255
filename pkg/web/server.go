// Package web provides the calibration dashboard and HTTP API for the sign
// detector.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/reachy-signs/pkg/camera"
	"github.com/teslashibe/reachy-signs/pkg/gesture"
	"github.com/teslashibe/reachy-signs/pkg/hub"
	"github.com/teslashibe/reachy-signs/pkg/signs"
)

//go:embed static
var staticFiles embed.FS

// Config configures the dashboard server.
type Config struct {
	// Port to listen on. Default: 8181
	Port int

	// DefaultTimeout bounds POST /api/detect when no timeout is given.
	DefaultTimeout time.Duration

	// MaxTimeout caps the timeout a client may request.
	MaxTimeout time.Duration

	// Gestures maps detected colors to moves in detect responses.
	Gestures gesture.Table

	// JPEGQuality for camera frames, 1-100. Default: 80
	JPEGQuality int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:           8181,
		DefaultTimeout: 5 * time.Second,
		MaxTimeout:     60 * time.Second,
		Gestures:       gesture.DefaultTable(),
		JPEGQuality:    80,
	}
}

// Server is the calibration dashboard server. It implements signs.Display so
// the detector's calibration loop can stream annotated views to browsers.
type Server struct {
	cfg      Config
	app      *fiber.App
	detector *signs.Detector
	source   camera.Source
	logger   *slog.Logger

	// Hubs for websocket broadcast
	cameraHub      *hub.Hub
	diagnosticsHub *hub.Hub
}

// NewServer creates a dashboard server for detector. source is optional and
// only used for status reporting.
func NewServer(cfg Config, detector *signs.Detector, source camera.Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaults.DefaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaults.MaxTimeout
	}
	if cfg.Gestures == nil {
		cfg.Gestures = defaults.Gestures
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaults.JPEGQuality
	}

	logger = logger.With("component", "web")
	s := &Server{
		cfg:            cfg,
		detector:       detector,
		source:         source,
		logger:         logger,
		cameraHub:      hub.New("camera", logger),
		diagnosticsHub: hub.New("diagnostics", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Reachy Signs",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/params", s.handleGetParams)
	api.Put("/params", s.handlePutParams)
	api.Post("/detect", s.handleDetect)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/camera", websocket.New(s.streamHandler(s.cameraHub)))
	app.Get("/ws/diagnostics", websocket.New(s.streamHandler(s.diagnosticsHub)))

	// Dashboard page
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.Port)
}

// Start runs the hubs and serves on the configured port until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until Shutdown. The hubs stop when
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.cameraHub.Run(ctx)
	go s.diagnosticsHub.Run(ctx)

	s.logger.Info("web dashboard", "url", "http://"+ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Warn("web server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) streamHandler(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		if !h.IsRunning() {
			c.Close()
			return
		}
		hub.NewClient(h, c).Run()
	}
}
