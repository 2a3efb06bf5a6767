package server

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/handler"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/middleware"
	ws "github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/websocket"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/pkg/response"
)

// Deps are the pieces the HTTP app is assembled from
type Deps struct {
	Config      *config.Config
	Log         *logrus.Logger
	Music       *handler.MusicHandler
	Users       *handler.UserHandler
	Storage     *handler.StorageHandler
	Auth        *handler.AuthHandler
	APIAuth     fiber.Handler // nil leaves /api open
	RateLimiter *middleware.RateLimiter
	Hub         *ws.Hub
	Health      func() fiber.Map
}

// NewApp builds the fiber app with every route registered
func NewApp(d Deps) *fiber.App {
	cfg := d.Config
	debug := !cfg.Server.IsProduction()
	log := d.Log.WithField("component", "http")

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if status := statusOf(err); status >= fiber.StatusInternalServerError {
				log.WithFields(logrus.Fields{"path": c.Path(), "method": c.Method()}).WithError(err).Error("request failed")
			}
			return response.FromError(c, err, debug)
		},
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if d.Log.IsLevelEnabled(logrus.DebugLevel) {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
		Output: d.Log.Out,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if d.Health != nil {
			body["services"] = d.Health()
		}
		return c.JSON(body)
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	if d.Auth != nil {
		app.Get("/auth/verify", d.Auth.Verify)
	}

	// API routes
	var api fiber.Router = app.Group("/api")
	if d.APIAuth != nil {
		api = app.Group("/api", d.APIAuth)
	}

	rl := d.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(nil)
	}

	music := api.Group("/music")
	music.Post("/generate", rl.GenerateLimit(cfg.RateLimit.GeneratePerHour), d.Music.Generate)
	music.Get("/quota", d.Music.Quota)
	music.Get("/", d.Music.List)
	music.Get("/:id", d.Music.Get)
	music.Put("/:id/status", d.Music.UpdateStatus)
	music.Post("/:id/cancel", d.Music.Cancel)
	music.Delete("/:id", d.Music.Delete)

	users := api.Group("/users")
	users.Post("/", d.Users.Create)
	users.Get("/:id", d.Users.Get)
	users.Get("/:id/music", d.Users.ListMusic)

	files := api.Group("/storage")
	files.Post("/upload", rl.UploadLimit(cfg.RateLimit.UploadPerHour), d.Storage.Upload)
	files.Get("/download/:filename", d.Storage.Download)
	files.Get("/list", d.Storage.List)
	files.Get("/:filename/info", d.Storage.Info)
	files.Delete("/:filename", d.Storage.Delete)

	// WebSocket routes
	if d.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})

		app.Get("/ws/music/:id", websocket.New(func(c *websocket.Conn) {
			d.Hub.HandleConnection(c, c.Params("id"))
		}))
	}

	return app
}

func statusOf(err error) int {
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return response.StatusOf(err)
}
