// Package server contains the HTTP, HTMX and WebSocket handlers of the application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "quill/docs" // swagger docs
	"quill/internal/bootstrap"
	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/notifications"
	"quill/internal/publication"
	"quill/internal/render"
	"quill/internal/repository"
	"quill/internal/service"
	"quill/internal/visibility"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	auth     *middleware.Auth
	limiter  *middleware.RateLimiter
	renderer *render.Renderer
	notifier *notifications.Notifier
	hub      *notifications.ThreadHub
	flags    *featureflags.Manager

	posts      *service.PostService
	comments   *service.CommentService
	votes      *service.VoteService
	profiles   *service.ProfileService
	categories *service.CategoryService
}

// NewServer connects to the database and Redis described by cfg and wires
// every service on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedCategories: cfg.Env == "development"})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil Redis client disables caching, rate limiting and live threads.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires a config and a database")
	}
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	now := func() time.Time { return time.Now().UTC() }

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	voteRepo := repository.NewVoteRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("quill"),
		auth:           middleware.NewAuth(cfg.JWTSecret, cfg.JWTTTL()),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.Env),
		renderer:       renderer,
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewThreadHub(),
		flags:          featureflags.NewManager(cfg.FeatureFlags),
	}

	if flags := s.flags.Raw(); len(flags) > 0 {
		middleware.Logger.Info("feature flags loaded", slog.Any("flags", flags))
	}

	store := cache.NewStore(redisClient)
	resolver := visibility.NewResolver(followRepo, now)

	s.posts = service.NewPostService(postRepo, categoryRepo, resolver,
		publication.NewScheduler(cfg.ScheduleGrace(), now),
		publication.NewSlugAssigner(cfg.SlugMaxAttempts),
		store, cfg.PostsPerPage)
	s.comments = service.NewCommentService(commentRepo, postRepo, voteRepo, resolver,
		renderer, s.notifier, s.flags, cfg.CommentMaxDepth)
	s.votes = service.NewVoteService(voteRepo, postRepo, commentRepo, resolver, s.flags)
	s.profiles = service.NewProfileService(userRepo, followRepo, s.posts, s.auth, service.ProfileOptions{
		MediaDir:           cfg.MediaDir,
		AvatarMaxDimension: cfg.AvatarMaxDimension,
		ProfilesPerPage:    cfg.ProfilesPerPage,
	})
	s.categories = service.NewCategoryService(categoryRepo, store, cfg.CategoryCacheTTL(), now)

	return s, nil
}

// NewApp builds the fiber app with the error handler, middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Quill",
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// htmx is loaded from a CDN and pages use inline hx-on handlers
	app.Use(helmet.New(helmet.Config{
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval' https://unpkg.com; " +
			"img-src 'self' data:; connect-src 'self' ws: wss:",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, HX-Request, HX-Target, HX-Current-URL, HX-Trigger",
		ExposeHeaders:    "HX-Redirect, HX-Refresh, HX-Reswap, X-Trace-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	// every route sees the caller's identity; anonymous requests pass through
	app.Use(s.auth.OptionalAuth(), s.resolveViewer())
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Static("/media", s.config.MediaDir, fiber.Static{MaxAge: 3600})

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/categories", s.ListCategoriesAPI)
	api.Get("/me", s.auth.AuthRequired(), s.Me)

	auth := api.Group("/auth")
	auth.Post("/signup", s.limiter.Limit("signup", 3, 10*time.Minute, middleware.FailOpen), s.Signup)
	auth.Post("/login", s.limiter.Limit("login", 10, 5*time.Minute, middleware.FailOpen), s.Login)
	auth.Post("/logout", s.Logout)

	// Pages
	app.Get("/", s.Home)
	app.Get("/feed", s.Feed)
	app.Get("/categories", s.Categories)
	app.Get("/categories/:slug", s.CategoryPosts)
	app.Get("/posts/:slug", s.GetPost)
	// Define specific /:username/:resource routes BEFORE generic /:username route
	app.Get("/users/:username/followers", s.Followers)
	app.Get("/users/:username/following", s.Following)
	app.Get("/users/:username", s.GetProfile)

	// Live comment threads
	app.Get("/ws/posts/:slug", s.ThreadUpgrade, s.ThreadStream())

	// Commands
	protected := app.Group("", s.requireViewer)

	protected.Post("/posts", s.CreatePost)
	protected.Post("/posts/:slug/vote", s.limiter.Limit("vote", 60, time.Minute, middleware.FailOpen), s.VotePost)
	protected.Post("/posts/:slug/comments", s.limiter.Limit("create_comment", 10, time.Minute, middleware.FailOpen), s.CreateComment)
	protected.Put("/posts/:slug", s.UpdatePost)
	protected.Delete("/posts/:slug", s.DeletePost)

	protected.Post("/comments/:id/vote", s.limiter.Limit("vote", 60, time.Minute, middleware.FailOpen), s.VoteComment)
	protected.Put("/comments/:id", s.UpdateComment)
	protected.Delete("/comments/:id", s.DeleteComment)

	protected.Post("/users/:username/follow", s.ToggleFollow)
	protected.Put("/profile", s.UpdateProfile)
	protected.Post("/profile/avatar", s.UploadAvatar)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports whether the database answers. Redis is optional:
// without it the app runs uncached, so it only degrades the report.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "disabled"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	case redisStatus != "healthy":
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start wires the live thread relay and serves until the app is shut down.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
		middleware.Logger.Error("thread relay not started", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("thread hub shutdown: %w", err))
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("close database: %w", cerr))
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", rerr))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
