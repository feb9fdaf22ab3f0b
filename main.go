package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/rest"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/sse"
	apiws "github.com/ClementNoelRenard/Running-Map-Run-For-Life/api/ws"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	dbadapter "github.com/ClementNoelRenard/Running-Map-Run-For-Life/db"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path/osrm"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/journal"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/model"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/ranking"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/scheduler"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	if _, err := os.Stat(cfgPath); err != nil {
		cfgPath = ""
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = uuid.NewString()
		logger.Warn("security.jwt_secret is not set; using a random secret, tokens will not survive a restart")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Hook sinks ----
	hooks := hook.NewCenter()

	journalSvc := journal.New(db, journal.Config{
		BatchSize:     cfg.Game.JournalBatchSize,
		FlushInterval: cfg.Game.JournalFlushInterval,
	}, logger)
	journalSvc.Register(hooks)

	board := ranking.NewBoard(db, c, cfg.Game.RecentResults, logger)
	board.Register(hooks)

	pub := broadcast.NewPublisher(pubsub, logger)
	pub.Register(hooks)

	// ---- Routing oracle ----
	var routes path.Provider
	if cfg.Routing.Enabled {
		routes = osrm.New(osrm.Config{
			BaseURL: cfg.Routing.BaseURL,
			Profile: cfg.Routing.Profile,
			Timeout: cfg.Routing.Timeout,
		}, logger)
		logger.Info("routing enabled", zap.String("base_url", cfg.Routing.BaseURL))
	}

	// ---- Game world ----
	mgr := world.NewManager(hooks, routes, cfg.Routing.Dispatch(), logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.Every("reap_sessions", cfg.Game.ReapInterval, func(context.Context) error {
		if n := mgr.ReapFinished(time.Now(), cfg.Game.RetainFinished, cfg.Game.MaxSessionAge); n > 0 {
			logger.Info("reaped sessions", zap.Int("count", n))
		}
		return nil
	})
	sched.Every("ranking_rebuild", time.Hour, func(ctx context.Context) error {
		_, err := board.Rebuild(ctx)
		return err
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health"), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": mgr.ActiveRoomCount()})
	})

	sessionH := apirest.NewSessionHandler(mgr, c, cfg.Game, cfg.Security, logger)
	sessionH.Register(hooks)

	api := r.Group("/api")
	apirest.Mount(api, apirest.Handlers{
		Sessions: sessionH,
		Ranking:  apirest.NewRankingHandler(board, logger),
		Admin:    apirest.NewAdminHandler(mgr, board, pub, sched, logger),
	}, cfg.Security, c, cfg.Server.AdminIPs)

	// ---- WebSocket ----
	wsRouter := apiws.NewRouter(logger)
	apiws.NewSessionHandlers(mgr, logger).RegisterHandlers(wsRouter)
	wsH := apiws.NewHandler(mgr, pubsub, cfg.Security, wsRouter, logger)
	api.GET("/sessions/:id/ws", mw.SessionAuth(cfg.Security, c), wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, logger)
	api.GET("/sessions/:id/events", mw.SessionAuth(cfg.Security, c), sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	mgr.StopAll()
	journalSvc.Stop(shutdownCtx)
}
