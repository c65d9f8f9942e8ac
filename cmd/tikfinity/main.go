package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlirizaAslan/tikfinity/internal/broadcast"
	"github.com/AlirizaAslan/tikfinity/internal/config"
	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/handler"
	"github.com/AlirizaAslan/tikfinity/internal/pipeline"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/registry"
	"github.com/AlirizaAslan/tikfinity/internal/store"
	"github.com/AlirizaAslan/tikfinity/internal/tts"
	"github.com/AlirizaAslan/tikfinity/internal/upstream"
	"github.com/AlirizaAslan/tikfinity/pkg/database"
	"github.com/AlirizaAslan/tikfinity/pkg/jwt"
	pkglog "github.com/AlirizaAslan/tikfinity/pkg/log"
)

// liveSession couples one upstream connection with its room's side-effect
// pipeline and widget feed; stopping the session drains the pipeline and
// stops the feed.
type liveSession struct {
	room     domain.RoomID
	upstream *upstream.Session
	pipeline *pipeline.Pipeline

	forwarder   *broadcast.GroupForwarder // nil without a group bus
	stopForward context.CancelFunc
}

func (s *liveSession) Start(ctx context.Context) error {
	if err := s.upstream.Start(ctx); err != nil {
		return err
	}
	if s.forwarder != nil {
		fctx, cancel := context.WithCancel(context.Background())
		s.stopForward = cancel
		go func() {
			if err := s.forwarder.Run(fctx, s.room); err != nil {
				pkglog.L().Warn().Err(err).Str(pkglog.FieldRoomID, string(s.room)).Msg("widget feed stopped")
			}
		}()
	}
	return nil
}

func (s *liveSession) Stop() {
	s.upstream.Stop()
	if s.stopForward != nil {
		s.stopForward()
	}
	s.pipeline.Close()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "tikfinity",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, store.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	recorder := store.NewRecorder(db)

	// Optional Redis group layer (fallback delivery + widget feed)
	var groups pubsub.PubSub
	if cfg.Redis.Enabled {
		rp, err := pubsub.NewRedisPubSub(cfg.Redis.RedisConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rp.Close()
		groups = rp
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis pub/sub connected")
	}

	// Optional TTS speaker
	var speaker *tts.Speaker
	if cfg.TTS.Command != "" {
		engine := tts.NewExecEngine(cfg.TTS.Command, cfg.TTS.CommandArgs, cfg.TTS.CommandTimeout)
		speaker = tts.NewSpeaker(cfg.TTS.Config, engine, tts.StaticSettings(cfg.TTS.Settings))
		logger.Info().Str("command", cfg.TTS.Command).Msg("tts engine configured")
	}

	dialer := upstream.NewBridgeDialer(cfg.Upstream.Bridge)

	// Registry and broadcaster reference each other: the broadcaster reads
	// subscriber snapshots from the registry, and each session created by
	// the registry broadcasts through it.
	var reg *registry.Registry
	var caster *broadcast.Broadcaster
	var forwarder *broadcast.GroupForwarder

	reg = registry.New(func(room domain.RoomID) registry.Session {
		stages := []pipeline.Stage{
			&pipeline.PersistStage{Recorder: recorder},
			&pipeline.PointsStage{Recorder: recorder},
		}
		if groups != nil {
			stages = append(stages, &pipeline.LastXStage{Groups: groups})
		}
		if speaker != nil {
			stages = append(stages, &pipeline.TTSStage{
				Speaker:   speaker,
				Recorder:  recorder,
				Broadcast: caster.Broadcast,
			})
		}
		pipe := pipeline.New(cfg.Pipeline.DrainTimeout, stages...)

		sess := upstream.NewSession(room, dialer, cfg.Upstream.Session,
			func(ev *domain.LiveEvent) {
				caster.Broadcast(room, ev)
				pipe.Dispatch(ev)
			},
			func(room domain.RoomID) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := recorder.MarkStreamEnded(ctx, room); err != nil {
					logger.Warn().Err(err).Str(pkglog.FieldRoomID, string(room)).Msg("failed to mark stream ended")
				}
			},
		)
		return &liveSession{room: room, upstream: sess, pipeline: pipe, forwarder: forwarder}
	})
	caster = broadcast.New(reg, groups)
	if groups != nil {
		forwarder = broadcast.NewGroupForwarder(groups, caster)
	}

	// Optional JWT auth for the overlay socket
	var jwtManager *jwt.Manager
	if cfg.Auth.Enabled {
		jwtManager = jwt.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	}

	wsHandler := handler.NewWSHandler(reg, cfg.WebSocket, jwtManager)
	httpHandler := handler.NewHTTPHandler(reg, recorder, dialer, cfg.Upstream.Session)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	httpHandler.RegisterRoutes(r)
	r.GET("/ws/:room", wsHandler.HandleWebSocket)
	r.Static(cfg.TTS.BaseURL, cfg.TTS.MediaDir)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("tikfinity listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Tear down every live session so streams are marked ended and the
	// pipelines drain.
	reg.CloseAll()

	logger.Info().Msg("stopped")
}
