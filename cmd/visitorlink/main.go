package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/visitorlink/internal/config"
	"github.com/charleshuang3/visitorlink/internal/gormw"
	"github.com/charleshuang3/visitorlink/internal/handlers/firewall"
	"github.com/charleshuang3/visitorlink/internal/handlers/invitations"
	"github.com/charleshuang3/visitorlink/internal/handlers/middleware"
	"github.com/charleshuang3/visitorlink/internal/handlers/residentauth"
	"github.com/charleshuang3/visitorlink/internal/invitation"
	"github.com/charleshuang3/visitorlink/internal/logging"
	"github.com/charleshuang3/visitorlink/internal/storage"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	// Load configuration
	cfg := config.LoadConfig(*configPath)

	logFile, err := logging.Setup(&cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logFile.Close()

	// cron schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	if err := storage.RegisterInvitationSweeper(scheduler, db, &cfg.Sweeper); err != nil {
		log.Fatal().Err(err).Msg("Failed to register invitation sweeper")
	}

	verifier, err := residentauth.NewVerifier(context.Background(), &cfg.ResidentAuth)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create resident token verifier")
	}

	issuer, err := invitation.NewIssuer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token issuer")
	}
	service := invitation.NewService(
		issuer,
		storage.NewInvitationStore(db, cfg.StoreTimeout),
		cfg.PublicOrigin,
	)

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	// add firewall middleware
	if fw := firewall.New(&cfg.Firewall); fw != nil {
		router.Use(fw.Middleware())
	}

	invitations.New(&cfg.Invitations, service, verifier).RegisterHandlers(router.Group("/api"))

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	go func() {
		log.Info().Msgf("start server at %q", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down server")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}

	log.Info().Msg("shutting down")
}
