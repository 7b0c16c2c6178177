package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankit50/mediMeet/internal/config"
	accounthandler "github.com/ankit50/mediMeet/internal/handler/account"
	appointmenthandler "github.com/ankit50/mediMeet/internal/handler/appointment"
	availabilityhandler "github.com/ankit50/mediMeet/internal/handler/availability"
	credithandler "github.com/ankit50/mediMeet/internal/handler/credit"
	healthhandler "github.com/ankit50/mediMeet/internal/handler/health"
	"github.com/ankit50/mediMeet/internal/repository/postgres"
	"github.com/ankit50/mediMeet/internal/router"
	accountsvc "github.com/ankit50/mediMeet/internal/service/account"
	"github.com/ankit50/mediMeet/internal/service/booking"
	"github.com/ankit50/mediMeet/internal/service/ledger"
	"github.com/ankit50/mediMeet/internal/service/scheduling"
	"github.com/ankit50/mediMeet/pkg/auth"
	"github.com/ankit50/mediMeet/pkg/logger"
	"github.com/ankit50/mediMeet/pkg/metrics"
	"github.com/ankit50/mediMeet/pkg/video"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load config")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	privateKey, err := os.ReadFile(cfg.Video.PrivateKeyPath)
	if err != nil {
		log.Fatal(err, "failed to read video private key")
	}
	videoClient, err := video.NewClient(video.Config{
		APIURL:         cfg.Video.APIURL,
		ApplicationID:  cfg.Video.ApplicationID,
		PrivateKeyPEM:  privateKey,
		RequestTimeout: cfg.Video.RequestTimeout,
	})
	if err != nil {
		log.Fatal(err, "failed to initialize video client")
	}

	m := metrics.NewMetrics("medimeet", "api")
	jwtService := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	base := postgres.NewBaseRepository(db)
	txRunner := &base
	accountRepo := postgres.NewAccountRepository(db)
	availabilityRepo := postgres.NewAvailabilityRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	accountService := accountsvc.NewService(txRunner, accountRepo, ledgerRepo, log.ZL)
	schedulingService := scheduling.NewService(accountRepo, availabilityRepo, appointmentRepo, m, log.ZL, scheduling.Config{
		HorizonDays:    cfg.Scheduling.HorizonDays,
		SlotMinutes:    cfg.Scheduling.SlotMinutes,
		DoctorCacheTTL: time.Duration(cfg.Scheduling.DoctorCacheSeconds) * time.Second,
	})
	bookingService := booking.NewService(txRunner, accountRepo, appointmentRepo, ledgerRepo, outboxRepo, videoClient, m, log.ZL)
	ledgerService := ledger.NewService(txRunner, accountRepo, ledgerRepo, m, log.ZL)

	engine := router.New(cfg, log.ZL, jwtService, router.Handlers{
		Account:      accounthandler.NewHandler(accountService, jwtService),
		Appointment:  appointmenthandler.NewHandler(bookingService),
		Availability: availabilityhandler.NewHandler(schedulingService),
		Credit:       credithandler.NewHandler(ledgerService),
		Health:       healthhandler.NewHandler(db),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
	log.Info("server stopped")
}
