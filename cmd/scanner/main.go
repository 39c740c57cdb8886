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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/attendance"
	"campusconnect/internal/auth"
	"campusconnect/internal/config"
	"campusconnect/internal/domain"
	"campusconnect/internal/httpmiddleware"
	"campusconnect/internal/i18n"
	"campusconnect/internal/logging"
	"campusconnect/internal/queue"
	"campusconnect/internal/scanner"
	"campusconnect/internal/session"
	"campusconnect/internal/store"
)

// Scanner kiosk: accepts QR payloads over HTTP and verifies them one at a
// time with the logged-in organizer's session.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("scanner failed")
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *store.Redis
	if store.NeedsRedis(cfg) {
		rdb = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		if !rdb.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
	}

	backend, err := store.OpenSessions(cfg, rdb)
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	defer backend.Close()

	msgs := i18n.NewTranslator(cfg.Locale)
	sessions := session.New(backend)
	api := apiclient.New(cfg.APIBaseURL, cfg.RequestTimeout)
	authCtl := auth.NewController(api, sessions, msgs)
	verifier := attendance.NewVerifier(api, sessions, authCtl)

	if s := authCtl.Restore(ctx); !s.Active() {
		log.Warn().Msg("no stored session; log in with campusctl before scanning")
	} else if s.Role() != domain.RoleOrganizer {
		log.Warn().Str("role", string(s.Role())).Msg("stored session is not an organizer account")
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(rdb.Client, cfg.ScanQueueKey)
	} else {
		q = queue.NewInMemory(64)
	}

	srv := &scanner.Server{
		Queue:       q,
		Verifier:    verifier,
		Limiter:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Messages:    msgs,
		SigningKey:  cfg.ScannerSigningKey,
		Issuer:      cfg.ScannerIssuer,
		RequireAuth: cfg.ScannerAuth,
	}
	if rdb != nil {
		srv.Healthy = rdb.Healthy
	}

	scans, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	worker := &scanner.Worker{Verifier: verifier, Messages: msgs, Cooldown: cfg.ScanCooldown}
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx, scans)
	}()

	httpSrv := &http.Server{
		Addr:         ":" + cfg.ScannerHTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Str("queue", cfg.QueueBackend).Msg("scanner listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down scanner")
	case err := <-errCh:
		stop()
		<-done
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	<-done
	log.Info().Msg("scanner exited")
	return nil
}
