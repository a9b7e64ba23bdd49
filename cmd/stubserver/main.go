package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/config"
	"github.com/risklock/livesync/internal/handler"
	"github.com/risklock/livesync/internal/service/desk"
)

func main() {
	botDelay := flag.Duration("bot-delay", time.Second, "机器人回复前的停顿")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "签发令牌的有效期")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	deskSvc := desk.NewService(desk.WithBotDelay(*botDelay))
	issuer := auth.NewIssuer(cfg.Stub.JWTSecret, *tokenTTL)

	router := handler.NewRouter(deskSvc, issuer)

	startServer(ctx, cfg.Stub, router)
}

func startServer(ctx context.Context, stubCfg config.StubConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              stubCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("RiskLock stub backend listening on %s", stubCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
