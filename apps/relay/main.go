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

	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/events"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/presence"
	"github.com/mahaj/chat-relay/pkg/relay"
	"github.com/mahaj/chat-relay/pkg/snowflake"
	"github.com/mahaj/chat-relay/pkg/store"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := logger.Init(cfg.loggerConfig())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	messages, err := store.Open(ctx, cfg.storeConfig(), ids, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing message store")
		_ = messages.Close()
	}()

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		return err
	}

	var opts []relay.Option
	if cfg.RedisAddr != "" {
		p, err := presence.Dial(ctx, cfg.RedisAddr, log)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()
		opts = append(opts, relay.WithPresence(p))
	}
	if brokers := cfg.kafkaBrokers(); len(brokers) > 0 {
		pub, err := events.NewPublisher(brokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, relay.WithPublisher(pub))
		log.Info("publishing messages to kafka", "brokers", brokers, "topic", cfg.KafkaTopic)
	}

	gateway := relay.NewGateway(log, verifier, messages, opts...)
	ws := relay.NewWSHandler(gateway, relay.WSConfig{
		AllowedOrigin:  cfg.FrontendURL,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
	}, log)

	srv := &http.Server{
		Addr: cfg.addr(),
		Handler: NewRouter(Deps{
			Gateway:     gateway,
			WS:          ws,
			Verifier:    verifier,
			FrontendURL: cfg.FrontendURL,
			Log:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("relay listening", "config", cfg, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	gateway.Shutdown(shutdownCtx)
	if err := ws.Wait(shutdownCtx); err != nil {
		log.Warn("websocket connections still open", "err", err)
	}
	log.Info("relay stopped")
	return nil
}
