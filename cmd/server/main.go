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

	"github.com/brewloyal/api/internal/config"
	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/feed"
	"github.com/brewloyal/api/internal/notify"
	"github.com/brewloyal/api/internal/router"
	"github.com/brewloyal/api/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to database")

	var publisher notify.Publisher = notify.Noop{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Println("Connected to notification broker")
	} else {
		log.Println("WARN: AMQP_URL not set, customer notifications are stored but not fanned out")
	}

	queries := database.New(pool)
	hub := ws.NewHub()
	r := router.New(cfg, queries, pool, hub, publisher)
	srv := router.NewServer(":"+cfg.Port, r)

	listener := feed.NewListener(feed.PoolDialer(pool), hub, cfg.FeedMaxRetries, cfg.FeedInitialBackoff)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		// Degraded is terminal for the feed but not for the service:
		// clients keep working through manual resync.
		if err := listener.Run(gctx); err != nil && !errors.Is(err, feed.ErrFeedDegraded) {
			return fmt.Errorf("change feed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
