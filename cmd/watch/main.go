package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/reconciler"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("SHAREDWISHLIST_WATCH_URL", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("SHAREDWISHLIST_WATCH_TOKEN"), "access token")
	wishlist := flag.String("wishlist", "", "wishlist id to watch")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logg := logger.New(logger.Options{
		ServiceName: "watch",
		Level:       logger.ParseLevel(*level),
		Format:      logger.FormatConsole,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wishlistID, err := uuid.Parse(*wishlist)
	if err != nil {
		logg.Error(ctx, "invalid -wishlist", err)
		os.Exit(2)
	}

	fetcher, err := reconciler.NewHTTPFetcher(*baseURL, *token, nil)
	if err != nil {
		logg.Error(ctx, "failed to build fetcher", err)
		os.Exit(2)
	}
	dialer, err := reconciler.NewWSDialer(*baseURL, *token)
	if err != nil {
		logg.Error(ctx, "failed to build dialer", err)
		os.Exit(2)
	}

	rec, err := reconciler.New(wishlistID, fetcher, dialer, logg, reconciler.Options{
		OnSynced: func(view wishlists.WishlistDTO) {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"name":     view.Name,
				"revision": view.Revision,
				"products": len(view.Products),
				"members":  len(view.Members),
			}), "watch.synced")
		},
		OnEvent: func(event realtime.Event, outcome reconciler.Outcome) {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event":   string(event.Type),
				"outcome": outcome.String(),
			}), "watch.event")
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to build reconciler", err)
		os.Exit(2)
	}

	if err := rec.Run(ctx); err != nil {
		if errors.Is(err, reconciler.ErrAccessLost) {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "watch.access_lost")
		} else {
			logg.Error(ctx, "watch stopped", err)
		}
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
