// Command gateway starts a SCIM provisioning server backed by an
// in-memory store by default (SCIM_STORE_DRIVER and SCIM_STORE_DSN
// select another store), with a single "acme" endpoint protected by
// basic auth. It exists as a runnable demonstration of wiring config,
// storage, and the HTTP handler together; production deployments
// should load Config from a file or environment rather than building
// it programmatically like this.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scimforge/gateway"
	"github.com/scimforge/gateway/config"
)

func main() {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			BaseURL: "http://localhost:8080",
			Port:    8080,
		},
		Store: config.StoreConfig{
			Driver: envOr("SCIM_STORE_DRIVER", "memory"),
			DSN:    os.Getenv("SCIM_STORE_DSN"),
		},
		Endpoints: []config.EndpointConfig{
			{
				Name:        "acme",
				DisplayName: "Acme Corp",
				Auth: &config.AuthConfig{
					Type: "basic",
					Basic: &config.BasicAuth{
						Username: envOr("SCIM_ADMIN_USER", "admin"),
						Password: envOr("SCIM_ADMIN_PASSWORD", "secret"),
					},
				},
			},
		},
		Observability: config.ObservabilityConfig{
			Level:      envOr("SCIM_LOG_LEVEL", "info"),
			BufferSize: 1000,
		},
	}

	gw := gateway.New(cfg)
	if err := gw.Initialize(); err != nil {
		log.Fatalf("failed to initialize gateway: %v", err)
	}

	slog.Info("scim gateway initialized",
		"baseURL", cfg.Gateway.BaseURL,
		"storeDriver", cfg.Store.Driver,
		"endpoints", len(cfg.Endpoints),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler: gw.Handler(),
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := gw.Shutdown(ctx); err != nil {
		log.Printf("gateway shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
