// Package scimgateway is the composition root: it wires a
// store.EndpointStore, the scimproto SCIM server, per-endpoint
// authentication, and the observability logger into one http.Handler.
package scimgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scimforge/gateway/auth"
	"github.com/scimforge/gateway/config"
	"github.com/scimforge/gateway/observability"
	"github.com/scimforge/gateway/scimproto"
	"github.com/scimforge/gateway/store"
	"github.com/scimforge/gateway/store/memstore"
	"github.com/scimforge/gateway/store/sqlstore"
)

// batchFlushInterval and batchMaxSize bound the async request-log
// writer: it flushes whichever threshold a request trips first.
const (
	batchMaxSize       = 50
	batchFlushInterval = 3 * time.Second
)

// Gateway is the top-level server: it owns the EndpointStore, the
// SCIM server built over it, the admin surfaces, and the composed
// HTTP handler chain.
type Gateway struct {
	config *config.Config
	store  store.EndpointStore
	server *scimproto.Server

	logger  *observability.Logger
	batcher *requestLogBatcher

	jwtAuthenticators map[string]*auth.JWTAuthenticator

	handler http.Handler
}

// New constructs a Gateway from cfg without starting anything;
// Initialize performs the fallible wiring (store construction, key
// loading, endpoint seeding).
func New(cfg *config.Config) *Gateway {
	return &Gateway{
		config:            cfg,
		jwtAuthenticators: make(map[string]*auth.JWTAuthenticator),
	}
}

// Store returns the underlying EndpointStore, mainly so callers can
// seed or inspect endpoints outside of config-driven startup.
func (g *Gateway) Store() store.EndpointStore {
	return g.store
}

// Handler returns the fully composed HTTP handler. Call Initialize
// first.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Initialize validates the configuration, opens the configured store,
// seeds any endpoints named in config that don't already exist, and
// builds the HTTP handler chain: correlation id stamping, request
// logging, per-endpoint authentication, then the SCIM server and admin
// handlers.
func (g *Gateway) Initialize() error {
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := g.openStore(); err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	if err := g.seedEndpoints(); err != nil {
		return fmt.Errorf("seeding endpoints: %w", err)
	}

	level := parseLevel(g.config.Observability.Level)
	base := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	bufferSize := g.config.Observability.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	g.logger = observability.New(base, bufferSize)
	g.batcher = newRequestLogBatcher(g.logger, batchMaxSize, batchFlushInterval)

	if err := g.syncEndpointLogLevels(); err != nil {
		return fmt.Errorf("syncing endpoint log levels: %w", err)
	}

	backend := newStoreBackend(g.store)
	g.server = scimproto.NewServer(g.config.Gateway.BaseURL, backend)

	mux := http.NewServeMux()
	mux.Handle("/", g.server)

	adminLogs := observability.NewAdminHandler(g.logger)
	mux.HandleFunc("GET /admin/logs", adminLogs.ListLogs)
	mux.HandleFunc("GET /admin/logs/config", adminLogs.GetConfig)
	mux.HandleFunc("PATCH /admin/logs/config", adminLogs.PatchConfig)
	mux.HandleFunc("GET /admin/logs/stream", adminLogs.StreamLogs)

	adminEndpoints := NewAdminEndpointsHandler(g.store, g.logger)
	adminEndpoints.Register(mux)

	var handler http.Handler = mux
	handler = g.endpointAuthMiddleware(handler)
	handler = LoggingMiddleware(g.batcher)(handler)
	handler = observability.CorrelationMiddleware(handler)

	g.handler = handler
	return nil
}

// Shutdown stops the background log batcher, performing one final,
// unconditional flush, and closes the store if it supports it.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.batcher != nil {
		g.batcher.Close()
	}
	if closer, ok := g.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// ListenAndServe starts serving g.Handler() on the configured port.
func (g *Gateway) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", g.config.Gateway.Port)
	tls := g.config.Gateway.TLS
	if tls != nil && tls.Enabled {
		return http.ListenAndServeTLS(addr, tls.CertFile, tls.KeyFile, g.handler)
	}
	return http.ListenAndServe(addr, g.handler)
}

func (g *Gateway) openStore() error {
	switch g.config.Store.Driver {
	case "memory", "":
		g.store = memstore.New()
		return nil
	case "postgres", "sqlite":
		s, err := sqlstore.Open(g.config.Store.Driver, g.config.Store.DSN)
		if err != nil {
			return err
		}
		g.store = s
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", g.config.Store.Driver)
	}
}

// seedEndpoints creates any endpoint named in config that isn't
// already present in the store. An endpoint that already exists (e.g.
// a store reopened from durable storage) is left untouched.
func (g *Gateway) seedEndpoints() error {
	ctx := context.Background()
	for _, epCfg := range g.config.Endpoints {
		if _, err := g.store.GetEndpoint(ctx, epCfg.Name); err == nil {
			continue
		}

		ep := &store.Endpoint{
			ID:          epCfg.Name,
			DisplayName: epCfg.DisplayName,
			Active:      true,
			Config:      epCfg.Config,
		}

		if epCfg.Auth != nil {
			switch strings.ToLower(epCfg.Auth.Type) {
			case "basic":
				if epCfg.Auth.Basic != nil {
					ep.Credentials = append(ep.Credentials, store.Credential{
						Kind:         "basic",
						Username:     epCfg.Auth.Basic.Username,
						HashedSecret: store.HashSecret(epCfg.Auth.Basic.Password),
					})
				}
			case "bearer":
				if epCfg.Auth.Bearer != nil {
					ep.Credentials = append(ep.Credentials, store.Credential{
						Kind:         "bearer",
						HashedSecret: store.HashSecret(epCfg.Auth.Bearer.Token),
					})
				}
			case "jwt":
				if epCfg.Auth.JWT != nil {
					authenticator, err := auth.NewJWTAuthenticator(
						epCfg.Auth.JWT.PublicKeyPath,
						epCfg.Auth.JWT.Audience,
						epCfg.Auth.JWT.Issuer,
					)
					if err != nil {
						return fmt.Errorf("endpoint %q: loading jwt key: %w", epCfg.Name, err)
					}
					g.jwtAuthenticators[epCfg.Name] = authenticator
				}
			}
		}

		if err := g.store.CreateEndpoint(ctx, ep); err != nil {
			return fmt.Errorf("endpoint %q: %w", epCfg.Name, err)
		}
	}
	return nil
}

// syncEndpointLogLevels copies every stored endpoint's Config["logLevel"]
// override into the logger's per-endpoint filter cascade, so an
// endpoint seeded (or admin-edited) with a logLevel takes effect
// without restarting the process.
func (g *Gateway) syncEndpointLogLevels() error {
	endpoints, err := g.store.ListEndpoints(context.Background())
	if err != nil {
		return err
	}
	cfg := g.logger.Filter()
	if cfg.EndpointLevels == nil {
		cfg.EndpointLevels = map[string]slog.Level{}
	}
	for _, ep := range endpoints {
		raw, ok := ep.Config[store.ConfigLogLevel]
		if !ok || raw == "" {
			continue
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
			continue
		}
		cfg.EndpointLevels[ep.ID] = lvl
	}
	g.logger.SetFilter(cfg)
	return nil
}

// endpointAuthMiddleware resolves the endpoint named in the request
// path and authenticates against its runtime-editable, per-endpoint
// credential set plus an optional JWT authenticator. Requests to
// /admin/* and unresolvable endpoint names fall through unauthenticated
// to the SCIM server, which answers 404 for unknown endpoints itself.
func (g *Gateway) endpointAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpointID := firstPathSegment(r.URL.Path)
		if endpointID == "" || endpointID == "admin" {
			next.ServeHTTP(w, r)
			return
		}

		ep, err := g.store.GetEndpoint(r.Context(), endpointID)
		if err != nil {
			if authenticator, ok := g.jwtAuthenticators[endpointID]; ok {
				if authErr := authenticator.Authenticate(r); authErr != nil {
					unauthorized(w, authErr)
					return
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		// A disabled endpoint rejects uniformly with 403, before any
		// credential check runs.
		if !ep.Active {
			forbidden(w, "endpoint '"+endpointID+"' is disabled")
			return
		}

		if len(ep.Credentials) == 0 {
			if authenticator, ok := g.jwtAuthenticators[endpointID]; ok {
				if authErr := authenticator.Authenticate(r); authErr != nil {
					unauthorized(w, authErr)
					return
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		authenticator := auth.NewEndpointAuthenticator(ep)
		if authErr := authenticator.Authenticate(r); authErr != nil {
			unauthorized(w, authErr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="scim"`)
	w.Header().Set("Content-Type", "application/scim+json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"schemas":["urn:ietf:params:scim:api:messages:2.0:Error"],"status":"401","detail":%q}`, err.Error())
}

func forbidden(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/scim+json")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, `{"schemas":["urn:ietf:params:scim:api:messages:2.0:Error"],"status":"403","detail":%q}`, detail)
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
