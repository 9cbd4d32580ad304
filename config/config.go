package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("config validation failed with %d errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Config represents the gateway configuration. It generalizes a flat
// Plugins list into a Store config (how tenants and resources are
// persisted) plus a seed list of Endpoints to provision on startup,
// and adds Observability config for the structured logger.
type Config struct {
	Gateway       GatewayConfig
	Store         StoreConfig
	Endpoints     []EndpointConfig
	Observability ObservabilityConfig
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	if err := c.Gateway.Validate(); err != nil {
		errors = append(errors, flattenValidationErr(err, "gateway")...)
	}

	if err := c.Store.Validate(); err != nil {
		errors = append(errors, flattenValidationErr(err, "store")...)
	}

	endpointNames := make(map[string]bool)
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("endpoints[%d].name", i),
				Message: "endpoint name cannot be empty",
			})
			continue
		}

		if endpointNames[ep.Name] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("endpoints[%d].name", i),
				Message: fmt.Sprintf("duplicate endpoint name: %s", ep.Name),
			})
		}
		endpointNames[ep.Name] = true

		if ep.Auth != nil {
			if err := ep.Auth.Validate(fmt.Sprintf("endpoints[%d].auth", i)); err != nil {
				errors = append(errors, flattenValidationErr(err, "")...)
			}
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func flattenValidationErr(err error, fallbackField string) ValidationErrors {
	if verrs, ok := err.(ValidationErrors); ok {
		return verrs
	}
	if verr, ok := err.(*ValidationError); ok {
		return ValidationErrors{*verr}
	}
	return ValidationErrors{{Field: fallbackField, Message: err.Error()}}
}

// GatewayConfig represents gateway-specific configuration
type GatewayConfig struct {
	BaseURL string
	Port    int
	TLS     *TLS
}

// Validate validates the gateway configuration
func (g *GatewayConfig) Validate() error {
	var errors ValidationErrors

	if g.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "gateway.baseURL",
			Message: "baseURL cannot be empty",
		})
	} else {
		parsedURL, err := url.Parse(g.BaseURL)
		if err != nil {
			errors = append(errors, ValidationError{
				Field:   "gateway.baseURL",
				Message: fmt.Sprintf("invalid URL format: %v", err),
			})
		} else {
			if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
				errors = append(errors, ValidationError{
					Field:   "gateway.baseURL",
					Message: fmt.Sprintf("invalid URL scheme '%s': must be http or https", parsedURL.Scheme),
				})
			}
			if parsedURL.Host == "" {
				errors = append(errors, ValidationError{
					Field:   "gateway.baseURL",
					Message: "URL must include a host (e.g., http://localhost:8080)",
				})
			}
		}
	}

	if g.Port < 1 || g.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "gateway.port",
			Message: fmt.Sprintf("port %d is out of range: must be between 1 and 65535", g.Port),
		})
	}

	if g.TLS != nil && g.TLS.Enabled {
		if g.TLS.CertFile == "" {
			errors = append(errors, ValidationError{
				Field:   "gateway.tls.certFile",
				Message: "certFile is required when TLS is enabled",
			})
		}
		if g.TLS.KeyFile == "" {
			errors = append(errors, ValidationError{
				Field:   "gateway.tls.keyFile",
				Message: "keyFile is required when TLS is enabled",
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// TLS represents TLS configuration
type TLS struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// StoreConfig selects and configures the EndpointStore backend.
// Driver is "memory", "postgres", or "sqlite".
type StoreConfig struct {
	Driver string
	DSN    string
}

// Validate validates the store configuration
func (s *StoreConfig) Validate() error {
	var errors ValidationErrors

	switch s.Driver {
	case "memory":
		// no DSN required
	case "postgres", "sqlite":
		if s.DSN == "" {
			errors = append(errors, ValidationError{
				Field:   "store.dsn",
				Message: fmt.Sprintf("dsn is required for driver '%s'", s.Driver),
			})
		}
	case "":
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "driver cannot be empty",
		})
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: fmt.Sprintf("unknown driver '%s': must be 'memory', 'postgres', or 'sqlite'", s.Driver),
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// EndpointConfig seeds one provisioning tenant at startup. It
// generalizes a PluginConfig, dropping the deprecated Type/BaseEntity
// fields (a single static backend selected at the Store level now
// serves every endpoint, so per-plugin Type/BaseEntity no longer has a
// referent) in favor of store.Endpoint's own Credentials/Catalog model.
type EndpointConfig struct {
	Name        string
	DisplayName string
	Auth        *AuthConfig
	// Config carries runtime flags for this endpoint: PATCH
	// membership-operation gating and a logLevel override, copied
	// verbatim into store.Endpoint.Config at seed time.
	Config map[string]string
}

// AuthConfig represents authentication configuration with type-safe config
type AuthConfig struct {
	Type   string // basic, bearer, jwt, none
	Basic  *BasicAuth
	Bearer *BearerAuth
	JWT    *JWTAuth
}

// Validate validates the authentication configuration
func (a *AuthConfig) Validate(fieldPrefix string) error {
	var errors ValidationErrors

	validTypes := map[string]bool{
		"basic":  true,
		"bearer": true,
		"jwt":    true,
		"none":   true,
		"":       true, // empty is treated as none
	}

	if !validTypes[strings.ToLower(a.Type)] {
		errors = append(errors, ValidationError{
			Field:   fmt.Sprintf("%s.type", fieldPrefix),
			Message: fmt.Sprintf("invalid auth type '%s': must be 'basic', 'bearer', 'jwt', or 'none'", a.Type),
		})
	}

	authType := strings.ToLower(a.Type)
	switch authType {
	case "basic":
		if a.Basic == nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.basic", fieldPrefix),
				Message: "basic auth configuration is required when type is 'basic'",
			})
		} else {
			if a.Basic.Username == "" {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.basic.username", fieldPrefix),
					Message: "username cannot be empty for basic auth",
				})
			}
			if a.Basic.Password == "" {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.basic.password", fieldPrefix),
					Message: "password cannot be empty for basic auth",
				})
			}
		}
	case "bearer":
		if a.Bearer == nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.bearer", fieldPrefix),
				Message: "bearer auth configuration is required when type is 'bearer'",
			})
		} else if a.Bearer.Token == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.bearer.token", fieldPrefix),
				Message: "token cannot be empty for bearer auth",
			})
		}
	case "jwt":
		if a.JWT == nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.jwt", fieldPrefix),
				Message: "jwt auth configuration is required when type is 'jwt'",
			})
		} else if a.JWT.PublicKeyPath == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.jwt.publicKeyPath", fieldPrefix),
				Message: "publicKeyPath cannot be empty for jwt auth",
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// BasicAuth represents basic authentication configuration
type BasicAuth struct {
	Username string
	Password string
}

// BearerAuth represents bearer token authentication configuration
type BearerAuth struct {
	Token string
}

// JWTAuth represents RSA-signed JWT bearer authentication configuration
type JWTAuth struct {
	PublicKeyPath string
	Audience      string
	Issuer        string
}

// ObservabilityConfig configures the structured logger: its minimum
// level and how many recent entries the in-memory ring buffer retains
// for the admin tail endpoints. Categories is carried in the config but
// is not read when the gateway builds its logger.
type ObservabilityConfig struct {
	Level      string
	BufferSize int
	Categories []string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL: "http://localhost",
			Port:    8880,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Endpoints: []EndpointConfig{
			{
				Name:        "default",
				DisplayName: "Default Endpoint",
			},
		},
		Observability: ObservabilityConfig{
			Level:      "info",
			BufferSize: 1000,
		},
	}
}
