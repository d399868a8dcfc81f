// Copyright (c) 2026 Hilla. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, REMS) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Hilla API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Cryptographic keys for session and identity signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// REMS entitlement service (restricted record access)
	REMS REMSConfig

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// REMSConfig holds the connection and form settings for the external REMS
// instance that governs restricted record access.
//
// # Deployment Notes
//
// The catalogue item id and the form field ids are assigned by the REMS
// deployment; they differ between installations and must never be hardcoded.
type REMSConfig struct {
	// APIURL is the base URL of the REMS HTTP API (no trailing slash).
	APIURL string `env:"REMS_API_URL,required"`

	// APIKey authenticates every outgoing call (x-rems-api-key header).
	APIKey string `env:"REMS_API_KEY,required"`

	// AdminUserID is the REMS identity used for administrative calls.
	AdminUserID string `env:"REMS_ADMIN_USER_ID,required"`

	// ApproverUserID is the REMS identity used for approver-context calls
	// (user upserts, blacklist queries, application close).
	ApproverUserID string `env:"REMS_APPROVER_USER_ID,required"`

	// CatalogueItemID identifies the restricted record set in REMS.
	CatalogueItemID int `env:"REMS_CATALOGUE_ITEM_ID,required"`

	// UserIDPrefix is stripped from the patron's external identifier to
	// derive the REMS-side user id (e.g. "urn:hilla:").
	UserIDPrefix string `env:"REMS_USER_ID_PREFIX"`

	// Timeout bounds every REMS HTTP round-trip.
	Timeout time.Duration `env:"REMS_TIMEOUT" envDefault:"30s"`

	// Registration form field ids, as configured in the REMS form editor.
	FieldFirstName    string `env:"REMS_FIELD_FIRSTNAME,required"`
	FieldLastName     string `env:"REMS_FIELD_LASTNAME,required"`
	FieldEmail        string `env:"REMS_FIELD_EMAIL,required"`
	FieldUsagePurpose string `env:"REMS_FIELD_USAGE_PURPOSE,required"`
	FieldAgeConfirmed string `env:"REMS_FIELD_AGE_CONFIRMED,required"`
	FieldLicense      string `env:"REMS_FIELD_LICENSE,required"`
	FieldIdentity     string `env:"REMS_FIELD_IDENTITY,required"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.REMS.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects REMS values that parse but cannot work at runtime.
// Failing here keeps misconfiguration out of the request path.
func (c *REMSConfig) validate() error {
	if c.CatalogueItemID <= 0 {
		return fmt.Errorf("config: REMS_CATALOGUE_ITEM_ID must be a positive integer, got %d", c.CatalogueItemID)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: REMS_TIMEOUT must be positive, got %s", c.Timeout)
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
