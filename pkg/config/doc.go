// Package config provides configuration management for Switchboard.
//
// This package loads, validates and manages configuration from YAML files
// with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("switchboard.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("switchboard.yaml")
//
// An empty path loads the defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SWITCHBOARD_SECTION_FIELD.
// For example:
//
//   - SWITCHBOARD_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SWITCHBOARD_STORE_POSTGRES_URL overrides store.postgres.url
//   - SWITCHBOARD_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A .env file in the working directory is loaded first; variables already
// present in the process environment are not replaced by it.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	store:
//	  backend: postgres
//	  postgres:
//	    url: "postgres://switchboard:switchboard@db:5432/switchboard?sslmode=disable"
//	cache:
//	  backend: redis
//	  redis:
//	    url: "redis://cache:6379/0"
//	compiler:
//	  lock_stale_after: 10m
//	calls:
//	  booking:
//	    fields: [name, phone, address, time]
//	    recovery_step: phone
//	telemetry:
//	  logging:
//	    level: debug
//	    format: text
package config
