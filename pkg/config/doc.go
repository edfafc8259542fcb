// Package config loads the gateway configuration from the environment.
//
// LoadConfig reads optional .env files with godotenv, parses variables into
// nested structs with caarlos0/env struct tags and validates the result.
// Server and observability variables carry the GRC_ prefix; platform secrets
// use their conventional names (DATABASE_URL, AUTH_*, STRIPE_*).
package config
