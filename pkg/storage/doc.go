// Package storage holds connection settings for the gateway's backing
// stores. Subpackages provide the clients:
//
//   - postgres: database/sql pool on lib/pq and Postgres error helpers
//   - objects: S3-compatible object storage for evidence and policy files
//   - cache: two-tier (in-process LRU plus Redis) read-through cache
package storage
