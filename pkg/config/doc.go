// Package config loads application configuration from SSOM_-prefixed
// environment variables with sensible defaults and a Validate pass.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Only SSOM_SESSION_SECRET has no default; everything else boots a
// development setup out of the box (in-memory storage, no Redis, no OTel).
package config
