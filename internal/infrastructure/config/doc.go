// Package config provides 12-factor configuration management for the library backend.
//
// Values are resolved in three layers, later layers winning:
//  1. Default()
//  2. an optional YAML or TOML file named by CONFIG_FILE
//  3. environment variables
//
// Configuration Sections:
//   - Server: HTTP API settings (port, host)
//   - Logging: log level and output format
//   - Library: storage root, failed-import cleanup policy, scratch TTL
//   - Acquisition: download queue depth, timeout, retries, pacing
//   - Transfer: bind and advertise host for ephemeral transfer services
//   - RateLimit, CORS: API middleware
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - LIBRARY_STORAGE_PATH, LIBRARY_KEEP_FAILED, LIBRARY_SCRATCH_TTL, LIBRARY_MAX_UPLOAD_BYTES
//   - ACQUISITION_QUEUE_DEPTH, ACQUISITION_TIMEOUT, ACQUISITION_RETRIES,
//     ACQUISITION_RATE_LIMIT, ACQUISITION_USER_AGENT
//   - TRANSFER_HOST, TRANSFER_ADVERTISE_HOST
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, CORS_ALLOW_ORIGINS
package config
