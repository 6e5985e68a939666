// Package config loads, normalizes, and validates trackreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY, optionally sourced from a .env file in the working
// directory. The Config type centralizes the directories, API settings, and
// ffmpeg options the pipeline and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
