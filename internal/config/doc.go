// Package config loads, normalizes, and validates paperboy configuration.
//
// Configuration lives in a TOML file (default ~/.config/paperboy/config.toml,
// with a paperboy.toml project fallback). Loading fills defaults for any
// omitted field, expands ~ in path fields, applies environment overrides for
// secrets, and rejects configs that cannot produce a working batch run.
package config
