/*
Package config provides typed access to loosely structured configuration.

# Overview

Config wraps a map[string]any decoded from YAML, JSON or TOML and exposes
typed accessors that fall back to a default when a key is missing or holds the
wrong type. Nested tables are reached with Sub.

# Basic Usage

	cfg, err := config.FromFile("eventbus.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	bus := cfg.Sub("eventbus")
	policy := bus.String("fault_policy", "recover")
	capacity := bus.Int("initial_capacity", 4)
	slow := bus.Duration("slow_subscriber", 0)

# Type Coercion

Duration accepts a string parsed by time.ParseDuration ("250ms", "1m"), a
number of seconds (int, int64, float64) or a time.Duration.

Int accepts int, int64 and whole float64 values. JSON numbers decode as
float64, so "initial_capacity": 8 works from every format.

# File Formats

FromFile picks the decoder by extension: .yaml/.yml, .json, .toml.

# Thread Safety

Config is safe for concurrent reads. It is never modified after creation.
*/
package config
